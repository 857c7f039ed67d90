// Package export renders a classification result as an Excel workbook: a
// Summary sheet with bucket counts and a column chart, followed by one sheet
// per bucket.
package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/classifier"
	"github.com/xuri/excelize/v2"
)

const (
	SummarySheet = "Summary"
	ContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var sheetNames = map[classifier.Bucket]string{
	classifier.Safe:      "Safe",
	classifier.Moderate:  "Moderate",
	classifier.Ambitious: "Ambitious",
}

// SheetName returns the worksheet title for b.
func SheetName(b classifier.Bucket) string { return sheetNames[b] }

// Columns returns the bucket sheet header. Deviation is present only when
// withDeviation is set.
func Columns(withDeviation bool) []string {
	cols := []string{"College Name", "Course Name", "Quota", "Seat Type", "Gender", "Opening Rank", "Closing Rank", "Chance (%)"}
	if withDeviation {
		cols = append(cols, "Deviation")
	}
	return cols
}

// WriteWorkbook writes res as an .xlsx document to w.
func WriteWorkbook(w io.Writer, res *classifier.Result, withDeviation bool) error {
	f, err := Build(res, withDeviation)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// Build assembles the workbook in memory.
func Build(res *classifier.Result, withDeviation bool) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("naming summary sheet: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#1F4E78"}},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating header style: %w", err)
	}

	if err := writeSummary(f, res, header); err != nil {
		f.Close()
		return nil, err
	}
	for _, b := range classifier.Buckets {
		if err := writeBucket(f, SheetName(b), res.Bucket(b), withDeviation, header); err != nil {
			f.Close()
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeSummary(f *excelize.File, res *classifier.Result, header int) error {
	rows := [][]any{{"Bucket", "Colleges"}}
	for _, b := range classifier.Buckets {
		rows = append(rows, []any{SheetName(b), len(res.Bucket(b))})
	}
	rows = append(rows, nil,
		[]any{"Rank", res.Query.Rank},
		[]any{"Quota", res.Query.Quota},
		[]any{"Seat Type", res.Query.SeatType},
		[]any{"Gender", orAny(res.Query.Gender)},
		[]any{"Category", orAny(string(res.Query.Category))},
	)
	if err := setRows(f, SummarySheet, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SummarySheet, "A1", "B1", header); err != nil {
		return fmt.Errorf("styling summary header: %w", err)
	}
	if err := f.SetColWidth(SummarySheet, "A", "B", 16); err != nil {
		return fmt.Errorf("sizing summary columns: %w", err)
	}

	last := len(classifier.Buckets) + 1
	err := f.AddChart(SummarySheet, "D2", &excelize.Chart{
		Type: excelize.Col,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("%s!$B$1", SummarySheet),
			Categories: fmt.Sprintf("%s!$A$2:$A$%d", SummarySheet, last),
			Values:     fmt.Sprintf("%s!$B$2:$B$%d", SummarySheet, last),
		}},
		Title:  []excelize.RichTextRun{{Text: "Colleges per bucket"}},
		Legend: excelize.ChartLegend{Position: "none"},
	})
	if err != nil {
		return fmt.Errorf("adding summary chart: %w", err)
	}
	return nil
}

func writeBucket(f *excelize.File, sheet string, rows []classifier.Classified, withDeviation bool, header int) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("creating sheet %s: %w", sheet, err)
	}
	cols := Columns(withDeviation)
	data := make([][]any, 0, len(rows)+1)
	hdr := make([]any, len(cols))
	for i, c := range cols {
		hdr[i] = c
	}
	data = append(data, hdr)
	for _, r := range rows {
		row := []any{r.College, r.Course, r.Quota, r.SeatType, r.Gender, r.OpeningRank, r.ClosingRank, r.Chance}
		if withDeviation {
			dev := 0
			if r.Deviation != nil {
				dev = *r.Deviation
			}
			row = append(row, dev)
		}
		data = append(data, row)
	}
	if err := setRows(f, sheet, data); err != nil {
		return err
	}

	lastCol, err := excelize.ColumnNumberToName(len(cols))
	if err != nil {
		return fmt.Errorf("resolving last column: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", header); err != nil {
		return fmt.Errorf("styling %s header: %w", sheet, err)
	}
	if err := f.SetColWidth(sheet, "A", "B", 48); err != nil {
		return fmt.Errorf("sizing %s columns: %w", sheet, err)
	}
	if err := f.SetColWidth(sheet, "C", lastCol, 14); err != nil {
		return fmt.Errorf("sizing %s columns: %w", sheet, err)
	}
	if len(rows) > 0 {
		ref := "A1:" + lastCol + strconv.Itoa(len(rows)+1)
		if err := f.AutoFilter(sheet, ref, nil); err != nil {
			return fmt.Errorf("adding %s filter: %w", sheet, err)
		}
	}
	return nil
}

func setRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func orAny(s string) string {
	if s == "" {
		return "Any"
	}
	return s
}
