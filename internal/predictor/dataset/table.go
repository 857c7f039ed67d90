// Package dataset loads historical admission cutoff spreadsheets, cleans
// them into a canonical schema and memoizes the result per file.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// Table is a raw or normalized spreadsheet: a header row and data rows of
// equal width.
type Table struct {
	Header  []string
	Records [][]string
}

// Column returns the index of name in the header, or -1.
func (t Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// LoadFile reads a .xlsx or .csv file.
func LoadFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Table{}, apperrors.Newf(apperrors.ErrDatasetNotFound, http.StatusNotFound, "dataset file %s does not exist", filepath.Base(path))
		}
		return Table{}, fmt.Errorf("opening dataset %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, path)
}

// Read parses r according to the extension of filename.
func Read(r io.Reader, filename string) (Table, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx", ".xlsm":
		return readXLSX(r)
	case ".csv":
		return readCSV(r)
	default:
		return Table{}, apperrors.Newf(apperrors.ErrUnsupportedFile, http.StatusUnsupportedMediaType,
			"unsupported dataset file type %q", ext)
	}
}

// LoadFiles loads every path and concatenates the tables. Columns are
// aligned by name; a column absent from one file is blank in its rows.
func LoadFiles(paths ...string) (Table, error) {
	tables := make([]Table, 0, len(paths))
	for _, p := range paths {
		t, err := LoadFile(p)
		if err != nil {
			return Table{}, err
		}
		tables = append(tables, t)
	}
	return Concat(tables...), nil
}

// Concat appends tables, aligning columns by header name in order of first
// appearance.
func Concat(tables ...Table) Table {
	if len(tables) == 1 {
		return tables[0]
	}
	var out Table
	index := make(map[string]int)
	for _, t := range tables {
		for _, h := range t.Header {
			if _, ok := index[h]; !ok {
				index[h] = len(out.Header)
				out.Header = append(out.Header, h)
			}
		}
	}
	for _, t := range tables {
		for _, rec := range t.Records {
			row := make([]string, len(out.Header))
			for i, v := range rec {
				if i < len(t.Header) {
					row[index[t.Header[i]]] = v
				}
			}
			out.Records = append(out.Records, row)
		}
	}
	return out
}

func readXLSX(r io.Reader) (Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Table{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "opening workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return Table{}, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	return fromRows(rows), nil
}

func readCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return Table{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "reading csv: %v", err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return fromRows(rows), nil
}

// fromRows pads every row to the widest row so columns line up. Trailing
// empty cells are omitted by both readers.
func fromRows(rows [][]string) Table {
	if len(rows) == 0 {
		return Table{}
	}
	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	pad := func(row []string) []string {
		out := make([]string, width)
		copy(out, row)
		return out
	}
	t := Table{Header: pad(rows[0]), Records: make([][]string, 0, len(rows)-1)}
	for i := range t.Header {
		t.Header[i] = strings.TrimSpace(t.Header[i])
	}
	for _, row := range rows[1:] {
		t.Records = append(t.Records, pad(row))
	}
	return t
}
