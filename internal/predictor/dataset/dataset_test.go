package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/errors"
	"github.com/xuri/excelize/v2"
)

func sourceTable() Table {
	return Table{
		Header: []string{"Institute", "Academic Program Name", "Quota", "Seat Type", "Gender", "Opening Rank", "Closing Rank", "Unnamed: 7", "Notes", ""},
		Records: [][]string{
			{"IIT Bombay", "Computer Science and Engineering", "AI", "OPEN", "Gender-Neutral", "1", "68", "x", "", ""},
			{"NIT Trichy", "Architecture", "OS", "OPEN", "Female-only", "1200.0", "2500", "", "", ""},
			{"IIT Kharagpur", "Electrical Engineering", "AI", "OPEN", "Gender-Neutral", "", "900", "", "", ""},
			{"IIT Madras", "Civil Engineering", "AI", "OPEN", "Gender-Neutral", "NaN", "1500", "", "", ""},
			{"IIT Roorkee", "Mechanical Engineering", "AI", "OPEN", "Gender-Neutral", "120P", "800", "", "only row with a note", ""},
			{"NIT Surathkal", "Planning", "HS", "OBC-NCL", "Gender-Neutral", "3000", "3450.5", "", "", ""},
		},
	}
}

func TestNormalize(t *testing.T) {
	got, err := Normalize(sourceTable())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	wantHeader := []string{ColCollege, ColCourse, ColQuota, ColSeatType, ColGender, ColOpeningRank, ColClosingRank}
	if !reflect.DeepEqual(got.Header, wantHeader) {
		t.Errorf("header = %v, want %v", got.Header, wantHeader)
	}
	if len(got.Records) != 2 {
		t.Fatalf("kept %d rows, want 2: %v", len(got.Records), got.Records)
	}
	if got.Records[1][5] != "1200" {
		t.Errorf("opening rank = %q, want 1200", got.Records[1][5])
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	once, err := Normalize(sourceTable())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	twice, err := Normalize(once)
	if err != nil {
		t.Fatalf("second Normalize: %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("not idempotent:\nonce  %v\ntwice %v", once, twice)
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	src := sourceTable()
	before := sourceTable()
	if _, err := Normalize(src); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !reflect.DeepEqual(src, before) {
		t.Error("Normalize modified its input")
	}
}

func TestNormalizeMissingColumn(t *testing.T) {
	src := Table{Header: []string{"Institute", "Quota", "Seat Type", "Opening Rank", "Closing Rank"}}
	_, err := Normalize(src)
	if !errors.Is(err, apperrors.ErrMissingColumn) {
		t.Fatalf("err = %v, want ErrMissingColumn", err)
	}
	if !strings.Contains(apperrors.Message(err), ColCourse) {
		t.Errorf("message %q does not name the missing column", apperrors.Message(err))
	}
	if apperrors.HTTPStatusCode(err) != 422 {
		t.Errorf("status = %d, want 422", apperrors.HTTPStatusCode(err))
	}
}

func TestParseRank(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"42", 42, true},
		{" 42 ", 42, true},
		{"42.0", 42, true},
		{"1e3", 1000, true},
		{"12.5", 0, false},
		{"0", 0, false},
		{"-5", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"120P", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseRank(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRank(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRowsExcludesMissingRanks(t *testing.T) {
	norm, err := Normalize(sourceTable())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	norm.Records = append(norm.Records, []string{"Bad", "Row", "AI", "OPEN", "", "NaN", "10"})
	rows := Rows(norm)
	if len(rows) != 2 {
		t.Fatalf("Rows = %d, want 2", len(rows))
	}
	want := AdmissionRow{
		College: "IIT Bombay", Course: "Computer Science and Engineering",
		Quota: "AI", SeatType: "OPEN", Gender: "Gender-Neutral",
		OpeningRank: 1, ClosingRank: 68,
	}
	if rows[0] != want {
		t.Errorf("rows[0] = %+v, want %+v", rows[0], want)
	}
}

func writeXLSX(t *testing.T, dir, name string, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	path := filepath.Join(dir, name)
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

func TestLoadFileXLSX(t *testing.T) {
	path := writeXLSX(t, t.TempDir(), "josaa.xlsx", [][]any{
		{"Institute", "Academic Program Name", "Quota", "Seat Type", "Gender", "Opening Rank", "Closing Rank"},
		{"IIT Delhi", "Mathematics and Computing", "AI", "OPEN", "Gender-Neutral", 105, 320},
		{"NIT Warangal", "Architecture", "HS"},
	})
	raw, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(raw.Records) != 2 || len(raw.Records[1]) != len(raw.Header) {
		t.Fatalf("short rows were not padded: %v", raw.Records)
	}
	norm, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	rows := Rows(norm)
	if len(rows) != 1 || rows[0].OpeningRank != 105 || rows[0].ClosingRank != 320 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestLoadFilesConcatCSV(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "round1.csv")
	b := filepath.Join(dir, "round2.csv")
	os.WriteFile(a, []byte("\ufeffInstitute,Academic Program Name,Quota,Seat Type,Opening Rank,Closing Rank\nIIT Goa,CSE,AI,OPEN,900,1500\n"), 0o644)
	os.WriteFile(b, []byte("Institute,Quota,Seat Type,Academic Program Name,Gender,Opening Rank,Closing Rank\nIIT Jammu,AI,OPEN,EE,Female-only,4000,6000\n"), 0o644)

	raw, err := LoadFiles(a, b)
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if raw.Column("Institute") != 0 {
		t.Errorf("BOM not stripped from first header: %q", raw.Header[0])
	}
	norm, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	rows := Rows(norm)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[1].Course != "EE" || rows[1].Gender != "Female-only" || rows[0].Gender != "" {
		t.Errorf("columns misaligned: %+v", rows)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.xlsx")); !errors.Is(err, apperrors.ErrDatasetNotFound) {
		t.Errorf("missing file err = %v", err)
	}
	if _, err := Read(strings.NewReader("x"), "data.ods"); !errors.Is(err, apperrors.ErrUnsupportedFile) {
		t.Errorf("unsupported type err = %v", err)
	}
}

func TestCacheLoadsOnce(t *testing.T) {
	var loads atomic.Int32
	load := func(paths []string) ([]AdmissionRow, error) {
		loads.Add(1)
		rows := make([]AdmissionRow, 0, len(paths))
		for _, p := range paths {
			rows = append(rows, AdmissionRow{College: p, OpeningRank: 1, ClosingRank: 2})
		}
		return rows, nil
	}
	c := NewCache(map[string][]string{
		"2024":     {"a.xlsx", "b.xlsx"},
		"2024-iit": {"a.xlsx"},
	}, load, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ds, err := c.Get(ctx, "2024")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if len(ds.Rows) != 2 {
			t.Fatalf("rows = %d, want 2", len(ds.Rows))
		}
	}
	if _, err := c.Get(ctx, "2024-iit"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := loads.Load(); got != 2 {
		t.Errorf("loader called %d times, want 2 (one per dataset)", got)
	}

	if err := c.Invalidate("2024-iit"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if c.Loaded("2024") {
		t.Error("dataset sharing an invalidated file should be dropped")
	}
	if _, err := c.Get(ctx, "2024"); err != nil {
		t.Fatalf("Get after invalidate: %v", err)
	}
	if got := loads.Load(); got != 3 {
		t.Errorf("loader called %d times after invalidate, want 3", got)
	}

	c.InvalidateAll()
	if c.Loaded("2024") || c.Loaded("2024-iit") {
		t.Error("InvalidateAll left datasets cached")
	}
}

func TestCacheErrors(t *testing.T) {
	c := NewCache(map[string][]string{"broken": {"x.csv"}}, func([]string) ([]AdmissionRow, error) {
		return nil, apperrors.New(apperrors.ErrMissingColumn, 422, "missing")
	}, nil)
	if _, err := c.Get(context.Background(), "nope"); !errors.Is(err, apperrors.ErrDatasetNotFound) {
		t.Errorf("unknown dataset err = %v", err)
	}
	if _, err := c.Get(context.Background(), "broken"); !errors.Is(err, apperrors.ErrMissingColumn) {
		t.Errorf("load err = %v", err)
	}
	if c.Loaded("broken") {
		t.Error("failed load was cached")
	}
	if err := c.Invalidate("nope"); err == nil {
		t.Error("expected error invalidating unknown dataset")
	}
	if names := c.Names(); len(names) != 1 || names[0] != "broken" {
		t.Errorf("Names = %v", names)
	}
}

func TestCacheDropsLoadInvalidatedMidway(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var loads atomic.Int32
	load := func(paths []string) ([]AdmissionRow, error) {
		if loads.Add(1) == 1 {
			started <- struct{}{}
			<-release
			return []AdmissionRow{{College: "stale", OpeningRank: 1, ClosingRank: 2}}, nil
		}
		return []AdmissionRow{{College: "fresh", OpeningRank: 1, ClosingRank: 2}}, nil
	}
	c := NewCache(map[string][]string{"2024": {"a.xlsx"}}, load, nil)

	done := make(chan *Dataset, 1)
	go func() {
		ds, _ := c.Get(context.Background(), "2024")
		done <- ds
	}()
	<-started
	if err := c.Invalidate("2024"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	close(release)
	if ds := <-done; ds == nil || ds.Rows[0].College != "stale" {
		t.Fatalf("in-flight Get = %+v, want the stale rows it started with", ds)
	}
	if c.Loaded("2024") {
		t.Fatal("load that started before Invalidate was cached")
	}

	ds, err := c.Get(context.Background(), "2024")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ds.Rows[0].College != "fresh" || loads.Load() != 2 {
		t.Errorf("Get after invalidate = %q after %d loads", ds.Rows[0].College, loads.Load())
	}
}

func TestLoadNormalizedConcatenatesFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
		return path
	}
	round1 := write("round1.csv", "Institute,Academic Program Name,Quota,Seat Type,Gender,Opening Rank,Closing Rank\n"+
		"NIT Trichy,Civil Engineering,AI,OPEN,Gender-Neutral,4000,6000\n")
	round2 := write("round2.csv", "Institute,Academic Program Name,Quota,Seat Type,Opening Rank,Closing Rank\n"+
		"NIT Surat,Architecture,HS,OPEN,900,1500\n")

	rows, err := LoadNormalized([]string{round1, round2})
	if err != nil {
		t.Fatalf("LoadNormalized: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Gender != "Gender-Neutral" || rows[1].Gender != "" {
		t.Errorf("genders = %q, %q", rows[0].Gender, rows[1].Gender)
	}
	if rows[1].College != "NIT Surat" || rows[1].ClosingRank != 1500 {
		t.Errorf("second file row = %+v", rows[1])
	}
}
