package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/classifier"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/dataset"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/export"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/service"
	"github.com/xuri/excelize/v2"
)

const cutoffs = `Institute,Academic Program Name,Quota,Seat Type,Gender,Opening Rank,Closing Rank,Unnamed: 7
IIT Bombay,Computer Science and Engineering,AI,OPEN,Gender-Neutral,1,68,
NIT Trichy,Civil Engineering,AI,OPEN,Gender-Neutral,500,1000,
NIT Calicut,Architecture,AI,OPEN,Gender-Neutral,600,900,
NIT Surat,Planning,AI,OPEN,Female-only,1500,2500,
IIT Madras,Chemical Engineering,AI,OPEN,Gender-Neutral,NaN,1200,
`

func newMux(t *testing.T) *http.ServeMux {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "josaa_2024.csv")
	if err := os.WriteFile(path, []byte(cutoffs), 0o644); err != nil {
		t.Fatalf("writing dataset: %v", err)
	}
	cache := dataset.NewCache(map[string][]string{
		"josaa-2024": {path},
		"broken":     {filepath.Join(dir, "missing.xlsx")},
	}, nil, nil)
	c, err := classifier.New(classifier.DefaultConfig())
	if err != nil {
		t.Fatalf("classifier.New: %v", err)
	}
	mux := http.NewServeMux()
	New(service.New(cache, c, "josaa-2024", nil, nil)).Register(mux)
	return mux
}

func get(mux http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestPredict(t *testing.T) {
	rec := get(newMux(t), "/api/v1/predict?rank=750&quota=AI&seat_type=OPEN")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp struct {
		Counts    map[string]int          `json:"counts"`
		Moderate  []classifier.Classified `json:"moderate"`
		Ambitious []classifier.Classified `json:"ambitious"`
		Curve     classifier.Curve        `json:"curve"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Counts["safe"] != 1 || resp.Counts["moderate"] != 2 || resp.Counts["ambitious"] != 1 {
		t.Errorf("counts = %v", resp.Counts)
	}
	for _, b := range [][]classifier.Classified{resp.Moderate, resp.Ambitious} {
		for _, row := range b {
			if row.College == "IIT Madras" {
				t.Error("row with a missing opening rank was classified")
			}
		}
	}
	if resp.Moderate[0].College != "NIT Calicut" || resp.Moderate[0].Chance != 50 {
		t.Errorf("first moderate = %+v", resp.Moderate[0])
	}
	if resp.Curve != classifier.CurveCapped {
		t.Errorf("curve = %+v", resp.Curve)
	}
}

func TestPredictCategory(t *testing.T) {
	rec := get(newMux(t), "/api/v1/predict?rank=100&quota=AI&seat_type=OPEN&category=architecture+%26+planning")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp struct {
		Counts map[string]int `json:"counts"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Counts["safe"] != 2 || resp.Counts["moderate"] != 0 || resp.Counts["ambitious"] != 0 {
		t.Errorf("counts = %v", resp.Counts)
	}
}

func TestPredictValidation(t *testing.T) {
	tests := []struct {
		name   string
		target string
		status int
		field  string
	}{
		{"missing rank", "/api/v1/predict?quota=AI&seat_type=OPEN", http.StatusBadRequest, "rank"},
		{"fractional rank", "/api/v1/predict?rank=12.5&quota=AI&seat_type=OPEN", http.StatusBadRequest, "rank"},
		{"zero rank", "/api/v1/predict?rank=0&quota=AI&seat_type=OPEN", http.StatusBadRequest, "rank"},
		{"missing quota", "/api/v1/predict?rank=5&seat_type=OPEN", http.StatusBadRequest, "quota"},
		{"bad category", "/api/v1/predict?rank=5&quota=AI&seat_type=OPEN&category=medicine", http.StatusBadRequest, "category"},
		{"unknown dataset", "/api/v1/predict?rank=5&quota=AI&seat_type=OPEN&dataset=neet", http.StatusNotFound, ""},
		{"missing file", "/api/v1/predict?rank=5&quota=AI&seat_type=OPEN&dataset=broken", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(newMux(t), tt.target)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.status, rec.Body)
			}
			if tt.field == "" {
				return
			}
			var body struct {
				Fields map[string]string `json:"fields"`
			}
			json.NewDecoder(rec.Body).Decode(&body)
			if _, ok := body.Fields[tt.field]; !ok {
				t.Errorf("fields = %v, want %q", body.Fields, tt.field)
			}
		})
	}
}

func TestExport(t *testing.T) {
	rec := get(newMux(t), "/api/v1/predict/export?rank=750&quota=AI&seat_type=OPEN")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != export.ContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "rank_750") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Moderate")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("moderate sheet rows = %d, want header + 2", len(rows))
	}
}

func TestDatasetsOptionsInvalidate(t *testing.T) {
	mux := newMux(t)

	rec := get(mux, "/api/v1/options")
	if rec.Code != http.StatusOK {
		t.Fatalf("options status = %d, body = %s", rec.Code, rec.Body)
	}
	var opts struct {
		Options classifier.Options `json:"options"`
	}
	json.NewDecoder(rec.Body).Decode(&opts)
	if len(opts.Options.Quotas) != 1 || opts.Options.Quotas[0] != "AI" || len(opts.Options.Genders) != 2 {
		t.Errorf("options = %+v", opts.Options)
	}

	rec = get(mux, "/api/v1/datasets")
	var list struct {
		Datasets []service.DatasetInfo `json:"datasets"`
	}
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list.Datasets) != 2 {
		t.Fatalf("datasets = %+v", list.Datasets)
	}
	for _, d := range list.Datasets {
		if d.Name == "josaa-2024" && (!d.Loaded || !d.Default) {
			t.Errorf("josaa-2024 = %+v, want loaded default", d)
		}
	}

	inv := httptest.NewRecorder()
	mux.ServeHTTP(inv, httptest.NewRequest(http.MethodPost, "/api/v1/datasets/invalidate?dataset=josaa-2024", nil))
	if inv.Code != http.StatusOK {
		t.Errorf("invalidate status = %d", inv.Code)
	}
	inv = httptest.NewRecorder()
	mux.ServeHTTP(inv, httptest.NewRequest(http.MethodPost, "/api/v1/datasets/invalidate?dataset=neet", nil))
	if inv.Code != http.StatusNotFound {
		t.Errorf("unknown dataset invalidate status = %d", inv.Code)
	}
}
