package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/fetcher"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/report"
)

func intPtr(v int) *int { return &v }

func sampleReport() *report.Report {
	sites := []string{"primary.edu", "rival.edu"}
	return report.Build(sites, []report.Record{
		report.NewRecord("btech admission", fetcher.Rankings{"primary.edu": intPtr(3), "rival.edu": nil}, intPtr(220)),
		report.NewRecord("nit cutoff", fetcher.Rankings{"primary.edu": intPtr(42), "rival.edu": intPtr(7)}, intPtr(2560)),
	})
}

func TestPrintSummaryPlain(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, sampleReport(), false)
	out := buf.String()

	for _, want := range []string{"primary.edu=3", "rival.edu=-", "primary.edu=42", "rival.edu=7"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("plain summary contains escape codes")
	}
	if !strings.Contains(out, "first page   1  ranked   2  not ranked   0") {
		t.Errorf("primary totals missing:\n%s", out)
	}
}

func TestPrintSummaryColored(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, sampleReport(), true)
	out := buf.String()

	if !strings.Contains(out, "primary.edu="+ansiGreen+"3"+ansiReset) {
		t.Errorf("first-page rank not green:\n%q", out)
	}
	if !strings.Contains(out, "primary.edu="+ansiRed+"42"+ansiReset) {
		t.Errorf("deep rank not red:\n%q", out)
	}
	if !strings.Contains(out, "rival.edu="+ansiRed+"-"+ansiReset) {
		t.Errorf("missing rank not red:\n%q", out)
	}
}
