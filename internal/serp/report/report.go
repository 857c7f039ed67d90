// Package report assembles per-keyword rank records into a keyword × site
// table and renders it for display and CSV export.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/fetcher"
)

// TopRank is the last rank that is highlighted as a first-page result.
const TopRank = 10

// Style is the highlight applied to a rank cell.
type Style string

const (
	StyleGood Style = "green"
	StyleBad  Style = "red"
)

// Record is the rank of every requested site for one keyword. Records are
// created by NewRecord and must not be modified afterwards.
type Record struct {
	Keyword   string           `json:"keyword"`
	Ranks     fetcher.Rankings `json:"ranks"`
	PixelRank *int             `json:"pixel_rank"`
}

// NewRecord copies ranks so later changes to the caller's map cannot leak in.
func NewRecord(keyword string, ranks fetcher.Rankings, pixelRank *int) Record {
	cp := make(fetcher.Rankings, len(ranks))
	for site, r := range ranks {
		if r != nil {
			v := *r
			cp[site] = &v
		} else {
			cp[site] = nil
		}
	}
	var px *int
	if pixelRank != nil {
		v := *pixelRank
		px = &v
	}
	return Record{Keyword: keyword, Ranks: cp, PixelRank: px}
}

// Rank returns the rank of site and whether one was found.
func (r Record) Rank(site string) (int, bool) {
	v := r.Ranks[site]
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Report is the full result of a rank check. Sites[0] is the primary site.
type Report struct {
	Sites       []string  `json:"sites"`
	Records     []Record  `json:"records"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Primary returns the primary site.
func (r *Report) Primary() string {
	if len(r.Sites) == 0 {
		return ""
	}
	return r.Sites[0]
}

// Build creates a Report for sites in the given order.
func Build(sites []string, records []Record) *Report {
	return &Report{
		Sites:       append([]string(nil), sites...),
		Records:     append([]Record(nil), records...),
		GeneratedAt: time.Now().UTC(),
	}
}

// SiteList returns primary followed by the comma-separated competitors,
// trimmed, without blanks and without repeats.
func SiteList(primary, competitors string) []string {
	seen := make(map[string]bool)
	var sites []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		sites = append(sites, s)
	}
	add(primary)
	for _, c := range strings.Split(competitors, ",") {
		add(c)
	}
	return sites
}

// Highlight styles a rank cell: first-page ranks are good, everything else,
// including a missing rank, is bad.
func Highlight(rank *int) Style {
	if rank != nil && *rank <= TopRank {
		return StyleGood
	}
	return StyleBad
}

// Header returns the table column titles.
func (r *Report) Header() []string {
	header := make([]string, 0, len(r.Sites)+2)
	header = append(header, "Keyword")
	for _, site := range r.Sites {
		header = append(header, fmt.Sprintf("Ranking of %s", site))
	}
	return append(header, "Pixel Rank (Primary Website)")
}

// Rows renders each record as table cells; a missing rank is an empty cell.
func (r *Report) Rows() [][]string {
	rows := make([][]string, 0, len(r.Records))
	for _, rec := range r.Records {
		row := make([]string, 0, len(r.Sites)+2)
		row = append(row, rec.Keyword)
		for _, site := range r.Sites {
			row = append(row, formatRank(rec.Ranks[site]))
		}
		row = append(row, formatRank(rec.PixelRank))
		rows = append(rows, row)
	}
	return rows
}

// WriteCSV writes the header and rows to w.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(r.Header()); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	if err := cw.WriteAll(r.Rows()); err != nil {
		return fmt.Errorf("writing csv rows: %w", err)
	}
	return nil
}

// Summary counts, per site, how many keywords rank on the first page and
// how many are not ranked at all.
type Summary struct {
	Site      string `json:"site"`
	FirstPage int    `json:"first_page"`
	Ranked    int    `json:"ranked"`
	Unranked  int    `json:"unranked"`
}

// Summaries returns one Summary per site in site order.
func (r *Report) Summaries() []Summary {
	out := make([]Summary, 0, len(r.Sites))
	for _, site := range r.Sites {
		s := Summary{Site: site}
		for _, rec := range r.Records {
			rank, ok := rec.Rank(site)
			switch {
			case !ok:
				s.Unranked++
			case rank <= TopRank:
				s.FirstPage++
				s.Ranked++
			default:
				s.Ranked++
			}
		}
		out = append(out, s)
	}
	return out
}

func formatRank(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
