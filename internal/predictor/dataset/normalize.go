package dataset

import (
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/errors"
)

// Canonical column names.
const (
	ColCollege     = "College Name"
	ColCourse      = "Course Name"
	ColQuota       = "Quota"
	ColSeatType    = "Seat Type"
	ColGender      = "Gender"
	ColOpeningRank = "Opening Rank"
	ColClosingRank = "Closing Rank"
)

var renames = map[string]string{
	"Institute":             ColCollege,
	"Academic Program Name": ColCourse,
	"Quota":                 ColQuota,
	"Seat Type":             ColSeatType,
	"Gender":                ColGender,
	"Opening Rank":          ColOpeningRank,
	"Closing Rank":          ColClosingRank,
}

// RequiredColumns must be present after renaming. Gender is optional;
// rows without it match any gender filter only when the filter is empty.
var RequiredColumns = []string{ColCollege, ColCourse, ColQuota, ColSeatType, ColOpeningRank, ColClosingRank}

var unnamed = regexp.MustCompile(`^Unnamed`)

// AdmissionRow is one college/course/quota/seat-type/gender cutoff.
type AdmissionRow struct {
	College     string `json:"college_name"`
	Course      string `json:"course_name"`
	Quota       string `json:"quota"`
	SeatType    string `json:"seat_type"`
	Gender      string `json:"gender,omitempty"`
	OpeningRank int    `json:"opening_rank"`
	ClosingRank int    `json:"closing_rank"`
}

// Normalize returns a cleaned copy of t:
//   - columns with a blank or "Unnamed..." header are dropped
//   - source headers are renamed to the canonical names
//   - rank cells are rewritten as plain integers
//   - rows whose opening or closing rank is missing or not a positive
//     integer are dropped
//   - optional columns left with no non-blank value are dropped
//
// Required columns are never dropped, so normalizing a normalized table
// returns an equal table. A table missing a required column is an
// ErrMissingColumn.
func Normalize(t Table) (Table, error) {
	named := make([]int, 0, len(t.Header))
	header := make([]string, 0, len(t.Header))
	for i, h := range t.Header {
		if h == "" || unnamed.MatchString(h) {
			continue
		}
		if canonical, ok := renames[h]; ok {
			h = canonical
		}
		named = append(named, i)
		header = append(header, h)
	}
	renamed := Table{Header: header}

	var missing []string
	for _, col := range RequiredColumns {
		if renamed.Column(col) < 0 {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return Table{}, apperrors.Newf(apperrors.ErrMissingColumn, http.StatusUnprocessableEntity,
			"dataset is missing required column(s): %s", strings.Join(missing, ", "))
	}

	opening, closing := renamed.Column(ColOpeningRank), renamed.Column(ColClosingRank)
	renamed.Records = make([][]string, 0, len(t.Records))
	for _, rec := range t.Records {
		row := make([]string, len(named))
		for j, i := range named {
			if i < len(rec) {
				row[j] = strings.TrimSpace(rec[i])
			}
		}
		o, okO := ParseRank(row[opening])
		c, okC := ParseRank(row[closing])
		if !okO || !okC {
			continue
		}
		row[opening] = strconv.Itoa(o)
		row[closing] = strconv.Itoa(c)
		renamed.Records = append(renamed.Records, row)
	}
	return dropEmptyOptional(renamed), nil
}

func dropEmptyOptional(t Table) Table {
	required := make(map[string]bool, len(RequiredColumns))
	for _, col := range RequiredColumns {
		required[col] = true
	}
	keep := make([]int, 0, len(t.Header))
	for i, h := range t.Header {
		if required[h] || !columnEmpty(t.Records, i) {
			keep = append(keep, i)
		}
	}
	if len(keep) == len(t.Header) {
		return t
	}
	out := Table{Header: make([]string, len(keep)), Records: make([][]string, len(t.Records))}
	for j, i := range keep {
		out.Header[j] = t.Header[i]
	}
	for r, rec := range t.Records {
		row := make([]string, len(keep))
		for j, i := range keep {
			row[j] = rec[i]
		}
		out.Records[r] = row
	}
	return out
}

// ParseRank parses a rank cell. Spreadsheet numbers such as "1234.0" are
// accepted; fractional, non-positive and non-numeric values are not.
func ParseRank(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 {
			return 0, false
		}
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f < 1 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// Rows converts a normalized table into typed rows. Rows whose ranks do
// not parse are skipped, so Rows never yields a row without both ranks.
func Rows(t Table) []AdmissionRow {
	idx := func(name string) int { return t.Column(name) }
	college, course, quota := idx(ColCollege), idx(ColCourse), idx(ColQuota)
	seat, gender := idx(ColSeatType), idx(ColGender)
	opening, closing := idx(ColOpeningRank), idx(ColClosingRank)
	if opening < 0 || closing < 0 {
		return nil
	}
	cell := func(rec []string, i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	rows := make([]AdmissionRow, 0, len(t.Records))
	for _, rec := range t.Records {
		o, okO := ParseRank(cell(rec, opening))
		c, okC := ParseRank(cell(rec, closing))
		if !okO || !okC {
			continue
		}
		rows = append(rows, AdmissionRow{
			College:     cell(rec, college),
			Course:      cell(rec, course),
			Quota:       cell(rec, quota),
			SeatType:    cell(rec, seat),
			Gender:      cell(rec, gender),
			OpeningRank: o,
			ClosingRank: c,
		})
	}
	return rows
}

func columnEmpty(records [][]string, col int) bool {
	for _, rec := range records {
		if col < len(rec) && strings.TrimSpace(rec[col]) != "" {
			return false
		}
	}
	return true
}
