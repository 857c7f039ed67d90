// Package classifier buckets admission cutoffs against a candidate's rank
// and scores each with a heuristic admission chance.
package classifier

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/course"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/dataset"
	apperrors "github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/errors"
)

type Bucket string

const (
	Safe      Bucket = "safe"
	Moderate  Bucket = "moderate"
	Ambitious Bucket = "ambitious"
)

// Buckets lists the buckets in display order.
var Buckets = []Bucket{Safe, Moderate, Ambitious}

// Curve bounds the chance score. A rank at or better than the opening rank
// scores Cap; one worse than the closing rank scores Floor.
type Curve struct {
	Cap   int `json:"cap"`
	Floor int `json:"floor"`
}

var (
	CurveCapped   = Curve{Cap: 90, Floor: 10}
	CurveUncapped = Curve{Cap: 100, Floor: 0}
)

func (c Curve) Validate() error {
	if c.Floor < 0 || c.Cap > 100 || c.Floor >= c.Cap {
		return fmt.Errorf("chance curve must satisfy 0 <= floor < cap <= 100, got cap=%d floor=%d", c.Cap, c.Floor)
	}
	return nil
}

// Chance scores userRank against one cutoff range, interpolating linearly
// between Cap at the opening rank and Floor at the closing rank and
// truncating. Inputs it cannot score yield 0.
func (c Curve) Chance(userRank, opening, closing int) int {
	if userRank < 1 || opening < 1 || closing < 1 {
		return 0
	}
	switch {
	case userRank <= opening:
		return c.Cap
	case userRank > closing:
		return c.Floor
	}
	span := int64(closing - opening)
	if span <= 0 {
		return 0
	}
	return c.Floor + int(int64(c.Cap-c.Floor)*int64(closing-userRank)/span)
}

// Deviation is how far userRank is behind the closing rank; positive means
// the rank is worse than last cycle's cutoff.
func Deviation(userRank, closing int) int {
	return userRank - closing
}

// BucketOf places userRank relative to one cutoff range. Exactly one bucket
// is returned for any input.
func BucketOf(userRank, opening, closing int) Bucket {
	switch {
	case closing < userRank:
		return Ambitious
	case opening <= userRank:
		return Moderate
	default:
		return Safe
	}
}

type Config struct {
	Curve            Curve
	IncludeDeviation bool
	Granularity      course.Granularity
}

// DefaultConfig is the 90/10 curve with deviation and two-way categories.
func DefaultConfig() Config {
	return Config{Curve: CurveCapped, IncludeDeviation: true, Granularity: course.TwoWay}
}

type Query struct {
	Rank     int             `json:"rank"`
	Quota    string          `json:"quota"`
	SeatType string          `json:"seat_type"`
	Gender   string          `json:"gender,omitempty"`
	Category course.Category `json:"category,omitempty"`
}

// Classified is a copy of a row with the query-scoped derived fields.
type Classified struct {
	dataset.AdmissionRow
	Bucket    Bucket `json:"bucket"`
	Chance    int    `json:"chance_percent"`
	Deviation *int   `json:"deviation,omitempty"`
}

type Result struct {
	Query     Query        `json:"query"`
	Safe      []Classified `json:"safe"`
	Moderate  []Classified `json:"moderate"`
	Ambitious []Classified `json:"ambitious"`
}

// Bucket returns the rows of b.
func (r *Result) Bucket(b Bucket) []Classified {
	switch b {
	case Safe:
		return r.Safe
	case Moderate:
		return r.Moderate
	default:
		return r.Ambitious
	}
}

// Total is the number of classified rows.
func (r *Result) Total() int {
	return len(r.Safe) + len(r.Moderate) + len(r.Ambitious)
}

type Classifier struct {
	cfg Config
}

func New(cfg Config) (*Classifier, error) {
	if err := cfg.Curve.Validate(); err != nil {
		return nil, err
	}
	if cfg.Granularity == "" {
		cfg.Granularity = course.TwoWay
	}
	return &Classifier{cfg: cfg}, nil
}

func (c *Classifier) Config() Config { return c.cfg }

// Classify filters rows to the query's quota and seat type (exact match),
// and optionally gender and course category, then buckets and scores each
// match. rows is never modified. Buckets are sorted by chance descending,
// then closing rank, college and course.
func (c *Classifier) Classify(rows []dataset.AdmissionRow, q Query) (*Result, error) {
	if q.Rank < 1 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "rank must be a positive integer, got %d", q.Rank)
	}
	res := &Result{
		Query:     q,
		Safe:      []Classified{},
		Moderate:  []Classified{},
		Ambitious: []Classified{},
	}
	if q.Category != "" {
		rows = course.Filter(rows, q.Category, c.cfg.Granularity)
	}
	for _, row := range rows {
		if row.Quota != q.Quota || row.SeatType != q.SeatType {
			continue
		}
		if q.Gender != "" && row.Gender != q.Gender {
			continue
		}
		cl := c.classify(row, q.Rank)
		switch cl.Bucket {
		case Safe:
			res.Safe = append(res.Safe, cl)
		case Moderate:
			res.Moderate = append(res.Moderate, cl)
		case Ambitious:
			res.Ambitious = append(res.Ambitious, cl)
		}
	}
	for _, b := range Buckets {
		sortBucket(res.Bucket(b))
	}
	return res, nil
}

func (c *Classifier) classify(row dataset.AdmissionRow, userRank int) Classified {
	cl := Classified{
		AdmissionRow: row,
		Bucket:       BucketOf(userRank, row.OpeningRank, row.ClosingRank),
		Chance:       c.cfg.Curve.Chance(userRank, row.OpeningRank, row.ClosingRank),
	}
	if c.cfg.IncludeDeviation {
		d := Deviation(userRank, row.ClosingRank)
		cl.Deviation = &d
	}
	return cl
}

func sortBucket(rows []Classified) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Chance != b.Chance {
			return a.Chance > b.Chance
		}
		if a.ClosingRank != b.ClosingRank {
			return a.ClosingRank < b.ClosingRank
		}
		if a.College != b.College {
			return a.College < b.College
		}
		return a.Course < b.Course
	})
}

// Options are the distinct filter values present in a dataset.
type Options struct {
	Quotas    []string `json:"quotas"`
	SeatTypes []string `json:"seat_types"`
	Genders   []string `json:"genders"`
}

// DiscoverOptions collects the sorted distinct non-blank quotas, seat
// types and genders in rows.
func DiscoverOptions(rows []dataset.AdmissionRow) Options {
	quotas, seats, genders := map[string]bool{}, map[string]bool{}, map[string]bool{}
	for _, r := range rows {
		quotas[r.Quota] = true
		seats[r.SeatType] = true
		genders[r.Gender] = true
	}
	return Options{Quotas: keys(quotas), SeatTypes: keys(seats), Genders: keys(genders)}
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		if k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
