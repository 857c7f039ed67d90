// Package pixel estimates how far down a results page an organic result is
// rendered.
package pixel

const (
	// DefaultHeaderOffset is the height above the first organic result.
	DefaultHeaderOffset = 100
	// DefaultRowHeight is the assumed height of one organic result.
	DefaultRowHeight = 60
)

// Estimator converts ordinal ranks into vertical pixel offsets.
type Estimator struct {
	HeaderOffset int
	RowHeight    int
}

// NewEstimator returns an Estimator, substituting defaults for non-positive
// values.
func NewEstimator(headerOffset, rowHeight int) Estimator {
	if headerOffset <= 0 {
		headerOffset = DefaultHeaderOffset
	}
	if rowHeight <= 0 {
		rowHeight = DefaultRowHeight
	}
	return Estimator{HeaderOffset: headerOffset, RowHeight: rowHeight}
}

// Estimate returns HeaderOffset + (rank-1)*RowHeight, or nil for a nil rank.
func (e Estimator) Estimate(rank *int) *int {
	if rank == nil {
		return nil
	}
	px := e.HeaderOffset + (*rank-1)*e.RowHeight
	return &px
}

// Estimate uses the default 100px header and 60px rows.
func Estimate(rank *int) *int {
	return NewEstimator(DefaultHeaderOffset, DefaultRowHeight).Estimate(rank)
}
