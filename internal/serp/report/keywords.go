package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/errors"
)

// KeywordColumn is the required column of a keyword upload.
const KeywordColumn = "Keyword"

// ReadKeywords reads the Keyword column of a CSV upload. Blank keywords are
// skipped; order and duplicates are preserved. A file without the column is
// an ErrMissingColumn.
func ReadKeywords(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.Newf(apperrors.ErrMissingColumn, http.StatusUnprocessableEntity,
				"CSV file must contain '%s' column", KeywordColumn)
		}
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "reading csv header: %v", err)
	}
	col := -1
	for i, name := range header {
		if strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) == KeywordColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, apperrors.Newf(apperrors.ErrMissingColumn, http.StatusUnprocessableEntity,
			"CSV file must contain '%s' column", KeywordColumn)
	}

	var keywords []string
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "reading csv line %d: %v", line, err)
		}
		if col >= len(rec) {
			continue
		}
		if kw := strings.TrimSpace(rec[col]); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		return nil, fmt.Errorf("%w: no keywords in file", apperrors.ErrInvalidInput)
	}
	return keywords, nil
}
