package service

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/errors"
)

const (
	MaxKeywords      = 500
	MaxSites         = 20
	maxKeywordLength = 256
)

// Validate checks a rank check request before any API credit is spent.
func Validate(keywords, sites []string) error {
	errs := make(map[string]string)

	switch {
	case len(keywords) == 0:
		errs["keywords"] = "at least one keyword is required"
	case len(keywords) > MaxKeywords:
		errs["keywords"] = fmt.Sprintf("at most %d keywords per request", MaxKeywords)
	default:
		for i, kw := range keywords {
			if strings.TrimSpace(kw) == "" {
				errs["keywords"] = fmt.Sprintf("keyword %d is blank", i+1)
				break
			}
			if len(kw) > maxKeywordLength {
				errs["keywords"] = fmt.Sprintf("keyword %d must be at most %d characters", i+1, maxKeywordLength)
				break
			}
		}
	}

	switch {
	case len(sites) == 0 || strings.TrimSpace(sites[0]) == "":
		errs["primary"] = "primary website is required"
	case len(sites) > MaxSites:
		errs["competitors"] = fmt.Sprintf("at most %d websites per request", MaxSites)
	}

	if len(errs) > 0 {
		return &apperrors.ValidationError{Fields: errs}
	}
	return nil
}
