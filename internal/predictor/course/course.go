// Package course groups programs into broad categories by matching keyword
// tokens in the course name. The match is a heuristic: a course is
// categorized only by whether its name contains one of the tokens.
package course

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/dataset"
)

type Category string

const (
	Engineering             Category = "Engineering"
	ArchitectureAndPlanning Category = "Architecture & Planning"
	Architecture            Category = "Architecture"
	Planning                Category = "Planning"
)

type Granularity string

const (
	// TwoWay splits Engineering from Architecture & Planning.
	TwoWay Granularity = "two-way"
	// ThreeWay splits Planning, Architecture and Engineering.
	ThreeWay Granularity = "three-way"
)

const (
	tokenPlanning     = "planning"
	tokenArchitecture = "architecture"
	tokenDesign       = "design"
)

// ParseGranularity accepts "two-way" or "three-way".
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case TwoWay, ThreeWay:
		return g, nil
	case "":
		return TwoWay, nil
	default:
		return "", fmt.Errorf("unknown course granularity %q", s)
	}
}

// Categories lists the categories of g in display order.
func Categories(g Granularity) []Category {
	if g == ThreeWay {
		return []Category{Engineering, Architecture, Planning}
	}
	return []Category{Engineering, ArchitectureAndPlanning}
}

// Categorize assigns a course name to a category of g.
func Categorize(courseName string, g Granularity) Category {
	name := strings.ToLower(courseName)
	planning := strings.Contains(name, tokenPlanning)
	architecture := strings.Contains(name, tokenArchitecture) || strings.Contains(name, tokenDesign)

	if g == ThreeWay {
		switch {
		case planning:
			return Planning
		case architecture:
			return Architecture
		default:
			return Engineering
		}
	}
	if planning || architecture {
		return ArchitectureAndPlanning
	}
	return Engineering
}

// ParseCategory resolves a user-supplied category name for g. Matching is
// case-insensitive.
func ParseCategory(s string, g Granularity) (Category, error) {
	for _, c := range Categories(g) {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown course category %q for %s granularity", s, g)
}

// Filter returns the rows whose course falls in category. The input slice
// is not modified.
func Filter(rows []dataset.AdmissionRow, category Category, g Granularity) []dataset.AdmissionRow {
	out := make([]dataset.AdmissionRow, 0, len(rows)/2)
	for _, row := range rows {
		if Categorize(row.Course, g) == category {
			out = append(out, row)
		}
	}
	return out
}
