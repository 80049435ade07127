// Package project classifies invoices against the project catalogue.
package project

import (
	"sort"
	"strings"

	"invoicevault/internal/invoice/models"
)

// Matcher picks the project a free-text label refers to. A nil result is a
// valid answer meaning the invoice needs manual classification.
type Matcher interface {
	Match(label string, projects []models.Project) *models.Project
}

// SubstringMatcher matches when the label occurs, case-insensitively, in an
// active project's code or name. Candidates are scanned in code order so the
// first match is stable regardless of how the catalogue was loaded.
type SubstringMatcher struct{}

func (SubstringMatcher) Match(label string, projects []models.Project) *models.Project {
	needle := strings.ToLower(strings.TrimSpace(label))
	if needle == "" {
		return nil
	}
	candidates := make([]models.Project, 0, len(projects))
	for _, p := range projects {
		if p.Active {
			candidates = append(candidates, p)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return strings.ToLower(candidates[i].Code) < strings.ToLower(candidates[j].Code)
	})
	for i := range candidates {
		p := candidates[i]
		if strings.Contains(strings.ToLower(p.Code), needle) || strings.Contains(strings.ToLower(p.Name), needle) {
			return &p
		}
	}
	return nil
}
