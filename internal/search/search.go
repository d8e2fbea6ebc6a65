// Package search filters and paginates candidate listings in memory.
package search

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/fmuoria/talent-admin/internal/models"
)

// DefaultPerPage is the page size when none is given
const DefaultPerPage = 10

// Query selects and pages candidates
type Query struct {
	// Text matches when any field contains it, ignoring case
	Text string `json:"text,omitempty"`
	// Filters maps field ids to a substring that field must contain
	Filters map[string]string `json:"filters,omitempty"`
	Page    int               `json:"page,omitempty"`
	PerPage int               `json:"per_page,omitempty"`
}

// Page is one page of results
type Page struct {
	Items      []models.Candidate `json:"items"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	PerPage    int                `json:"per_page"`
	TotalPages int                `json:"total_pages"`
}

// Apply filters candidates by q and returns the requested page
func Apply(candidates []models.Candidate, q Query) Page {
	return Paginate(Filter(candidates, q), q.Page, q.PerPage)
}

// Filter keeps candidates matching the free text and every field filter
func Filter(candidates []models.Candidate, q Query) []models.Candidate {
	fold := cases.Fold()
	text := fold.String(strings.TrimSpace(q.Text))

	filters := make(map[string]string, len(q.Filters))
	for id, v := range q.Filters {
		if v = strings.TrimSpace(v); v != "" {
			filters[id] = fold.String(v)
		}
	}

	out := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if text != "" && !anyFieldContains(fold, c.Fields, text) {
			continue
		}
		if !matchesFilters(fold, c.Fields, filters) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func anyFieldContains(fold cases.Caser, rec models.CandidateRecord, text string) bool {
	for _, v := range rec {
		if strings.Contains(fold.String(v), text) {
			return true
		}
	}
	return false
}

func matchesFilters(fold cases.Caser, rec models.CandidateRecord, filters map[string]string) bool {
	for id, want := range filters {
		if !strings.Contains(fold.String(rec[id]), want) {
			return false
		}
	}
	return true
}

// Paginate slices items into 1-based pages. Out of range pages are empty.
func Paginate(items []models.Candidate, page, perPage int) Page {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page <= 0 {
		page = 1
	}

	total := len(items)
	p := Page{
		Items:      []models.Candidate{},
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: (total + perPage - 1) / perPage,
	}

	start := (page - 1) * perPage
	if start >= total {
		return p
	}
	end := start + perPage
	if end > total {
		end = total
	}
	p.Items = items[start:end]
	return p
}
