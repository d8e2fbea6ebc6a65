package mapping

import (
	"time"

	"github.com/fmuoria/talent-admin/internal/models"
)

// Transform applies a finalized mapping to every row.
//
// Each record starts with every catalog field empty, then gets the
// auto-populated defaults (both dates set to now, data source set to
// filename or DefaultDataSource). Mapped cells overwrite those defaults.
// When several headers map to one field the leftmost column wins. Short
// rows yield empty strings. No row is dropped.
func Transform(rows [][]string, headers []string, m models.ColumnMapping, filename string, now time.Time, catalog models.Catalog) []models.CandidateRecord {
	type binding struct {
		col    int
		target string
	}

	// resolve columns once; first occurrence of a header, leftmost column per target
	var bindings []binding
	bound := make(map[string]bool)
	seenHeader := make(map[string]bool, len(headers))
	for i, h := range headers {
		if seenHeader[h] {
			continue
		}
		seenHeader[h] = true
		target, ok := m[h]
		if !ok || models.IsAbsent(target) || bound[target] {
			continue
		}
		if _, known := catalog.Lookup(target); !known {
			continue
		}
		bound[target] = true
		bindings = append(bindings, binding{col: i, target: target})
	}

	source := filename
	if source == "" {
		source = models.DefaultDataSource
	}
	today := now.UTC().Format(models.DateLayout)

	out := make([]models.CandidateRecord, 0, len(rows))
	for _, row := range rows {
		rec := models.NewCandidateRecord(catalog)
		rec[models.FieldLoadedAt] = today
		rec[models.FieldUpdatedAt] = today
		rec[models.FieldDataSource] = source

		for _, b := range bindings {
			val := ""
			if b.col < len(row) {
				val = row[b.col]
			}
			rec[b.target] = val
		}
		out = append(out, rec)
	}
	return out
}
