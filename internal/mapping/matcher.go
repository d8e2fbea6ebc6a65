package mapping

import (
	"github.com/fmuoria/talent-admin/internal/models"
)

// Match proposes a mapping from source headers to catalog fields.
//
// Each header takes the first field, in catalog order, whose normalized
// label or id contains the normalized header or is contained by it.
// Auto-populated fields are never proposed. Headers with no match are left
// out of the result. The result is always a fresh mapping.
func Match(headers []string, catalog models.Catalog) models.ColumnMapping {
	fields := catalog.Mappable()

	type normField struct {
		id, label, normID string
	}
	normalized := make([]normField, len(fields))
	for i, f := range fields {
		normalized[i] = normField{id: f.ID, label: Normalize(f.Label), normID: Normalize(f.ID)}
	}

	out := make(models.ColumnMapping)
	for _, h := range headers {
		nh := Normalize(h)
		if nh == "" {
			continue
		}
		if _, done := out[h]; done {
			continue
		}
		for _, f := range normalized {
			if similar(nh, f.label) || similar(nh, f.normID) {
				out[h] = f.id
				break
			}
		}
	}
	return out
}
