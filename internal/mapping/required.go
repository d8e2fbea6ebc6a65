package mapping

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/fmuoria/talent-admin/internal/models"
)

// ErrRequiredFieldsUnmapped is matched by *MissingFieldsError
var ErrRequiredFieldsUnmapped = eris.New("mapping: required fields unmapped")

// MissingFieldsError lists the required fields no header maps to
type MissingFieldsError struct {
	Missing []string
	Labels  []string
}

func (e *MissingFieldsError) Error() string {
	return "mapping: required fields unmapped: " + strings.Join(e.Labels, ", ")
}

// Is lets errors.Is match ErrRequiredFieldsUnmapped
func (e *MissingFieldsError) Is(target error) bool {
	return target == ErrRequiredFieldsUnmapped
}

// MissingRequired returns the required field ids, in catalog order,
// that no header in m maps to.
func MissingRequired(m models.ColumnMapping, catalog models.Catalog) []string {
	targets := m.Targets()
	var missing []string
	for _, id := range catalog.Required() {
		if !targets[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

// RequiredFieldsMapped reports whether every required field has at least one header mapped to it
func RequiredFieldsMapped(m models.ColumnMapping, catalog models.Catalog) bool {
	return len(MissingRequired(m, catalog)) == 0
}

// CheckRequired returns a *MissingFieldsError when a required field is unmapped
func CheckRequired(m models.ColumnMapping, catalog models.Catalog) error {
	missing := MissingRequired(m, catalog)
	if len(missing) == 0 {
		return nil
	}
	labels := make([]string, len(missing))
	for i, id := range missing {
		labels[i] = id
		if f, ok := catalog.Lookup(id); ok {
			labels[i] = f.Label
		}
	}
	return &MissingFieldsError{Missing: missing, Labels: labels}
}

// Duplicate is a field that two or more headers map to
type Duplicate struct {
	Target  string   `json:"target"`
	Headers []string `json:"headers"`
}

// Duplicates finds fields mapped from more than one header. Headers are
// listed in source column order, so Headers[0] is the one transform honors.
func Duplicates(m models.ColumnMapping, headers []string) []Duplicate {
	byTarget := make(map[string][]string)
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		if seen[h] {
			continue
		}
		seen[h] = true
		if t := m[h]; !models.IsAbsent(t) {
			byTarget[t] = append(byTarget[t], h)
		}
	}

	var out []Duplicate
	for t, hs := range byTarget {
		if len(hs) > 1 {
			out = append(out, Duplicate{Target: t, Headers: hs})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}
