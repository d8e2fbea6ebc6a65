package mapping

import (
	"sync"

	"github.com/rotisserie/eris"

	"github.com/fmuoria/talent-admin/internal/models"
)

// State is a step of the mapping review workflow
type State string

const (
	StateAnalyzing State = "analyzing"
	StateMapping   State = "mapping"
	StateReview    State = "review"
	StateComplete  State = "complete"
	StateCancelled State = "cancelled"
)

// ErrInvalidTransition is returned when an action is not allowed in the current state
var ErrInvalidTransition = eris.New("mapping: invalid workflow transition")

// ErrInvalidMapping is returned for a header or target the workflow does not know
var ErrInvalidMapping = eris.New("mapping: invalid mapping")

// Workflow holds the editable mapping for one upload attempt.
// It moves analyzing -> mapping <-> review -> complete, and can be
// cancelled from mapping or review.
type Workflow struct {
	mu       sync.RWMutex
	catalog  models.Catalog
	dataset  *models.SourceDataset
	state    State
	mapping  models.ColumnMapping
	warnings []string
}

// NewWorkflow starts a workflow in the analyzing state
func NewWorkflow(catalog models.Catalog, dataset *models.SourceDataset) *Workflow {
	return &Workflow{
		catalog: catalog,
		dataset: dataset,
		state:   StateAnalyzing,
		mapping: make(models.ColumnMapping),
	}
}

// State returns the current state
func (w *Workflow) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Mapping returns a copy of the working mapping
func (w *Workflow) Mapping() models.ColumnMapping {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.mapping.Clone()
}

// Dataset returns the dataset under review; nil once cancelled
func (w *Workflow) Dataset() *models.SourceDataset {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.dataset
}

// Catalog returns the catalog the workflow validates against
func (w *Workflow) Catalog() models.Catalog {
	return w.catalog
}

// Warnings returns notices raised while analyzing
func (w *Workflow) Warnings() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.warnings...)
}

// Missing returns the required field ids the working mapping lacks
func (w *Workflow) Missing() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return MissingRequired(w.mapping, w.catalog)
}

// Duplicates returns fields mapped from more than one header
func (w *Workflow) Duplicates() []Duplicate {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.dataset == nil {
		return nil
	}
	return Duplicates(w.mapping, w.dataset.Headers)
}

// Analyzed records the outcome of the suggester or matcher and moves to
// mapping. A non-nil cause is kept as a warning; it never blocks the move.
func (w *Workflow) Analyzed(suggested models.ColumnMapping, cause error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateAnalyzing {
		return eris.Wrapf(ErrInvalidTransition, "analyzed from %s", w.state)
	}
	w.mapping = w.sanitize(suggested)
	if cause != nil {
		w.warnings = append(w.warnings, cause.Error())
	}
	w.state = StateMapping
	return nil
}

// AddWarning appends a user-visible notice
func (w *Workflow) AddWarning(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.warnings = append(w.warnings, msg)
}

// SetMapping maps one header to a field, or clears it when target is
// empty or DoNotImport.
func (w *Workflow) SetMapping(header, target string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateMapping {
		return eris.Wrapf(ErrInvalidTransition, "edit mapping in %s", w.state)
	}
	if !w.hasHeader(header) {
		return eris.Wrapf(ErrInvalidMapping, "unknown header %q", header)
	}
	if models.IsAbsent(target) {
		delete(w.mapping, header)
		return nil
	}
	if !w.mappable(target) {
		return eris.Wrapf(ErrInvalidMapping, "%q is not a mappable field", target)
	}
	w.mapping[header] = target
	return nil
}

// Rematch discards the working mapping and replaces it with a fresh fuzzy match
func (w *Workflow) Rematch() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateMapping {
		return eris.Wrapf(ErrInvalidTransition, "rematch in %s", w.state)
	}
	w.mapping = Match(w.dataset.Headers, w.catalog)
	return nil
}

// Review moves to the read-only confirmation step. When a required field
// is unmapped the state is unchanged and a *MissingFieldsError is returned.
func (w *Workflow) Review() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateMapping {
		return eris.Wrapf(ErrInvalidTransition, "review from %s", w.state)
	}
	if err := CheckRequired(w.mapping, w.catalog); err != nil {
		return err
	}
	w.state = StateReview
	return nil
}

// Edit returns from review to mapping
func (w *Workflow) Edit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateReview {
		return eris.Wrapf(ErrInvalidTransition, "edit from %s", w.state)
	}
	w.state = StateMapping
	return nil
}

// Complete finalizes the mapping for transform
func (w *Workflow) Complete() (models.ColumnMapping, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateReview {
		return nil, eris.Wrapf(ErrInvalidTransition, "complete from %s", w.state)
	}
	w.state = StateComplete
	return w.mapping.Clone(), nil
}

// Reopen returns a completed workflow to review when the finalized mapping
// could not be persisted
func (w *Workflow) Reopen() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateComplete {
		return eris.Wrapf(ErrInvalidTransition, "reopen from %s", w.state)
	}
	w.state = StateReview
	return nil
}

// Cancel discards the dataset and mapping
func (w *Workflow) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateMapping && w.state != StateReview {
		return eris.Wrapf(ErrInvalidTransition, "cancel from %s", w.state)
	}
	w.state = StateCancelled
	w.dataset = nil
	w.mapping = make(models.ColumnMapping)
	w.warnings = nil
	return nil
}

// sanitize drops entries whose header or target the workflow does not know
func (w *Workflow) sanitize(m models.ColumnMapping) models.ColumnMapping {
	out := make(models.ColumnMapping, len(m))
	for h, t := range m {
		if models.IsAbsent(t) || !w.hasHeader(h) || !w.mappable(t) {
			continue
		}
		out[h] = t
	}
	return out
}

func (w *Workflow) hasHeader(header string) bool {
	if w.dataset == nil {
		return false
	}
	for _, h := range w.dataset.Headers {
		if h == header {
			return true
		}
	}
	return false
}

func (w *Workflow) mappable(target string) bool {
	f, ok := w.catalog.Lookup(target)
	return ok && !f.AutoPopulate
}
