// Package agent drives a spreadsheet from upload to stored candidates:
// read, analyze, review, transform and persist.
package agent

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fmuoria/talent-admin/internal/ingestion"
	"github.com/fmuoria/talent-admin/internal/mapping"
	"github.com/fmuoria/talent-admin/internal/models"
	"github.com/fmuoria/talent-admin/internal/store"
)

// ErrValidation is returned for records missing a mandatory field
var ErrValidation = eris.New("agent: validation failed")

const (
	// MissingNameMessage is the failure-log message for rows without a name
	MissingNameMessage = "Name field is required but missing"
	// DegradedAdvisory is shown once per run when the store reports a configuration fault
	DegradedAdvisory = "The database reported a configuration problem (credentials or roles). Records were counted as saved; ask an administrator to check the database setup."
	// SuggestionFallbackWarning is shown when AI suggestions were unavailable
	// and the columns were matched by name instead
	SuggestionFallbackWarning = "AI mapping suggestions are unavailable. Columns were matched by name; please review every mapping."
	// ManualMappingWarning is shown when AI suggestions were unavailable and
	// nothing was pre-filled
	ManualMappingWarning = "AI mapping suggestions are unavailable. Please map the columns manually."

	yieldEvery = 10
)

// ProgressCallback is called to report progress during processing
type ProgressCallback func(current, total int, message string)

// MappingSuggester proposes a column mapping for a dataset
type MappingSuggester interface {
	Suggest(ctx context.Context, headers []string, sample [][]string, fields models.Catalog) (models.ColumnMapping, error)
}

// Options configures an Agent
type Options struct {
	Store       store.Store
	Suggester   MappingSuggester // nil disables AI suggestions
	FileHandler *ingestion.FileHandler
	Reader      *ingestion.Reader
	Catalog     models.Catalog
	// DisableMatcherFallback leaves the mapping empty when the suggester fails
	DisableMatcherFallback bool
}

// Agent orchestrates the candidate intake process
type Agent struct {
	files       *ingestion.FileHandler
	reader      *ingestion.Reader
	suggester   MappingSuggester
	store       store.Store
	catalog     models.Catalog
	fallback    bool
	now         func() time.Time
	mu          sync.RWMutex
	progressCb  ProgressCallback
}

// New creates a new intake agent
func New(opts Options) *Agent {
	a := &Agent{
		files:       opts.FileHandler,
		reader:      opts.Reader,
		suggester:   opts.Suggester,
		store:       opts.Store,
		catalog:     opts.Catalog,
		fallback:    !opts.DisableMatcherFallback,
		now:         time.Now,
	}
	if a.files == nil {
		a.files = ingestion.NewFileHandler("uploads")
	}
	if a.reader == nil {
		a.reader = ingestion.NewReader(ingestion.DefaultSampleRows)
	}
	if len(a.catalog) == 0 {
		a.catalog = models.DefaultCatalog()
	}
	return a
}

// Catalog returns the field catalog the agent maps against
func (a *Agent) Catalog() models.Catalog {
	return a.catalog
}

// Files returns the on-disk store for downloaded spreadsheets
func (a *Agent) Files() *ingestion.FileHandler {
	return a.files
}

// Store returns the persistence collaborator
func (a *Agent) Store() store.Store {
	return a.store
}

// SetProgressCallback sets the progress callback function
func (a *Agent) SetProgressCallback(cb ProgressCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.progressCb = cb
}

// reportProgress calls the progress callback if set
func (a *Agent) reportProgress(current, total int, message string) {
	a.mu.RLock()
	cb := a.progressCb
	a.mu.RUnlock()

	if cb != nil {
		cb(current, total, message)
	}
}

// Open parses an uploaded spreadsheet and analyzes its columns. Reader
// errors are fatal to the attempt and returned as is.
func (a *Agent) Open(ctx context.Context, filename string, src io.Reader) (*mapping.Workflow, error) {
	ds, err := a.reader.Read(filename, src)
	if err != nil {
		return nil, err
	}
	return a.Analyze(ctx, ds), nil
}

// OpenFile is Open for a file on disk
func (a *Agent) OpenFile(ctx context.Context, path string) (*mapping.Workflow, error) {
	ds, err := a.reader.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return a.Analyze(ctx, ds), nil
}

// Analyze starts a mapping workflow for ds and pre-fills it. The AI
// suggester runs when configured; on failure the fuzzy matcher fills in
// and a warning is attached. The workflow always ends in the mapping state.
func (a *Agent) Analyze(ctx context.Context, ds *models.SourceDataset) *mapping.Workflow {
	wf := mapping.NewWorkflow(a.catalog, ds)

	if a.suggester == nil {
		_ = wf.Analyzed(mapping.Match(ds.Headers, a.catalog), nil)
		return wf
	}

	suggested, err := a.suggester.Suggest(ctx, ds.Headers, ds.SampleRows, a.catalog.Mappable())
	if err != nil {
		zap.L().Warn("agent: mapping suggestion failed, falling back",
			zap.String("filename", ds.Filename),
			zap.Bool("matcher_fallback", a.fallback),
			zap.Error(err),
		)
		if !a.fallback {
			_ = wf.Analyzed(nil, nil)
			wf.AddWarning(ManualMappingWarning)
			return wf
		}
		_ = wf.Analyzed(mapping.Match(ds.Headers, a.catalog), nil)
		wf.AddWarning(SuggestionFallbackWarning)
		return wf
	}

	_ = wf.Analyzed(suggested, nil)
	return wf
}

// Commit finalizes a reviewed workflow, transforms every row and uploads the records.
// Upload only fails before any row is stored, so the workflow goes back to
// review and the commit can be retried.
func (a *Agent) Commit(ctx context.Context, userID string, wf *mapping.Workflow) (*UploadResult, error) {
	ds := wf.Dataset()
	m, err := wf.Complete()
	if err != nil {
		return nil, err
	}
	records := mapping.Transform(ds.AllRows, ds.Headers, m, ds.Filename, a.now(), a.catalog)
	res, err := a.Upload(ctx, userID, ds.Filename, records)
	if err != nil {
		if rerr := wf.Reopen(); rerr != nil {
			zap.L().Warn("agent: reopen workflow", zap.Error(rerr))
		}
		return nil, err
	}
	return res, nil
}

// UploadResult is the outcome of one upload run
type UploadResult struct {
	Run      models.UploadRun `json:"run"`
	Summary  string           `json:"summary"`
	Degraded bool             `json:"degraded"`
	Warnings []string         `json:"warnings,omitempty"`
}

// Upload persists records one at a time in input order on behalf of userID.
// Rows without a name are logged as failures without a store call. Store
// configuration faults count as successes and raise a single advisory.
// Other store errors are logged per row and never stop the loop. The run
// is not cancellable once started; ctx only carries values.
func (a *Agent) Upload(ctx context.Context, userID, filename string, records []models.CandidateRecord) (*UploadResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, eris.Wrap(ErrValidation, "user id is required")
	}
	ctx = context.WithoutCancel(ctx)

	total := len(records)
	res := &UploadResult{
		Run: models.UploadRun{
			Filename:     filename,
			UserID:       userID,
			TotalRecords: total,
			UploadDate:   a.now().UTC(),
		},
	}
	degrade := func(err error) {
		zap.L().Warn("agent: store configuration degraded", zap.String("filename", filename), zap.Error(err))
		if !res.Degraded {
			res.Degraded = true
			res.Warnings = append(res.Warnings, DegradedAdvisory)
		}
	}

	run, err := a.store.CreateUploadRun(ctx, userID, filename, total)
	switch {
	case err == nil:
		res.Run.ID = run.ID
		res.Run.UploadDate = run.UploadDate
	case store.IsDegradation(err):
		degrade(err)
	default:
		return nil, eris.Wrap(err, "agent: create upload run")
	}

	zap.L().Info("agent: upload started",
		zap.String("filename", filename),
		zap.String("upload_id", res.Run.ID),
		zap.Int("records", total),
	)

	for i, rec := range records {
		row := i + 1

		if strings.TrimSpace(rec[models.FieldName]) == "" {
			res.fail(row, MissingNameMessage, rec)
		} else if _, err := a.store.InsertCandidate(ctx, userID, rec); err != nil {
			if store.IsDegradation(err) {
				degrade(err)
				res.Run.SuccessCount++
			} else {
				zap.L().Warn("agent: record not saved", zap.Int("row", row), zap.Error(err))
				res.fail(row, err.Error(), rec)
			}
		} else {
			res.Run.SuccessCount++
		}

		a.reportProgress(row, total, fmt.Sprintf("Processed %d of %d records", row, total))
		if row%yieldEvery == 0 {
			runtime.Gosched()
		}
	}

	if res.Run.ID != "" {
		if err := a.store.FinalizeUploadRun(ctx, res.Run.ID, res.Run.SuccessCount, res.Run.ErrorCount); err != nil {
			if store.IsDegradation(err) {
				degrade(err)
			} else {
				zap.L().Warn("agent: finalize upload run", zap.String("upload_id", res.Run.ID), zap.Error(err))
			}
		}
		if len(res.Run.Failures) > 0 {
			if err := a.store.InsertFailedRecords(ctx, res.Run.ID, res.Run.Failures); err != nil {
				zap.L().Warn("agent: failure log not saved", zap.String("upload_id", res.Run.ID), zap.Error(err))
			}
		}
	}

	res.Summary = Summary(res.Run)
	zap.L().Info("agent: upload finished",
		zap.String("upload_id", res.Run.ID),
		zap.Int("success", res.Run.SuccessCount),
		zap.Int("errors", res.Run.ErrorCount),
		zap.Bool("degraded", res.Degraded),
	)
	return res, nil
}

func (r *UploadResult) fail(row int, msg string, rec models.CandidateRecord) {
	r.Run.ErrorCount++
	r.Run.Failures = append(r.Run.Failures, models.FailedRecord{
		UploadID:     r.Run.ID,
		RowNumber:    row,
		ErrorMessage: msg,
		RecordData:   rec.Clone(),
	})
}

// Summary renders the user-facing outcome of a run
func Summary(run models.UploadRun) string {
	return fmt.Sprintf("Successfully processed %d of %d records, with %d errors",
		run.SuccessCount, run.TotalRecords, run.ErrorCount)
}

// AttachmentFetcher downloads spreadsheet attachments matching a subject
type AttachmentFetcher interface {
	FetchAttachments(ctx context.Context, subject string) ([]string, error)
}

// IngestFromGmail downloads matching attachments and opens a workflow for
// each readable one. Unreadable files are logged, removed and skipped.
func (a *Agent) IngestFromGmail(ctx context.Context, fetcher AttachmentFetcher, subject string) ([]*mapping.Workflow, error) {
	a.reportProgress(0, 100, "Fetching emails from Gmail...")

	paths, err := fetcher.FetchAttachments(ctx, subject)
	if err != nil {
		return nil, eris.Wrap(err, "agent: fetch gmail attachments")
	}
	if len(paths) == 0 {
		return nil, eris.Errorf("agent: no spreadsheet attachments found for subject %q", subject)
	}

	workflows := make([]*mapping.Workflow, 0, len(paths))
	for i, p := range paths {
		a.reportProgress(i+1, len(paths), fmt.Sprintf("Analyzing %s (%d/%d)", p, i+1, len(paths)))
		wf, err := a.OpenFile(ctx, p)
		if err != nil {
			zap.L().Warn("agent: skipping attachment", zap.String("path", p), zap.Error(err))
			if rmErr := a.files.Remove(p); rmErr != nil {
				zap.L().Warn("agent: remove attachment", zap.String("path", p), zap.Error(rmErr))
			}
			continue
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}
