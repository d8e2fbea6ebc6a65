package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/fmuoria/talent-admin/internal/config"
	"github.com/fmuoria/talent-admin/internal/models"
)

// CandidateFilter selects candidates for listing.
type CandidateFilter struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// UploadFilter selects upload runs for listing.
type UploadFilter struct {
	UserID string `json:"user_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for candidate intake.
// Every write carries the acting user id explicitly.
type Store interface {
	// Candidates
	InsertCandidate(ctx context.Context, userID string, rec models.CandidateRecord) (*models.Candidate, error)
	InsertCandidates(ctx context.Context, userID string, recs []models.CandidateRecord) (int, error)
	GetCandidate(ctx context.Context, id string) (*models.Candidate, error)
	ListCandidates(ctx context.Context, filter CandidateFilter) ([]models.Candidate, error)
	// UpdateCandidate and DeleteCandidate only touch rows owned by userID;
	// rows of other users are reported as ErrNotFound.
	UpdateCandidate(ctx context.Context, userID, id string, rec models.CandidateRecord) error
	DeleteCandidate(ctx context.Context, userID, id string) error

	// Upload runs
	CreateUploadRun(ctx context.Context, userID, filename string, total int) (*models.UploadRun, error)
	FinalizeUploadRun(ctx context.Context, id string, success, errors int) error
	GetUploadRun(ctx context.Context, id string) (*models.UploadRun, error)
	ListUploadRuns(ctx context.Context, filter UploadFilter) ([]models.UploadRun, error)

	// Failure log
	InsertFailedRecords(ctx context.Context, uploadID string, recs []models.FailedRecord) error
	ListFailedRecords(ctx context.Context, uploadID string) ([]models.FailedRecord, error)

	// Roles
	CreateRole(ctx context.Context, role models.RoleRecord) (*models.RoleRecord, error)
	ListRoles(ctx context.Context) ([]models.RoleRecord, error)
	UpdateRole(ctx context.Context, role models.RoleRecord) error
	DeleteRole(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the store selected by cfg.Driver
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns})
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

func defaultLimit(n int) int {
	if n <= 0 {
		return 1000
	}
	return n
}
