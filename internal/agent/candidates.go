package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/fmuoria/talent-admin/internal/models"
	"github.com/fmuoria/talent-admin/internal/search"
	"github.com/fmuoria/talent-admin/internal/store"
)

// maxListed caps how many rows a listing pulls from the store before filtering
const maxListed = 10000

// ListCandidates returns one page of the user's candidates matching q
func (a *Agent) ListCandidates(ctx context.Context, userID string, q search.Query) (search.Page, error) {
	found, err := a.FindCandidates(ctx, userID, q)
	if err != nil {
		return search.Page{}, err
	}
	return search.Paginate(found, q.Page, q.PerPage), nil
}

// FindCandidates returns every candidate of the user matching q, ignoring paging
func (a *Agent) FindCandidates(ctx context.Context, userID string, q search.Query) ([]models.Candidate, error) {
	all, err := a.store.ListCandidates(ctx, store.CandidateFilter{UserID: userID, Limit: maxListed})
	if err != nil {
		return nil, eris.Wrap(err, "agent: list candidates")
	}
	return search.Filter(all, q), nil
}

// CreateCandidate stores a hand-entered candidate. Name and email are
// required; the source defaults to manual entry and both dates are today.
func (a *Agent) CreateCandidate(ctx context.Context, userID string, rec models.CandidateRecord) (*models.Candidate, error) {
	full := a.complete(rec)
	if err := validateContact(full); err != nil {
		return nil, err
	}

	today := a.now().UTC().Format(models.DateLayout)
	if strings.TrimSpace(full[models.FieldDataSource]) == "" {
		full[models.FieldDataSource] = models.ManualEntrySource
	}
	full[models.FieldLoadedAt] = today
	full[models.FieldUpdatedAt] = today

	return a.store.InsertCandidate(ctx, userID, full)
}

// UpdateCandidate replaces the fields of one of the user's candidates and
// stamps the profile update date
func (a *Agent) UpdateCandidate(ctx context.Context, userID, id string, rec models.CandidateRecord) error {
	full := a.complete(rec)
	if err := validateContact(full); err != nil {
		return err
	}
	full[models.FieldUpdatedAt] = a.now().UTC().Format(models.DateLayout)
	return a.store.UpdateCandidate(ctx, userID, id, full)
}

// DeleteCandidate removes one of the user's candidates
func (a *Agent) DeleteCandidate(ctx context.Context, userID, id string) error {
	return a.store.DeleteCandidate(ctx, userID, id)
}

// BulkDelete removes every candidate in ids owned by the user. Ids that no
// longer exist or belong to someone else are skipped; any other failure
// stops the batch.
func (a *Agent) BulkDelete(ctx context.Context, userID string, ids []string) (int, error) {
	deleted := 0
	for _, id := range ids {
		err := a.store.DeleteCandidate(ctx, userID, id)
		switch {
		case err == nil:
			deleted++
		case errors.Is(err, store.ErrNotFound):
		default:
			return deleted, eris.Wrapf(err, "agent: bulk delete at %s", id)
		}
	}
	return deleted, nil
}

// complete returns a copy of rec holding exactly the catalog's fields
func (a *Agent) complete(rec models.CandidateRecord) models.CandidateRecord {
	full := models.NewCandidateRecord(a.catalog)
	for id := range full {
		full[id] = strings.TrimSpace(rec[id])
	}
	return full
}

func validateContact(rec models.CandidateRecord) error {
	var missing []string
	if rec[models.FieldName] == "" {
		missing = append(missing, models.FieldName)
	}
	if rec[models.FieldEmail] == "" {
		missing = append(missing, models.FieldEmail)
	}
	if len(missing) > 0 {
		return eris.Wrapf(ErrValidation, "missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// CreateRole validates and stores a role definition
func (a *Agent) CreateRole(ctx context.Context, role models.RoleRecord) (*models.RoleRecord, error) {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return nil, eris.Wrap(ErrValidation, "role name is required")
	}
	return a.store.CreateRole(ctx, role)
}

// UpdateRole validates and replaces a role definition
func (a *Agent) UpdateRole(ctx context.Context, role models.RoleRecord) error {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return eris.Wrap(ErrValidation, "role name is required")
	}
	return a.store.UpdateRole(ctx, role)
}
