package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/talent-admin/internal/agent"
	"github.com/fmuoria/talent-admin/internal/ingestion"
	"github.com/fmuoria/talent-admin/internal/models"
	"github.com/fmuoria/talent-admin/internal/store"
)

const peopleCSV = "Full Name,Email ID,Mobile,Where,Stack,Years\n" +
	"Jane Doe,jane@x.com,555-1111,Nairobi,Go,5\n" +
	",anon@x.com,555-2222,Mombasa,Rust,2\n"

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	a := agent.New(agent.Options{
		Store:       st,
		FileHandler: ingestion.NewFileHandler(t.TempDir()),
	})
	s := NewServer(a, Options{})
	return s, s.Router()
}

func do(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, h http.Handler, user, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(UserHeader, user)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestRequiresUserHeader(t *testing.T) {
	_, h := newTestServer(t)
	for _, path := range []string{"/me", "/candidates", "/uploads", "/roles", "/template"} {
		rec := do(t, h, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestMe_NormalizesRole(t *testing.T) {
	_, h := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(UserHeader, "u1")
	req.Header.Set(RoleHeader, "Super Admin")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]string](t, rec)
	assert.Equal(t, "u1", got["user_id"])
	assert.Equal(t, string(models.RoleSuperAdmin), got["role"])
}

func TestUploadWorkflow_EndToEnd(t *testing.T) {
	_, h := newTestServer(t)

	rec := upload(t, h, "u1", "people.csv", peopleCSV)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decode[sessionView](t, rec)
	assert.Equal(t, "mapping", string(view.State))
	assert.Equal(t, 2, view.TotalRows)
	assert.Equal(t, models.FieldName, view.Mapping["Full Name"])
	assert.Contains(t, view.Missing, models.FieldPhone)

	base := "/sessions/" + view.ID

	// other users cannot see the session
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, base, "u2", nil).Code)

	rec = do(t, h, http.MethodPost, base+"/review", "u1", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Phone Number")

	rec = do(t, h, http.MethodPut, base+"/mapping", "u1", mappingRequest{Header: "Nope", Target: models.FieldPhone})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for header, target := range map[string]string{
		"Mobile": models.FieldPhone,
		"Where":  models.FieldLocation,
		"Stack":  models.FieldTech,
		"Years":  models.FieldExperience,
	} {
		rec = do(t, h, http.MethodPut, base+"/mapping", "u1", mappingRequest{Header: header, Target: target})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	// completing before review is a conflict
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, base+"/complete", "u1", nil).Code)

	rec = do(t, h, http.MethodPost, base+"/review", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "review", string(decode[sessionView](t, rec).State))

	rec = do(t, h, http.MethodPost, base+"/complete", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[agent.UploadResult](t, rec)
	assert.Equal(t, "Successfully processed 1 of 2 records, with 1 errors", res.Summary)

	// the session is gone once completed
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, base, "u1", nil).Code)

	rec = do(t, h, http.MethodGet, "/uploads", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]models.UploadRun](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].ErrorCount)

	rec = do(t, h, http.MethodGet, "/uploads/"+runs[0].ID+"/failures", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	failures := decode[[]models.FailedRecord](t, rec)
	require.Len(t, failures, 1)
	assert.Equal(t, agent.MissingNameMessage, failures[0].ErrorMessage)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/uploads/"+runs[0].ID+"/failures", "u2", nil).Code)

	rec = do(t, h, http.MethodGet, "/uploads/"+runs[0].ID+"/report", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))

	rec = do(t, h, http.MethodGet, "/candidates", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Jane Doe")
}

func TestUpload_RejectsLegacyExcel(t *testing.T) {
	_, h := newTestServer(t)
	rec := upload(t, h, "u1", "legacy.xls", "binary")
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestUpload_RejectsEmptyFile(t *testing.T) {
	_, h := newTestServer(t)
	rec := upload(t, h, "u1", "empty.csv", "Full Name\n")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCancelSession(t *testing.T) {
	_, h := newTestServer(t)
	view := decode[sessionView](t, upload(t, h, "u1", "people.csv", peopleCSV))

	rec := do(t, h, http.MethodDelete, "/sessions/"+view.ID, "u1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/sessions/"+view.ID, "u1", nil).Code)
}

func TestCandidatesCRUD(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/candidates", "u1", models.CandidateRecord{models.FieldName: "Jane"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPost, "/candidates", "u1", models.CandidateRecord{
		models.FieldName:  "Jane Doe",
		models.FieldEmail: "jane@example.com",
		models.FieldTech:  "Go",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	jane := decode[models.Candidate](t, rec)
	assert.Equal(t, models.ManualEntrySource, jane.Fields[models.FieldDataSource])

	rec = do(t, h, http.MethodPost, "/candidates", "u1", models.CandidateRecord{
		models.FieldName:  "John Roe",
		models.FieldEmail: "john@example.com",
		models.FieldTech:  "Python",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	john := decode[models.Candidate](t, rec)

	rec = do(t, h, http.MethodGet, "/candidates?q=PYTHON", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[struct {
		Items []models.Candidate `json:"items"`
		Total int                `json:"total"`
	}](t, rec)
	require.Equal(t, 1, page.Total, rec.Body.String())
	assert.Equal(t, john.ID, page.Items[0].ID)

	rec = do(t, h, http.MethodGet, "/candidates?Tech=go", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Jane Doe")
	assert.NotContains(t, rec.Body.String(), "John Roe")

	updated := jane.Fields.Clone()
	updated[models.FieldCompany] = "Acme"
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPut, "/candidates/"+jane.ID, "u1", updated).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPut, "/candidates/missing", "u1", updated).Code)

	rec = do(t, h, http.MethodGet, "/candidates/export", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	rec = do(t, h, http.MethodPost, "/candidates/bulk-delete", "u1", bulkDeleteRequest{IDs: []string{jane.ID, "missing"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[map[string]int](t, rec)["deleted"])

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/candidates/"+john.ID, "u1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/candidates/"+john.ID, "u1", nil).Code)
}

func TestTemplate(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/template", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())
}

func TestRoles(t *testing.T) {
	_, h := newTestServer(t)

	assert.Equal(t, http.StatusUnprocessableEntity,
		do(t, h, http.MethodPost, "/roles", "u1", models.RoleRecord{Name: "  "}).Code)

	rec := do(t, h, http.MethodPost, "/roles", "u1", models.RoleRecord{Name: "recruiter", Permissions: []string{"upload"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	role := decode[models.RoleRecord](t, rec)

	role.Description = "Hiring team"
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPut, "/roles/"+role.ID, "u1", role).Code)

	rec = do(t, h, http.MethodGet, "/roles", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	roles := decode[[]models.RoleRecord](t, rec)
	require.Len(t, roles, 1)
	assert.Equal(t, "Hiring team", roles[0].Description)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/roles/"+role.ID, "u1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/roles/"+role.ID, "u1", nil).Code)
}

func TestCandidates_OtherUsersCannotModify(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/candidates", "alice", models.CandidateRecord{
		models.FieldName:  "Jane Doe",
		models.FieldEmail: "jane@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	jane := decode[models.Candidate](t, rec)

	hijack := models.CandidateRecord{models.FieldName: "Hijacked", models.FieldEmail: "h@example.com"}
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPut, "/candidates/"+jane.ID, "mallory", hijack).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/candidates/"+jane.ID, "mallory", nil).Code)

	rec = do(t, h, http.MethodPost, "/candidates/bulk-delete", "mallory", bulkDeleteRequest{IDs: []string{jane.ID}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[map[string]int](t, rec)["deleted"])

	rec = do(t, h, http.MethodGet, "/candidates", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Jane Doe")
	assert.NotContains(t, rec.Body.String(), "Hijacked")
}
