package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fmuoria/talent-admin/internal/export"
	"github.com/fmuoria/talent-admin/internal/models"
	"github.com/fmuoria/talent-admin/internal/search"
	"github.com/fmuoria/talent-admin/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"user_id": userFrom(r.Context()),
		"role":    string(models.NormalizeRole(r.Header.Get(RoleHeader))),
	})
}

// --- uploads and mapping sessions ---

// handleUpload reads the spreadsheet in the "file" field and opens a mapping session
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds %d MB", s.maxUploadBytes>>20))
			return
		}
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse form: %v", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	wf, err := s.agent.Open(r.Context(), header.Filename, file)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	sess := s.sessions.create(userFrom(r.Context()), wf)
	zap.L().Info("api: mapping session opened",
		zap.String("session", sess.id),
		zap.String("filename", header.Filename),
	)
	s.respondJSON(w, http.StatusCreated, sess.view())
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session, bool) {
	sess, ok := s.sessions.get(chi.URLParam(r, "id"), userFrom(r.Context()))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
	}
	return sess, ok
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.session(w, r); ok {
		s.respondJSON(w, http.StatusOK, sess.view())
	}
}

type mappingRequest struct {
	Header string `json:"header"`
	Target string `json:"target"`
}

func (s *Server) handleSetMapping(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req mappingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := sess.workflow.SetMapping(req.Header, req.Target); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sess.view())
}

func (s *Server) handleRematch(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(sess *session) error { return sess.workflow.Rematch() })
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(sess *session) error { return sess.workflow.Review() })
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(sess *session) error { return sess.workflow.Edit() })
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, step func(*session) error) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := step(sess); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sess.view())
}

// handleComplete transforms every row and persists the records
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	res, err := s.agent.Commit(r.Context(), sess.userID, sess.workflow)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.sessions.remove(sess.id)
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.workflow.Cancel(); err != nil {
		s.fail(w, r, err)
		return
	}
	s.sessions.remove(sess.id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	runs, err := s.agent.Store().ListUploadRuns(r.Context(), store.UploadFilter{
		UserID: userFrom(r.Context()),
		Limit:  intParam(r, "limit", 0),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []models.UploadRun{}
	}
	s.respondJSON(w, http.StatusOK, runs)
}

// ownedRun loads an upload run and hides runs of other users
func (s *Server) ownedRun(w http.ResponseWriter, r *http.Request) (*models.UploadRun, bool) {
	run, err := s.agent.Store().GetUploadRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	if run.UserID != userFrom(r.Context()) {
		respondError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	return run, true
}

func (s *Server) handleListFailures(w http.ResponseWriter, r *http.Request) {
	run, ok := s.ownedRun(w, r)
	if !ok {
		return
	}
	failures, err := s.agent.Store().ListFailedRecords(r.Context(), run.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if failures == nil {
		failures = []models.FailedRecord{}
	}
	s.respondJSON(w, http.StatusOK, failures)
}

func (s *Server) handleUploadReport(w http.ResponseWriter, r *http.Request) {
	run, ok := s.ownedRun(w, r)
	if !ok {
		return
	}
	failures, err := s.agent.Store().ListFailedRecords(r.Context(), run.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	run.Failures = failures

	var buf bytes.Buffer
	if err := export.WriteUploadReport(&buf, *run, s.agent.Catalog()); err != nil {
		s.fail(w, r, err)
		return
	}
	sendWorkbook(w, "upload-report-"+run.ID+".xlsx", buf.Bytes())
}

// --- candidates ---

// candidateQuery reads q, page, per_page and any catalog field id as a filter
func (s *Server) candidateQuery(r *http.Request) search.Query {
	params := r.URL.Query()
	q := search.Query{
		Text:    params.Get("q"),
		Page:    intParam(r, "page", 1),
		PerPage: intParam(r, "per_page", search.DefaultPerPage),
		Filters: map[string]string{},
	}
	for _, id := range s.agent.Catalog().IDs() {
		if v := params.Get(id); v != "" {
			q.Filters[id] = v
		}
	}
	return q
}

func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	page, err := s.agent.ListCandidates(r.Context(), userFrom(r.Context()), s.candidateQuery(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateCandidate(w http.ResponseWriter, r *http.Request) {
	var rec models.CandidateRecord
	if err := decodeJSON(r, &rec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	c, err := s.agent.CreateCandidate(r.Context(), userFrom(r.Context()), rec)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCandidate(w http.ResponseWriter, r *http.Request) {
	var rec models.CandidateRecord
	if err := decodeJSON(r, &rec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.agent.UpdateCandidate(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"), rec); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteCandidate(w http.ResponseWriter, r *http.Request) {
	if err := s.agent.DeleteCandidate(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := decodeJSON(r, &req); err != nil || len(req.IDs) == 0 {
		respondError(w, http.StatusBadRequest, "ids is required")
		return
	}
	n, err := s.agent.BulkDelete(r.Context(), userFrom(r.Context()), req.IDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) handleExportCandidates(w http.ResponseWriter, r *http.Request) {
	found, err := s.agent.FindCandidates(r.Context(), userFrom(r.Context()), s.candidateQuery(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteCandidates(&buf, found, s.agent.Catalog()); err != nil {
		s.fail(w, r, err)
		return
	}
	sendWorkbook(w, "candidates-"+time.Now().Format(models.DateLayout)+".xlsx", buf.Bytes())
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := export.WriteTemplate(&buf, s.agent.Catalog()); err != nil {
		s.fail(w, r, err)
		return
	}
	sendWorkbook(w, "candidate-template.xlsx", buf.Bytes())
}

// --- roles ---

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.agent.Store().ListRoles(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if roles == nil {
		roles = []models.RoleRecord{}
	}
	s.respondJSON(w, http.StatusOK, roles)
}

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var role models.RoleRecord
	if err := decodeJSON(r, &role); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	created, err := s.agent.CreateRole(r.Context(), role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var role models.RoleRecord
	if err := decodeJSON(r, &role); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	role.ID = chi.URLParam(r, "id")
	if err := s.agent.UpdateRole(r.Context(), role); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	if err := s.agent.Store().DeleteRole(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func sendWorkbook(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		zap.L().Warn("api: write workbook", zap.String("filename", filename), zap.Error(err))
	}
}

func intParam(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
