// Package api exposes candidate intake and administration over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/fmuoria/talent-admin/internal/agent"
	"github.com/fmuoria/talent-admin/internal/ingestion"
	"github.com/fmuoria/talent-admin/internal/mapping"
	"github.com/fmuoria/talent-admin/internal/store"
)

const (
	// UserHeader carries the acting user id on every request
	UserHeader = "X-User-ID"
	// RoleHeader optionally carries the acting user's role name
	RoleHeader = "X-User-Role"

	defaultMaxUploadMB = 32
	sessionTTL         = 2 * time.Hour
)

// Options configures the server
type Options struct {
	MaxUploadMB    int64
	AllowedOrigins []string
}

// Server handles HTTP requests
type Server struct {
	agent          *agent.Agent
	sessions       *sessionStore
	maxUploadBytes int64
	allowedOrigins []string
}

// NewServer creates a new API server
func NewServer(a *agent.Agent, opts Options) *Server {
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = defaultMaxUploadMB
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		agent:          a,
		sessions:       newSessionStore(sessionTTL),
		maxUploadBytes: opts.MaxUploadMB << 20,
		allowedOrigins: opts.AllowedOrigins,
	}
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", UserHeader, RoleHeader},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.Get("/me", s.handleMe)

		r.Post("/uploads", s.handleUpload)
		r.Get("/uploads", s.handleListUploads)
		r.Get("/uploads/{id}/failures", s.handleListFailures)
		r.Get("/uploads/{id}/report", s.handleUploadReport)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleCancelSession)
			r.Put("/mapping", s.handleSetMapping)
			r.Post("/rematch", s.handleRematch)
			r.Post("/review", s.handleReview)
			r.Post("/edit", s.handleEdit)
			r.Post("/complete", s.handleComplete)
		})

		r.Route("/candidates", func(r chi.Router) {
			r.Get("/", s.handleListCandidates)
			r.Post("/", s.handleCreateCandidate)
			r.Get("/export", s.handleExportCandidates)
			r.Post("/bulk-delete", s.handleBulkDelete)
			r.Put("/{id}", s.handleUpdateCandidate)
			r.Delete("/{id}", s.handleDeleteCandidate)
		})

		r.Get("/template", s.handleTemplate)

		r.Route("/roles", func(r chi.Router) {
			r.Get("/", s.handleListRoles)
			r.Post("/", s.handleCreateRole)
			r.Put("/{id}", s.handleUpdateRole)
			r.Delete("/{id}", s.handleDeleteRole)
		})
	})

	return r
}

// handleHealth provides a health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

type ctxKey struct{}

// requireUser rejects requests without a user id and stores it in the context
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserHeader)
		if userID == "" {
			respondError(w, http.StatusUnauthorized, UserHeader+" header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func userFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, data)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// fail maps err onto a status code. Unknown errors are logged and hidden.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var missing *mapping.MissingFieldsError
	switch {
	case errors.As(err, &missing):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "Map all required fields before reviewing",
			"missing": missing.Labels,
		})
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, agent.ErrValidation):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, mapping.ErrInvalidMapping):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, mapping.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ingestion.ErrUnsupportedFormat):
		respondError(w, http.StatusUnsupportedMediaType, "Unsupported file type. Upload an .xlsx, .xlsm, .csv or .tsv file.")
	case errors.Is(err, ingestion.ErrEmptyOrMalformed):
		respondError(w, http.StatusUnprocessableEntity, "The file is empty or could not be parsed. It needs a header row and at least one data row.")
	case errors.Is(err, store.ErrDegraded):
		respondError(w, http.StatusServiceUnavailable, agent.DegradedAdvisory)
	default:
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
		)
	})
}
