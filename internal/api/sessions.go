package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fmuoria/talent-admin/internal/mapping"
	"github.com/fmuoria/talent-admin/internal/models"
)

// session is one in-flight mapping workflow owned by a user
type session struct {
	id        string
	userID    string
	workflow  *mapping.Workflow
	createdAt time.Time
}

// sessionStore keeps mapping workflows between requests. Nothing is
// persisted until a session completes.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{sessions: make(map[string]*session), ttl: ttl}
}

func (s *sessionStore) create(userID string, wf *mapping.Workflow) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(time.Now())

	sess := &session{
		id:        uuid.New().String(),
		userID:    userID,
		workflow:  wf,
		createdAt: time.Now(),
	}
	s.sessions[sess.id] = sess
	return sess
}

// get returns the session only to the user who opened it
func (s *sessionStore) get(id, userID string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(time.Now())

	sess, ok := s.sessions[id]
	if !ok || sess.userID != userID {
		return nil, false
	}
	return sess, true
}

func (s *sessionStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *sessionStore) expireLocked(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	for id, sess := range s.sessions {
		if now.Sub(sess.createdAt) > s.ttl {
			delete(s.sessions, id)
		}
	}
}

// sessionView is the JSON shape of a session
type sessionView struct {
	ID         string               `json:"id"`
	State      mapping.State        `json:"state"`
	Filename   string               `json:"filename,omitempty"`
	Headers    []string             `json:"headers"`
	SampleRows [][]string           `json:"sample_rows"`
	TotalRows  int                  `json:"total_rows"`
	Mapping    models.ColumnMapping `json:"mapping"`
	Fields     models.Catalog       `json:"fields"`
	Missing    []string             `json:"missing_required"`
	Duplicates []mapping.Duplicate  `json:"duplicates"`
	Warnings   []string             `json:"warnings"`
}

func (sess *session) view() sessionView {
	wf := sess.workflow
	v := sessionView{
		ID:         sess.id,
		State:      wf.State(),
		Mapping:    wf.Mapping(),
		Fields:     wf.Catalog().Mappable(),
		Missing:    wf.Missing(),
		Duplicates: wf.Duplicates(),
		Warnings:   wf.Warnings(),
	}
	if ds := wf.Dataset(); ds != nil {
		v.Filename = ds.Filename
		v.Headers = ds.Headers
		v.SampleRows = ds.SampleRows
		v.TotalRows = len(ds.AllRows)
	}
	return v
}
