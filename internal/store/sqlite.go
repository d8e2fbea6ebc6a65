package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/fmuoria/talent-admin/internal/models"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS candidates (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	fields     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS upload_history (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	filename      TEXT NOT NULL,
	total_records INTEGER NOT NULL DEFAULT 0,
	success_count INTEGER NOT NULL DEFAULT 0,
	error_count   INTEGER NOT NULL DEFAULT 0,
	upload_date   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS failed_records (
	id            TEXT PRIMARY KEY,
	upload_id     TEXT NOT NULL REFERENCES upload_history(id) ON DELETE CASCADE,
	row_number    INTEGER NOT NULL,
	error_message TEXT NOT NULL,
	record_data   TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS user_roles (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	permissions TEXT NOT NULL DEFAULT '[]',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_candidates_user_id ON candidates(user_id);
CREATE INDEX IF NOT EXISTS idx_candidates_email ON candidates(email);
CREATE INDEX IF NOT EXISTS idx_upload_history_user_id ON upload_history(user_id);
CREATE INDEX IF NOT EXISTS idx_failed_records_upload_id ON failed_records(upload_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Candidates ---

func (s *SQLiteStore) InsertCandidate(ctx context.Context, userID string, rec models.CandidateRecord) (*models.Candidate, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	fieldsJSON, err := json.Marshal(rec)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal candidate")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO candidates (id, user_id, name, email, fields, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, userID, rec[models.FieldName], rec[models.FieldEmail], string(fieldsJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert candidate")
	}

	return &models.Candidate{
		ID:        id,
		UserID:    userID,
		Fields:    rec.Clone(),
		CreatedAt: now,
	}, nil
}

func (s *SQLiteStore) InsertCandidates(ctx context.Context, userID string, recs []models.CandidateRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert candidates")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO candidates (id, user_id, name, email, fields, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert candidates")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, rec := range recs {
		fieldsJSON, err := json.Marshal(rec)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal candidate %d", i)
		}
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), userID, rec[models.FieldName], rec[models.FieldEmail], string(fieldsJSON), now, now); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert candidate %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert candidates")
	}
	return len(recs), nil
}

func (s *SQLiteStore) GetCandidate(ctx context.Context, id string) (*models.Candidate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, fields, created_at FROM candidates WHERE id = ?`, id)
	c, err := scanCandidate(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get candidate %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) ListCandidates(ctx context.Context, filter CandidateFilter) ([]models.Candidate, error) {
	query := `SELECT id, user_id, fields, created_at FROM candidates WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.Name != "" {
		query += ` AND LOWER(name) LIKE ?`
		args = append(args, "%"+strings.ToLower(filter.Name)+"%")
	}
	if filter.Email != "" {
		query += ` AND LOWER(email) LIKE ?`
		args = append(args, "%"+strings.ToLower(filter.Email)+"%")
	}

	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, defaultLimit(filter.Limit), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidates")
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate candidates")
}

func (s *SQLiteStore) UpdateCandidate(ctx context.Context, userID, id string, rec models.CandidateRecord) error {
	fieldsJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal candidate")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE candidates SET name = ?, email = ?, fields = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		rec[models.FieldName], rec[models.FieldEmail], string(fieldsJSON), time.Now().UTC(), id, userID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update candidate %s", id)
	}
	return checkRowsAffected(res, "candidate", id)
}

func (s *SQLiteStore) DeleteCandidate(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM candidates WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete candidate %s", id)
	}
	return checkRowsAffected(res, "candidate", id)
}

// --- Upload history ---

func (s *SQLiteStore) CreateUploadRun(ctx context.Context, userID, filename string, total int) (*models.UploadRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO upload_history (id, user_id, filename, total_records, upload_date) VALUES (?, ?, ?, ?, ?)`,
		id, userID, filename, total, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert upload run")
	}

	return &models.UploadRun{
		ID:           id,
		Filename:     filename,
		UserID:       userID,
		TotalRecords: total,
		UploadDate:   now,
	}, nil
}

func (s *SQLiteStore) FinalizeUploadRun(ctx context.Context, id string, success, errCount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE upload_history SET success_count = ?, error_count = ? WHERE id = ?`,
		success, errCount, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finalize upload run %s", id)
	}
	return checkRowsAffected(res, "upload run", id)
}

func (s *SQLiteStore) GetUploadRun(ctx context.Context, id string) (*models.UploadRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, filename, total_records, success_count, error_count, upload_date FROM upload_history WHERE id = ?`, id)
	r, err := scanUploadRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get upload run %s", id)
	}
	return r, nil
}

func (s *SQLiteStore) ListUploadRuns(ctx context.Context, filter UploadFilter) ([]models.UploadRun, error) {
	query := `SELECT id, user_id, filename, total_records, success_count, error_count, upload_date FROM upload_history WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	query += ` ORDER BY upload_date DESC LIMIT ?`
	args = append(args, defaultLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list upload runs")
	}
	defer rows.Close()

	var out []models.UploadRun
	for rows.Next() {
		r, err := scanUploadRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate upload runs")
}

// --- Failure log ---

func (s *SQLiteStore) InsertFailedRecords(ctx context.Context, uploadID string, recs []models.FailedRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert failed records")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, f := range recs {
		data, err := json.Marshal(f.RecordData)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal failed record")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO failed_records (id, upload_id, row_number, error_message, record_data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), uploadID, f.RowNumber, f.ErrorMessage, string(data), now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert failed record row %d", f.RowNumber)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit failed records")
}

func (s *SQLiteStore) ListFailedRecords(ctx context.Context, uploadID string) ([]models.FailedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, upload_id, row_number, error_message, record_data, created_at FROM failed_records WHERE upload_id = ? ORDER BY row_number`,
		uploadID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list failed records")
	}
	defer rows.Close()

	var out []models.FailedRecord
	for rows.Next() {
		var f models.FailedRecord
		var data string
		if err := rows.Scan(&f.ID, &f.UploadID, &f.RowNumber, &f.ErrorMessage, &data, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failed record")
		}
		if err := json.Unmarshal([]byte(data), &f.RecordData); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal failed record")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate failed records")
}

// --- Roles ---

func (s *SQLiteStore) CreateRole(ctx context.Context, role models.RoleRecord) (*models.RoleRecord, error) {
	role.ID = uuid.New().String()
	role.CreatedAt = time.Now().UTC()
	if role.Permissions == nil {
		role.Permissions = []string{}
	}

	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal permissions")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_roles (id, name, description, permissions, created_at) VALUES (?, ?, ?, ?, ?)`,
		role.ID, role.Name, role.Description, string(perms), role.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert role %s", role.Name)
	}
	return &role, nil
}

func (s *SQLiteStore) ListRoles(ctx context.Context) ([]models.RoleRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, permissions, created_at FROM user_roles ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list roles")
	}
	defer rows.Close()

	var out []models.RoleRecord
	for rows.Next() {
		var r models.RoleRecord
		var perms string
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &perms, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan role")
		}
		if err := json.Unmarshal([]byte(perms), &r.Permissions); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal permissions")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate roles")
}

func (s *SQLiteStore) UpdateRole(ctx context.Context, role models.RoleRecord) error {
	if role.Permissions == nil {
		role.Permissions = []string{}
	}
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal permissions")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_roles SET name = ?, description = ?, permissions = ? WHERE id = ?`,
		role.Name, role.Description, string(perms), role.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update role %s", role.ID)
	}
	return checkRowsAffected(res, "role", role.ID)
}

func (s *SQLiteStore) DeleteRole(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_roles WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete role %s", id)
	}
	return checkRowsAffected(res, "role", id)
}

// --- helpers ---

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCandidate(row scannable) (*models.Candidate, error) {
	var c models.Candidate
	var fieldsJSON string

	err := row.Scan(&c.ID, &c.UserID, &fieldsJSON, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "candidate")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan candidate")
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &c.Fields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal candidate fields")
	}
	return &c, nil
}

func scanUploadRun(row scannable) (*models.UploadRun, error) {
	var r models.UploadRun
	err := row.Scan(&r.ID, &r.UserID, &r.Filename, &r.TotalRecords, &r.SuccessCount, &r.ErrorCount, &r.UploadDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "upload run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan upload run")
	}
	return &r, nil
}
