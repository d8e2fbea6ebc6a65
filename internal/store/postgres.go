package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/fmuoria/talent-admin/internal/models"
)

// Pool is the subset of *pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool. Connection
// failures caused by credentials are returned as *DegradedError.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, Classify(eris.Wrap(err, "postgres: ping"))
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS candidates (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id    TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	fields     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS upload_history (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id       TEXT NOT NULL,
	filename      TEXT NOT NULL,
	total_records INTEGER NOT NULL DEFAULT 0,
	success_count INTEGER NOT NULL DEFAULT 0,
	error_count   INTEGER NOT NULL DEFAULT 0,
	upload_date   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS failed_records (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	upload_id     TEXT NOT NULL REFERENCES upload_history(id) ON DELETE CASCADE,
	row_number    INTEGER NOT NULL,
	error_message TEXT NOT NULL,
	record_data   JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS user_roles (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	permissions JSONB NOT NULL DEFAULT '[]',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_candidates_user_id ON candidates(user_id);
CREATE INDEX IF NOT EXISTS idx_candidates_email ON candidates(email);
CREATE INDEX IF NOT EXISTS idx_upload_history_user_id ON upload_history(user_id);
CREATE INDEX IF NOT EXISTS idx_failed_records_upload_id ON failed_records(upload_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return Classify(eris.Wrap(err, "postgres: migrate"))
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Candidates ---

func (s *PostgresStore) InsertCandidate(ctx context.Context, userID string, rec models.CandidateRecord) (*models.Candidate, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	fieldsJSON, err := json.Marshal(rec)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal candidate")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO candidates (id, user_id, name, email, fields, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, userID, rec[models.FieldName], rec[models.FieldEmail], fieldsJSON, now, now,
	)
	if err != nil {
		return nil, Classify(eris.Wrap(err, "postgres: insert candidate"))
	}

	return &models.Candidate{
		ID:        id,
		UserID:    userID,
		Fields:    rec.Clone(),
		CreatedAt: now,
	}, nil
}

var candidateColumns = []string{"id", "user_id", "name", "email", "fields", "created_at", "updated_at"}

// InsertCandidates bulk-loads records with the COPY protocol.
func (s *PostgresStore) InsertCandidates(ctx context.Context, userID string, recs []models.CandidateRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(recs))
	for i, rec := range recs {
		fieldsJSON, err := json.Marshal(rec)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal candidate %d", i)
		}
		rows = append(rows, []any{uuid.New().String(), userID, rec[models.FieldName], rec[models.FieldEmail], fieldsJSON, now, now})
	}

	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"candidates"}, candidateColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, Classify(eris.Wrap(err, "postgres: COPY INTO candidates"))
	}
	return int(n), nil
}

func (s *PostgresStore) GetCandidate(ctx context.Context, id string) (*models.Candidate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, fields, created_at FROM candidates WHERE id = $1`, id)
	c, err := scanPgCandidate(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get candidate %s", id)
	}
	return c, nil
}

func (s *PostgresStore) ListCandidates(ctx context.Context, filter CandidateFilter) ([]models.Candidate, error) {
	query := `SELECT id, user_id, fields, created_at FROM candidates WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(` AND user_id = $%d`, len(args))
	}
	if filter.Name != "" {
		args = append(args, "%"+strings.ToLower(filter.Name)+"%")
		query += fmt.Sprintf(` AND LOWER(name) LIKE $%d`, len(args))
	}
	if filter.Email != "" {
		args = append(args, "%"+strings.ToLower(filter.Email)+"%")
		query += fmt.Sprintf(` AND LOWER(email) LIKE $%d`, len(args))
	}

	args = append(args, defaultLimit(filter.Limit), filter.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, Classify(eris.Wrap(err, "postgres: list candidates"))
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		c, err := scanPgCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate candidates")
}

func (s *PostgresStore) UpdateCandidate(ctx context.Context, userID, id string, rec models.CandidateRecord) error {
	fieldsJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal candidate")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE candidates SET name = $1, email = $2, fields = $3, updated_at = $4 WHERE id = $5 AND user_id = $6`,
		rec[models.FieldName], rec[models.FieldEmail], fieldsJSON, time.Now().UTC(), id, userID,
	)
	if err != nil {
		return Classify(eris.Wrapf(err, "postgres: update candidate %s", id))
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "candidate %s", id)
	}
	return nil
}

func (s *PostgresStore) DeleteCandidate(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM candidates WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return Classify(eris.Wrapf(err, "postgres: delete candidate %s", id))
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "candidate %s", id)
	}
	return nil
}

// --- Upload history ---

func (s *PostgresStore) CreateUploadRun(ctx context.Context, userID, filename string, total int) (*models.UploadRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO upload_history (id, user_id, filename, total_records, upload_date) VALUES ($1, $2, $3, $4, $5)`,
		id, userID, filename, total, now,
	)
	if err != nil {
		return nil, Classify(eris.Wrap(err, "postgres: insert upload run"))
	}

	return &models.UploadRun{
		ID:           id,
		Filename:     filename,
		UserID:       userID,
		TotalRecords: total,
		UploadDate:   now,
	}, nil
}

func (s *PostgresStore) FinalizeUploadRun(ctx context.Context, id string, success, errCount int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE upload_history SET success_count = $1, error_count = $2 WHERE id = $3`,
		success, errCount, id,
	)
	if err != nil {
		return Classify(eris.Wrapf(err, "postgres: finalize upload run %s", id))
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "upload run %s", id)
	}
	return nil
}

func (s *PostgresStore) GetUploadRun(ctx context.Context, id string) (*models.UploadRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, filename, total_records, success_count, error_count, upload_date FROM upload_history WHERE id = $1`, id)
	var r models.UploadRun
	err := row.Scan(&r.ID, &r.UserID, &r.Filename, &r.TotalRecords, &r.SuccessCount, &r.ErrorCount, &r.UploadDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "upload run %s", id)
	}
	if err != nil {
		return nil, Classify(eris.Wrapf(err, "postgres: get upload run %s", id))
	}
	return &r, nil
}

func (s *PostgresStore) ListUploadRuns(ctx context.Context, filter UploadFilter) ([]models.UploadRun, error) {
	query := `SELECT id, user_id, filename, total_records, success_count, error_count, upload_date FROM upload_history WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(` AND user_id = $%d`, len(args))
	}
	args = append(args, defaultLimit(filter.Limit))
	query += fmt.Sprintf(` ORDER BY upload_date DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, Classify(eris.Wrap(err, "postgres: list upload runs"))
	}
	defer rows.Close()

	var out []models.UploadRun
	for rows.Next() {
		var r models.UploadRun
		if err := rows.Scan(&r.ID, &r.UserID, &r.Filename, &r.TotalRecords, &r.SuccessCount, &r.ErrorCount, &r.UploadDate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan upload run")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate upload runs")
}

// --- Failure log ---

var failedRecordColumns = []string{"id", "upload_id", "row_number", "error_message", "record_data", "created_at"}

func (s *PostgresStore) InsertFailedRecords(ctx context.Context, uploadID string, recs []models.FailedRecord) error {
	if len(recs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(recs))
	for _, f := range recs {
		data, err := json.Marshal(f.RecordData)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal failed record")
		}
		rows = append(rows, []any{uuid.New().String(), uploadID, f.RowNumber, f.ErrorMessage, data, now})
	}

	if _, err := s.pool.CopyFrom(ctx, pgx.Identifier{"failed_records"}, failedRecordColumns, pgx.CopyFromRows(rows)); err != nil {
		return Classify(eris.Wrap(err, "postgres: COPY INTO failed_records"))
	}
	return nil
}

func (s *PostgresStore) ListFailedRecords(ctx context.Context, uploadID string) ([]models.FailedRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, upload_id, row_number, error_message, record_data, created_at FROM failed_records WHERE upload_id = $1 ORDER BY row_number`,
		uploadID,
	)
	if err != nil {
		return nil, Classify(eris.Wrap(err, "postgres: list failed records"))
	}
	defer rows.Close()

	var out []models.FailedRecord
	for rows.Next() {
		var f models.FailedRecord
		var data []byte
		if err := rows.Scan(&f.ID, &f.UploadID, &f.RowNumber, &f.ErrorMessage, &data, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failed record")
		}
		if err := json.Unmarshal(data, &f.RecordData); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal failed record")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate failed records")
}

// --- Roles ---

func (s *PostgresStore) CreateRole(ctx context.Context, role models.RoleRecord) (*models.RoleRecord, error) {
	role.ID = uuid.New().String()
	role.CreatedAt = time.Now().UTC()
	if role.Permissions == nil {
		role.Permissions = []string{}
	}

	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal permissions")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO user_roles (id, name, description, permissions, created_at) VALUES ($1, $2, $3, $4, $5)`,
		role.ID, role.Name, role.Description, perms, role.CreatedAt,
	)
	if err != nil {
		return nil, Classify(eris.Wrapf(err, "postgres: insert role %s", role.Name))
	}
	return &role, nil
}

func (s *PostgresStore) ListRoles(ctx context.Context) ([]models.RoleRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, permissions, created_at FROM user_roles ORDER BY name`)
	if err != nil {
		return nil, Classify(eris.Wrap(err, "postgres: list roles"))
	}
	defer rows.Close()

	var out []models.RoleRecord
	for rows.Next() {
		var r models.RoleRecord
		var perms []byte
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &perms, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan role")
		}
		if err := json.Unmarshal(perms, &r.Permissions); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal permissions")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate roles")
}

func (s *PostgresStore) UpdateRole(ctx context.Context, role models.RoleRecord) error {
	if role.Permissions == nil {
		role.Permissions = []string{}
	}
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal permissions")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE user_roles SET name = $1, description = $2, permissions = $3 WHERE id = $4`,
		role.Name, role.Description, perms, role.ID,
	)
	if err != nil {
		return Classify(eris.Wrapf(err, "postgres: update role %s", role.ID))
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "role %s", role.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteRole(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_roles WHERE id = $1`, id)
	if err != nil {
		return Classify(eris.Wrapf(err, "postgres: delete role %s", id))
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "role %s", id)
	}
	return nil
}

func scanPgCandidate(row pgx.Row) (*models.Candidate, error) {
	var c models.Candidate
	var fieldsJSON []byte

	err := row.Scan(&c.ID, &c.UserID, &fieldsJSON, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "candidate")
	}
	if err != nil {
		return nil, Classify(eris.Wrap(err, "postgres: scan candidate"))
	}
	if err := json.Unmarshal(fieldsJSON, &c.Fields); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal candidate fields")
	}
	return &c, nil
}
