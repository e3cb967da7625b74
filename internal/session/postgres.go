package session

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/company-intel/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. Satisfied by
// pgxmock in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	domain     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	phase      INTEGER NOT NULL DEFAULT 0,
	version    BIGINT NOT NULL DEFAULT 1,
	data       JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_domain ON sessions(domain);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, name, domain string) (*model.Session, error) {
	now := time.Now().UTC()
	sess := &model.Session{
		ID:        uuid.NewString(),
		Name:      name,
		Domain:    domain,
		Status:    model.SessionPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, name, domain, status, phase, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sess.ID, sess.Name, sess.Domain, string(sess.Status), sess.Phase, sess.Version, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create session")
	}
	return sess, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, domain, status, phase, version, data, created_at, updated_at
		 FROM sessions WHERE id = $1`, id)
	return scanPgSession(row)
}

func (s *PostgresStore) FindByDomain(ctx context.Context, domain string) ([]model.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, domain, status, phase, version, data, created_at, updated_at
		 FROM sessions WHERE domain = $1 ORDER BY created_at DESC`, domain)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find by domain")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanPgSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: find by domain")
}

func (s *PostgresStore) Update(ctx context.Context, id string, u Update, expectedVersion int64) (*model.Session, error) {
	now := time.Now().UTC()

	set := "version = version + 1, updated_at = $1"
	args := []any{now}
	next := 2
	add := func(col string, v any) {
		set += ", " + col + " = $" + strconv.Itoa(next)
		args = append(args, v)
		next++
	}
	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.Phase != nil {
		add("phase", *u.Phase)
	}
	if u.Data != nil {
		add("data", []byte(u.Data))
	}
	query := "UPDATE sessions SET " + set +
		" WHERE id = $" + strconv.Itoa(next) + " AND version = $" + strconv.Itoa(next+1)
	args = append(args, id, expectedVersion)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: update session")
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrVersionConflict
	}
	return s.Get(ctx, id)
}

func scanPgSession(row pgx.Row) (*model.Session, error) {
	var (
		sess   model.Session
		status string
		data   []byte
	)
	err := row.Scan(&sess.ID, &sess.Name, &sess.Domain, &status, &sess.Phase,
		&sess.Version, &data, &sess.CreatedAt, &sess.UpdatedAt)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan session")
	}
	sess.Status = model.SessionStatus(status)
	sess.Data = data
	return &sess, nil
}
