package session

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/company-intel/internal/model"
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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	domain     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	phase      INTEGER NOT NULL DEFAULT 0,
	version    INTEGER NOT NULL DEFAULT 1,
	data       TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_domain ON sessions(domain);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, name, domain string) (*model.Session, error) {
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, name, domain, status, phase, version, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Name, sess.Domain, string(sess.Status), sess.Phase, sess.Version, nil, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create session")
	}
	return sess, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, domain, status, phase, version, data, created_at, updated_at
		 FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *SQLiteStore) FindByDomain(ctx context.Context, domain string) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, domain, status, phase, version, data, created_at, updated_at
		 FROM sessions WHERE domain = ? ORDER BY created_at DESC`, domain)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find by domain")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: find by domain")
}

func (s *SQLiteStore) Update(ctx context.Context, id string, u Update, expectedVersion int64) (*model.Session, error) {
	now := time.Now().UTC()

	// Build the SET clause from the non-nil fields. The version guard in
	// the WHERE clause is the optimistic lock.
	set := "version = version + 1, updated_at = ?"
	args := []any{now}
	if u.Name != nil {
		set += ", name = ?"
		args = append(args, *u.Name)
	}
	if u.Status != nil {
		set += ", status = ?"
		args = append(args, string(*u.Status))
	}
	if u.Phase != nil {
		set += ", phase = ?"
		args = append(args, *u.Phase)
	}
	if u.Data != nil {
		set += ", data = ?"
		args = append(args, string(u.Data))
	}
	args = append(args, id, expectedVersion)

	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET "+set+" WHERE id = ? AND version = ?", args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: update session")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: update session")
	}
	if n == 0 {
		// Distinguish a missing row from a stale version.
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrVersionConflict
	}
	return s.Get(ctx, id)
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*model.Session, error) {
	var (
		sess   model.Session
		status string
		data   sql.NullString
	)
	err := row.Scan(&sess.ID, &sess.Name, &sess.Domain, &status, &sess.Phase,
		&sess.Version, &data, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan session")
	}
	sess.Status = model.SessionStatus(status)
	if data.Valid && data.String != "" {
		sess.Data = []byte(data.String)
	}
	return &sess, nil
}
