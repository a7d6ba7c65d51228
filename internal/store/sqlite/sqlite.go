package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quayside/resman/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// The DSN is a filesystem path; use ":memory:" for in-memory.
type DB struct {
	db *sql.DB
}

func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS resource_config(
			name TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			enabled BOOLEAN NOT NULL,
			restart_on_change BOOLEAN NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_resource_config_enabled ON resource_config(enabled);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) Upsert(ctx context.Context, rec store.Record) error {
	rec.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resource_config(name, path, enabled, restart_on_change, updated_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			path=excluded.path,
			enabled=excluded.enabled,
			restart_on_change=excluded.restart_on_change,
			updated_at=excluded.updated_at;`,
		rec.Name, rec.Path, rec.Enabled, rec.RestartOnChange, rec.UpdatedAt)
	return err
}

func (s *DB) GetByName(ctx context.Context, name string) (store.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, path, enabled, restart_on_change, updated_at
		FROM resource_config WHERE name=?;`, name)
	var r store.Record
	err := row.Scan(&r.Name, &r.Path, &r.Enabled, &r.RestartOnChange, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, store.ErrNotFound
	}
	return r, err
}

func (s *DB) List(ctx context.Context) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, path, enabled, restart_on_change, updated_at
		FROM resource_config ORDER BY name;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]store.Record, 0)
	for rows.Next() {
		var r store.Record
		if err := rows.Scan(&r.Name, &r.Path, &r.Enabled, &r.RestartOnChange, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *DB) Rename(ctx context.Context, from, to string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE resource_config SET name=?, updated_at=? WHERE name=?;`,
		to, time.Now().UTC(), from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return store.ErrNotFound
	}
	return err
}

func (s *DB) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM resource_config WHERE name=?;`, name)
	return err
}
