package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/quayside/resman/internal/store"
)

// DB implements store.Store on PostgreSQL via the pgx stdlib driver.
type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS resource_config(
			name TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			enabled BOOLEAN NOT NULL,
			restart_on_change BOOLEAN NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_resource_config_enabled ON resource_config(enabled);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) Upsert(ctx context.Context, rec store.Record) error {
	rec.UpdatedAt = time.Now().UTC()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO resource_config(name, path, enabled, restart_on_change, updated_at)
		VALUES($1, $2, $3, $4, $5)
		ON CONFLICT(name) DO UPDATE SET
			path=excluded.path,
			enabled=excluded.enabled,
			restart_on_change=excluded.restart_on_change,
			updated_at=excluded.updated_at;`,
		rec.Name, rec.Path, rec.Enabled, rec.RestartOnChange, rec.UpdatedAt)
	return err
}

func (p *DB) GetByName(ctx context.Context, name string) (store.Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT name, path, enabled, restart_on_change, updated_at
		FROM resource_config WHERE name=$1;`, name)
	var r store.Record
	err := row.Scan(&r.Name, &r.Path, &r.Enabled, &r.RestartOnChange, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, store.ErrNotFound
	}
	return r, err
}

func (p *DB) List(ctx context.Context) ([]store.Record, error) {
	rows, err := p.db.QueryContext(ctx, `
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

func (p *DB) Rename(ctx context.Context, from, to string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE resource_config SET name=$1, updated_at=$2 WHERE name=$3;`,
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

func (p *DB) Delete(ctx context.Context, name string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM resource_config WHERE name=$1;`, name)
	return err
}
