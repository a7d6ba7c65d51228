package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no config record exists for a resource name.
var ErrNotFound = errors.New("resource config not found")

// Record is the persisted configuration state of one resource. Name is
// unique. UpdatedAt is UTC. Runtime state (running, PIDs) is deliberately
// not persisted here; it is ephemeral and owned by the supervisor.
type Record struct {
	Name            string
	Path            string
	Enabled         bool
	RestartOnChange bool
	UpdatedAt       time.Time
}

// Store persists resource config records so enable/autorestart decisions
// survive daemon restarts.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, rec Record) error
	GetByName(ctx context.Context, name string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Rename(ctx context.Context, from, to string) error
	Delete(ctx context.Context, name string) error
	Close() error
}
