package storage

import (
	"context"
	"errors"
	"time"

	"logrelay/internal/relay"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the audit API used by the app.
type Store interface {
	AppendOutcome(ctx context.Context, o relay.Outcome) error
	// RecentOutcomes returns up to limit records, newest first.
	RecentOutcomes(ctx context.Context, limit int) ([]relay.Outcome, error)
	Close() error
}
