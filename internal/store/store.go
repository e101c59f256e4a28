// Package store defines the aggregate persistence interface for the ledger.
//
// Each subsystem (thread, ledger, jobs) defines its own store interface.
// The composite Store covers the ledger database; jobs.Store may be served by
// the same backend or by a separate one (see internal/store/postgres).
//
// # Guarantees every backend provides
//
//   - A thread id maps to at most one thread; upserts are atomic.
//   - A message id maps to at most one event; a losing concurrent insert
//     observes the winner.
//   - Workflow stage writes are compare-and-set on the previous stage.
//   - Lists have a deterministic order with an insertion-order tie-break.
//
// # Backends
//
//   - sqlite: ledger plus a local job mirror (github.com/mattn/go-sqlite3)
//   - postgres: jobs.Store over the external job database (github.com/lib/pq)
//   - memory: everything, for tests and development
package store

import (
	"context"

	"github.com/nickd290/jobtrail/internal/ledger"
	"github.com/nickd290/jobtrail/internal/thread"
)

// Store is the ledger persistence interface.
type Store interface {
	thread.Store
	ledger.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
