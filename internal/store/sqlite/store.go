// Package sqlite is the SQLite backend. It holds the thread and event ledger
// and a local mirror of the job aggregate.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nickd290/jobtrail/internal/clock"
	"github.com/nickd290/jobtrail/internal/jobs"
	"github.com/nickd290/jobtrail/internal/ledger"
	"github.com/nickd290/jobtrail/internal/thread"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema
// 2 - Partial index for the needs-review queue
const currentSchemaVersion = 2

var (
	_ thread.Store = (*Store)(nil)
	_ ledger.Store = (*Store)(nil)
	_ jobs.Store   = (*Store)(nil)
)

// Store provides durable storage for threads, events and mirrored jobs.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db     *sql.DB
	clock  clock.Clock
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock sets the clock used for updated_at stamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// Safe to call repeatedly on the same file.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		clock:  clock.System{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s.db = db
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate applies the schema and incremental migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	if err := s.runMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func (s *Store) runMigrations(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 2 {
		if err := s.migrateToV2(ctx); err != nil {
			return err
		}
	}

	if version != currentSchemaVersion {
		s.logger.Debug("sqlite schema migrated", "from", version, "to", currentSchemaVersion)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV2 adds the partial index backing ListNeedsReview.
func (s *Store) migrateToV2(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_events_needs_review
		ON events(created_at) WHERE needs_review = 1
	`)
	if err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	return nil
}

func (s *Store) now() time.Time {
	return s.clock.Now()
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
