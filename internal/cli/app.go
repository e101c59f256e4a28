package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nickd290/jobtrail/internal/config"
	"github.com/nickd290/jobtrail/internal/joblock"
	"github.com/nickd290/jobtrail/internal/jobs"
	"github.com/nickd290/jobtrail/internal/ledger"
	"github.com/nickd290/jobtrail/internal/match"
	"github.com/nickd290/jobtrail/internal/store/postgres"
	"github.com/nickd290/jobtrail/internal/store/sqlite"
	"github.com/nickd290/jobtrail/internal/thread"
)

// app holds the opened backends for one command invocation.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	ledger *sqlite.Store
	jobs   jobs.Store
	locker joblock.Locker

	closers []func() error
}

// openApp opens the ledger database, the job store and the job locker
// named by cfg. Jobs come from Postgres when a jobs URL is configured and
// from the ledger's local mirror otherwise. The lock is Redis-backed when a
// Redis URL is configured and in-process otherwise.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	logger.Debug("opening ledger", "path", cfg.Database.LedgerPath)
	st, err := sqlite.Open(cfg.Database.LedgerPath, sqlite.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open ledger database", err)
	}
	a.ledger = st
	a.jobs = st
	a.closers = append(a.closers, st.Close)

	if cfg.Database.JobsURL != "" {
		logger.Debug("connecting to job database")
		pg, err := postgres.Open(ctx, cfg.Database.JobsURL, postgres.WithLogger(logger))
		if err != nil {
			a.Close()
			return nil, WrapExitError(ExitCommandError, "failed to connect to job database", err)
		}
		a.jobs = pg
		a.closers = append(a.closers, pg.Close)
	}

	if cfg.RedisURL != "" {
		rl, err := joblock.NewRedisFromURL(cfg.RedisURL, joblock.WithLogger(logger))
		if err != nil {
			a.Close()
			return nil, WrapExitError(ExitCommandError, "invalid redis url", err)
		}
		if err := rl.Ping(ctx); err != nil {
			rl.Close()
			a.Close()
			return nil, WrapExitError(ExitCommandError, "failed to connect to redis", err)
		}
		a.locker = rl
		a.closers = append(a.closers, rl.Close)
	} else {
		a.locker = joblock.NewLocal()
	}

	return a, nil
}

// Close releases every backend, newest first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("error closing backends", "error", err)
		return err
	}
	return nil
}

func (a *app) threads() *thread.Registry {
	return thread.New(a.ledger, a.jobs, thread.WithLogger(a.logger))
}

func (a *app) matcher() *match.Engine {
	return match.New(a.ledger, a.jobs,
		match.WithLogger(a.logger),
		match.WithWindow(a.cfg.Match.Window()),
	)
}

func (a *app) events() *ledger.Service {
	return ledger.NewService(a.ledger, a.ledger, a.jobs,
		ledger.WithLogger(a.logger),
		ledger.WithLocker(a.locker),
	)
}
