package store_test

import (
	"github.com/nickd290/jobtrail/internal/jobs"
	"github.com/nickd290/jobtrail/internal/store"
	"github.com/nickd290/jobtrail/internal/store/memory"
	"github.com/nickd290/jobtrail/internal/store/postgres"
	"github.com/nickd290/jobtrail/internal/store/sqlite"
)

var (
	_ store.Store = (*sqlite.Store)(nil)
	_ store.Store = (*memory.Store)(nil)

	_ jobs.Store = (*sqlite.Store)(nil)
	_ jobs.Store = (*memory.Store)(nil)
	_ jobs.Store = (*postgres.JobStore)(nil)
)
