// Package jobs defines the contract for reading and stage-writing the
// externally owned job aggregate.
package jobs

import (
	"context"
	"time"

	"github.com/nickd290/jobtrail/internal/domain"
)

// Store is the job persistence contract. The core only ever writes a job's
// workflow stage; every other field is owned elsewhere.
type Store interface {
	// GetJob retrieves a job by ID. Returns domain.ErrJobNotFound when absent.
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)

	// FindJobsByPO returns jobs whose customer PO equals po and which were
	// created at or after since, newest first.
	FindJobsByPO(ctx context.Context, po string, since time.Time) ([]domain.JobCandidate, error)

	// UpdateJobStage sets the workflow stage to to only if it is currently
	// from, bumping the version. Returns domain.ErrStageConflict when the
	// stored stage differs and domain.ErrJobNotFound when the job is absent.
	UpdateJobStage(ctx context.Context, jobID string, from, to domain.Stage) error

	// LoadSnapshot returns the job with its purchase orders, components and
	// profit split. Returns domain.ErrJobNotFound when absent.
	LoadSnapshot(ctx context.Context, jobID string) (*Snapshot, error)

	// RecentJobIDs returns the IDs of the limit most recently created jobs,
	// newest first.
	RecentJobIDs(ctx context.Context, limit int) ([]string, error)
}

// Snapshot is everything the invariant checks read for one job.
type Snapshot struct {
	Job            domain.Job
	PurchaseOrders []domain.PurchaseOrder
	Components     []domain.Component
	Split          *domain.ProfitSplit // nil when no split is recorded
}
