package thread

import (
	"context"

	"github.com/nickd290/jobtrail/internal/domain"
)

// Store is the thread persistence contract.
type Store interface {
	// UpsertThread inserts t or, when the thread id exists, refreshes its
	// last-message and last-synced times and fills PO number and customer
	// domain only where they are still empty. It must be a single atomic
	// operation so concurrent upserts of one thread converge.
	UpsertThread(ctx context.Context, t *domain.Thread) (*domain.Thread, error)

	// GetThread retrieves a thread. Returns domain.ErrThreadNotFound when absent.
	GetThread(ctx context.Context, threadID string) (*domain.Thread, error)

	// LinkThread sets the thread's job and, in the same transaction, assigns
	// the job to every event on the thread that has none. Returns the number
	// of events reassigned.
	LinkThread(ctx context.Context, threadID, jobID string) (int, error)

	// ListOrphanThreads returns threads with no job, newest first.
	ListOrphanThreads(ctx context.Context, limit int) ([]domain.Thread, error)
}
