package ledger

import (
	"context"

	"github.com/nickd290/jobtrail/internal/domain"
)

// Store is the event ledger persistence contract.
type Store interface {
	// InsertEvent stores e unless an event with the same message id exists.
	// It returns the stored event and whether this call inserted it. Losing
	// a concurrent race is not an error: the winner is returned with
	// inserted=false.
	InsertEvent(ctx context.Context, e *domain.Event) (*domain.Event, bool, error)

	// GetEvent retrieves an event. Returns domain.ErrEventNotFound when absent.
	GetEvent(ctx context.Context, eventID string) (*domain.Event, error)

	// GetEventByMessageID retrieves an event by its idempotency key.
	// Returns domain.ErrEventNotFound when absent.
	GetEventByMessageID(ctx context.Context, messageID string) (*domain.Event, error)

	// ResolveEventReview clears needsReview and, when non-empty, sets the job
	// and review note. Returns the updated event.
	ResolveEventReview(ctx context.Context, eventID, jobID, note string) (*domain.Event, error)

	// ListNeedsReview returns flagged events, newest first.
	ListNeedsReview(ctx context.Context, limit int) ([]domain.Event, error)

	// ListJobEvents returns a job's events, oldest first.
	ListJobEvents(ctx context.Context, jobID string) ([]domain.Event, error)
}
