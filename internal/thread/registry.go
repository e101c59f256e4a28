// Package thread tracks email conversations and their attribution to jobs.
package thread

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nickd290/jobtrail/internal/clock"
	"github.com/nickd290/jobtrail/internal/domain"
	"github.com/nickd290/jobtrail/internal/jobs"
	"github.com/nickd290/jobtrail/internal/pattern"
)

// List limits shared by every paginated query.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ClampLimit applies the default and maximum page size.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultListLimit
	case n > MaxListLimit:
		return MaxListLimit
	}
	return n
}

// UpsertInput is one observation of a conversation.
type UpsertInput struct {
	ThreadID       string
	FirstMessageID string
	Subject        string
	From           string
	PONumber       string     // explicit PO; beats extraction from the subject
	LastMessageAt  *time.Time // optional
}

// View is a thread with its linked job, if any.
type View struct {
	Thread domain.Thread      `json:"thread"`
	Job    *domain.JobSummary `json:"job,omitempty"`
}

// Registry upserts threads and links them to jobs.
type Registry struct {
	store  Store
	jobs   jobs.Store
	clock  clock.Clock
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithClock sets the time source. Defaults to clock.System.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// New creates a Registry.
func New(store Store, jobStore jobs.Store, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		jobs:   jobStore,
		clock:  clock.System{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (in *UpsertInput) validate() error {
	switch {
	case strings.TrimSpace(in.ThreadID) == "":
		return domain.Missing("threadId")
	case strings.TrimSpace(in.FirstMessageID) == "":
		return domain.Missing("firstMessageId")
	case strings.TrimSpace(in.From) == "":
		return domain.Missing("from")
	}
	return nil
}

// Upsert records a message on a thread. The first observation creates the
// thread unlinked; later ones refresh its timestamps and fill the PO number
// and customer domain only if they are still unset.
func (r *Registry) Upsert(ctx context.Context, in UpsertInput) (*View, error) {
	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("upsert thread: %w", err)
	}

	po := strings.ToUpper(strings.TrimSpace(in.PONumber))
	if po == "" {
		po = pattern.ExtractPONumber(in.Subject)
	}

	now := r.clock.Now()
	t, err := r.store.UpsertThread(ctx, &domain.Thread{
		ThreadID:          in.ThreadID,
		FirstMessageID:    in.FirstMessageID,
		NormalizedSubject: pattern.NormalizeSubject(in.Subject),
		CustomerDomain:    pattern.ExtractDomain(in.From),
		PONumber:          po,
		LastMessageAt:     in.LastMessageAt,
		LastSyncedAt:      now,
		CreatedAt:         now,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert thread %s: %w", in.ThreadID, err)
	}

	view := &View{Thread: *t}
	if t.Linked() {
		j, err := r.jobs.GetJob(ctx, t.JobID)
		switch {
		case err == nil:
			s := j.Summary()
			view.Job = &s
		case domain.IsNotFound(err):
			// The job aggregate is owned elsewhere and may have been removed.
			r.logger.Warn("thread linked to missing job",
				"thread_id", t.ThreadID,
				"job_id", t.JobID,
			)
		default:
			return nil, fmt.Errorf("upsert thread %s: %w", in.ThreadID, err)
		}
	}
	return view, nil
}

// Link attributes a thread to a job and claims its still-unlinked events.
// It returns the number of events reassigned.
func (r *Registry) Link(ctx context.Context, threadID, jobID string) (int, error) {
	if threadID == "" {
		return 0, fmt.Errorf("link thread: %w", domain.Missing("threadId"))
	}
	if jobID == "" {
		return 0, fmt.Errorf("link thread: %w", domain.Missing("jobId"))
	}
	if _, err := r.jobs.GetJob(ctx, jobID); err != nil {
		return 0, fmt.Errorf("link thread %s: %w", threadID, err)
	}

	n, err := r.store.LinkThread(ctx, threadID, jobID)
	if err != nil {
		return 0, fmt.Errorf("link thread %s: %w", threadID, err)
	}

	r.logger.Info("thread linked",
		"thread_id", threadID,
		"job_id", jobID,
		"events_reassigned", n,
	)
	return n, nil
}

// Get returns a thread by id.
func (r *Registry) Get(ctx context.Context, threadID string) (*domain.Thread, error) {
	return r.store.GetThread(ctx, threadID)
}

// Orphans lists threads with no job, newest first.
func (r *Registry) Orphans(ctx context.Context, limit int) ([]domain.Thread, error) {
	out, err := r.store.ListOrphanThreads(ctx, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list orphan threads: %w", err)
	}
	return out, nil
}
