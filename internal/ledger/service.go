// Package ledger records idempotent job events and applies the stage
// changes they imply.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nickd290/jobtrail/internal/clock"
	"github.com/nickd290/jobtrail/internal/domain"
	"github.com/nickd290/jobtrail/internal/joblock"
	"github.com/nickd290/jobtrail/internal/jobs"
	"github.com/nickd290/jobtrail/internal/thread"
	"github.com/nickd290/jobtrail/internal/workflow"
)

const meterName = "github.com/nickd290/jobtrail/ledger"

// AutoUpdateThreshold is the minimum confidence (inclusive) at which an
// event may change a job's stage without review.
const AutoUpdateThreshold = 0.7

// maxStageAttempts bounds compare-and-set retries when another writer moves
// the stage between read and write.
const maxStageAttempts = 3

// CreateInput is a new event as received from a caller.
type CreateInput struct {
	ThreadID    string           `json:"threadId"`
	MessageID   string           `json:"messageId"`
	Type        domain.EventType `json:"type"`
	Confidence  *float64         `json:"confidence"` // required; nil when absent
	Source      string           `json:"source"`
	Signals     []string         `json:"signals,omitempty"`
	Links       []string         `json:"links,omitempty"`
	JobID       string           `json:"jobId,omitempty"`
	NeedsReview bool             `json:"needsReview,omitempty"`
	ReviewNote  string           `json:"reviewNote,omitempty"`
}

func (in *CreateInput) validate() error {
	switch {
	case strings.TrimSpace(in.ThreadID) == "":
		return domain.Missing("threadId")
	case strings.TrimSpace(in.MessageID) == "":
		return domain.Missing("messageId")
	case in.Type == "":
		return domain.Missing("type")
	case !in.Type.Valid():
		return domain.Invalid("type", fmt.Sprintf("unknown event type %q", in.Type))
	case in.Confidence == nil:
		return domain.Missing("confidence")
	case strings.TrimSpace(in.Source) == "":
		return domain.Missing("source")
	}
	return nil
}

// CreateResult reports what Create did. Decision is nil when the event was
// replayed or never eligible to move the stage.
type CreateResult struct {
	Event         *domain.Event      `json:"event"`
	Created       bool               `json:"created"`
	StatusUpdated bool               `json:"statusUpdated"`
	Decision      *workflow.Decision `json:"decision,omitempty"`
}

// Service is the event ledger.
type Service struct {
	events  Store
	threads thread.Store
	jobs    jobs.Store
	locker  joblock.Locker
	clock   clock.Clock
	ids     clock.IDGenerator
	logger  *slog.Logger

	eventsCounter    metric.Int64Counter
	decisionsCounter metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock sets the time source for event timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithIDGenerator sets the event id source. Defaults to UUIDv7.
func WithIDGenerator(g clock.IDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

// WithLocker sets the per-job lock. Defaults to an in-process lock.
func WithLocker(l joblock.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithMeter records metrics on m instead of the global meter provider.
func WithMeter(m metric.Meter) Option {
	return func(s *Service) { s.initMetrics(m) }
}

func (s *Service) initMetrics(m metric.Meter) {
	// Errors leave noop instruments in place.
	s.eventsCounter, _ = m.Int64Counter(
		"jobtrail.ledger.events",
		metric.WithDescription("Event create calls by result (created or replayed)"),
		metric.WithUnit("{event}"),
	)
	s.decisionsCounter, _ = m.Int64Counter(
		"jobtrail.ledger.stage_decisions",
		metric.WithDescription("Automatic stage decisions by outcome"),
		metric.WithUnit("{decision}"),
	)
}

// NewService creates a ledger service.
func NewService(events Store, threads thread.Store, jobStore jobs.Store, opts ...Option) *Service {
	s := &Service{
		events:  events,
		threads: threads,
		jobs:    jobStore,
		locker:  joblock.NewLocal(),
		clock:   clock.System{},
		ids:     clock.UUIDv7Generator{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.eventsCounter == nil {
		s.initMetrics(otel.Meter(meterName))
	}
	return s
}

// Create records an event. A message id that was already recorded returns
// the stored event with Created=false and has no other effect.
//
// When the event is linked to a job, is not flagged for review, and its
// confidence is at least AutoUpdateThreshold, the job's stage is advanced as
// workflow.ProcessSingleEvent decides.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	existing, err := s.events.GetEventByMessageID(ctx, in.MessageID)
	switch {
	case err == nil:
		s.countEvent(ctx, "replayed")
		return &CreateResult{Event: existing}, nil
	case !errors.Is(err, domain.ErrEventNotFound):
		return nil, fmt.Errorf("create event: %w", err)
	}

	t, err := s.threads.GetThread(ctx, in.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("create event %s: %w", in.MessageID, err)
	}

	jobID := t.JobID
	if in.JobID != "" {
		if _, err := s.jobs.GetJob(ctx, in.JobID); err != nil {
			return nil, fmt.Errorf("create event %s: %w", in.MessageID, err)
		}
		jobID = in.JobID
	}

	e := &domain.Event{
		ID:          s.ids.Generate(),
		MessageID:   in.MessageID,
		ThreadID:    in.ThreadID,
		Type:        in.Type,
		Confidence:  domain.ClampConfidence(*in.Confidence),
		Source:      in.Source,
		Signals:     nonNil(in.Signals),
		Links:       nonNil(in.Links),
		JobID:       jobID,
		NeedsReview: in.NeedsReview,
		ReviewNote:  in.ReviewNote,
		CreatedAt:   s.clock.Now(),
	}

	stored, inserted, err := s.events.InsertEvent(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("create event %s: %w", in.MessageID, err)
	}
	if !inserted {
		// Lost a concurrent race for this message id.
		s.countEvent(ctx, "replayed")
		return &CreateResult{Event: stored}, nil
	}
	s.countEvent(ctx, "created")

	res := &CreateResult{Event: stored, Created: true}
	if !eligible(stored) {
		return res, nil
	}

	d, updated, err := s.advance(ctx, stored)
	if err != nil {
		return nil, fmt.Errorf("create event %s: %w", in.MessageID, err)
	}
	res.Decision = d
	res.StatusUpdated = updated
	return res, nil
}

func eligible(e *domain.Event) bool {
	return e.JobID != "" && !e.NeedsReview && e.Confidence >= AutoUpdateThreshold
}

// advance applies one event to its job's stage under the job lock. The write
// is a compare-and-set on the stage that was read; a conflict means another
// writer got in first, so the decision is made again on fresh state.
func (s *Service) advance(ctx context.Context, e *domain.Event) (*workflow.Decision, bool, error) {
	release, err := s.locker.Lock(ctx, e.JobID)
	if err != nil {
		return nil, false, fmt.Errorf("lock job %s: %w", e.JobID, err)
	}
	defer release()

	for attempt := 1; attempt <= maxStageAttempts; attempt++ {
		job, err := s.jobs.GetJob(ctx, e.JobID)
		if err != nil {
			return nil, false, err
		}

		d := workflow.ProcessSingleEvent(e.Type, job.WorkflowStage)
		if !d.ShouldUpdate {
			s.logDecision(ctx, e, job.WorkflowStage, d, false)
			return &d, false, nil
		}

		err = s.jobs.UpdateJobStage(ctx, e.JobID, job.WorkflowStage, d.NewStage)
		switch {
		case err == nil:
			s.logDecision(ctx, e, job.WorkflowStage, d, true)
			return &d, true, nil
		case errors.Is(err, domain.ErrStageConflict):
			s.logger.Debug("stage changed concurrently, retrying",
				"job_id", e.JobID,
				"attempt", attempt,
			)
			continue
		default:
			return nil, false, fmt.Errorf("update job %s stage: %w", e.JobID, err)
		}
	}
	return nil, false, fmt.Errorf("update job %s stage after %d attempts: %w",
		e.JobID, maxStageAttempts, domain.ErrStageConflict)
}

func (s *Service) logDecision(ctx context.Context, e *domain.Event, from domain.Stage, d workflow.Decision, applied bool) {
	outcome := "unchanged"
	if applied {
		outcome = "updated"
	}
	s.decisionsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("regression", d.IsRegression),
	))
	s.logger.Info("stage decision",
		"job_id", e.JobID,
		"event_id", e.ID,
		"event_type", e.Type,
		"from", from,
		"to", d.NewStage,
		"updated", applied,
		"regression", d.IsRegression,
		"reason", d.Reason,
	)
}

func (s *Service) countEvent(ctx context.Context, result string) {
	s.eventsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// ResolveReview clears an event's review flag. A non-empty jobID must name
// an existing job and is written to the event along with a non-empty note.
func (s *Service) ResolveReview(ctx context.Context, eventID, jobID, note string) (*domain.Event, error) {
	if eventID == "" {
		return nil, fmt.Errorf("resolve review: %w", domain.Missing("eventId"))
	}
	if jobID != "" {
		if _, err := s.jobs.GetJob(ctx, jobID); err != nil {
			return nil, fmt.Errorf("resolve review %s: %w", eventID, err)
		}
	}
	e, err := s.events.ResolveEventReview(ctx, eventID, jobID, note)
	if err != nil {
		return nil, fmt.Errorf("resolve review %s: %w", eventID, err)
	}
	s.logger.Info("review resolved", "event_id", eventID, "job_id", e.JobID)
	return e, nil
}

// NeedsReview lists flagged events, newest first.
func (s *Service) NeedsReview(ctx context.Context, limit int) ([]domain.Event, error) {
	out, err := s.events.ListNeedsReview(ctx, thread.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list needs review: %w", err)
	}
	return out, nil
}

// History returns a job's events, oldest first.
func (s *Service) History(ctx context.Context, jobID string) ([]domain.Event, error) {
	out, err := s.events.ListJobEvents(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("job %s history: %w", jobID, err)
	}
	return out, nil
}

// RecomputeResult reports a full-history stage recomputation.
type RecomputeResult struct {
	JobID     string            `json:"jobId"`
	JobNumber string            `json:"jobNumber"`
	Current   domain.Stage      `json:"currentStage"`
	Events    int               `json:"events"`  // eligible events replayed
	Skipped   int               `json:"skipped"` // flagged or low-confidence events
	Decision  workflow.Decision `json:"decision"`
	Applied   bool              `json:"applied"`
}

// Recompute replays a job's eligible history from NEW_JOB and compares the
// result with the stored stage. Only events that could have moved the stage
// when they arrived are replayed. When apply is set and the decision calls
// for an update, the new stage is written under the job lock.
func (s *Service) Recompute(ctx context.Context, jobID string, apply bool) (*RecomputeResult, error) {
	if jobID == "" {
		return nil, fmt.Errorf("recompute: %w", domain.Missing("jobId"))
	}

	release, err := s.locker.Lock(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("lock job %s: %w", jobID, err)
	}
	defer release()

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("recompute job %s: %w", jobID, err)
	}
	history, err := s.History(ctx, jobID)
	if err != nil {
		return nil, err
	}

	replayable := make([]domain.Event, 0, len(history))
	for i := range history {
		if eligible(&history[i]) {
			replayable = append(replayable, history[i])
		}
	}

	res := &RecomputeResult{
		JobID:     job.ID,
		JobNumber: job.JobNumber,
		Current:   job.WorkflowStage,
		Events:    len(replayable),
		Skipped:   len(history) - len(replayable),
		Decision:  workflow.ComputeStage(replayable, job.WorkflowStage),
	}
	if !apply || !res.Decision.ShouldUpdate {
		return res, nil
	}

	if err := s.jobs.UpdateJobStage(ctx, jobID, job.WorkflowStage, res.Decision.NewStage); err != nil {
		return nil, fmt.Errorf("recompute job %s: %w", jobID, err)
	}
	res.Applied = true
	s.decisionsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", "updated"),
		attribute.Bool("regression", res.Decision.IsRegression),
	))
	s.logger.Info("stage recomputed",
		"job_id", jobID,
		"from", job.WorkflowStage,
		"to", res.Decision.NewStage,
		"regression", res.Decision.IsRegression,
		"reason", res.Decision.Reason,
	)
	return res, nil
}

// Get returns an event by id.
func (s *Service) Get(ctx context.Context, eventID string) (*domain.Event, error) {
	return s.events.GetEvent(ctx, eventID)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
