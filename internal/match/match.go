// Package match resolves an inbound message to the job it concerns.
//
// Resolution is a fixed cascade, first success wins:
//
//  1. THREAD     the thread is already linked            (1.0)
//  2. PO_MATCH   one job with the PO in the window       (0.9)
//  3. PO_DOMAIN  sender domain narrows several to one    (0.85)
//  4. MULTIPLE_MATCHES  still ambiguous, candidates returned
//  5. NO_MATCH   no PO, or nothing left to choose from
//
// Confidences are constants per method so the auto-update threshold
// downstream stays predictable.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nickd290/jobtrail/internal/clock"
	"github.com/nickd290/jobtrail/internal/domain"
	"github.com/nickd290/jobtrail/internal/jobs"
	"github.com/nickd290/jobtrail/internal/pattern"
	"github.com/nickd290/jobtrail/internal/thread"
)

const meterName = "github.com/nickd290/jobtrail/match"

// Method names how a match was made.
type Method string

const (
	MethodThread          Method = "THREAD"
	MethodPOMatch         Method = "PO_MATCH"
	MethodPODomain        Method = "PO_DOMAIN"
	MethodMultipleMatches Method = "MULTIPLE_MATCHES"
	MethodNoMatch         Method = "NO_MATCH"
)

// Confidence returns the fixed confidence for a method.
func (m Method) Confidence() float64 {
	switch m {
	case MethodThread:
		return 1.0
	case MethodPOMatch:
		return 0.9
	case MethodPODomain:
		return 0.85
	}
	return 0
}

// DefaultWindow is how far back PO candidates are searched.
const DefaultWindow = 30 * 24 * time.Hour

// Request is a message to attribute.
type Request struct {
	ThreadID string `json:"threadId"`
	Subject  string `json:"subject"`
	Body     string `json:"body,omitempty"`
	From     string `json:"from"`
	PONumber string `json:"customerPONumber,omitempty"`
}

// Result is the outcome of a match. JobID is empty unless a single job won.
type Result struct {
	JobID      string                `json:"jobId,omitempty"`
	Confidence float64               `json:"confidence"`
	Method     Method                `json:"method"`
	PONumber   string                `json:"poNumber,omitempty"`
	Candidates []domain.JobCandidate `json:"candidates,omitempty"`
}

// Engine runs the match cascade.
type Engine struct {
	threads thread.Store
	jobs    jobs.Store
	clock   clock.Clock
	window  time.Duration
	logger  *slog.Logger
	matches metric.Int64Counter
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the clock the search window is measured from.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithWindow overrides the PO search window.
func WithWindow(d time.Duration) Option {
	return func(e *Engine) { e.window = d }
}

// WithMeter records metrics on m instead of the global meter provider.
func WithMeter(m metric.Meter) Option {
	return func(e *Engine) { e.matches = newCounter(m) }
}

func newCounter(m metric.Meter) metric.Int64Counter {
	// Errors leave noop instruments in place.
	c, _ := m.Int64Counter(
		"jobtrail.match.results",
		metric.WithDescription("Match attempts by method"),
		metric.WithUnit("{match}"),
	)
	return c
}

// New creates an Engine.
func New(threads thread.Store, jobStore jobs.Store, opts ...Option) *Engine {
	e := &Engine{
		threads: threads,
		jobs:    jobStore,
		clock:   clock.System{},
		window:  DefaultWindow,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.matches == nil {
		e.matches = newCounter(otel.Meter(meterName))
	}
	return e
}

// Match resolves req to a job. Ambiguity and misses are results, not errors;
// only storage faults are returned as errors.
func (e *Engine) Match(ctx context.Context, req Request) (*Result, error) {
	res, err := e.match(ctx, req)
	if err != nil {
		return nil, err
	}
	res.Confidence = res.Method.Confidence()

	e.matches.Add(ctx, 1, metric.WithAttributes(attribute.String("method", string(res.Method))))
	e.logger.Debug("match resolved",
		"thread_id", req.ThreadID,
		"method", res.Method,
		"job_id", res.JobID,
		"candidates", len(res.Candidates),
	)
	return res, nil
}

func (e *Engine) match(ctx context.Context, req Request) (*Result, error) {
	if req.ThreadID != "" {
		t, err := e.threads.GetThread(ctx, req.ThreadID)
		switch {
		case err == nil && t.Linked():
			return &Result{JobID: t.JobID, Method: MethodThread}, nil
		case err != nil && !domain.IsNotFound(err):
			return nil, fmt.Errorf("match: %w", err)
		}
	}

	po := strings.ToUpper(strings.TrimSpace(req.PONumber))
	if po == "" {
		po = pattern.ExtractPONumber(req.Subject)
	}
	if po == "" {
		po = pattern.ExtractPONumber(req.Body)
	}
	if po == "" {
		return &Result{Method: MethodNoMatch}, nil
	}

	since := e.clock.Now().Add(-e.window)
	candidates, err := e.jobs.FindJobsByPO(ctx, po, since)
	if err != nil {
		return nil, fmt.Errorf("match po %s: %w", po, err)
	}

	switch len(candidates) {
	case 0:
		return &Result{Method: MethodNoMatch, PONumber: po}, nil
	case 1:
		return &Result{JobID: candidates[0].ID, Method: MethodPOMatch, PONumber: po}, nil
	}

	sender := pattern.ExtractDomain(req.From)
	if sender == "" {
		return &Result{Method: MethodMultipleMatches, PONumber: po, Candidates: candidates}, nil
	}

	var survivors []domain.JobCandidate
	for _, c := range candidates {
		if pattern.ExtractDomain(c.CustomerEmail) == sender {
			survivors = append(survivors, c)
		}
	}
	if len(survivors) == 1 {
		return &Result{JobID: survivors[0].ID, Method: MethodPODomain, PONumber: po}, nil
	}
	// Zero or several survivors leave the PO ambiguous; a human picks from
	// every job carrying it.
	return &Result{Method: MethodMultipleMatches, PONumber: po, Candidates: candidates}, nil
}
