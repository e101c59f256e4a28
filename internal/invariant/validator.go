package invariant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/nickd290/jobtrail/internal/clock"
	"github.com/nickd290/jobtrail/internal/domain"
	"github.com/nickd290/jobtrail/internal/jobs"
)

// Validator runs the check registry against stored jobs. It never takes the
// per-job lock and is safe for concurrent use.
type Validator struct {
	jobs        jobs.Store
	clock       clock.Clock
	logger      *slog.Logger
	concurrency int
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// WithClock sets the source of CheckedAt.
func WithClock(c clock.Clock) Option {
	return func(v *Validator) { v.clock = c }
}

// WithConcurrency bounds parallel snapshot loads in ValidateRecent.
func WithConcurrency(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

// NewValidator creates a Validator.
func NewValidator(store jobs.Store, opts ...Option) *Validator {
	v := &Validator{
		jobs:        store,
		clock:       clock.System{},
		logger:      slog.Default(),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks one job. A missing job yields a report with a single
// JOB_NOT_FOUND error; only storage faults are returned as errors.
func (v *Validator) Validate(ctx context.Context, jobID string) (*Report, error) {
	snap, err := v.jobs.LoadSnapshot(ctx, jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		return &Report{
			JobID: jobID,
			Violations: []Violation{{
				Code:     CodeJobNotFound,
				Severity: SeverityError,
				Message:  fmt.Sprintf("job %s not found", jobID),
				Context:  map[string]any{"jobId": jobID},
			}},
			CheckedAt: v.clock.Now(),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("validate job %s: %w", jobID, err)
	}
	return v.Run(snap), nil
}

// Run evaluates every check against snap. Checks never short-circuit each
// other.
func (v *Validator) Run(snap *jobs.Snapshot) *Report {
	r := &Report{
		JobID:      snap.Job.ID,
		JobNumber:  snap.Job.JobNumber,
		Violations: []Violation{},
		CheckedAt:  v.clock.Now(),
	}
	for _, c := range registry {
		if vio := c.Run(snap); vio != nil {
			r.Violations = append(r.Violations, *vio)
		}
	}
	r.OK = len(r.Violations) == 0

	if !r.OK {
		v.logger.Debug("job has violations",
			"job_id", r.JobID,
			"job_number", r.JobNumber,
			"count", len(r.Violations),
		)
	}
	return r
}

// ValidateRecent validates the n most recently created jobs, newest first.
func (v *Validator) ValidateRecent(ctx context.Context, n int) ([]Report, error) {
	ids, err := v.jobs.RecentJobIDs(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}

	reports := make([]Report, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			r, err := v.Validate(gctx, id)
			if err != nil {
				return err
			}
			reports[i] = *r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// CodeSummary aggregates one violation code across reports.
type CodeSummary struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Count    int      `json:"count"`
	Samples  []string `json:"samples"` // up to two job numbers (or ids)
}

// Summary aggregates a batch of reports.
type Summary struct {
	Jobs      int           `json:"jobs"`
	Clean     int           `json:"clean"`
	Codes     []CodeSummary `json:"codes"`
	HasErrors bool          `json:"hasErrors"`
}

const maxSamples = 2

// Summarize groups violations by code, sorted by code. A code that appears
// with both severities is reported as ERROR.
func Summarize(reports []Report) Summary {
	s := Summary{Jobs: len(reports), Codes: []CodeSummary{}}
	byCode := map[string]*CodeSummary{}

	for i := range reports {
		r := &reports[i]
		if r.OK {
			s.Clean++
		}
		label := r.JobNumber
		if label == "" {
			label = r.JobID
		}
		for _, vio := range r.Violations {
			cs, ok := byCode[vio.Code]
			if !ok {
				cs = &CodeSummary{Code: vio.Code, Severity: vio.Severity, Samples: []string{}}
				byCode[vio.Code] = cs
			}
			cs.Count++
			if vio.Severity == SeverityError {
				cs.Severity = SeverityError
				s.HasErrors = true
			}
			if len(cs.Samples) < maxSamples && !slices.Contains(cs.Samples, label) {
				cs.Samples = append(cs.Samples, label)
			}
		}
	}

	for _, cs := range byCode {
		s.Codes = append(s.Codes, *cs)
	}
	sort.Slice(s.Codes, func(i, j int) bool { return s.Codes[i].Code < s.Codes[j].Code })
	return s
}
