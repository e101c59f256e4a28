package workflow

import (
	"fmt"
	"sort"

	"github.com/nickd290/jobtrail/internal/domain"
)

// Decision is the reducer's verdict for one job. Suppressed and no-op
// outcomes are decisions too; Reason always says which.
type Decision struct {
	NewStage     domain.Stage `json:"newStage"`
	ShouldUpdate bool         `json:"shouldUpdate"`
	Reason       string       `json:"reason"`
	IsRegression bool         `json:"isRegression"`
}

// ProcessSingleEvent decides whether one new event moves a job from current.
// The regression trigger always updates. Any other mapped event updates only
// to a strictly higher rank; an equal or lower target is ignored as a
// duplicate or late signal.
func ProcessSingleEvent(t domain.EventType, current domain.Stage) Decision {
	target, ok := StageFor(t)
	if !ok {
		return Decision{
			NewStage: current,
			Reason:   fmt.Sprintf("event type %s does not map to a workflow stage", t),
		}
	}

	if t == RegressionTrigger {
		return Decision{
			NewStage:     target,
			ShouldUpdate: true,
			IsRegression: target.Before(current),
			Reason:       fmt.Sprintf("%s resets stage from %s to %s", t, current, target),
		}
	}

	switch {
	case target.Rank() > current.Rank():
		return Decision{
			NewStage:     target,
			ShouldUpdate: true,
			Reason:       fmt.Sprintf("%s advances stage from %s to %s", t, current, target),
		}
	case target == current:
		return Decision{
			NewStage: current,
			Reason:   fmt.Sprintf("job already at %s", current),
		}
	default:
		return Decision{
			NewStage: current,
			Reason: fmt.Sprintf("ignored late %s: target %s is behind current stage %s",
				t, target, current),
		}
	}
}

// ComputeStage replays a job's full event history from NEW_JOB and compares
// the result with the persisted stage. Events are ordered oldest-first by
// CreatedAt; ties keep their input order.
//
// A computed stage behind current is only applied when a regression trigger
// occurred somewhere in the history. Otherwise the divergence is treated as
// stale or out-of-order input and suppressed.
func ComputeStage(events []domain.Event, current domain.Stage) Decision {
	computed, regressed := replay(events)

	switch {
	case computed == current:
		return Decision{
			NewStage: current,
			Reason:   fmt.Sprintf("history agrees with current stage %s", current),
		}
	case computed.Before(current) && !regressed:
		return Decision{
			NewStage: current,
			Reason: fmt.Sprintf("suppressed: history yields %s, behind current stage %s, and no %s occurred",
				computed, current, RegressionTrigger),
		}
	default:
		d := Decision{
			NewStage:     computed,
			ShouldUpdate: true,
			IsRegression: computed.Before(current),
		}
		if d.IsRegression {
			d.Reason = fmt.Sprintf("history regresses stage from %s to %s via %s", current, computed, RegressionTrigger)
		} else {
			d.Reason = fmt.Sprintf("history advances stage from %s to %s", current, computed)
		}
		return d
	}
}

// replay folds events into a stage. It reports whether the regression
// trigger fired.
func replay(events []domain.Event) (domain.Stage, bool) {
	ordered := make([]domain.Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	stage := domain.StageNewJob
	regressed := false
	for _, e := range ordered {
		target, ok := StageFor(e.Type)
		if !ok {
			continue
		}
		if e.Type == RegressionTrigger {
			stage = target
			regressed = true
			continue
		}
		if target.Rank() > stage.Rank() {
			stage = target
		}
	}
	return stage, regressed
}
