package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickd290/jobtrail/internal/domain"
)

func TestTransitionsCoverEveryEventType(t *testing.T) {
	for _, et := range domain.EventTypes() {
		_, listed := transitions[et]
		assert.True(t, listed, "event type %s missing from transition table", et)
	}
	assert.Len(t, transitions, len(domain.EventTypes()))

	for et, s := range transitions {
		if s != "" {
			assert.True(t, s.Valid(), "event type %s maps to unknown stage %s", et, s)
		}
	}
}

func TestEveryStageIsClassified(t *testing.T) {
	reachable := map[domain.Stage]bool{}
	for _, s := range transitions {
		reachable[s] = true
	}
	for _, s := range domain.Stages() {
		if s == domain.StageNewJob {
			assert.False(t, reachable[s], "NEW_JOB is the replay origin, never a target")
			continue
		}
		assert.True(t, reachable[s], "stage %s has no event asserting it", s)
	}
}

func TestStageFor_Unmapped(t *testing.T) {
	for _, et := range []domain.EventType{
		domain.EventArtworkReceived,
		domain.EventCustomerInquiry,
		domain.EventVendorInquiry,
		domain.EventGeneralCorrespondence,
	} {
		_, ok := StageFor(et)
		assert.False(t, ok, "%s", et)
	}
}

func TestProcessSingleEvent(t *testing.T) {
	tests := []struct {
		name       string
		event      domain.EventType
		current    domain.Stage
		wantStage  domain.Stage
		wantUpdate bool
		wantRegr   bool
	}{
		{"advance", domain.EventProofReceivedFromVendor, domain.StageNewJob, domain.StageProofReceived, true, false},
		{"skip ahead", domain.EventJobShipped, domain.StageProofReceived, domain.StageCompleted, true, false},
		{"equal is no-op", domain.EventProofReceivedFromVendor, domain.StageProofReceived, domain.StageProofReceived, false, false},
		{"late refused", domain.EventProofSentToCustomer, domain.StageCompleted, domain.StageCompleted, false, false},
		{"regression", domain.EventCustomerRequestedChanges, domain.StageApprovedPendingVendor, domain.StageAwaitingProofFromVendor, true, true},
		{"regression from cancelled", domain.EventCustomerRequestedChanges, domain.StageCancelled, domain.StageAwaitingProofFromVendor, true, true},
		{"regression at same stage", domain.EventCustomerRequestedChanges, domain.StageAwaitingProofFromVendor, domain.StageAwaitingProofFromVendor, true, false},
		{"regression moving forward", domain.EventCustomerRequestedChanges, domain.StageNewJob, domain.StageAwaitingProofFromVendor, true, false},
		{"unmapped", domain.EventCustomerInquiry, domain.StageInProduction, domain.StageInProduction, false, false},
		{"cancel", domain.EventJobCancelled, domain.StagePaid, domain.StageCancelled, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ProcessSingleEvent(tt.event, tt.current)
			assert.Equal(t, tt.wantStage, d.NewStage)
			assert.Equal(t, tt.wantUpdate, d.ShouldUpdate)
			assert.Equal(t, tt.wantRegr, d.IsRegression)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestProcessSingleEvent_LateProofOnCompletedJobExplainsSuppression(t *testing.T) {
	d := ProcessSingleEvent(domain.EventProofSentToCustomer, domain.StageCompleted)

	assert.False(t, d.ShouldUpdate)
	assert.Equal(t, domain.StageCompleted, d.NewStage)
	assert.Contains(t, d.Reason, "PROOF_SENT_TO_CUSTOMER")
	assert.Contains(t, d.Reason, "behind current stage COMPLETED")
}

func events(types ...domain.EventType) []domain.Event {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Event, len(types))
	for i, et := range types {
		out[i] = domain.Event{Type: et, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func TestComputeStage(t *testing.T) {
	tests := []struct {
		name       string
		events     []domain.Event
		current    domain.Stage
		wantStage  domain.Stage
		wantUpdate bool
		wantRegr   bool
	}{
		{
			name:       "empty history at new job",
			events:     nil,
			current:    domain.StageNewJob,
			wantStage:  domain.StageNewJob,
			wantUpdate: false,
		},
		{
			name: "forward replay",
			events: events(
				domain.EventPOSentToVendor,
				domain.EventProofReceivedFromVendor,
				domain.EventProofSentToCustomer,
			),
			current:    domain.StageAwaitingProofFromVendor,
			wantStage:  domain.StageProofSentToCustomer,
			wantUpdate: true,
		},
		{
			name: "late lower event ignored during replay",
			events: events(
				domain.EventJobShipped,
				domain.EventProofSentToCustomer,
			),
			current:    domain.StageNewJob,
			wantStage:  domain.StageCompleted,
			wantUpdate: true,
		},
		{
			name:       "behind current without trigger is suppressed",
			events:     events(domain.EventProofReceivedFromVendor),
			current:    domain.StageInProduction,
			wantStage:  domain.StageInProduction,
			wantUpdate: false,
		},
		{
			name: "trigger resets running stage",
			events: events(
				domain.EventProofSentToCustomer,
				domain.EventCustomerRequestedChanges,
			),
			current:    domain.StageAwaitingCustomerResponse,
			wantStage:  domain.StageAwaitingProofFromVendor,
			wantUpdate: true,
			wantRegr:   true,
		},
		{
			name: "progress after trigger",
			events: events(
				domain.EventCustomerApprovedProof,
				domain.EventCustomerRequestedChanges,
				domain.EventProofReceivedFromVendor,
			),
			current:    domain.StageApprovedPendingVendor,
			wantStage:  domain.StageProofReceived,
			wantUpdate: true,
			wantRegr:   true,
		},
		{
			name:       "agreement",
			events:     events(domain.EventJobShipped),
			current:    domain.StageCompleted,
			wantStage:  domain.StageCompleted,
			wantUpdate: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ComputeStage(tt.events, tt.current)
			assert.Equal(t, tt.wantStage, d.NewStage)
			assert.Equal(t, tt.wantUpdate, d.ShouldUpdate)
			assert.Equal(t, tt.wantRegr, d.IsRegression)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestComputeStage_SortsByCreatedAt(t *testing.T) {
	evs := events(domain.EventProofReceivedFromVendor, domain.EventCustomerRequestedChanges)
	// Deliver the trigger first; it is still older in time.
	evs[0].CreatedAt, evs[1].CreatedAt = evs[1].CreatedAt, evs[0].CreatedAt

	d := ComputeStage(evs, domain.StageNewJob)

	require.True(t, d.ShouldUpdate)
	assert.Equal(t, domain.StageProofReceived, d.NewStage)
}

func TestComputeStage_DoesNotMutateInput(t *testing.T) {
	evs := events(domain.EventJobShipped, domain.EventPOSentToVendor)
	evs[0].CreatedAt, evs[1].CreatedAt = evs[1].CreatedAt, evs[0].CreatedAt

	ComputeStage(evs, domain.StageNewJob)

	assert.Equal(t, domain.EventJobShipped, evs[0].Type)
}
