package domain

import "fmt"

// Stage is a job's position in the production/payment lifecycle.
// Stages are totally ordered by Rank.
type Stage string

const (
	StageNewJob                   Stage = "NEW_JOB"
	StageAwaitingProofFromVendor  Stage = "AWAITING_PROOF_FROM_VENDOR"
	StageProofReceived            Stage = "PROOF_RECEIVED"
	StageProofSentToCustomer      Stage = "PROOF_SENT_TO_CUSTOMER"
	StageAwaitingCustomerResponse Stage = "AWAITING_CUSTOMER_RESPONSE"
	StageApprovedPendingVendor    Stage = "APPROVED_PENDING_VENDOR"
	StageInProduction             Stage = "IN_PRODUCTION"
	StageCompleted                Stage = "COMPLETED"
	StageInvoiced                 Stage = "INVOICED"
	StagePaid                     Stage = "PAID"
	StageCancelled                Stage = "CANCELLED"
)

// stageOrder is the single source of truth for stage ranks.
// A stage's rank is its index in this slice.
var stageOrder = []Stage{
	StageNewJob,
	StageAwaitingProofFromVendor,
	StageProofReceived,
	StageProofSentToCustomer,
	StageAwaitingCustomerResponse,
	StageApprovedPendingVendor,
	StageInProduction,
	StageCompleted,
	StageInvoiced,
	StagePaid,
	StageCancelled,
}

var stageRank = func() map[Stage]int {
	m := make(map[Stage]int, len(stageOrder))
	for i, s := range stageOrder {
		m[s] = i
	}
	return m
}()

// Stages returns every stage in rank order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// Rank returns the stage's position in the total order, or -1 for an
// unknown stage.
func (s Stage) Rank() int {
	r, ok := stageRank[s]
	if !ok {
		return -1
	}
	return r
}

// Valid reports whether s is a member of the closed stage set.
func (s Stage) Valid() bool {
	_, ok := stageRank[s]
	return ok
}

// Before reports whether s ranks strictly below other.
func (s Stage) Before(other Stage) bool {
	return s.Rank() < other.Rank()
}

// IsCostFinal reports whether cost figures are expected to be settled at s.
// Cancelled jobs are not cost-final.
func (s Stage) IsCostFinal() bool {
	switch s {
	case StageCompleted, StageInvoiced, StagePaid:
		return true
	}
	return false
}

// ParseStage converts a string to a Stage, rejecting values outside the set.
func ParseStage(v string) (Stage, error) {
	s := Stage(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown workflow stage %q", v)
	}
	return s, nil
}
