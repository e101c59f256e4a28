// Package workflow derives a job's workflow stage from its event history.
//
// Stages only move forward through the total order in domain.Stages, with
// one exception: CUSTOMER_REQUESTED_CHANGES resets the job to
// AWAITING_PROOF_FROM_VENDOR wherever it appears. Everything here is pure;
// persistence and locking belong to the caller.
package workflow
