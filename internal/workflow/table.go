package workflow

import "github.com/nickd290/jobtrail/internal/domain"

// RegressionTrigger is the only event type allowed to move a stage backward.
const RegressionTrigger = domain.EventCustomerRequestedChanges

// transitions lists every event type. An empty stage means the type is
// recorded but never drives a transition. Adding an event type without
// extending this table fails TestTransitionsCoverEveryEventType.
var transitions = map[domain.EventType]domain.Stage{
	domain.EventPOSentToVendor:            domain.StageAwaitingProofFromVendor,
	domain.EventProofReceivedFromVendor:   domain.StageProofReceived,
	domain.EventProofSentToCustomer:       domain.StageProofSentToCustomer,
	domain.EventCustomerFollowUpSent:      domain.StageAwaitingCustomerResponse,
	domain.EventCustomerApprovedProof:     domain.StageApprovedPendingVendor,
	domain.EventCustomerRequestedChanges:  domain.StageAwaitingProofFromVendor,
	domain.EventVendorConfirmedProduction: domain.StageInProduction,
	domain.EventJobShipped:                domain.StageCompleted,
	domain.EventInvoiceSent:               domain.StageInvoiced,
	domain.EventPaymentReceived:           domain.StagePaid,
	domain.EventJobCancelled:              domain.StageCancelled,
	domain.EventArtworkReceived:           "",
	domain.EventCustomerInquiry:           "",
	domain.EventVendorInquiry:             "",
	domain.EventGeneralCorrespondence:     "",
}

// StageFor returns the stage an event type asserts, and false for types
// that never drive a transition.
func StageFor(t domain.EventType) (domain.Stage, bool) {
	s := transitions[t]
	return s, s != ""
}
