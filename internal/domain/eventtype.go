package domain

import "fmt"

// EventType classifies something that happened on a job.
type EventType string

const (
	EventPOSentToVendor            EventType = "PO_SENT_TO_VENDOR"
	EventProofReceivedFromVendor   EventType = "PROOF_RECEIVED_FROM_VENDOR"
	EventProofSentToCustomer       EventType = "PROOF_SENT_TO_CUSTOMER"
	EventCustomerFollowUpSent      EventType = "CUSTOMER_FOLLOW_UP_SENT"
	EventCustomerApprovedProof     EventType = "CUSTOMER_APPROVED_PROOF"
	EventCustomerRequestedChanges  EventType = "CUSTOMER_REQUESTED_CHANGES"
	EventVendorConfirmedProduction EventType = "VENDOR_CONFIRMED_PRODUCTION"
	EventJobShipped                EventType = "JOB_SHIPPED"
	EventInvoiceSent               EventType = "INVOICE_SENT"
	EventPaymentReceived           EventType = "PAYMENT_RECEIVED"
	EventJobCancelled              EventType = "JOB_CANCELLED"
	EventArtworkReceived           EventType = "ARTWORK_RECEIVED"
	EventCustomerInquiry           EventType = "CUSTOMER_INQUIRY"
	EventVendorInquiry             EventType = "VENDOR_INQUIRY"
	EventGeneralCorrespondence     EventType = "GENERAL_CORRESPONDENCE"
)

var eventTypes = []EventType{
	EventPOSentToVendor,
	EventProofReceivedFromVendor,
	EventProofSentToCustomer,
	EventCustomerFollowUpSent,
	EventCustomerApprovedProof,
	EventCustomerRequestedChanges,
	EventVendorConfirmedProduction,
	EventJobShipped,
	EventInvoiceSent,
	EventPaymentReceived,
	EventJobCancelled,
	EventArtworkReceived,
	EventCustomerInquiry,
	EventVendorInquiry,
	EventGeneralCorrespondence,
}

var eventTypeSet = func() map[EventType]bool {
	m := make(map[EventType]bool, len(eventTypes))
	for _, t := range eventTypes {
		m[t] = true
	}
	return m
}()

// EventTypes returns the closed set of event types in declaration order.
func EventTypes() []EventType {
	out := make([]EventType, len(eventTypes))
	copy(out, eventTypes)
	return out
}

// Valid reports whether t is a member of the closed event-type set.
func (t EventType) Valid() bool {
	return eventTypeSet[t]
}

// ParseEventType converts a string to an EventType, rejecting unknown values.
func ParseEventType(v string) (EventType, error) {
	t := EventType(v)
	if !t.Valid() {
		return "", fmt.Errorf("unknown event type %q", v)
	}
	return t, nil
}
