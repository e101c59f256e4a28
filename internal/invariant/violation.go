// Package invariant audits a job's persisted state against a fixed set of
// business rules. It only reads; findings are values, never errors.
package invariant

import (
	"time"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Stable violation codes.
const (
	CodeJobNotFound              = "JOB_NOT_FOUND"
	CodeStatusStageConsistent    = "STATUS_STAGE_CONSISTENT"
	CodeOverrideHasTimestamp     = "OVERRIDE_HAS_TIMESTAMP"
	CodeCancelledHasNoPayments   = "CANCELLED_HAS_NO_PAYMENTS"
	CodeInvoiceBeforePayment     = "INVOICE_BEFORE_PAYMENT"
	CodeCustomerPaidBeforeVendor = "CUSTOMER_PAID_BEFORE_VENDOR"
	CodePartnerPaymentChain      = "PARTNER_PAYMENT_CHAIN"
	CodePathwayVendorCount       = "PATHWAY_VENDOR_COUNT"
	CodePOCostMatchesSplit       = "PO_COST_MATCHES_SPLIT"
	CodeSplitCostStaleZero       = "SPLIT_COST_STALE_ZERO"
	CodeReadyHasNoPendingQC      = "READY_HAS_NO_PENDING_QC"
	CodeInvoicedStageHasInvoice  = "INVOICED_STAGE_HAS_INVOICE"
)

// Violation is one broken rule.
type Violation struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Severity Severity       `json:"severity"`
	Context  map[string]any `json:"context,omitempty"`
}

// Report is the result of validating one job.
type Report struct {
	JobID      string      `json:"jobId"`
	JobNumber  string      `json:"jobNumber,omitempty"`
	OK         bool        `json:"ok"`
	Violations []Violation `json:"violations"`
	CheckedAt  time.Time   `json:"checkedAt"`
}

// HasErrors reports whether any violation has ERROR severity.
func (r *Report) HasErrors() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityError {
			return true
		}
	}
	return false
}
