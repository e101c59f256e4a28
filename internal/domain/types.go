package domain

import "time"

// Cents is a money amount in US cents.
type Cents int64

// Dollars returns the amount as a float for reporting only.
func (c Cents) Dollars() float64 {
	return float64(c) / 100
}

// Thread is one tracked email conversation.
type Thread struct {
	ThreadID          string     `json:"threadId"` // external conversation id, unique
	FirstMessageID    string     `json:"firstMessageId"`
	NormalizedSubject string     `json:"normalizedSubject"`
	CustomerDomain    string     `json:"customerDomain,omitempty"`
	PONumber          string     `json:"poNumber,omitempty"`
	JobID             string     `json:"jobId,omitempty"`
	LastMessageAt     *time.Time `json:"lastMessageAt,omitempty"`
	LastSyncedAt      time.Time  `json:"lastSyncedAt"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// Linked reports whether the thread is attributed to a job.
func (t *Thread) Linked() bool {
	return t.JobID != ""
}

// Event is an immutable record of something that happened, keyed for
// idempotency by MessageID. Only JobID, NeedsReview and ReviewNote change
// after creation.
type Event struct {
	ID          string    `json:"id"`
	MessageID   string    `json:"messageId"`
	ThreadID    string    `json:"threadId"`
	Type        EventType `json:"type"`
	Confidence  float64   `json:"confidence"`
	Source      string    `json:"source"`
	Signals     []string  `json:"signals"`
	Links       []string  `json:"links"`
	JobID       string    `json:"jobId,omitempty"`
	NeedsReview bool      `json:"needsReview"`
	ReviewNote  string    `json:"reviewNote,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// JobStatus is the job's commercial status, distinct from its workflow stage.
type JobStatus string

const (
	JobStatusActive    JobStatus = "ACTIVE"
	JobStatusPaid      JobStatus = "PAID"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// Pathway classifies how many vendors a job is routed through.
type Pathway string

const (
	PathwaySingleVendor Pathway = "SINGLE_VENDOR"
	PathwayMultiVendor  Pathway = "MULTI_VENDOR"
)

// QCStatus is the state of one quality-control flag.
type QCStatus string

const (
	QCPending     QCStatus = "PENDING"
	QCComplete    QCStatus = "COMPLETE"
	QCNotRequired QCStatus = "NOT_REQUIRED"
)

// QualityChecks holds the per-job quality-control flags.
type QualityChecks struct {
	Artwork QCStatus `json:"artwork"`
	Data    QCStatus `json:"data"`
	Proof   QCStatus `json:"proof"`
	Vendor  QCStatus `json:"vendor"`
}

// Pending returns the names of flags still PENDING, in a fixed order.
func (q QualityChecks) Pending() []string {
	var out []string
	for _, f := range []struct {
		name string
		v    QCStatus
	}{
		{"artwork", q.Artwork},
		{"data", q.Data},
		{"proof", q.Proof},
		{"vendor", q.Vendor},
	} {
		if f.v == QCPending {
			out = append(out, f.name)
		}
	}
	return out
}

// PartnerPayment is the downstream leg of a multi-party payment chain.
type PartnerPayment struct {
	Paid               bool       `json:"paid"`
	PaidAt             *time.Time `json:"paidAt,omitempty"`
	InvoiceNumber      string     `json:"invoiceNumber,omitempty"`
	InvoiceGeneratedAt *time.Time `json:"invoiceGeneratedAt,omitempty"`
}

// Job is the externally owned job aggregate. The core reads all of it and
// writes only WorkflowStage.
type Job struct {
	ID               string    `json:"id"`
	JobNumber        string    `json:"jobNumber"`
	CustomerPONumber string    `json:"customerPONumber,omitempty"`
	CustomerID       string    `json:"customerId,omitempty"`
	CustomerEmail    string    `json:"customerEmail,omitempty"`
	VendorID         string    `json:"vendorId,omitempty"`
	Status           JobStatus `json:"status"`
	WorkflowStage    Stage     `json:"workflowStage"`

	WorkflowOverride   Stage      `json:"workflowOverride,omitempty"`
	WorkflowOverrideAt *time.Time `json:"workflowOverrideAt,omitempty"`

	Pathway Pathway `json:"pathway,omitempty"`

	CustomerPaidAt *time.Time     `json:"customerPaidAt,omitempty"`
	VendorPaidAt   *time.Time     `json:"vendorPaidAt,omitempty"`
	InvoiceSentAt  *time.Time     `json:"invoiceSentAt,omitempty"`
	Partner        PartnerPayment `json:"partner"`

	ReadyForProduction bool          `json:"readyForProduction"`
	QC                 QualityChecks `json:"qc"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary returns the short form used in thread views.
func (j *Job) Summary() JobSummary {
	return JobSummary{ID: j.ID, JobNumber: j.JobNumber, Stage: j.WorkflowStage}
}

// JobSummary identifies a job and its current stage.
type JobSummary struct {
	ID        string `json:"id"`
	JobNumber string `json:"jobNumber"`
	Stage     Stage  `json:"stage"`
}

// JobCandidate is a job returned by a PO search.
type JobCandidate struct {
	ID            string    `json:"id"`
	JobNumber     string    `json:"jobNumber"`
	PONumber      string    `json:"poNumber"`
	CustomerEmail string    `json:"-"`
	CreatedAt     time.Time `json:"-"`
}

// POOrigin says which company raised a purchase order.
type POOrigin string

const (
	POOriginInternal POOrigin = "INTERNAL"
	POOriginPartner  POOrigin = "PARTNER"
)

// POStatus is the lifecycle status of a purchase order.
type POStatus string

const (
	POStatusDraft     POStatus = "DRAFT"
	POStatusSent      POStatus = "SENT"
	POStatusConfirmed POStatus = "CONFIRMED"
	POStatusCancelled POStatus = "CANCELLED"
	POStatusRejected  POStatus = "REJECTED"
)

// Active reports whether the PO still counts toward job cost.
func (s POStatus) Active() bool {
	return s != POStatusCancelled && s != POStatusRejected
}

// PurchaseOrder is a vendor purchase order raised for a job.
type PurchaseOrder struct {
	ID        string    `json:"id"`
	JobID     string    `json:"jobId"`
	PONumber  string    `json:"poNumber"`
	VendorID  string    `json:"vendorId,omitempty"`
	Origin    POOrigin  `json:"origin"`
	Status    POStatus  `json:"status"`
	BuyCost   Cents     `json:"buyCost"`
	CreatedAt time.Time `json:"createdAt"`
}

// Component is one costed line of a job.
type Component struct {
	ID          string `json:"id"`
	JobID       string `json:"jobId"`
	VendorID    string `json:"vendorId,omitempty"`
	Description string `json:"description"`
	Cost        Cents  `json:"cost"`
}

// ProfitSplit is the stored cost/sell summary for a job.
type ProfitSplit struct {
	JobID     string    `json:"jobId"`
	TotalCost Cents     `json:"totalCost"`
	SellPrice Cents     `json:"sellPrice"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ClampConfidence bounds c to [0, 1].
func ClampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
