package invariant

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nickd290/jobtrail/internal/domain"
	"github.com/nickd290/jobtrail/internal/jobs"
)

// CostTolerance is how far PO costs may drift from the stored split total.
const CostTolerance domain.Cents = 100

// Check inspects one snapshot and returns a violation or nil.
type Check struct {
	Code string
	Run  func(s *jobs.Snapshot) *Violation
}

// Registry returns every check in evaluation order.
func Registry() []Check {
	out := make([]Check, len(registry))
	copy(out, registry)
	return out
}

var registry = []Check{
	{CodeStatusStageConsistent, checkStatusStage},
	{CodeOverrideHasTimestamp, checkOverrideTimestamp},
	{CodeCancelledHasNoPayments, checkCancelledPayments},
	{CodeInvoiceBeforePayment, checkInvoiceBeforePayment},
	{CodeCustomerPaidBeforeVendor, checkCustomerBeforeVendor},
	{CodePartnerPaymentChain, checkPartnerChain},
	{CodePathwayVendorCount, checkPathwayVendors},
	{CodePOCostMatchesSplit, checkPOCostMatchesSplit},
	{CodeSplitCostStaleZero, checkSplitStaleZero},
	{CodeReadyHasNoPendingQC, checkReadyQC},
	{CodeInvoicedStageHasInvoice, checkInvoicedStage},
}

func checkStatusStage(s *jobs.Snapshot) *Violation {
	j := &s.Job
	switch j.Status {
	case domain.JobStatusPaid:
		if j.WorkflowStage.IsCostFinal() {
			return nil
		}
		return &Violation{
			Code:     CodeStatusStageConsistent,
			Severity: SeverityError,
			Message:  fmt.Sprintf("status PAID but workflow stage is %s", j.WorkflowStage),
			Context: map[string]any{
				"status":  j.Status,
				"stage":   j.WorkflowStage,
				"allowed": []domain.Stage{domain.StageCompleted, domain.StageInvoiced, domain.StagePaid},
			},
		}
	case domain.JobStatusCancelled:
		if j.WorkflowStage == domain.StageCancelled {
			return nil
		}
		return &Violation{
			Code:     CodeStatusStageConsistent,
			Severity: SeverityError,
			Message:  fmt.Sprintf("status CANCELLED but workflow stage is %s", j.WorkflowStage),
			Context:  map[string]any{"status": j.Status, "stage": j.WorkflowStage},
		}
	}
	return nil
}

func checkOverrideTimestamp(s *jobs.Snapshot) *Violation {
	j := &s.Job
	if j.WorkflowOverride == "" || j.WorkflowOverrideAt != nil {
		return nil
	}
	return &Violation{
		Code:     CodeOverrideHasTimestamp,
		Severity: SeverityWarn,
		Message:  fmt.Sprintf("workflow override %s has no timestamp", j.WorkflowOverride),
		Context:  map[string]any{"override": j.WorkflowOverride},
	}
}

func checkCancelledPayments(s *jobs.Snapshot) *Violation {
	j := &s.Job
	if j.Status != domain.JobStatusCancelled {
		return nil
	}
	var fields []string
	if j.CustomerPaidAt != nil {
		fields = append(fields, "customerPaidAt")
	}
	if j.VendorPaidAt != nil {
		fields = append(fields, "vendorPaidAt")
	}
	if j.Partner.PaidAt != nil {
		fields = append(fields, "partner.paidAt")
	}
	if len(fields) == 0 {
		return nil
	}
	return &Violation{
		Code:     CodeCancelledHasNoPayments,
		Severity: SeverityWarn,
		Message:  "cancelled job has payment dates: " + strings.Join(fields, ", "),
		Context:  map[string]any{"fields": fields},
	}
}

func checkInvoiceBeforePayment(s *jobs.Snapshot) *Violation {
	j := &s.Job
	if j.CustomerPaidAt == nil {
		return nil
	}
	if j.InvoiceSentAt == nil {
		return &Violation{
			Code:     CodeInvoiceBeforePayment,
			Severity: SeverityError,
			Message:  "customer payment recorded without an invoice",
			Context:  map[string]any{"customerPaidAt": *j.CustomerPaidAt},
		}
	}
	if j.InvoiceSentAt.After(*j.CustomerPaidAt) {
		return &Violation{
			Code:     CodeInvoiceBeforePayment,
			Severity: SeverityWarn,
			Message:  "invoice sent after customer payment",
			Context: map[string]any{
				"invoiceSentAt":  *j.InvoiceSentAt,
				"customerPaidAt": *j.CustomerPaidAt,
			},
		}
	}
	return nil
}

func checkCustomerBeforeVendor(s *jobs.Snapshot) *Violation {
	j := &s.Job
	if j.VendorPaidAt == nil {
		return nil
	}
	if j.CustomerPaidAt == nil {
		return &Violation{
			Code:     CodeCustomerPaidBeforeVendor,
			Severity: SeverityError,
			Message:  "vendor paid with no customer payment on record",
			Context:  map[string]any{"vendorPaidAt": *j.VendorPaidAt},
		}
	}
	if j.CustomerPaidAt.After(*j.VendorPaidAt) {
		return &Violation{
			Code:     CodeCustomerPaidBeforeVendor,
			Severity: SeverityWarn,
			Message:  "customer paid after the vendor was paid",
			Context: map[string]any{
				"customerPaidAt": *j.CustomerPaidAt,
				"vendorPaidAt":   *j.VendorPaidAt,
			},
		}
	}
	return nil
}

func checkPartnerChain(s *jobs.Snapshot) *Violation {
	p := &s.Job.Partner
	if !p.Paid {
		return nil
	}
	var missing []string
	if p.InvoiceNumber == "" {
		missing = append(missing, "invoiceNumber")
	}
	if p.InvoiceGeneratedAt == nil {
		missing = append(missing, "invoiceGeneratedAt")
	}
	if len(missing) == 0 {
		return nil
	}
	return &Violation{
		Code:     CodePartnerPaymentChain,
		Severity: SeverityError,
		Message:  "partner payment marked paid without " + strings.Join(missing, " and "),
		Context:  map[string]any{"missing": missing},
	}
}

func checkPathwayVendors(s *jobs.Snapshot) *Violation {
	j := &s.Job
	if j.Pathway != domain.PathwayMultiVendor || !j.WorkflowStage.IsCostFinal() {
		return nil
	}
	vendors := map[string]bool{}
	add := func(id string) {
		if id != "" {
			vendors[id] = true
		}
	}
	add(j.VendorID)
	for _, po := range s.PurchaseOrders {
		add(po.VendorID)
	}
	for _, c := range s.Components {
		add(c.VendorID)
	}
	if len(vendors) >= 2 {
		return nil
	}
	ids := make([]string, 0, len(vendors))
	for id := range vendors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &Violation{
		Code:     CodePathwayVendorCount,
		Severity: SeverityWarn,
		Message:  fmt.Sprintf("pathway MULTI_VENDOR but %d distinct vendor(s) on cost records", len(ids)),
		Context:  map[string]any{"vendors": ids},
	}
}

func activeInternalPOs(s *jobs.Snapshot) (domain.Cents, int) {
	var sum domain.Cents
	n := 0
	for _, po := range s.PurchaseOrders {
		if po.Origin == domain.POOriginInternal && po.Status.Active() {
			sum += po.BuyCost
			n++
		}
	}
	return sum, n
}

func checkPOCostMatchesSplit(s *jobs.Snapshot) *Violation {
	if !s.Job.WorkflowStage.IsCostFinal() || s.Split == nil || s.Split.TotalCost == 0 {
		return nil
	}
	sum, n := activeInternalPOs(s)
	if n == 0 {
		return nil
	}
	delta := sum - s.Split.TotalCost
	if delta < 0 {
		delta = -delta
	}
	if delta <= CostTolerance {
		return nil
	}
	return &Violation{
		Code:     CodePOCostMatchesSplit,
		Severity: SeverityWarn,
		Message: fmt.Sprintf("purchase orders total $%.2f but split total cost is $%.2f",
			sum.Dollars(), s.Split.TotalCost.Dollars()),
		Context: map[string]any{
			"poTotal":   sum.Dollars(),
			"splitCost": s.Split.TotalCost.Dollars(),
			"delta":     delta.Dollars(),
			"tolerance": CostTolerance.Dollars(),
		},
	}
}

func checkSplitStaleZero(s *jobs.Snapshot) *Violation {
	if !s.Job.WorkflowStage.IsCostFinal() || s.Split == nil || s.Split.TotalCost != 0 {
		return nil
	}
	var sum domain.Cents
	n := 0
	for _, po := range s.PurchaseOrders {
		if po.Status.Active() && po.BuyCost != 0 {
			sum += po.BuyCost
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return &Violation{
		Code:     CodeSplitCostStaleZero,
		Severity: SeverityWarn,
		Message: fmt.Sprintf("split total cost is $0.00 but %d active purchase order(s) total $%.2f",
			n, sum.Dollars()),
		Context: map[string]any{"purchaseOrders": n, "poTotal": sum.Dollars()},
	}
}

func checkReadyQC(s *jobs.Snapshot) *Violation {
	j := &s.Job
	if !j.ReadyForProduction {
		return nil
	}
	pending := j.QC.Pending()
	if len(pending) == 0 {
		return nil
	}
	return &Violation{
		Code:     CodeReadyHasNoPendingQC,
		Severity: SeverityError,
		Message:  "ready for production with pending QC: " + strings.Join(pending, ", "),
		Context:  map[string]any{"pending": pending},
	}
}

func checkInvoicedStage(s *jobs.Snapshot) *Violation {
	j := &s.Job
	if j.WorkflowStage != domain.StageInvoiced && j.WorkflowStage != domain.StagePaid {
		return nil
	}
	if j.InvoiceSentAt != nil {
		return nil
	}
	return &Violation{
		Code:     CodeInvoicedStageHasInvoice,
		Severity: SeverityWarn,
		Message:  fmt.Sprintf("stage %s but no invoice has been sent", j.WorkflowStage),
		Context:  map[string]any{"stage": j.WorkflowStage},
	}
}
