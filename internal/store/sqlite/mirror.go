package sqlite

import (
	"context"
	"fmt"

	"github.com/nickd290/jobtrail/internal/domain"
)

// The Save methods maintain the local job mirror. They are used by the
// import-jobs command and by tests; the core itself only writes stages.

func qcOrDefault(s domain.QCStatus) string {
	if s == "" {
		return string(domain.QCNotRequired)
	}
	return string(s)
}

// SaveJob inserts or fully replaces a mirrored job.
func (s *Store) SaveJob(ctx context.Context, j *domain.Job) error {
	status := j.Status
	if status == "" {
		status = domain.JobStatusActive
	}
	stage := j.WorkflowStage
	if stage == "" {
		stage = domain.StageNewJob
	}
	updated := j.UpdatedAt
	if updated.IsZero() {
		updated = j.CreatedAt
	}
	version := j.Version
	if version == 0 {
		version = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			job_number = excluded.job_number,
			customer_po_number = excluded.customer_po_number,
			customer_id = excluded.customer_id,
			customer_email = excluded.customer_email,
			vendor_id = excluded.vendor_id,
			status = excluded.status,
			workflow_stage = excluded.workflow_stage,
			workflow_override = excluded.workflow_override,
			workflow_override_at = excluded.workflow_override_at,
			pathway = excluded.pathway,
			customer_paid_at = excluded.customer_paid_at,
			vendor_paid_at = excluded.vendor_paid_at,
			invoice_sent_at = excluded.invoice_sent_at,
			partner_paid = excluded.partner_paid,
			partner_paid_at = excluded.partner_paid_at,
			partner_invoice_number = excluded.partner_invoice_number,
			partner_invoice_generated_at = excluded.partner_invoice_generated_at,
			ready_for_production = excluded.ready_for_production,
			qc_artwork = excluded.qc_artwork,
			qc_data = excluded.qc_data,
			qc_proof = excluded.qc_proof,
			qc_vendor = excluded.qc_vendor,
			version = jobs.version + 1,
			updated_at = excluded.updated_at
	`,
		j.ID, j.JobNumber, nullString(j.CustomerPONumber), nullString(j.CustomerID),
		nullString(j.CustomerEmail), nullString(j.VendorID),
		string(status), string(stage), nullString(string(j.WorkflowOverride)),
		nullMillis(j.WorkflowOverrideAt), nullString(string(j.Pathway)),
		nullMillis(j.CustomerPaidAt), nullMillis(j.VendorPaidAt), nullMillis(j.InvoiceSentAt),
		boolInt(j.Partner.Paid), nullMillis(j.Partner.PaidAt), nullString(j.Partner.InvoiceNumber),
		nullMillis(j.Partner.InvoiceGeneratedAt),
		boolInt(j.ReadyForProduction), qcOrDefault(j.QC.Artwork), qcOrDefault(j.QC.Data),
		qcOrDefault(j.QC.Proof), qcOrDefault(j.QC.Vendor),
		version, toMillis(j.CreatedAt), toMillis(updated),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", j.ID, err)
	}
	return nil
}

// SavePurchaseOrder inserts or replaces a purchase order.
func (s *Store) SavePurchaseOrder(ctx context.Context, po *domain.PurchaseOrder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchase_orders
		(id, job_id, po_number, vendor_id, origin, status, buy_cost_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			po_number = excluded.po_number,
			vendor_id = excluded.vendor_id,
			origin = excluded.origin,
			status = excluded.status,
			buy_cost_cents = excluded.buy_cost_cents
	`,
		po.ID, po.JobID, po.PONumber, nullString(po.VendorID),
		string(po.Origin), string(po.Status), int64(po.BuyCost), toMillis(po.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save purchase order %s: %w", po.ID, err)
	}
	return nil
}

// SaveComponent inserts or replaces a job component.
func (s *Store) SaveComponent(ctx context.Context, c *domain.Component) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_components (id, job_id, vendor_id, description, cost_cents)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vendor_id = excluded.vendor_id,
			description = excluded.description,
			cost_cents = excluded.cost_cents
	`, c.ID, c.JobID, nullString(c.VendorID), c.Description, int64(c.Cost))
	if err != nil {
		return fmt.Errorf("save component %s: %w", c.ID, err)
	}
	return nil
}

// SaveProfitSplit inserts or replaces a job's profit split.
func (s *Store) SaveProfitSplit(ctx context.Context, p *domain.ProfitSplit) error {
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profit_splits (job_id, total_cost_cents, sell_price_cents, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			total_cost_cents = excluded.total_cost_cents,
			sell_price_cents = excluded.sell_price_cents,
			updated_at = excluded.updated_at
	`, p.JobID, int64(p.TotalCost), int64(p.SellPrice), toMillis(updated))
	if err != nil {
		return fmt.Errorf("save profit split %s: %w", p.JobID, err)
	}
	return nil
}
