package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nickd290/jobtrail/internal/domain"
	"github.com/nickd290/jobtrail/internal/jobs"
)

const jobColumns = `id, job_number, customer_po_number, customer_id, customer_email, vendor_id,
	status, workflow_stage, workflow_override, workflow_override_at, pathway,
	customer_paid_at, vendor_paid_at, invoice_sent_at,
	partner_paid, partner_paid_at, partner_invoice_number, partner_invoice_generated_at,
	ready_for_production, qc_artwork, qc_data, qc_proof, qc_vendor,
	version, created_at, updated_at`

// GetJob retrieves a mirrored job.
func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, jobID))
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return j, nil
}

// FindJobsByPO returns jobs carrying the customer PO created since the
// given time, newest first. PO comparison ignores case.
func (s *Store) FindJobsByPO(ctx context.Context, po string, since time.Time) ([]domain.JobCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_number, customer_po_number, customer_email, created_at
		FROM jobs
		WHERE UPPER(customer_po_number) = UPPER(?) AND created_at >= ?
		ORDER BY created_at DESC, id ASC
	`, po, toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("find jobs by po: %w", err)
	}
	defer rows.Close()

	candidates := []domain.JobCandidate{}
	for rows.Next() {
		var (
			c        domain.JobCandidate
			email    sql.NullString
			poNumber sql.NullString
			created  int64
		)
		if err := rows.Scan(&c.ID, &c.JobNumber, &poNumber, &email, &created); err != nil {
			return nil, fmt.Errorf("scan job candidate: %w", err)
		}
		c.PONumber = poNumber.String
		c.CustomerEmail = email.String
		c.CreatedAt = fromMillis(created)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job candidates: %w", err)
	}
	return candidates, nil
}

// UpdateJobStage compare-and-sets the workflow stage and bumps the version.
func (s *Store) UpdateJobStage(ctx context.Context, jobID string, from, to domain.Stage) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET workflow_stage = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND workflow_stage = ?
	`, string(to), toMillis(s.now()), jobID, string(from))
	if err != nil {
		return fmt.Errorf("update job stage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job stage: rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id = ?`, jobID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update job stage %s: %w", jobID, domain.ErrJobNotFound)
	}
	if err != nil {
		return fmt.Errorf("update job stage: %w", err)
	}
	return fmt.Errorf("update job stage %s from %s: %w", jobID, from, domain.ErrStageConflict)
}

// LoadSnapshot reads the job and its cost records.
func (s *Store) LoadSnapshot(ctx context.Context, jobID string) (*jobs.Snapshot, error) {
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	snap := &jobs.Snapshot{Job: *j}

	if snap.PurchaseOrders, err = s.listPurchaseOrders(ctx, jobID); err != nil {
		return nil, err
	}
	if snap.Components, err = s.listComponents(ctx, jobID); err != nil {
		return nil, err
	}

	var split domain.ProfitSplit
	var updated int64
	err = s.db.QueryRowContext(ctx, `
		SELECT job_id, total_cost_cents, sell_price_cents, updated_at
		FROM profit_splits WHERE job_id = ?
	`, jobID).Scan(&split.JobID, &split.TotalCost, &split.SellPrice, &updated)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("load profit split: %w", err)
	default:
		split.UpdatedAt = fromMillis(updated)
		snap.Split = &split
	}

	return snap, nil
}

// RecentJobIDs returns the newest job ids.
func (s *Store) RecentJobIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM jobs ORDER BY created_at DESC, id ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent jobs: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job ids: %w", err)
	}
	return ids, nil
}

func (s *Store) listPurchaseOrders(ctx context.Context, jobID string) ([]domain.PurchaseOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, po_number, vendor_id, origin, status, buy_cost_cents, created_at
		FROM purchase_orders
		WHERE job_id = ?
		ORDER BY created_at ASC, id ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query purchase orders: %w", err)
	}
	defer rows.Close()

	pos := []domain.PurchaseOrder{}
	for rows.Next() {
		var (
			po             domain.PurchaseOrder
			vendor         sql.NullString
			origin, status string
			created        int64
		)
		if err := rows.Scan(&po.ID, &po.JobID, &po.PONumber, &vendor, &origin, &status, &po.BuyCost, &created); err != nil {
			return nil, fmt.Errorf("scan purchase order: %w", err)
		}
		po.VendorID = vendor.String
		po.Origin = domain.POOrigin(origin)
		po.Status = domain.POStatus(status)
		po.CreatedAt = fromMillis(created)
		pos = append(pos, po)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchase orders: %w", err)
	}
	return pos, nil
}

func (s *Store) listComponents(ctx context.Context, jobID string) ([]domain.Component, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, vendor_id, description, cost_cents
		FROM job_components
		WHERE job_id = ?
		ORDER BY id ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query components: %w", err)
	}
	defer rows.Close()

	comps := []domain.Component{}
	for rows.Next() {
		var (
			c      domain.Component
			vendor sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.JobID, &vendor, &c.Description, &c.Cost); err != nil {
			return nil, fmt.Errorf("scan component: %w", err)
		}
		c.VendorID = vendor.String
		comps = append(comps, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate components: %w", err)
	}
	return comps, nil
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		j                                             domain.Job
		po, customerID, email, vendor                 sql.NullString
		status, stage                                 string
		override, pathway, partnerInvoice             sql.NullString
		overrideAt, customerPaid, vendorPaid, invoice sql.NullInt64
		partnerPaidAt, partnerInvoiceAt               sql.NullInt64
		partnerPaid, ready                            int
		qcArtwork, qcData, qcProof, qcVendor          string
		created, updated                              int64
	)
	err := row.Scan(
		&j.ID, &j.JobNumber, &po, &customerID, &email, &vendor,
		&status, &stage, &override, &overrideAt, &pathway,
		&customerPaid, &vendorPaid, &invoice,
		&partnerPaid, &partnerPaidAt, &partnerInvoice, &partnerInvoiceAt,
		&ready, &qcArtwork, &qcData, &qcProof, &qcVendor,
		&j.Version, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	j.CustomerPONumber = po.String
	j.CustomerID = customerID.String
	j.CustomerEmail = email.String
	j.VendorID = vendor.String
	j.Status = domain.JobStatus(status)
	j.WorkflowStage = domain.Stage(stage)
	j.WorkflowOverride = domain.Stage(override.String)
	j.WorkflowOverrideAt = timePtr(overrideAt)
	j.Pathway = domain.Pathway(pathway.String)
	j.CustomerPaidAt = timePtr(customerPaid)
	j.VendorPaidAt = timePtr(vendorPaid)
	j.InvoiceSentAt = timePtr(invoice)
	j.Partner = domain.PartnerPayment{
		Paid:               partnerPaid != 0,
		PaidAt:             timePtr(partnerPaidAt),
		InvoiceNumber:      partnerInvoice.String,
		InvoiceGeneratedAt: timePtr(partnerInvoiceAt),
	}
	j.ReadyForProduction = ready != 0
	j.QC = domain.QualityChecks{
		Artwork: domain.QCStatus(qcArtwork),
		Data:    domain.QCStatus(qcData),
		Proof:   domain.QCStatus(qcProof),
		Vendor:  domain.QCStatus(qcVendor),
	}
	j.CreatedAt = fromMillis(created)
	j.UpdatedAt = fromMillis(updated)
	return &j, nil
}
