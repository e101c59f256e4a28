// Package postgres reads the external job aggregate from the operations
// database and writes workflow stages back to it.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/nickd290/jobtrail/internal/domain"
	"github.com/nickd290/jobtrail/internal/jobs"
)

var _ jobs.Store = (*JobStore)(nil)

// JobStore implements jobs.Store over the operations database. The schema is
// owned by the operations application; this store touches only
// jobs.workflow_stage, jobs.version and jobs.updated_at.
type JobStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures a JobStore.
type Option func(*JobStore)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *JobStore) { s.logger = l }
}

// Open connects to dsn with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*JobStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewJobStore(db, opts...), nil
}

// NewJobStore wraps an existing connection pool.
func NewJobStore(db *sql.DB, opts ...Option) *JobStore {
	s := &JobStore{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks database connectivity.
func (s *JobStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *JobStore) Close() error {
	return s.db.Close()
}

const selectJob = `SELECT j.id, j.job_number, j.customer_po_number, j.customer_id, c.email, j.vendor_id,
	j.status, j.workflow_stage, j.workflow_override, j.workflow_override_at, j.pathway,
	j.customer_paid_at, j.vendor_paid_at, j.invoice_sent_at,
	j.partner_paid, j.partner_paid_at, j.partner_invoice_number, j.partner_invoice_generated_at,
	j.ready_for_production, j.qc_artwork, j.qc_data, j.qc_proof, j.qc_vendor,
	j.version, j.created_at, j.updated_at
FROM jobs j LEFT JOIN customers c ON c.id = j.customer_id`

// GetJob retrieves a job.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, selectJob+` WHERE j.id = $1`, jobID))
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return j, nil
}

// FindJobsByPO returns jobs carrying the customer PO created since the given
// time, newest first.
func (s *JobStore) FindJobsByPO(ctx context.Context, po string, since time.Time) ([]domain.JobCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT j.id, j.job_number, j.customer_po_number, c.email, j.created_at
		FROM jobs j LEFT JOIN customers c ON c.id = j.customer_id
		WHERE UPPER(j.customer_po_number) = UPPER($1) AND j.created_at >= $2
		ORDER BY j.created_at DESC, j.id ASC
	`, po, since)
	if err != nil {
		return nil, fmt.Errorf("find jobs by po: %w", err)
	}
	defer rows.Close()

	candidates := []domain.JobCandidate{}
	for rows.Next() {
		var (
			c               domain.JobCandidate
			poNumber, email sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.JobNumber, &poNumber, &email, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job candidate: %w", err)
		}
		c.PONumber = poNumber.String
		c.CustomerEmail = email.String
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job candidates: %w", err)
	}
	return candidates, nil
}

// UpdateJobStage compare-and-sets the workflow stage and bumps the version.
func (s *JobStore) UpdateJobStage(ctx context.Context, jobID string, from, to domain.Stage) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET workflow_stage = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND workflow_stage = $3
	`, string(to), jobID, string(from))
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
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id = $1`, jobID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update job stage %s: %w", jobID, domain.ErrJobNotFound)
	}
	if err != nil {
		return fmt.Errorf("update job stage: %w", err)
	}
	s.logger.Debug("stage compare-and-set lost", "job_id", jobID, "expected", from)
	return fmt.Errorf("update job stage %s from %s: %w", jobID, from, domain.ErrStageConflict)
}

// LoadSnapshot reads the job, its purchase orders, components and split.
func (s *JobStore) LoadSnapshot(ctx context.Context, jobID string) (*jobs.Snapshot, error) {
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
	err = s.db.QueryRowContext(ctx, `
		SELECT job_id, total_cost_cents, sell_price_cents, updated_at
		FROM profit_splits WHERE job_id = $1
	`, jobID).Scan(&split.JobID, &split.TotalCost, &split.SellPrice, &split.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("load profit split: %w", err)
	default:
		snap.Split = &split
	}
	return snap, nil
}

// RecentJobIDs returns the newest job ids.
func (s *JobStore) RecentJobIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM jobs ORDER BY created_at DESC, id ASC LIMIT $1`, limit)
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

func (s *JobStore) listPurchaseOrders(ctx context.Context, jobID string) ([]domain.PurchaseOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, po_number, vendor_id, origin, status, buy_cost_cents, created_at
		FROM purchase_orders
		WHERE job_id = $1
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
		)
		if err := rows.Scan(&po.ID, &po.JobID, &po.PONumber, &vendor, &origin, &status, &po.BuyCost, &po.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan purchase order: %w", err)
		}
		po.VendorID = vendor.String
		po.Origin = domain.POOrigin(origin)
		po.Status = domain.POStatus(status)
		pos = append(pos, po)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchase orders: %w", err)
	}
	return pos, nil
}

func (s *JobStore) listComponents(ctx context.Context, jobID string) ([]domain.Component, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, vendor_id, description, cost_cents
		FROM job_components
		WHERE job_id = $1
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

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

func scanJob(row *sql.Row) (*domain.Job, error) {
	var (
		j                                             domain.Job
		po, customerID, email, vendor                 sql.NullString
		status, stage                                 string
		override, pathway, partnerInvoice             sql.NullString
		overrideAt, customerPaid, vendorPaid, invoice sql.NullTime
		partnerPaidAt, partnerInvoiceAt               sql.NullTime
		qcArtwork, qcData, qcProof, qcVendor          string
	)
	err := row.Scan(
		&j.ID, &j.JobNumber, &po, &customerID, &email, &vendor,
		&status, &stage, &override, &overrideAt, &pathway,
		&customerPaid, &vendorPaid, &invoice,
		&j.Partner.Paid, &partnerPaidAt, &partnerInvoice, &partnerInvoiceAt,
		&j.ReadyForProduction, &qcArtwork, &qcData, &qcProof, &qcVendor,
		&j.Version, &j.CreatedAt, &j.UpdatedAt,
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
	j.Partner.PaidAt = timePtr(partnerPaidAt)
	j.Partner.InvoiceNumber = partnerInvoice.String
	j.Partner.InvoiceGeneratedAt = timePtr(partnerInvoiceAt)
	j.QC = domain.QualityChecks{
		Artwork: domain.QCStatus(qcArtwork),
		Data:    domain.QCStatus(qcData),
		Proof:   domain.QCStatus(qcProof),
		Vendor:  domain.QCStatus(qcVendor),
	}
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}
