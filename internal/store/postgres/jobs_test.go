package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickd290/jobtrail/internal/domain"
)

var created = time.Date(2025, 5, 27, 9, 0, 0, 0, time.UTC)

var jobCols = []string{
	"id", "job_number", "customer_po_number", "customer_id", "email", "vendor_id",
	"status", "workflow_stage", "workflow_override", "workflow_override_at", "pathway",
	"customer_paid_at", "vendor_paid_at", "invoice_sent_at",
	"partner_paid", "partner_paid_at", "partner_invoice_number", "partner_invoice_generated_at",
	"ready_for_production", "qc_artwork", "qc_data", "qc_proof", "qc_vendor",
	"version", "created_at", "updated_at",
}

func jobRows(id, number string, stage domain.Stage) *sqlmock.Rows {
	return sqlmock.NewRows(jobCols).AddRow(
		id, number, "44517", "cust-1", "buyer@acme.com", nil,
		"ACTIVE", string(stage), nil, nil, "SINGLE_VENDOR",
		nil, nil, nil,
		false, nil, nil, nil,
		false, "COMPLETE", "PENDING", "NOT_REQUIRED", "COMPLETE",
		int64(3), created, created,
	)
}

func newMockStore(t *testing.T) (*JobStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewJobStore(db), mock
}

func TestJobStore_GetJob(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs j LEFT JOIN customers c ON c.id = j.customer_id WHERE j.id = $1")).
		WithArgs("job-1").
		WillReturnRows(jobRows("job-1", "J-2001", domain.StageProofReceived))

	j, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "J-2001", j.JobNumber)
	assert.Equal(t, "buyer@acme.com", j.CustomerEmail)
	assert.Equal(t, domain.StageProofReceived, j.WorkflowStage)
	assert.Equal(t, domain.PathwaySingleVendor, j.Pathway)
	assert.Equal(t, domain.QCPending, j.QC.Data)
	assert.Nil(t, j.CustomerPaidAt)
	assert.Equal(t, int64(3), j.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_GetJob_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE j.id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(jobCols))

	_, err := s.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestJobStore_FindJobsByPO(t *testing.T) {
	s, mock := newMockStore(t)
	since := created.AddDate(0, 0, -30)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE UPPER(j.customer_po_number) = UPPER($1) AND j.created_at >= $2")).
		WithArgs("44517", since).
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_number", "customer_po_number", "email", "created_at"}).
			AddRow("job-2", "J-2002", "44517", "ap@beta.io", created).
			AddRow("job-1", "J-2001", "44517", nil, created.Add(-time.Hour)))

	got, err := s.FindJobsByPO(context.Background(), "44517", since)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "job-2", got[0].ID)
	assert.Equal(t, "ap@beta.io", got[0].CustomerEmail)
	assert.Empty(t, got[1].CustomerEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_UpdateJobStage(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs")).
			WithArgs("PROOF_RECEIVED", "job-1", "NEW_JOB").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := s.UpdateJobStage(context.Background(), "job-1", domain.StageNewJob, domain.StageProofReceived)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conflict", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs")).
			WithArgs("PROOF_RECEIVED", "job-1", "NEW_JOB").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM jobs WHERE id = $1")).
			WithArgs("job-1").
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		err := s.UpdateJobStage(context.Background(), "job-1", domain.StageNewJob, domain.StageProofReceived)
		assert.ErrorIs(t, err, domain.ErrStageConflict)
	})

	t.Run("missing job", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM jobs")).
			WithArgs("job-9").
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

		err := s.UpdateJobStage(context.Background(), "job-9", domain.StageNewJob, domain.StagePaid)
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})

	t.Run("driver error", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs")).
			WillReturnError(errors.New("connection reset"))

		err := s.UpdateJobStage(context.Background(), "job-1", domain.StageNewJob, domain.StagePaid)
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrStageConflict)
	})
}

func TestJobStore_LoadSnapshot(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE j.id = $1")).
		WithArgs("job-1").
		WillReturnRows(jobRows("job-1", "J-2001", domain.StageCompleted))
	mock.ExpectQuery(regexp.QuoteMeta("FROM purchase_orders")).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_id", "po_number", "vendor_id", "origin", "status", "buy_cost_cents", "created_at"}).
			AddRow("po-1", "job-1", "V-1", "vendor-1", "INTERNAL", "SENT", int64(25000), created).
			AddRow("po-2", "job-1", "V-2", nil, "PARTNER", "CANCELLED", int64(1000), created))
	mock.ExpectQuery(regexp.QuoteMeta("FROM job_components")).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_id", "vendor_id", "description", "cost_cents"}).
			AddRow("c-1", "job-1", "vendor-2", "envelopes", int64(500)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM profit_splits")).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "total_cost_cents", "sell_price_cents", "updated_at"}).
			AddRow("job-1", int64(25000), int64(40000), created))

	snap, err := s.LoadSnapshot(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageCompleted, snap.Job.WorkflowStage)
	require.Len(t, snap.PurchaseOrders, 2)
	assert.Equal(t, domain.Cents(25000), snap.PurchaseOrders[0].BuyCost)
	assert.Equal(t, domain.POStatusCancelled, snap.PurchaseOrders[1].Status)
	require.Len(t, snap.Components, 1)
	require.NotNil(t, snap.Split)
	assert.Equal(t, domain.Cents(40000), snap.Split.SellPrice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_LoadSnapshot_NoSplit(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE j.id = $1")).
		WithArgs("job-1").
		WillReturnRows(jobRows("job-1", "J-2001", domain.StageNewJob))
	mock.ExpectQuery(regexp.QuoteMeta("FROM purchase_orders")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_id", "po_number", "vendor_id", "origin", "status", "buy_cost_cents", "created_at"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM job_components")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_id", "vendor_id", "description", "cost_cents"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM profit_splits")).
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "total_cost_cents", "sell_price_cents", "updated_at"}))

	snap, err := s.LoadSnapshot(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Nil(t, snap.Split)
	assert.Empty(t, snap.PurchaseOrders)
	assert.NotNil(t, snap.PurchaseOrders)
}

func TestJobStore_RecentJobIDs(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM jobs ORDER BY created_at DESC, id ASC LIMIT $1")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("job-3").AddRow("job-2"))

	ids, err := s.RecentJobIDs(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-3", "job-2"}, ids)
}
