package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nickd290/jobtrail/internal/domain"
	"github.com/nickd290/jobtrail/internal/store/sqlite"
)

// ImportJobsOptions holds flags for the import-jobs command.
type ImportJobsOptions struct {
	*RootOptions
	File string
}

// jobFile is the YAML layout read by import-jobs. Money amounts are cents.
type jobFile struct {
	Jobs []jobRecord `yaml:"jobs"`
}

type jobRecord struct {
	ID                 string     `yaml:"id"`
	JobNumber          string     `yaml:"jobNumber"`
	CustomerPONumber   string     `yaml:"customerPONumber"`
	CustomerID         string     `yaml:"customerId"`
	CustomerEmail      string     `yaml:"customerEmail"`
	VendorID           string     `yaml:"vendorId"`
	Status             string     `yaml:"status"`
	WorkflowStage      string     `yaml:"workflowStage"`
	WorkflowOverride   string     `yaml:"workflowOverride"`
	WorkflowOverrideAt *time.Time `yaml:"workflowOverrideAt"`
	Pathway            string     `yaml:"pathway"`
	CustomerPaidAt     *time.Time `yaml:"customerPaidAt"`
	VendorPaidAt       *time.Time `yaml:"vendorPaidAt"`
	InvoiceSentAt      *time.Time `yaml:"invoiceSentAt"`
	ReadyForProduction bool       `yaml:"readyForProduction"`
	CreatedAt          time.Time  `yaml:"createdAt"`

	Partner struct {
		Paid               bool       `yaml:"paid"`
		PaidAt             *time.Time `yaml:"paidAt"`
		InvoiceNumber      string     `yaml:"invoiceNumber"`
		InvoiceGeneratedAt *time.Time `yaml:"invoiceGeneratedAt"`
	} `yaml:"partner"`

	QC struct {
		Artwork string `yaml:"artwork"`
		Data    string `yaml:"data"`
		Proof   string `yaml:"proof"`
		Vendor  string `yaml:"vendor"`
	} `yaml:"qc"`

	PurchaseOrders []struct {
		ID        string    `yaml:"id"`
		PONumber  string    `yaml:"poNumber"`
		VendorID  string    `yaml:"vendorId"`
		Origin    string    `yaml:"origin"`
		Status    string    `yaml:"status"`
		BuyCost   int64     `yaml:"buyCost"`
		CreatedAt time.Time `yaml:"createdAt"`
	} `yaml:"purchaseOrders"`

	Components []struct {
		ID          string `yaml:"id"`
		VendorID    string `yaml:"vendorId"`
		Description string `yaml:"description"`
		Cost        int64  `yaml:"cost"`
	} `yaml:"components"`

	Split *struct {
		TotalCost int64 `yaml:"totalCost"`
		SellPrice int64 `yaml:"sellPrice"`
	} `yaml:"split"`
}

// ImportJobsResult is the payload of the import-jobs command.
type ImportJobsResult struct {
	Jobs           int `json:"jobs"`
	PurchaseOrders int `json:"purchaseOrders"`
	Components     int `json:"components"`
	Splits         int `json:"splits"`
}

func (r ImportJobsResult) String() string {
	return fmt.Sprintf("Imported %d jobs, %d purchase orders, %d components, %d profit splits",
		r.Jobs, r.PurchaseOrders, r.Components, r.Splits)
}

// NewImportJobsCommand creates the import-jobs command.
func NewImportJobsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportJobsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import-jobs",
		Short: "Load jobs from a YAML file into the local job mirror",
		Long: `Insert or replace jobs, with their purchase orders, components and
profit splits, in the ledger database's local job mirror. Useful for
development and for running without an external job database.

The command refuses to run when a jobs URL is configured, since the mirror
is not read in that mode.

Examples:
  jobtrail import-jobs --file jobs.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImportJobs(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "path to jobs YAML file (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runImportJobs(opts *ImportJobsOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.JobsURL != "" {
		return NewExitError(ExitCommandError, "a jobs URL is configured; import-jobs only writes the local mirror")
	}

	data, err := os.ReadFile(opts.File)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read jobs file", err)
	}
	records, err := parseJobFile(data)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid jobs file %s", opts.File), err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)
	st, err := sqlite.Open(cfg.Database.LedgerPath, sqlite.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open ledger database", err)
	}
	defer st.Close()

	res, err := importJobs(cmd.Context(), st, records)
	if err != nil {
		return WrapExitError(ExitCommandError, "import failed", err)
	}
	logger.Info("jobs imported", "jobs", res.Jobs, "file", opts.File)
	return opts.formatter(cmd).Success(res, nil)
}

func parseJobFile(data []byte) ([]jobRecord, error) {
	var f jobFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	for i, r := range f.Jobs {
		if r.ID == "" {
			return nil, fmt.Errorf("jobs[%d]: %w", i, domain.Missing("id"))
		}
		if r.WorkflowStage != "" {
			if _, err := domain.ParseStage(r.WorkflowStage); err != nil {
				return nil, fmt.Errorf("jobs[%d]: %w", i, err)
			}
		}
		if r.WorkflowOverride != "" {
			if _, err := domain.ParseStage(r.WorkflowOverride); err != nil {
				return nil, fmt.Errorf("jobs[%d]: %w", i, err)
			}
		}
		switch domain.JobStatus(r.Status) {
		case "", domain.JobStatusActive, domain.JobStatusPaid, domain.JobStatusCancelled:
		default:
			return nil, fmt.Errorf("jobs[%d]: %w", i, domain.Invalid("status", fmt.Sprintf("unknown status %q", r.Status)))
		}
	}
	return f.Jobs, nil
}

// importJobs writes every record. Saves are upserts, so a failed import
// can be rerun.
func importJobs(ctx context.Context, st *sqlite.Store, records []jobRecord) (ImportJobsResult, error) {
	var res ImportJobsResult
	for _, r := range records {
		job := r.job()
		if err := st.SaveJob(ctx, &job); err != nil {
			return res, fmt.Errorf("job %s: %w", r.ID, err)
		}
		res.Jobs++

		for _, p := range r.PurchaseOrders {
			origin := domain.POOrigin(p.Origin)
			if origin == "" {
				origin = domain.POOriginInternal
			}
			status := domain.POStatus(p.Status)
			if status == "" {
				status = domain.POStatusSent
			}
			created := p.CreatedAt
			if created.IsZero() {
				created = job.CreatedAt
			}
			po := domain.PurchaseOrder{
				ID:        p.ID,
				JobID:     r.ID,
				PONumber:  p.PONumber,
				VendorID:  p.VendorID,
				Origin:    origin,
				Status:    status,
				BuyCost:   domain.Cents(p.BuyCost),
				CreatedAt: created,
			}
			if err := st.SavePurchaseOrder(ctx, &po); err != nil {
				return res, fmt.Errorf("job %s purchase order %s: %w", r.ID, p.ID, err)
			}
			res.PurchaseOrders++
		}

		for _, c := range r.Components {
			comp := domain.Component{
				ID:          c.ID,
				JobID:       r.ID,
				VendorID:    c.VendorID,
				Description: c.Description,
				Cost:        domain.Cents(c.Cost),
			}
			if err := st.SaveComponent(ctx, &comp); err != nil {
				return res, fmt.Errorf("job %s component %s: %w", r.ID, c.ID, err)
			}
			res.Components++
		}

		if r.Split != nil {
			split := domain.ProfitSplit{
				JobID:     r.ID,
				TotalCost: domain.Cents(r.Split.TotalCost),
				SellPrice: domain.Cents(r.Split.SellPrice),
				UpdatedAt: job.CreatedAt,
			}
			if err := st.SaveProfitSplit(ctx, &split); err != nil {
				return res, fmt.Errorf("job %s profit split: %w", r.ID, err)
			}
			res.Splits++
		}
	}
	return res, nil
}

func (r *jobRecord) job() domain.Job {
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return domain.Job{
		ID:                 r.ID,
		JobNumber:          r.JobNumber,
		CustomerPONumber:   r.CustomerPONumber,
		CustomerID:         r.CustomerID,
		CustomerEmail:      r.CustomerEmail,
		VendorID:           r.VendorID,
		Status:             domain.JobStatus(r.Status),
		WorkflowStage:      domain.Stage(r.WorkflowStage),
		WorkflowOverride:   domain.Stage(r.WorkflowOverride),
		WorkflowOverrideAt: r.WorkflowOverrideAt,
		Pathway:            domain.Pathway(r.Pathway),
		CustomerPaidAt:     r.CustomerPaidAt,
		VendorPaidAt:       r.VendorPaidAt,
		InvoiceSentAt:      r.InvoiceSentAt,
		Partner: domain.PartnerPayment{
			Paid:               r.Partner.Paid,
			PaidAt:             r.Partner.PaidAt,
			InvoiceNumber:      r.Partner.InvoiceNumber,
			InvoiceGeneratedAt: r.Partner.InvoiceGeneratedAt,
		},
		ReadyForProduction: r.ReadyForProduction,
		QC: domain.QualityChecks{
			Artwork: domain.QCStatus(r.QC.Artwork),
			Data:    domain.QCStatus(r.QC.Data),
			Proof:   domain.QCStatus(r.QC.Proof),
			Vendor:  domain.QCStatus(r.QC.Vendor),
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}
