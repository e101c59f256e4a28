package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nickd290/jobtrail/internal/invariant"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	Limit int
}

// AuditResult is the JSON payload of the audit command.
type AuditResult struct {
	invariant.Summary
	Reports []invariant.Report `json:"reports"` // only reports with violations
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Validate recent jobs against the invariant rules",
		Long: `Validate the most recently created jobs against every invariant check
and print one row per violated rule with up to two sample jobs.

Exit codes:
  0 - No ERROR violations (warnings may be present)
  1 - At least one ERROR violation
  2 - Command error (bad config, database unavailable, etc.)

Examples:
  jobtrail audit
  jobtrail audit --limit 500 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 100, "number of most recent jobs to validate")

	return cmd
}

func runAudit(opts *AuditOptions, cmd *cobra.Command) error {
	if opts.Limit <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--limit must be positive, got %d", opts.Limit))
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)
	out := opts.formatter(cmd)

	a, err := openApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	v := invariant.NewValidator(a.jobs,
		invariant.WithLogger(logger),
		invariant.WithConcurrency(cfg.Audit.Concurrency),
	)
	out.VerboseLog("validating up to %d jobs", opts.Limit)
	reports, err := v.ValidateRecent(cmd.Context(), opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "audit failed", err)
	}

	result := AuditResult{Summary: invariant.Summarize(reports), Reports: []invariant.Report{}}
	for _, r := range reports {
		if !r.OK {
			result.Reports = append(result.Reports, r)
		}
	}

	if err := out.Success(result, func(w io.Writer) error {
		return writeAuditTable(w, result.Summary)
	}); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}

	if result.HasErrors {
		return NewExitError(ExitFailure, "ERROR violations found")
	}
	return nil
}

// writeAuditTable renders a summary as an aligned table.
func writeAuditTable(w io.Writer, s invariant.Summary) error {
	fmt.Fprintf(w, "Audited %d jobs: %d clean, %d with violations\n", s.Jobs, s.Clean, s.Jobs-s.Clean)
	if len(s.Codes) == 0 {
		_, err := fmt.Fprintln(w, "No violations found.")
		return err
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tSEVERITY\tCOUNT\tSAMPLES")
	for _, c := range s.Codes {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.Code, c.Severity, c.Count, strings.Join(c.Samples, ", "))
	}
	return tw.Flush()
}
