package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nickd290/jobtrail/internal/domain"
	"github.com/nickd290/jobtrail/internal/ledger"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	JobID string
	Apply bool
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Recompute a job's workflow stage from its event ledger",
		Long: `Replay every eligible event recorded for a job, oldest first, and compare
the resulting stage with the stored one. Events flagged for review or below
the auto-update confidence are not replayed. A computed stage behind the
stored one is only reported when a change request occurred in the history.

With --apply a divergent stage is written back to the job.

Exit codes:
  0 - Stored stage agrees with the ledger, or the divergence was applied
  1 - Stored stage diverges from the ledger and --apply was not given
  2 - Command error (job not found, database unavailable, etc.)

Examples:
  jobtrail replay --job J-2001
  jobtrail replay --job J-2001 --apply --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.JobID, "job", "", "job id to replay (required)")
	_ = cmd.MarkFlagRequired("job")
	cmd.Flags().BoolVar(&opts.Apply, "apply", false, "write the recomputed stage when it differs")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
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

	res, err := a.events().Recompute(cmd.Context(), opts.JobID, opts.Apply)
	if err != nil {
		if domain.IsNotFound(err) {
			return WrapExitError(ExitCommandError, fmt.Sprintf("job %s not found", opts.JobID), err)
		}
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	if err := out.Success(res, func(w io.Writer) error {
		return writeReplayText(w, res)
	}); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}

	if res.Decision.ShouldUpdate && !res.Applied {
		return NewExitError(ExitFailure,
			fmt.Sprintf("stored stage %s diverges from ledger stage %s; rerun with --apply", res.Current, res.Decision.NewStage))
	}
	return nil
}

func writeReplayText(w io.Writer, res *ledger.RecomputeResult) error {
	label := res.JobNumber
	if label == "" {
		label = res.JobID
	}
	fmt.Fprintf(w, "Job %s\n", label)
	fmt.Fprintf(w, "  events replayed: %d (%d skipped)\n", res.Events, res.Skipped)
	fmt.Fprintf(w, "  stored stage:    %s\n", res.Current)
	fmt.Fprintf(w, "  ledger stage:    %s\n", res.Decision.NewStage)
	fmt.Fprintf(w, "  %s\n", res.Decision.Reason)

	var status string
	switch {
	case res.Applied:
		status = "APPLIED"
	case res.Decision.ShouldUpdate:
		status = "DIVERGED"
	default:
		status = "IN SYNC"
	}
	_, err := fmt.Fprintf(w, "Result: %s\n", status)
	return err
}
