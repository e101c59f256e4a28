package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nickd290/jobtrail/internal/api"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string // overrides server.addr
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the email webhook server",
		Long: `Start the HTTP server that receives email webhooks.

Every route except /health requires the X-Webhook-Secret header. When no
secret is configured all protected routes answer 401.

Examples:
  jobtrail serve
  jobtrail serve --addr :9090 --config jobtrail.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)
	if !cfg.SecretConfigured() {
		logger.Warn("webhook secret not configured, protected routes will reject every request")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := api.New(a.threads(), a.matcher(), a.events(),
		api.WithLogger(logger),
		api.WithSecret(cfg.WebhookSecret),
		api.WithRequestTimeout(cfg.Server.RequestTimeout),
		api.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
	)

	if err := srv.ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout); err != nil {
		return WrapExitError(ExitCommandError, "server failed", err)
	}
	return nil
}
