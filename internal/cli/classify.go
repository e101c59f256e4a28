package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nickd290/jobtrail/internal/pattern"
)

// ClassifyOptions holds flags for the classify command.
type ClassifyOptions struct {
	*RootOptions
	Subject string
	Body    string
}

// NewClassifyCommand creates the classify command.
func NewClassifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClassifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Extract a PO number and file links from an email",
		Long: `Run the stateless extractors over an email subject and body. Nothing is
stored and no configuration is read.

Examples:
  jobtrail classify --subject "Re: Proof for PO 44517"
  jobtrail classify --subject "Files" --body "https://www.dropbox.com/s/abc/art.pdf"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Subject == "" && opts.Body == "" {
				return NewExitError(ExitCommandError, "one of --subject or --body is required")
			}
			c := pattern.Classify(opts.Subject, opts.Body)
			return opts.formatter(cmd).Success(c, func(w io.Writer) error {
				return writeClassification(w, c)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "subject", "", "email subject")
	cmd.Flags().StringVar(&opts.Body, "body", "", "email body")

	return cmd
}

func writeClassification(w io.Writer, c pattern.Classification) error {
	po := c.PONumber
	if po == "" {
		po = "(none)"
	}
	fmt.Fprintf(w, "PO number: %s\n", po)
	if len(c.Links) == 0 {
		_, err := fmt.Fprintln(w, "Links: (none)")
		return err
	}
	fmt.Fprintln(w, "Links:")
	for _, l := range c.Links {
		fmt.Fprintf(w, "  %s\n", l)
	}
	return nil
}
