package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Command ran and found nothing wrong
	ExitFailure      = 1 // Command ran and found a problem (ERROR violations, stage divergence)
	ExitCommandError = 2 // Command could not run (bad flags, config, storage)
)

// Error codes used in JSON error responses.
const (
	ErrCodeCommand  = "E001" // command could not run
	ErrCodeFindings = "E002" // command ran and reported a problem
)

// ExitError carries a process exit code alongside an error.
type ExitError struct {
	Code    int    // ExitFailure or ExitCommandError
	Message string // human-readable summary
	Err     error  // underlying cause, may be nil
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from err. Plain errors, including
// cobra's flag errors, are command errors.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// OutputFormatter renders command results as JSON or text.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

// JSON reports whether the formatter emits JSON.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// CLIResponse is the envelope for JSON output.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of a CLIResponse.
type CLIError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	ExitCode int    `json:"exitCode"`
	Details  any    `json:"details,omitempty"`
}

// Success writes data. In text mode render draws it; a nil render prints
// data with fmt.
func (f *OutputFormatter) Success(data any, render func(io.Writer) error) error {
	if f.JSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	if render != nil {
		return render(f.Writer)
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes err to the diagnostic writer.
func (f *OutputFormatter) Error(err error) {
	code := GetExitCode(err)
	errCode := ErrCodeCommand
	if code == ExitFailure {
		errCode = ErrCodeFindings
	}

	w := f.errWriter()
	if f.JSON() {
		_ = json.NewEncoder(w).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: errCode, Message: err.Error(), ExitCode: code},
		})
		return
	}
	fmt.Fprintf(w, "Error [%s]: %s\n", errCode, err)
}

// VerboseLog writes a diagnostic line when verbose output is on. It never
// writes to Writer in JSON mode.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
