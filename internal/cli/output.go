package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/fixtures/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Failed assertions or resolution errors
	ExitCommandError = 2 // Command error (bad config, unreachable store, invalid manifest, etc.)
)

// Error codes for failures that are not fixture errors.
const (
	ErrCodeConfig   = "CONFIG"
	ErrCodeStore    = "STORE"
	ErrCodeManifest = "MANIFEST"
	ErrCodeCycles   = "CYCLES"
	ErrCodeFailed   = "FAILED"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	// Reported is true once the error was written through an
	// OutputFormatter, so Run does not print it again.
	Reported bool
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for warnings and errors in text mode (defaults to Writer)
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // fixture error code or one of the ErrCode constants
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// JSON reports whether output is machine-readable.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// Success outputs a successful result. In text mode, text is printed as is
// unless it is empty.
func (f *OutputFormatter) Success(data any, text string) error {
	if f.JSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	if text == "" {
		return nil
	}
	_, err := io.WriteString(f.Writer, text)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.JSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	_, err := fmt.Fprintf(f.GetErrWriter(), "Error [%s]: %s\n", code, message)
	return err
}

// Warn prints a warning in text mode. JSON output carries warnings in its
// payload instead.
func (f *OutputFormatter) Warn(format string, args ...any) {
	if f.JSON() {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), "warning: "+format+"\n", args...)
}

// Fail reports err and returns it as an ExitError with exitCode. Fixture
// errors keep their own code; anything else is reported under code.
func (f *OutputFormatter) Fail(exitCode int, code string, err error) error {
	if c := ir.CodeOf(err); c != "" {
		code = string(c)
	}
	var details any
	var fe *ir.FixtureError
	if errors.As(err, &fe) {
		if d := fixtureErrorDetails(fe); d != nil {
			details = d
		}
	}
	exitErr := WrapExitError(exitCode, code, err)
	if outErr := f.Error(code, err.Error(), details); outErr == nil {
		exitErr.Reported = true
	}
	return exitErr
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func fixtureErrorDetails(fe *ir.FixtureError) map[string]any {
	d := map[string]any{}
	if fe.Key.EntityType != "" {
		d["key"] = fe.Key.String()
	}
	if len(fe.Path) > 0 {
		d["path"] = ir.FormatPath(fe.Path)
	}
	if fe.Cause != nil {
		d["cause"] = fe.Cause.Error()
	}
	if len(d) == 0 {
		return nil
	}
	return d
}
