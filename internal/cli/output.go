package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// Process exit statuses.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the backend said no: bad credentials, failed sync, unknown store
	ExitCommandError = 2 // the invocation was wrong: flags, config or state file
)

// JSON error codes, one per non-zero exit status.
const (
	CodeFailure      = "E001"
	CodeCommandError = "E002"
)

// ExitError carries the exit status a command failed with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError fails a command with status code.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError is NewExitError keeping err as the cause.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the status err should exit with. Errors that carry no
// status are plain failures.
func GetExitCode(err error) int {
	if exitErr := (*ExitError)(nil); errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

func errorCode(exit int) string {
	if exit == ExitCommandError {
		return CodeCommandError
	}
	return CodeFailure
}

// Envelope wraps every --format json document: Data on success, Error
// otherwise.
type Envelope struct {
	Status string     `json:"status"`
	Data   any        `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the error half of an Envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results as text or as an Envelope.
// Diagnostics go to ErrWriter, or Writer when it is unset.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// JSON reports whether --format json was requested.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// Render writes data inside an ok Envelope in JSON mode. Otherwise text
// writes the terminal form.
func (f *OutputFormatter) Render(data any, text func(w io.Writer)) error {
	if !f.JSON() {
		text(f.Writer)
		return nil
	}
	return json.NewEncoder(f.Writer).Encode(Envelope{Status: "ok", Data: data})
}

// Fail reports a command error. Details are printed in text mode only with
// --verbose.
func (f *OutputFormatter) Fail(code, message string, details any) error {
	if f.JSON() {
		return json.NewEncoder(f.Writer).Encode(Envelope{
			Status: "error",
			Error:  &ErrorBody{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Debugf writes a line to the diagnostic writer under --verbose.
func (f *OutputFormatter) Debugf(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.diag(), format+"\n", args...)
	}
}

func (f *OutputFormatter) diag() io.Writer {
	if f.ErrWriter == nil {
		return f.Writer
	}
	return f.ErrWriter
}
