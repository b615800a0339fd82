package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/migrant/internal/catalog"
	"github.com/roach88/migrant/internal/change"
	"github.com/roach88/migrant/internal/config"
	"github.com/roach88/migrant/internal/engine"
	"github.com/roach88/migrant/internal/lock"
	"github.com/roach88/migrant/internal/state"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // A change failed or the run was interrupted
	ExitCommandError = 2 // Configuration or usage error
	ExitLockBusy     = 3 // Another run holds the lock
)

// Error codes reported in CLI responses.
const (
	ErrCodeGeneric    = "E001"
	ErrCodeConfig     = "E002"
	ErrCodeLockBusy   = "E003"
	ErrCodeExecution  = "E004"
	ErrCodeCorruption = "E005"
	ErrCodeCatalog    = "E006"
	ErrCodeLock       = "E007"
	ErrCodeUsage      = "E008"
	ErrCodeCanceled   = "E009"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code
	Message string // Error message
	Err     error  // Underlying error (optional)
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
	if err == nil {
		return ExitSuccess
	}
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
	ErrWriter io.Writer // Diagnostics; defaults to Writer
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.GetErrWriter(), "Error [%s]: %s\n", code, message)
	if details != nil {
		fmt.Fprintln(f.GetErrWriter(), details)
	}
	return nil
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// classify maps an engine error to an error code and exit code.
func classify(err error) (string, int) {
	var (
		exitErr    *ExitError
		cfgErr     *config.Error
		corruption *state.CorruptionError
	)
	switch {
	case errors.As(err, &exitErr):
		return ErrCodeUsage, exitErr.Code
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeCanceled, ExitFailure
	case errors.Is(err, lock.ErrNotAcquired):
		return ErrCodeLockBusy, ExitLockBusy
	case errors.As(err, &cfgErr):
		return ErrCodeConfig, ExitCommandError
	case errors.Is(err, catalog.ErrHashRequired):
		return ErrCodeConfig, ExitCommandError
	case errors.As(err, &corruption):
		return ErrCodeCorruption, ExitFailure
	case engine.IsExecutionError(err):
		return ErrCodeExecution, ExitFailure
	case errors.Is(err, lock.ErrLeaseLost), lock.IsInvariantError(err):
		return ErrCodeLock, ExitFailure
	case errors.As(err, new(*change.ParseError)):
		return ErrCodeCatalog, ExitCommandError
	default:
		return ErrCodeGeneric, ExitFailure
	}
}

// fail reports err through the formatter and returns the ExitError the
// command should return. details may carry a partial result.
func fail(f *OutputFormatter, message string, err error, details any) error {
	code, exit := classify(err)
	if outErr := f.Error(code, fmt.Sprintf("%s: %v", message, err), details); outErr != nil {
		return errors.Join(WrapExitError(exit, message, err), outErr)
	}
	return WrapExitError(exit, message, err)
}
