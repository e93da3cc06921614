package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/soaringjerry/icc-checker/internal/services"
	"github.com/soaringjerry/icc-checker/internal/utils"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // audit incomplete, non-compliant result, rejected input
	ExitCommandError = 2 // store unreachable, bad flags
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
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

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Service errors of the
// unavailable class map to ExitCommandError, everything else to ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if se, ok := services.AsServiceError(err); ok && se.Code == services.ErrorUnavailable {
		return ExitCommandError
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// Emit writes data as indented JSON, or calls text for the text format.
func (f *OutputFormatter) Emit(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	text(f.Writer)
	return nil
}

// VerboseLog writes to ErrWriter when verbose is on.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

var (
	okColor      = color.New(color.FgGreen).SprintFunc()
	failColor    = color.New(color.FgRed, color.Bold).SprintFunc()
	pendingColor = color.New(color.FgYellow).SprintFunc()
	headColor    = color.New(color.FgCyan, color.Bold).SprintFunc()
)

func statusText(st services.Status) string {
	switch st {
	case services.StatusCompliant:
		return okColor(st.Label())
	case services.StatusNonCompliant:
		return failColor(st.Label())
	default:
		return pendingColor(st.Label())
	}
}

func overallText(r services.OverallResult) string {
	msg := utils.T(utils.DefaultLocale, r.MessageKey())
	if r == services.ResultIssuesDetected {
		return failColor(msg)
	}
	return okColor(msg)
}
