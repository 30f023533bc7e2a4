package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jacentio/refguard/dao"
	"github.com/jacentio/refguard/dberr"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // unclassified failure
	ExitCommandError = 2 // bad arguments, flags or configuration
	ExitConflict     = 3 // duplicate unique value or version conflict
	ExitNotFound     = 4
	ExitUnavailable  = 5 // store unreachable or timed out; retry may succeed
)

// ExitError carries an explicit exit code.
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode derives the exit code from err: explicit ExitError codes first,
// then the dberr kind.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	switch dberr.KindOf(err) {
	case dberr.DuplicateUnique, dberr.VersionConflict:
		return ExitConflict
	case dberr.NotFound:
		return ExitNotFound
	case dberr.Transient:
		return ExitUnavailable
	default:
		return ExitFailure
	}
}

// Output writes command results as text or JSON.
type Output struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // text-mode errors and diagnostics; defaults to Writer
}

// Response is the JSON envelope of every command.
type Response struct {
	Status string     `json:"status"` // "ok" or "error"
	Data   any        `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed command.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Status  int    `json:"status,omitempty"` // HTTP equivalent of Kind
	Message string `json:"message"`
}

// Success writes data as JSON, or calls text in text mode.
func (o *Output) Success(data any, text func(w io.Writer)) error {
	if o.Format == "json" {
		return json.NewEncoder(o.Writer).Encode(Response{Status: "ok", Data: data})
	}
	text(o.Writer)
	return nil
}

// Record writes one entity.
func (o *Output) Record(entityType string, rec dao.RawRecord) error {
	return o.Success(rec, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s (version %d)\n", entityType, rec.ID, rec.Version)
		var buf bytes.Buffer
		if err := json.Indent(&buf, rec.Doc, "", "  "); err != nil {
			buf.Reset()
			buf.Write(rec.Doc)
		}
		buf.WriteByte('\n')
		_, _ = buf.WriteTo(w)
	})
}

// Error writes err.
func (o *Output) Error(err error) error {
	body := errorBody(err)
	if o.Format == "json" {
		return json.NewEncoder(o.Writer).Encode(Response{Status: "error", Error: body})
	}
	w := o.ErrWriter
	if w == nil {
		w = o.Writer
	}
	_, werr := fmt.Fprintf(w, "Error [%s]: %s\n", body.Kind, body.Message)
	return werr
}

func errorBody(err error) *ErrorBody {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code == ExitCommandError {
		return &ErrorBody{Kind: "command", Message: err.Error()}
	}
	kind := dberr.KindOf(err)
	return &ErrorBody{Kind: kind.String(), Status: kind.HTTPStatus(), Message: err.Error()}
}
