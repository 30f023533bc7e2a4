// Package dberr translates store errors into the domain error kinds callers
// act on. Every store call made by the reference index and the DAOs passes its
// error through Translate at the point it returns.
package dberr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jacentio/refguard/store"
)

// Kind classifies a failed operation.
type Kind int

const (
	// Internal is any failure that is neither a conflict, a miss nor transient.
	Internal Kind = iota
	// DuplicateUnique means a unique value is already reserved by another entity.
	DuplicateUnique
	// NotFound means the entity or reference does not exist.
	NotFound
	// VersionConflict means the entity changed since it was read.
	VersionConflict
	// Transient means the store was unavailable; the operation may be retried.
	Transient
)

// Sentinels matching each kind, usable with errors.Is.
var (
	ErrDuplicateUnique = errors.New("refguard: unique value already taken")
	ErrNotFound        = errors.New("refguard: not found")
	ErrVersionConflict = errors.New("refguard: version conflict")
	ErrTransient       = errors.New("refguard: temporarily unavailable")
	ErrInternal        = errors.New("refguard: internal error")
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case DuplicateUnique:
		return "duplicate_unique"
	case NotFound:
		return "not_found"
	case VersionConflict:
		return "version_conflict"
	case Transient:
		return "transient"
	default:
		return "internal"
	}
}

// HTTPStatus returns the status code an API layer should answer with.
func (k Kind) HTTPStatus() int {
	switch k {
	case DuplicateUnique, VersionConflict:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	case Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) sentinel() error {
	switch k {
	case DuplicateUnique:
		return ErrDuplicateUnique
	case NotFound:
		return ErrNotFound
	case VersionConflict:
		return ErrVersionConflict
	case Transient:
		return ErrTransient
	default:
		return ErrInternal
	}
}

// Error is a classified store failure.
type Error struct {
	Kind Kind
	Op   string // store operation: get, insert, replace, remove
	Key  string // document key the operation addressed
	Err  error  // store cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.Op != "" || e.Key != "" {
		msg = fmt.Sprintf("%s (%s %s)", msg, e.Op, e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the store cause, so
// errors.Is(err, ErrNotFound) and errors.Is(err, store.ErrNotFound) both hold.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// New returns a classified error without a store cause.
func New(kind Kind, op, key string) *Error {
	return &Error{Kind: kind, Op: op, Key: key}
}

// Translate classifies err returned by store operation op on key. Nil stays
// nil and already classified errors pass through unchanged.
func Translate(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return &Error{Kind: classify(err), Op: op, Key: key, Err: err}
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		return DuplicateUnique
	case errors.Is(err, store.ErrNotFound):
		return NotFound
	case errors.Is(err, store.ErrVersionConflict):
		return VersionConflict
	case errors.Is(err, store.ErrTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return Transient
	}
	return Internal
}

// KindOf returns the kind of err. Unclassified non-nil errors are Internal.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	if err == nil {
		return Internal
	}
	return classify(err)
}

// Is reports whether err is non-nil and of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
