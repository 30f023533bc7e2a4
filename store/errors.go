package store

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrNotFound is returned when the key does not exist.
	ErrNotFound = errors.New("refguard: document not found")

	// ErrAlreadyExists is returned by Insert when another writer already holds the key.
	ErrAlreadyExists = errors.New("refguard: document already exists")

	// ErrVersionConflict is returned by Replace when the stored version differs from the expected one.
	ErrVersionConflict = errors.New("refguard: document was modified concurrently")

	// ErrTransient marks failures that may succeed on retry (timeouts, unreachable store).
	ErrTransient = errors.New("refguard: store temporarily unavailable")

	// ErrClosed is returned by adapters used after Close.
	ErrClosed = errors.New("refguard: store closed")
)

type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return ErrTransient.Error() + ": " + e.err.Error()
}

func (e *transientError) Unwrap() error { return e.err }

func (e *transientError) Is(target error) bool { return target == ErrTransient }

// Transient wraps err so that errors.Is(err, ErrTransient) holds while the
// original cause stays reachable through errors.Unwrap. Nil stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) {
		return err
	}
	return &transientError{err: err}
}

// IsTimeout reports whether err is a deadline or network timeout. Adapters
// use it to decide whether a driver error should be wrapped with Transient.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
