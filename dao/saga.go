package dao

import (
	"context"
	"log/slog"
	"time"

	"github.com/jacentio/refguard/dberr"
)

// State is a point in the lifecycle of one operation.
type State int

const (
	StateStart State = iota
	StateRefReserved
	StatePrimaryWritten
	StateCommitted
	StateCompensating
	StateAborted
	StateDegraded
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateRefReserved:
		return "ref_reserved"
	case StatePrimaryWritten:
		return "primary_written"
	case StateCommitted:
		return "committed"
	case StateCompensating:
		return "compensating"
	case StateAborted:
		return "aborted"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// saga tracks one Insert, Update or Remove from start to its terminal state.
type saga struct {
	logger     *slog.Logger
	metrics    *Metrics
	entityType string
	op         string
	id         string
	state      State
	started    time.Time
}

// compensation is one undo step.
type compensation struct {
	name string
	key  string
	run  func(ctx context.Context) error

	// tolerateNotFound treats a missing target as already undone.
	tolerateNotFound bool
}

func (s *saga) advance(next State) {
	s.logger.Debug("saga transition",
		"entityType", s.entityType,
		"op", s.op,
		"id", s.id,
		"from", s.state.String(),
		"to", next.String(),
	)
	s.state = next
}

func (s *saga) commit() {
	s.advance(StateCommitted)
	s.metrics.operation(s.entityType, s.op, OutcomeCommitted, s.started)
}

// abort ends the saga without compensation and passes err through.
func (s *saga) abort(err error) error {
	s.advance(StateAborted)
	s.metrics.operation(s.entityType, s.op, OutcomeAborted, s.started)
	return err
}

// compensate runs steps in order and stops at the first one that fails. It
// reports whether every step succeeded; the saga ends ABORTED if so and
// DEGRADED otherwise. Step errors are logged, never returned.
func (s *saga) compensate(ctx context.Context, cause error, steps ...compensation) bool {
	s.advance(StateCompensating)

	for _, step := range steps {
		err := step.run(ctx)
		switch {
		case err == nil:
			s.metrics.compensation(s.entityType, s.op, CompensationOK)
		case step.tolerateNotFound && dberr.Is(err, dberr.NotFound):
			s.logger.Warn("compensation target already gone",
				"entityType", s.entityType,
				"op", s.op,
				"id", s.id,
				"step", step.name,
				"key", step.key,
			)
			s.metrics.compensation(s.entityType, s.op, CompensationTolerated)
		default:
			s.logger.Error("compensation failed",
				"entityType", s.entityType,
				"op", s.op,
				"id", s.id,
				"step", step.name,
				"key", step.key,
				"cause", cause,
				"error", err,
			)
			s.metrics.compensation(s.entityType, s.op, CompensationFailed)
			s.advance(StateDegraded)
			s.metrics.operation(s.entityType, s.op, OutcomeDegraded, s.started)
			return false
		}
	}

	s.advance(StateAborted)
	s.metrics.operation(s.entityType, s.op, OutcomeAborted, s.started)
	return true
}
