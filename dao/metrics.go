package dao

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels of refguard_operations_total.
const (
	OutcomeCommitted = "committed"
	OutcomeAborted   = "aborted"
	OutcomeDegraded  = "degraded"
)

// Result labels of refguard_compensations_total.
const (
	CompensationOK        = "ok"
	CompensationTolerated = "tolerated"
	CompensationFailed    = "failed"
)

// Metrics holds the Prometheus collectors shared by all DAOs. A nil *Metrics
// records nothing.
type Metrics struct {
	Operations    *prometheus.CounterVec
	Compensations *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refguard_operations_total",
			Help: "Entity operations by terminal outcome.",
		}, []string{"entity_type", "op", "outcome"}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refguard_compensations_total",
			Help: "Compensating writes by result.",
		}, []string{"entity_type", "op", "result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "refguard_operation_duration_seconds",
			Help:    "Wall time of entity operations including compensations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"entity_type", "op"}),
	}
}

// Register registers the collectors on reg (or the default registerer if nil).
// Collectors that are already registered are adopted, so Register can be
// called once per DAO set without failing.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(m.Operations); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		m.Operations = are.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(m.Compensations); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		m.Compensations = are.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(m.Duration); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		m.Duration = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	return nil
}

func (m *Metrics) operation(entityType, op, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(entityType, op, outcome).Inc()
	m.Duration.WithLabelValues(entityType, op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) compensation(entityType, op, result string) {
	if m == nil {
		return
	}
	m.Compensations.WithLabelValues(entityType, op, result).Inc()
}
