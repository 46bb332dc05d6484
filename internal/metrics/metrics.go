// Package metrics exports prometheus metrics for relation manager operations.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jacentio/onetomany/store"
)

// Outcome labels.
const (
	OutcomeOK          = "ok"
	OutcomeNotFound    = "not_found"
	OutcomeValidation  = "validation"
	OutcomePersistence = "persistence"
	OutcomeError       = "error"
)

// Collector records operation counts, durations and set results.
type Collector struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	children   *prometheus.CounterVec
}

// NewCollector registers the metrics with reg. A nil reg uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Collector{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onetomany_operations_total",
				Help: "Total number of relation manager operations",
			},
			[]string{"operation", "relation", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "onetomany_operation_duration_seconds",
				Help:    "Duration of relation manager operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation"},
		),
		children: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onetomany_children_total",
				Help: "Children retained, released and attached by set operations",
			},
			[]string{"relation", "change"},
		),
	}
}

// Observe records one operation. It is safe to call on a nil Collector.
func (c *Collector) Observe(operation, relation string, start time.Time, err error) {
	if c == nil {
		return
	}
	c.operations.WithLabelValues(operation, relation, Outcome(err)).Inc()
	c.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Changes records the per-set child counts. It is safe to call on a nil Collector.
func (c *Collector) Changes(relation string, retained, released, attached int) {
	if c == nil {
		return
	}
	c.children.WithLabelValues(relation, "retained").Add(float64(retained))
	c.children.WithLabelValues(relation, "released").Add(float64(released))
	c.children.WithLabelValues(relation, "attached").Add(float64(attached))
}

// Outcome maps an error to its outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, store.ErrValidation):
		return OutcomeValidation
	case errors.Is(err, store.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, store.ErrPersistence):
		return OutcomePersistence
	}
	return OutcomeError
}
