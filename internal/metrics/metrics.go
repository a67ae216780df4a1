// Package metrics provides Prometheus metrics for the factory agent.
//
// All recording methods are safe on a nil *Metrics, so components can be
// built without metrics in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Action outcomes.
const (
	ResultOK          = "ok"
	ResultError       = "error"
	ResultAbsent      = "absent"
	ResultNoop        = "noop"
	ResultUnsupported = "unsupported"
)

// Metrics holds all Prometheus metrics for the agent.
type Metrics struct {
	FetchesTotal     *prometheus.CounterVec
	ClonesTotal      *prometheus.CounterVec
	CloneDuration    *prometheus.HistogramVec
	CheckoutsTotal   *prometheus.CounterVec
	ActionsTotal     *prometheus.CounterVec
	PhasesFiredTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		FetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factory_fetches_total",
				Help: "Total number of factory definition fetches by result.",
			},
			[]string{"result"},
		),
		ClonesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factory_clones_total",
				Help: "Total number of project clones by result.",
			},
			[]string{"result"},
		),
		CloneDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "factory_clone_duration_seconds",
				Help:    "Project clone duration by result.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"result"},
		),
		CheckoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factory_checkouts_total",
				Help: "Total number of branch checkouts by result.",
			},
			[]string{"result"},
		),
		ActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factory_actions_total",
				Help: "Total number of dispatched lifecycle actions by phase, action and result.",
			},
			[]string{"phase", "action", "result"},
		),
		PhasesFiredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factory_phases_fired_total",
				Help: "Total number of lifecycle phases fired.",
			},
			[]string{"phase"},
		),
		registry: reg,
	}

	reg.MustRegister(m.FetchesTotal)
	reg.MustRegister(m.ClonesTotal)
	reg.MustRegister(m.CloneDuration)
	reg.MustRegister(m.CheckoutsTotal)
	reg.MustRegister(m.ActionsTotal)
	reg.MustRegister(m.PhasesFiredTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordFetch increments the fetch counter.
func (m *Metrics) RecordFetch(result string) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(result).Inc()
}

// RecordClone counts a clone and observes its duration in seconds.
func (m *Metrics) RecordClone(result string, seconds float64) {
	if m == nil {
		return
	}
	m.ClonesTotal.WithLabelValues(result).Inc()
	m.CloneDuration.WithLabelValues(result).Observe(seconds)
}

// RecordCheckout increments the checkout counter.
func (m *Metrics) RecordCheckout(result string) {
	if m == nil {
		return
	}
	m.CheckoutsTotal.WithLabelValues(result).Inc()
}

// RecordAction increments the action counter. Unknown action IDs are
// folded into "other" to bound label cardinality.
func (m *Metrics) RecordAction(phase, action, result string) {
	if m == nil {
		return
	}
	if result == ResultUnsupported {
		action = "other"
	}
	m.ActionsTotal.WithLabelValues(phase, action, result).Inc()
}

// RecordPhase increments the phase counter.
func (m *Metrics) RecordPhase(phase string) {
	if m == nil {
		return
	}
	m.PhasesFiredTotal.WithLabelValues(phase).Inc()
}
