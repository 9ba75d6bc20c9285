// Package metrics exposes vault operations as Prometheus metrics
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/illarion/cfgvault/internal/vault"
)

// Metrics records vault activity. It implements vault.Observer.
type Metrics struct {
	registry          *prometheus.Registry
	operations        *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	integrityFailures prometheus.Counter
	foreignWrites     prometheus.Counter
	state             prometheus.Gauge
}

// New creates metrics on a private registry, with Go runtime and process
// collectors included
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cfgvault_operations_total",
				Help: "Total number of vault operations",
			},
			[]string{"op", "result"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cfgvault_operation_duration_seconds",
				Help:    "Duration of vault operations in seconds, including key derivation and file I/O",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"op"},
		),
		integrityFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "cfgvault_integrity_failures_total",
			Help: "Number of times the vault file failed its integrity check",
		}),
		foreignWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "cfgvault_foreign_writes_total",
			Help: "Number of vault file changes made by another process",
		}),
		state: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cfgvault_state",
			Help: "Vault state (0=uninitialized, 1=key_loaded, 2=ready, 3=corrupted)",
		}),
	}
}

// ObserveOperation records one facade call
func (m *Metrics) ObserveOperation(op string, d time.Duration, err error) {
	m.operations.WithLabelValues(op, result(err)).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveState records a state transition
func (m *Metrics) ObserveState(s vault.State) {
	m.state.Set(float64(s))
	if s == vault.StateCorrupted {
		m.integrityFailures.Inc()
	}
}

// ObserveForeignWrite records a vault file change made by another process
func (m *Metrics) ObserveForeignWrite() {
	m.foreignWrites.Inc()
}

// Registry returns the registry the metrics live on
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, vault.ErrCorrupted):
		return "corrupted"
	default:
		return "error"
	}
}
