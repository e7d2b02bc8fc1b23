package live

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sharo-jef/webllm-svg/pkg/generation"
)

const namespace = "svgen"

// Metrics are the Prometheus collectors of the live server.
type Metrics struct {
	Registry *prometheus.Registry

	AttemptsTotal      *prometheus.CounterVec
	GenerationsTotal   *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	ChunksTotal        prometheus.Counter
	SizeWarningsTotal  prometheus.Counter
	ActiveSessions     prometheus.Gauge
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		AttemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "attempts_total",
				Help:      "Generation attempts by outcome",
			},
			[]string{"outcome"},
		),
		GenerationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "total",
				Help:      "Finished generations by model and terminal state",
			},
			[]string{"model", "state"},
		),
		GenerationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "duration_seconds",
				Help:      "Wall time of a generation call",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"model"},
		),
		ChunksTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "chunks_total",
			Help:      "Streamed text fragments",
		}),
		SizeWarningsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "size_warnings_total",
			Help:      "Valid SVGs whose declared size differs from the request",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "active_sessions",
			Help:      "Open websocket sessions",
		}),
	}
}

// Observer counts attempts and chunks.
func (m *Metrics) Observer() generation.Observer {
	return generation.ObserverFuncs{
		Chunk: func(int, string) { m.ChunksTotal.Inc() },
		AttemptEnd: func(_ int, outcome generation.Outcome) {
			m.AttemptsTotal.WithLabelValues(outcome.String()).Inc()
		},
	}
}

// ObserveResult records a finished call.
func (m *Metrics) ObserveResult(res *generation.Result, elapsed time.Duration) {
	if res == nil {
		return
	}
	model := res.Request.Model
	m.GenerationsTotal.WithLabelValues(model, res.State.String()).Inc()
	m.GenerationDuration.WithLabelValues(model).Observe(elapsed.Seconds())
	m.SizeWarningsTotal.Add(float64(len(res.Warnings)))
}
