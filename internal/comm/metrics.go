package comm

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes comm engine counters. A nil *Metrics is valid and records
// nothing, so tests and tools can run without a registry.
type Metrics struct {
	gatherer prometheus.Gatherer

	Operations    *prometheus.CounterVec
	Attempts      *prometheus.CounterVec
	Failures      *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	QueueDepth    *prometheus.GaugeVec
	Registrations prometheus.Gauge
}

// NewMetrics registers the comm metrics against reg (default registerer if nil).
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ops, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "comm_operations_total",
		Help: "Operations reaching a terminal state, by link and state.",
	}, []string{"link", "state"}), "comm_operations_total")
	if err != nil {
		return nil, err
	}

	attempts, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "comm_operation_attempts_total",
		Help: "Operation attempts started, by link.",
	}, []string{"link"}), "comm_operation_attempts_total")
	if err != nil {
		return nil, err
	}

	failures, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "comm_failures_total",
		Help: "Failed operation attempts, by link and error class.",
	}, []string{"link", "class"}), "comm_failures_total")
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "comm_operation_duration_seconds",
		Help:    "Duration of one operation attempt.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"link"}), "comm_operation_duration_seconds")
	if err != nil {
		return nil, err
	}

	depth, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "comm_queue_depth",
		Help: "Operations waiting in a link queue.",
	}, []string{"link"}), "comm_queue_depth")
	if err != nil {
		return nil, err
	}

	regs, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "comm_selector_registrations",
		Help: "Channels currently registered with the selector.",
	}), "comm_selector_registrations")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:      gatherer,
		Operations:    ops,
		Attempts:      attempts,
		Failures:      failures,
		Duration:      duration,
		QueueDepth:    depth,
		Registrations: regs,
	}, nil
}

// Gatherer returns the gatherer the metrics were registered with.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return nil
	}
	return m.gatherer
}

func (m *Metrics) observeAttempt(link string, d time.Duration) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(link).Inc()
	m.Duration.WithLabelValues(link).Observe(d.Seconds())
}

func (m *Metrics) observeFailure(link string, class ErrorClass) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(link, class.String()).Inc()
}

func (m *Metrics) observeDone(link string, state State) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(link, state.String()).Inc()
}

func (m *Metrics) setQueueDepth(link string, n int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(link).Set(float64(n))
}

func (m *Metrics) setRegistrations(n int) {
	if m == nil {
		return
	}
	m.Registrations.Set(float64(n))
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C, name string) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
			return c, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return c, err
	}
	return c, nil
}
