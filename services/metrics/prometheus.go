// Package metricsvc exports engine outcomes as Prometheus counters.
package metricsvc

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/madrasa/backend/core"
)

const namespace = "madrasa"

type Prometheus struct {
	decisions   *prometheus.CounterVec
	enrollments *prometheus.CounterVec
	failures    prometheus.Counter
}

var _ core.Metrics = (*Prometheus)(nil)

// NewPrometheus registers the engine collectors on reg, reusing any already registered.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Prometheus{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_decisions_total",
			Help:      "Course access decisions by reason.",
		}, []string{"reason"}),
		enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollments_created_total",
			Help:      "Enrollments created by source.",
		}, []string{"source"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillment_failures_total",
			Help:      "Completed payments whose enrollment could not be created.",
		}),
	}

	var err error
	if m.decisions, err = registerCounterVec(reg, m.decisions); err != nil {
		return nil, err
	}
	if m.enrollments, err = registerCounterVec(reg, m.enrollments); err != nil {
		return nil, err
	}
	if err = reg.Register(m.failures); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, errors.Wrap(err, "registering fulfillment failures counter")
		}
		existing, ok := are.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, errors.Wrap(err, "registering fulfillment failures counter")
		}
		m.failures = existing
	}
	return m, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
		if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
			return existing, nil
		}
	}
	return nil, errors.Wrap(err, "registering counter")
}

func (m *Prometheus) AccessDecision(reason string) {
	m.decisions.WithLabelValues(reason).Inc()
}

func (m *Prometheus) EnrollmentCreated(source string) {
	m.enrollments.WithLabelValues(source).Inc()
}

func (m *Prometheus) FulfillmentFailure() {
	m.failures.Inc()
}

// NewRegistry returns a registry carrying the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
