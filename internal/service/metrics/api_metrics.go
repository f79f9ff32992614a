// Package metrics holds control API instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API tracks latency and failures of control endpoints.
type API struct {
	latency *prometheus.HistogramVec
	errors  *prometheus.CounterVec
	inputs  *prometheus.CounterVec
}

func NewAPI(reg prometheus.Registerer) *API {
	f := promauto.With(reg)
	return &API{
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "busscope",
				Subsystem: "api",
				Name:      "latency_seconds",
				Help:      "Latency of control endpoints",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "busscope",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Errors by control endpoint",
			},
			[]string{"endpoint"},
		),
		inputs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "busscope",
				Subsystem: "api",
				Name:      "input_events_total",
				Help:      "Pointer and wheel events received over the input socket",
			},
			[]string{"kind"},
		),
	}
}

// Observe records one call of endpoint that started at start.
func (a *API) Observe(endpoint string, start time.Time, err error) {
	if a == nil {
		return
	}
	a.latency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		a.errors.WithLabelValues(endpoint).Inc()
	}
}

func (a *API) Input(kind string) {
	if a == nil {
		return
	}
	a.inputs.WithLabelValues(kind).Inc()
}
