package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "busscope"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ingested *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	frames   *prometheus.CounterVec
	render   *prometheus.HistogramVec
	buffered *prometheus.GaugeVec
	sessions prometheus.Gauge
}

// New registers the recorder with the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the recorder with reg. A nil reg leaves the
// collectors unregistered.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ingested: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "samples_ingested_total",
				Help:      "Signal values delivered into at least one session",
			},
			[]string{"source"},
		),
		dropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "samples_dropped_total",
				Help:      "Signal values discarded before reaching a sample store",
			},
			[]string{"reason"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		frames: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_rendered_total",
				Help:      "Frames painted per session",
			},
			[]string{"session"},
		),
		render: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "frame_render_seconds",
				Help:      "Time spent painting one frame",
				Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.016, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"session"},
		),
		buffered: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "samples_buffered",
				Help:      "Samples held in a session's store",
			},
			[]string{"session"},
		),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Open viewer sessions",
		}),
	}
}

func (r *Recorder) RecordIngested(source string) {
	r.ingested.WithLabelValues(source).Inc()
}

func (r *Recorder) RecordDropped(reason string) {
	r.dropped.WithLabelValues(reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errors.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordFrame(session string, seconds float64) {
	r.frames.WithLabelValues(session).Inc()
	r.render.WithLabelValues(session).Observe(seconds)
}

func (r *Recorder) SetBuffered(session string, samples int) {
	r.buffered.WithLabelValues(session).Set(float64(samples))
}

func (r *Recorder) SetSessions(n int) {
	r.sessions.Set(float64(n))
}

// ForgetSession drops the per session series of a closed session.
func (r *Recorder) ForgetSession(session string) {
	r.frames.DeleteLabelValues(session)
	r.render.DeleteLabelValues(session)
	r.buffered.DeleteLabelValues(session)
}
