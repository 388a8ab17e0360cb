package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Noop satisfies every recorder in the service without emitting anything.
type Noop struct{}

func (Noop) IncJobsReceived(string)                  {}
func (Noop) IncOutcome(string, string)               {}
func (Noop) AddArtifactsWritten(string, int)         {}
func (Noop) ObserveTransform(string, time.Duration) {}
func (Noop) IncEventsPublished(string, string)       {}
func (Noop) IncJobsEnqueued(string)                  {}
func (Noop) IncDeadLetters(string)                   {}

// Prom implements the pipeline, emitter and intake recorders on its own
// Prometheus registry.
type Prom struct {
	registry         *prometheus.Registry
	jobsReceived     *prometheus.CounterVec
	jobsEnqueued     *prometheus.CounterVec
	outcomes         *prometheus.CounterVec
	artifactsWritten *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	deadLetters      *prometheus.CounterVec
	transform        *prometheus.HistogramVec
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		jobsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_received_total",
			Help:      "Deliveries received by adapter kind",
		}, []string{"kind"}),
		jobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Envelopes accepted over HTTP by adapter kind",
		}, []string{"kind"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_outcomes_total",
			Help:      "Delivery outcomes by adapter kind",
		}, []string{"kind", "outcome"}),
		artifactsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_written_total",
			Help:      "Derived artifacts written by adapter kind",
		}, []string{"kind"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Status events published by source and status",
		}, []string{"source", "status"}),
		deadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letters_total",
			Help:      "Messages dead-lettered by stream",
		}, []string{"stream"}),
		transform: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transform_duration_seconds",
			Help:      "Adapter transform latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
	}
	p.registry.MustRegister(
		p.jobsReceived, p.jobsEnqueued, p.outcomes, p.artifactsWritten,
		p.eventsPublished, p.deadLetters, p.transform,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prom) IncJobsReceived(kind string) {
	p.jobsReceived.WithLabelValues(kind).Inc()
}

func (p *Prom) IncJobsEnqueued(kind string) {
	p.jobsEnqueued.WithLabelValues(kind).Inc()
}

func (p *Prom) IncOutcome(kind, outcome string) {
	p.outcomes.WithLabelValues(kind, outcome).Inc()
}

func (p *Prom) AddArtifactsWritten(kind string, n int) {
	p.artifactsWritten.WithLabelValues(kind).Add(float64(n))
}

func (p *Prom) ObserveTransform(kind string, d time.Duration) {
	p.transform.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *Prom) IncEventsPublished(source, status string) {
	p.eventsPublished.WithLabelValues(source, status).Inc()
}

func (p *Prom) IncDeadLetters(stream string) {
	p.deadLetters.WithLabelValues(stream).Inc()
}

// Handler returns an HTTP handler for /metrics.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
