package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schemabridge/internal/shared/events"
)

const namespace = "schemabridge"

// Processor records replication outcomes per flow direction on its own
// registry.
type Processor struct {
	registry *prometheus.Registry

	received *prometheus.CounterVec
	ignored  *prometheus.CounterVec
	applied  *prometheus.CounterVec
	failed   *prometheus.CounterVec
	deferred *prometheus.GaugeVec
	resolved *prometheus.CounterVec
}

func NewProcessor() *Processor {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Processor{
		registry: registry,
		received: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_received_total",
			Help:      "Envelopes taken off the broker.",
		}, []string{"direction"}),
		ignored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_ignored_total",
			Help:      "Envelopes skipped without an apply.",
		}, []string{"direction", "reason"}),
		applied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_applied_total",
			Help:      "Envelopes applied to the target schema.",
		}, []string{"direction", "aggregate_type"}),
		failed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_failed_total",
			Help:      "Envelopes whose apply failed after retries.",
		}, []string{"direction", "aggregate_type"}),
		deferred: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "envelopes_deferred",
			Help:      "Envelopes carried into the next pass.",
		}, []string{"direction"}),
		resolved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dependencies_resolved_total",
			Help:      "Dependency checks by the source that satisfied them.",
		}, []string{"direction", "source"}),
	}
}

func (p *Processor) Received(direction events.Direction) {
	p.received.WithLabelValues(string(direction)).Inc()
}

func (p *Processor) Ignored(direction events.Direction, reason string) {
	p.ignored.WithLabelValues(string(direction), reason).Inc()
}

func (p *Processor) Applied(direction events.Direction, aggregate events.AggregateType) {
	p.applied.WithLabelValues(string(direction), string(aggregate)).Inc()
}

func (p *Processor) Failed(direction events.Direction, aggregate events.AggregateType) {
	p.failed.WithLabelValues(string(direction), string(aggregate)).Inc()
}

func (p *Processor) Deferred(direction events.Direction, pending int) {
	p.deferred.WithLabelValues(string(direction)).Set(float64(pending))
}

func (p *Processor) Resolved(direction events.Direction, source string) {
	p.resolved.WithLabelValues(string(direction), source).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Processor) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
