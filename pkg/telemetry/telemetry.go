// Package telemetry wires the engine's bounded-concurrency scheduler to
// OpenTelemetry tracing and Prometheus metrics, the observability stack
// every long-running component in this module builds on top of.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "batchengine/scheduler"

// Metrics holds the Prometheus collectors the Scheduler updates on every
// state transition. Each run gets its own registry so concurrent runs in
// the same process (e.g. tests) never collide on collector registration.
type Metrics struct {
	Registry *prometheus.Registry

	ItemsCompleted prometheus.Counter
	ItemsFailed    prometheus.Counter
	ItemsSuspended prometheus.Counter
	InFlight       prometheus.Gauge
	FlushLatency   prometheus.Histogram
}

// NewMetrics creates and registers a fresh metric set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		ItemsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "batchengine_items_completed_total",
			Help: "Items that reached the completed status.",
		}),
		ItemsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "batchengine_items_failed_total",
			Help: "Items that reached terminal failed status (attempts >= max_retries).",
		}),
		ItemsSuspended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "batchengine_items_suspended_total",
			Help: "Items that transitioned to awaiting_agent.",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "batchengine_items_in_flight",
			Help: "Number of items currently in the processing status.",
		}),
		FlushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "batchengine_checkpoint_flush_seconds",
			Help:    "Latency of a single checkpoint Save call.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.ItemsCompleted, m.ItemsFailed, m.ItemsSuspended, m.InFlight, m.FlushLatency)
	return m
}

// Tracer is the tracer the scheduler uses to span each item invocation and
// checkpoint flush. A no-op tracer is used when no SDK provider was
// installed, so telemetry is always safe to call.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// NewTracerProvider builds an in-process SDK tracer provider with no
// exporter attached (sampling everything, recording nothing externally).
// Callers that want real export (OTLP, stdout, etc.) construct their own
// provider and otel.SetTracerProvider it instead; this is a sane default
// for the CLI/tests so spans are at least created and attributed.
func NewTracerProvider() *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider()
}

// StartItemSpan starts a span representing one worker invocation attempt.
// invocationID distinguishes this attempt from any other attempt at the
// same item, independent of the item's stable ID.
func StartItemSpan(ctx context.Context, itemID, invocationID string, attempt int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "batchengine.invoke_item",
		trace.WithAttributes(
			attribute.String("item.id", itemID),
			attribute.String("invocation.id", invocationID),
			attribute.Int("item.attempt", attempt),
		),
	)
}

// StartFlushSpan starts a span representing one checkpoint Save call.
func StartFlushSpan(ctx context.Context) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "batchengine.checkpoint_flush")
}
