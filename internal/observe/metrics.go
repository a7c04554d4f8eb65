// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics and the provider setup that exposes them through a
// Prometheus exporter.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/alfielabs/alfie-voice"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// TurnDuration tracks the time from a finalized user utterance to the
	// flow's decision (reply pushed or turn delegated).
	TurnDuration metric.Float64Histogram

	// ClassifyDuration tracks intent classification latency, remote attempts
	// and fallback included.
	ClassifyDuration metric.Float64Histogram

	// ClassifierFallbacks counts turns resolved by the keyword fallback
	// instead of the remote classifier.
	ClassifierFallbacks metric.Int64Counter

	// QuoteSearches counts quote-search collaborator calls. Use with
	// attribute.String("status", "ok"|"empty"|"error").
	QuoteSearches metric.Int64Counter

	// Purchases counts purchase collaborator calls. Use with
	// attribute.String("status", "ok"|"error").
	Purchases metric.Int64Counter

	// Replies counts spoken replies by owner. Use with
	// attribute.String("owner", "flow"|"model").
	Replies metric.Int64Counter

	// TranscriptWrites counts transcript persistence attempts. Use with
	// attribute.String("status", "ok"|"error").
	TranscriptWrites metric.Int64Counter

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-turn latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TurnDuration, err = m.Float64Histogram("alfievoice.turn.duration",
		metric.WithDescription("Time from finalized utterance to flow decision."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ClassifyDuration, err = m.Float64Histogram("alfievoice.classify.duration",
		metric.WithDescription("Intent classification latency including retries and fallback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ClassifierFallbacks, err = m.Int64Counter("alfievoice.classifier.fallbacks",
		metric.WithDescription("Turns resolved by the keyword fallback classifier."),
	); err != nil {
		return nil, err
	}
	if met.QuoteSearches, err = m.Int64Counter("alfievoice.quote_searches",
		metric.WithDescription("Quote search collaborator calls by status."),
	); err != nil {
		return nil, err
	}
	if met.Purchases, err = m.Int64Counter("alfievoice.purchases",
		metric.WithDescription("Purchase collaborator calls by status."),
	); err != nil {
		return nil, err
	}
	if met.Replies, err = m.Int64Counter("alfievoice.replies",
		metric.WithDescription("Spoken replies by owner (flow or model)."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptWrites, err = m.Int64Counter("alfievoice.transcript.writes",
		metric.WithDescription("Transcript persistence attempts by status."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("alfievoice.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordReply records a spoken reply with its owner.
func (m *Metrics) RecordReply(ctx context.Context, owner string) {
	m.Replies.Add(ctx, 1, metric.WithAttributes(attribute.String("owner", owner)))
}

// RecordStatus increments counter with the standard status attribute.
func RecordStatus(ctx context.Context, counter metric.Int64Counter, status string) {
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
