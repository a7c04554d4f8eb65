package observe_test

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/alfielabs/alfie-voice/internal/observe"
)

func TestNewMetrics_CreatesAllInstruments(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ctx := context.Background()
	m.TurnDuration.Record(ctx, 0.12)
	m.ClassifyDuration.Record(ctx, 0.03)
	m.ClassifierFallbacks.Add(ctx, 1)
	observe.RecordStatus(ctx, m.QuoteSearches, "ok")
	observe.RecordStatus(ctx, m.Purchases, "error")
	m.RecordReply(ctx, "flow")
	observe.RecordStatus(ctx, m.TranscriptWrites, "ok")
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("no metrics collected")
	}

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			names[md.Name] = true
		}
	}
	for _, want := range []string{
		"alfievoice.turn.duration",
		"alfievoice.classify.duration",
		"alfievoice.classifier.fallbacks",
		"alfievoice.quote_searches",
		"alfievoice.purchases",
		"alfievoice.replies",
		"alfievoice.transcript.writes",
		"alfievoice.active_sessions",
	} {
		if !names[want] {
			t.Errorf("metric %s not recorded", want)
		}
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	t.Parallel()

	if observe.DefaultMetrics() != observe.DefaultMetrics() {
		t.Fatal("DefaultMetrics must return a single instance")
	}
}
