package intent_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/alfielabs/alfie-voice/internal/insurer"
	"github.com/alfielabs/alfie-voice/internal/intent"
	"github.com/alfielabs/alfie-voice/internal/observe"
	"github.com/alfielabs/alfie-voice/pkg/provider/llm"
)

var knownInsurers = []string{"Admiral", "Aviva", "Direct Line"}

// fakeLLM is a scripted llm.Client for classifier tests.
type fakeLLM struct {
	responses []string
	err       error
	block     bool
	calls     int
}

func (f *fakeLLM) Complete(ctx context.Context, _ llm.Request) (string, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "GeneralChat", nil
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func TestFallback_Kinds(t *testing.T) {
	t.Parallel()

	c := intent.New(nil, insurer.New())

	tests := []struct {
		utterance string
		want      intent.Kind
	}{
		{"find me quotes for my car", intent.QuoteSearch},
		{"I need insurance for my Ford", intent.QuoteSearch},
		{"how much is a premium these days", intent.QuoteSearch},
		{"yes", intent.Confirmation},
		{"sounds good", intent.Confirmation},
		{"no, just go ahead", intent.Confirmation},
		{"no go ahead", intent.Confirmation},
		{"no", intent.Cancellation},
		{"never mind", intent.Cancellation},
		{"cancel that", intent.Cancellation},
		{"go with Admiral", intent.InsurerSelection},
		{"the first one", intent.InsurerSelection},
		{"let's take the cheapest", intent.InsurerSelection},
		{"what's the weather like", intent.GeneralChat},
		{"", intent.GeneralChat},
		{"nothing much", intent.GeneralChat},
	}
	for _, tt := range tests {
		got := c.Fallback(tt.utterance, knownInsurers)
		if got.Kind != tt.want {
			t.Errorf("Fallback(%q): want %v, got %v", tt.utterance, tt.want, got.Kind)
		}
		if got.RawText != tt.utterance {
			t.Errorf("Fallback(%q): raw text not preserved", tt.utterance)
		}
	}
}

func TestFallback_NegatedPositiveBeatsPlainNegation(t *testing.T) {
	t.Parallel()

	c := intent.New(nil, insurer.New())

	// The leading negation token must not shadow the positive action that
	// follows it.
	for _, utterance := range []string{
		"no, just go ahead",
		"no go ahead and buy it",
		"nope, proceed",
	} {
		if got := c.Fallback(utterance, nil); got.Kind != intent.Confirmation {
			t.Errorf("Fallback(%q): want Confirmation, got %v", utterance, got.Kind)
		}
	}
}

func TestFallback_InsurerHint(t *testing.T) {
	t.Parallel()

	c := intent.New(nil, insurer.New())

	got := c.Fallback("go with admiral", knownInsurers)
	if got.Kind != intent.InsurerSelection {
		t.Fatalf("want InsurerSelection, got %v", got.Kind)
	}
	if got.InsurerHint != "Admiral" {
		t.Fatalf("want hint Admiral, got %q", got.InsurerHint)
	}
}

func TestClassify_RemoteResultWins(t *testing.T) {
	t.Parallel()

	remote := &fakeLLM{responses: []string{"InsurerSelection"}}
	c := intent.New(remote, insurer.New())

	got := c.Classify(context.Background(), "go with admirul", knownInsurers)
	if got.Kind != intent.InsurerSelection {
		t.Fatalf("want InsurerSelection, got %v", got.Kind)
	}
	if got.InsurerHint != "Admiral" {
		t.Fatalf("want phonetic hint Admiral, got %q", got.InsurerHint)
	}
	if remote.calls != 1 {
		t.Fatalf("want 1 remote call, got %d", remote.calls)
	}
}

func TestClassify_TimeoutTwiceUsesFallback(t *testing.T) {
	t.Parallel()

	remote := &fakeLLM{block: true}
	c := intent.New(remote, insurer.New(), intent.WithTimeout(20*time.Millisecond))

	start := time.Now()
	got := c.Classify(context.Background(), "find me quotes for my car", knownInsurers)
	elapsed := time.Since(start)

	if got.Kind != intent.QuoteSearch {
		t.Fatalf("want fallback QuoteSearch, got %v", got.Kind)
	}
	if remote.calls != 2 {
		t.Fatalf("want exactly 2 remote attempts, got %d", remote.calls)
	}
	// Two bounded attempts plus jitter must not hang the turn.
	if elapsed > 2*time.Second {
		t.Fatalf("classification took too long: %v", elapsed)
	}
}

func TestClassify_UnparseableLabelUsesFallback(t *testing.T) {
	t.Parallel()

	remote := &fakeLLM{responses: []string{"Banana", "also not a label"}}
	c := intent.New(remote, insurer.New())

	got := c.Classify(context.Background(), "yes", knownInsurers)
	if got.Kind != intent.Confirmation {
		t.Fatalf("want fallback Confirmation, got %v", got.Kind)
	}
}

func TestClassify_RemoteErrorRetriesOnce(t *testing.T) {
	t.Parallel()

	remote := &fakeLLM{err: errors.New("boom")}
	c := intent.New(remote, insurer.New())

	got := c.Classify(context.Background(), "no", knownInsurers)
	if got.Kind != intent.Cancellation {
		t.Fatalf("want fallback Cancellation, got %v", got.Kind)
	}
	if remote.calls != 2 {
		t.Fatalf("want 2 remote attempts before fallback, got %d", remote.calls)
	}
}

func TestClassify_FallbackIsCounted(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	remote := &fakeLLM{err: errors.New("boom")}
	c := intent.New(remote, insurer.New(), intent.WithMetrics(metrics))

	// One failed remote classification, one that succeeds.
	c.Classify(context.Background(), "no", knownInsurers)
	remote.err = nil
	remote.responses = []string{"QuoteSearch"}
	c.Classify(context.Background(), "find me quotes", knownInsurers)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "alfievoice.classifier.fallbacks" {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", md.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	if total != 1 {
		t.Fatalf("classifier fallbacks = %d, want 1", total)
	}
}

func TestContainsPhrase_WordBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		s, phrase string
		want      bool
	}{
		{"the top one", "top", true},
		{"please stop", "top", false},
		{"the best one", "best", true},
		{"bestow my regards", "best", false},
		{"number two", "number two", true},
		{"no thanks", "no", true},
		{"nothing much", "no", false},
	}
	for _, tt := range tests {
		if got := intent.ContainsPhrase(tt.s, tt.phrase); got != tt.want {
			t.Errorf("ContainsPhrase(%q, %q) = %v, want %v", tt.s, tt.phrase, got, tt.want)
		}
	}

	if !intent.ContainsAnyPhrase("take the cheapest", "best", "cheapest") {
		t.Error("ContainsAnyPhrase should match cheapest")
	}
	if intent.ContainsAnyPhrase("bestow", "best", "top") {
		t.Error("ContainsAnyPhrase must not match inside words")
	}
}

func TestKindString(t *testing.T) {
	t.Parallel()

	cases := map[intent.Kind]string{
		intent.QuoteSearch:      "QuoteSearch",
		intent.InsurerSelection: "InsurerSelection",
		intent.Confirmation:     "Confirmation",
		intent.Cancellation:     "Cancellation",
		intent.GeneralChat:      "GeneralChat",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("%d.String(): want %s, got %s", k, want, got)
		}
	}
}
