package bridge_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/alfielabs/alfie-voice/internal/bridge"
	"github.com/alfielabs/alfie-voice/internal/flow"
	"github.com/alfielabs/alfie-voice/internal/insurer"
	"github.com/alfielabs/alfie-voice/internal/intent"
	"github.com/alfielabs/alfie-voice/internal/observe"
	purchasemock "github.com/alfielabs/alfie-voice/internal/purchase/mock"
	"github.com/alfielabs/alfie-voice/pkg/provider/realtime"
	realtimemock "github.com/alfielabs/alfie-voice/pkg/provider/realtime/mock"
	"github.com/alfielabs/alfie-voice/pkg/quotes"
)

// fakeClient is an in-memory ClientConn.
type fakeClient struct {
	in chan []byte

	mu      sync.Mutex
	written [][]byte
	closed  bool

	closeOnce sync.Once
}

func newFakeClient() *fakeClient {
	return &fakeClient{in: make(chan []byte, 16)}
}

func (c *fakeClient) ReadAudio(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case pcm, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}
		return pcm, nil
	}
}

func (c *fakeClient) WriteAudio(pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, pcm)
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.in) })
	return nil
}

func (c *fakeClient) writtenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

// fakeSink records transcript saves.
type fakeSink struct {
	mu    sync.Mutex
	saves []savedEntry
}

type savedEntry struct {
	userID, role, text string
}

func (s *fakeSink) Save(_ context.Context, userID, role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, savedEntry{userID, role, text})
	return nil
}

func (s *fakeSink) entries() []savedEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]savedEntry, len(s.saves))
	copy(out, s.saves)
	return out
}

// fakeSearcher returns scripted quotes.
type fakeSearcher struct {
	results []quotes.Result
}

func (f *fakeSearcher) Search(context.Context, string) ([]quotes.Result, error) {
	return f.results, nil
}

var testQuotes = []quotes.Result{
	{InsurerName: "Admiral", AnnualCost: 420.50, FitScore: 0.9},
	{InsurerName: "Aviva", AnnualCost: 465, FitScore: 0.8},
	{InsurerName: "Direct Line", AnnualCost: 510, FitScore: 0.7},
}

// harness bundles one running bridge with its doubles.
type harness struct {
	client   *fakeClient
	upstream *realtimemock.Session
	sink     *fakeSink
	sess     *flow.Session

	cancel context.CancelFunc
	done   chan error
}

func newHarness(t *testing.T, opts ...bridge.Option) *harness {
	t.Helper()

	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	h := &harness{
		client:   newFakeClient(),
		upstream: realtimemock.NewSession(),
		sink:     &fakeSink{},
		sess:     flow.NewSession("s1", "u1"),
		done:     make(chan error, 1),
	}

	matcher := insurer.New()
	classifier := intent.New(nil, matcher) // fallback only: deterministic and fast
	machine := flow.NewMachine(&fakeSearcher{results: testQuotes}, &purchasemock.Purchaser{}, matcher)

	opts = append([]bridge.Option{bridge.WithMetrics(metrics)}, opts...)
	b := bridge.New(h.client, h.upstream, classifier, machine, h.sess, h.sink, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- b.Run(ctx); close(h.done) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Error("bridge did not stop")
		}
	})
	return h
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) sayFinal(text string) {
	h.upstream.EventsCh <- realtime.Event{Kind: realtime.EventUserTranscriptFinal, Text: text}
}

func TestBridge_ForwardsClientAudioUpstream(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	h.client.in <- []byte{1, 2, 3, 4}
	h.client.in <- []byte{5, 6}

	waitFor(t, "upstream audio", func() bool { return h.upstream.AudioSent() == 2 })
}

func TestBridge_ForwardsUpstreamAudioToClient(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	h.upstream.AudioCh <- []byte{9, 9}
	h.upstream.AudioCh <- []byte{8, 8}

	waitFor(t, "client audio", func() bool { return h.client.writtenCount() == 2 })
}

func TestBridge_FlowOwnedTurn(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	h.sayFinal("find me quotes for my car")

	// Cancel-before-classify: the autonomous reply is cancelled first, then
	// the flow speaks its acknowledgement and summary.
	waitFor(t, "flow replies", func() bool { return len(h.upstream.SpeakTexts()) >= 2 })
	if h.upstream.Cancels() != 1 {
		t.Fatalf("want 1 cancel before classification, got %d", h.upstream.Cancels())
	}
	if h.upstream.Creates() != 0 {
		t.Fatalf("flow-owned turn must not delegate to the model, got %d creates", h.upstream.Creates())
	}
}

func TestBridge_GeneralChatDelegatesToModel(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	h.sayFinal("how are you today")

	waitFor(t, "delegated reply", func() bool { return h.upstream.Creates() == 1 })
	if texts := h.upstream.SpeakTexts(); len(texts) != 0 {
		t.Fatalf("general chat must not speak a flow reply, got %v", texts)
	}
}

func TestBridge_OwnershipBlocksCancelUntilCompletion(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.upstream.ManualCompletion = true

	// Turn 1: the flow acknowledges, and the summary waits for the
	// acknowledgement's completion before going out.
	h.sayFinal("find me quotes for my car")
	waitFor(t, "acknowledgement", func() bool { return len(h.upstream.SpeakTexts()) == 1 })
	h.upstream.EventsCh <- realtime.Event{Kind: realtime.EventResponseCompleted}
	waitFor(t, "quote summary", func() bool { return len(h.upstream.SpeakTexts()) == 2 })
	cancelsAfterTurn1 := h.upstream.Cancels()

	// Turn 2 while the summary is still synthesizing: BeginTurn must not
	// cancel the orchestrator's own in-flight reply.
	h.sayFinal("how are you today")
	waitFor(t, "delegated reply", func() bool { return h.upstream.Creates() == 1 })
	if got := h.upstream.Cancels(); got != cancelsAfterTurn1 {
		t.Fatalf("owned reply was cancelled: %d → %d", cancelsAfterTurn1, got)
	}

	// Completion releases ownership; the next turn cancels again.
	h.upstream.EventsCh <- realtime.Event{Kind: realtime.EventResponseCompleted}
	h.sayFinal("actually never mind")
	waitFor(t, "cancel after release", func() bool {
		return h.upstream.Cancels() == cancelsAfterTurn1+1
	})
}

func TestBridge_SecondReplyWaitsForFirstToComplete(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.upstream.ManualCompletion = true

	// A quote search speaks twice: acknowledgement, then the summary. The
	// summary must not be pushed while the acknowledgement is synthesizing.
	h.sayFinal("find me quotes for my car")
	waitFor(t, "acknowledgement", func() bool { return len(h.upstream.SpeakTexts()) == 1 })

	time.Sleep(100 * time.Millisecond)
	if got := len(h.upstream.SpeakTexts()); got != 1 {
		t.Fatalf("second reply pushed while the first was in flight: %d replies", got)
	}

	h.upstream.EventsCh <- realtime.Event{Kind: realtime.EventResponseCompleted}
	waitFor(t, "quote summary", func() bool { return len(h.upstream.SpeakTexts()) == 2 })
}

func TestBridge_CancelsStalledReplyAfterTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, bridge.WithReplyTimeout(50*time.Millisecond))
	h.upstream.ManualCompletion = true

	// The acknowledgement never completes; after the wait bound it is
	// cancelled so the summary still reaches the user.
	h.sayFinal("find me quotes for my car")
	waitFor(t, "quote summary", func() bool { return len(h.upstream.SpeakTexts()) == 2 })

	// One cancel from BeginTurn, one for the stalled acknowledgement.
	if got := h.upstream.Cancels(); got != 2 {
		t.Fatalf("cancels = %d, want 2", got)
	}
}

func TestBridge_PersistsCompletedPairsOnly(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	// Assistant text without a user utterance: never persisted.
	h.upstream.EventsCh <- realtime.Event{Kind: realtime.EventAssistantTranscriptFinal, Text: "hello there"}

	// A full turn: user utterance, assistant deltas, assistant final.
	h.sayFinal("how are you today")
	h.upstream.EventsCh <- realtime.Event{Kind: realtime.EventAssistantTranscriptDelta, Text: "I'm "}
	h.upstream.EventsCh <- realtime.Event{Kind: realtime.EventAssistantTranscriptDelta, Text: "great"}
	h.upstream.EventsCh <- realtime.Event{Kind: realtime.EventAssistantTranscriptFinal, Text: "I'm great, thanks for asking!"}

	waitFor(t, "persisted pair", func() bool { return len(h.sink.entries()) == 2 })

	entries := h.sink.entries()
	if entries[0].role != "user" || entries[0].text != "how are you today" {
		t.Fatalf("unexpected user entry: %+v", entries[0])
	}
	if entries[1].role != "assistant" || entries[1].text != "I'm great, thanks for asking!" {
		t.Fatalf("unexpected assistant entry: %+v", entries[1])
	}
	if entries[0].userID != "u1" {
		t.Fatalf("wrong user id: %+v", entries[0])
	}
}

func TestBridge_ClientCloseTearsDownUpstream(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	h.client.Close()

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop after client close")
	}

	if !h.upstream.IsClosed() {
		t.Fatal("upstream session not closed on teardown")
	}
}
