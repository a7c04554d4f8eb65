// Package bridge owns the lifetime of one voice session's two duplex legs:
// the client-facing connection and the upstream realtime session.
//
// Audio is passthrough in both directions and never blocks on turn handling.
// Transcript-completion events are the trigger for intent processing; they
// are queued and handled strictly one at a time per session, so a second
// finalized utterance arriving while the first is still being classified or
// acted on waits instead of interleaving state-machine invocations.
//
// If either leg closes or errors, the bridge cancels all in-flight work,
// closes the other leg and returns — no partial session state survives.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alfielabs/alfie-voice/internal/arbiter"
	"github.com/alfielabs/alfie-voice/internal/flow"
	"github.com/alfielabs/alfie-voice/internal/intent"
	"github.com/alfielabs/alfie-voice/internal/observe"
	"github.com/alfielabs/alfie-voice/pkg/provider/realtime"
)

// Compile-time assertion: the bridge is the flow's Speaker.
var _ flow.Speaker = (*Bridge)(nil)

// turnQueueDepth bounds queued transcript-completion events. Normal
// turn-taking never queues more than one; the headroom guards against an
// upstream that finalizes several utterances in a burst.
const turnQueueDepth = 4

// replyWaitTimeout bounds how long a flow reply waits for the previous
// reply's completion event before cancelling it. Flow replies are one or two
// short sentences; anything still synthesizing after this long is stuck.
const replyWaitTimeout = 15 * time.Second

// ClientConn is the client-facing leg of the bridge.
type ClientConn interface {
	// ReadAudio blocks until the next inbound PCM16 frame arrives. It
	// returns an error when the client disconnects or ctx is cancelled.
	ReadAudio(ctx context.Context) ([]byte, error)

	// WriteAudio delivers a synthesized PCM16 chunk to the client.
	WriteAudio(pcm []byte) error

	// Close terminates the connection. Safe to call multiple times.
	Close() error
}

// TranscriptSink persists completed transcript pairs. Failures are logged
// and never tear down the session.
type TranscriptSink interface {
	Save(ctx context.Context, userID, role, text string) error
}

// Option is a functional option for configuring a Bridge.
type Option func(*Bridge)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(b *Bridge) { b.log = log }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithReplyTimeout overrides how long a queued flow reply waits for the
// previous reply to finish synthesizing. Primarily used in tests.
func WithReplyTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.replyWait = d }
}

// Bridge runs one voice session.
type Bridge struct {
	client   ClientConn
	upstream realtime.SessionHandle

	classifier *intent.Classifier
	machine    *flow.Machine
	arb        *arbiter.Arbiter
	sess       *flow.Session
	sink       TranscriptSink

	buf    transcriptionBuffer
	turnCh chan string

	// replyDone signals the completion of a flow-owned reply; Speak waits on
	// it before pushing the next one, so at most one reply is ever in flight.
	replyDone chan struct{}
	replyWait time.Duration

	// runCtx is the errgroup context set by Run; Speak aborts its completion
	// wait when the session is tearing down.
	runCtx context.Context

	metrics *observe.Metrics
	log     *slog.Logger
}

// New creates a Bridge for one established session pair. The caller retains
// no responsibility for closing either leg: Run closes both on exit.
func New(
	client ClientConn,
	upstream realtime.SessionHandle,
	classifier *intent.Classifier,
	machine *flow.Machine,
	sess *flow.Session,
	sink TranscriptSink,
	opts ...Option,
) *Bridge {
	b := &Bridge{
		client:     client,
		upstream:   upstream,
		classifier: classifier,
		machine:    machine,
		sess:       sess,
		sink:       sink,
		turnCh:     make(chan string, turnQueueDepth),
		replyDone:  make(chan struct{}, 1),
		replyWait:  replyWaitTimeout,
		runCtx:     context.Background(),
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	b.arb = arbiter.New(upstream, arbiter.WithLogger(b.log))
	return b
}

// Run drives the session until either leg closes, errors, or ctx is
// cancelled. It always tears down both legs before returning.
func (b *Bridge) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	b.runCtx = ctx

	g.Go(func() error { return b.pumpClientAudio(ctx) })
	g.Go(func() error { return b.pumpUpstreamAudio(ctx) })
	g.Go(func() error { return b.eventLoop(ctx) })
	g.Go(func() error { return b.turnLoop(ctx) })

	err := g.Wait()

	// Best-effort cleanup: both legs, always.
	if cerr := b.upstream.Close(); cerr != nil {
		b.log.Debug("close upstream session", "error", cerr)
	}
	if cerr := b.client.Close(); cerr != nil {
		b.log.Debug("close client connection", "error", cerr)
	}

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("bridge: session %s: %w", b.sess.ID, err)
	}
	return err
}

// pumpClientAudio forwards inbound client frames to the upstream session,
// one frame at a time, no intermediate buffering.
func (b *Bridge) pumpClientAudio(ctx context.Context) error {
	for {
		pcm, err := b.client.ReadAudio(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("client audio read: %w", err)
		}
		if len(pcm) == 0 {
			continue
		}
		if err := b.upstream.SendAudio(pcm); err != nil {
			return fmt.Errorf("upstream audio send: %w", err)
		}
	}
}

// pumpUpstreamAudio forwards the model's synthesized audio to the client.
func (b *Bridge) pumpUpstreamAudio(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pcm, ok := <-b.upstream.Audio():
			if !ok {
				if err := b.upstream.Err(); err != nil {
					return fmt.Errorf("upstream session: %w", err)
				}
				return fmt.Errorf("upstream session closed")
			}
			if err := b.client.WriteAudio(pcm); err != nil {
				return fmt.Errorf("client audio write: %w", err)
			}
		}
	}
}

// eventLoop dispatches upstream session events: transcript accumulation and
// persistence, turn queuing, and response-ownership release.
func (b *Bridge) eventLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-b.upstream.Events():
			if !ok {
				return nil // audio pump reports the closure
			}
			b.handleEvent(ctx, evt)
		}
	}
}

func (b *Bridge) handleEvent(ctx context.Context, evt realtime.Event) {
	switch evt.Kind {
	case realtime.EventUserTranscriptFinal:
		if evt.Text == "" {
			return
		}
		select {
		case b.turnCh <- evt.Text:
		default:
			b.log.Warn("turn queue full, dropping utterance", "session_id", b.sess.ID)
		}

	case realtime.EventAssistantTranscriptDelta:
		b.buf.appendAssistant(evt.Text)

	case realtime.EventAssistantTranscriptFinal:
		b.buf.setAssistant(evt.Text)
		b.persistPair(ctx)

	case realtime.EventResponseStarted:
		if !b.arb.Owned() {
			// Autonomous reply. Left alone for now: if the user speaks
			// before it finishes, BeginTurn cancels it.
			b.log.Debug("model reply started autonomously", "session_id", b.sess.ID)
		}

	case realtime.EventResponseCompleted:
		wasOwned := b.arb.Owned()
		b.arb.Release()
		if wasOwned {
			// Wake a Speak waiting to push the next flow reply.
			select {
			case b.replyDone <- struct{}{}:
			default:
			}
		}

	case realtime.EventSessionError:
		b.log.Warn("upstream session error", "session_id", b.sess.ID, "error", evt.Err)
	}
}

// turnLoop serializes intent handling: one finalized utterance at a time.
func (b *Bridge) turnLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case utterance := <-b.turnCh:
			b.handleTurn(ctx, utterance)
		}
	}
}

// handleTurn runs one full turn: cancel any autonomous reply, classify,
// apply the state machine, and delegate back to the model when the flow
// does not claim the turn.
//
// Ordering matters: BeginTurn runs before classification starts, so the
// model can never keep speaking over a reply the flow decides to own.
func (b *Bridge) handleTurn(ctx context.Context, utterance string) {
	start := time.Now()
	b.buf.setUser(utterance)

	b.arb.BeginTurn()

	classifyStart := time.Now()
	it := b.classifier.Classify(ctx, utterance, b.sess.InsurerNames())
	b.metrics.ClassifyDuration.Record(ctx, time.Since(classifyStart).Seconds())

	outcome := b.machine.HandleIntent(ctx, b.sess, it, b)
	if outcome == flow.NotHandled {
		if err := b.upstream.CreateResponse(); err != nil {
			b.log.Warn("delegate reply to model", "session_id", b.sess.ID, "error", err)
		} else {
			b.metrics.RecordReply(ctx, "model")
		}
	}

	b.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	b.log.Info("turn handled",
		"session_id", b.sess.ID,
		"intent", it.Kind.String(),
		"state", b.sess.State.String(),
		"owned", outcome == flow.Handled,
	)
}

// Speak implements flow.Speaker: it acquires response ownership and pushes
// the reply text upstream for synthesis. Ownership is released by the
// response-completed event, or immediately if the push fails.
//
// A reply still in flight is waited out first: issuing a second synthesis
// request while one is active makes the upstream reject it, losing the reply.
func (b *Bridge) Speak(text string) error {
	if err := b.awaitPriorReply(); err != nil {
		return fmt.Errorf("speak: %w", err)
	}
	b.arb.Acquire()
	if err := b.upstream.SpeakText(text); err != nil {
		b.arb.Release()
		return fmt.Errorf("speak: %w", err)
	}
	b.metrics.RecordReply(context.Background(), "flow")
	return nil
}

// awaitPriorReply blocks until the flow-owned reply currently being
// synthesized, if any, has completed. A reply that never completes within the
// wait bound is cancelled so the next one is not rejected as concurrent.
func (b *Bridge) awaitPriorReply() error {
	if !b.arb.Owned() {
		return nil
	}

	timer := time.NewTimer(b.replyWait)
	defer timer.Stop()
	for {
		select {
		case <-b.runCtx.Done():
			return b.runCtx.Err()
		case <-b.replyDone:
			// A stale signal can predate this wait; re-check ownership.
			if !b.arb.Owned() {
				return nil
			}
		case <-timer.C:
			b.log.Warn("in-flight reply never completed, cancelling it", "session_id", b.sess.ID)
			if err := b.upstream.CancelResponse(); err != nil {
				b.log.Debug("cancel stalled reply", "error", err)
			}
			b.arb.Release()
			return nil
		}
	}
}

// persistPair saves the completed (user, assistant) pair. Fire-and-forget:
// persistence failure is logged and the session carries on.
func (b *Bridge) persistPair(ctx context.Context) {
	user, assistant, ok := b.buf.takePair()
	if !ok {
		return
	}
	if b.sink == nil {
		return
	}

	status := "ok"
	if err := b.sink.Save(ctx, b.sess.UserID, "user", user); err != nil {
		b.log.Warn("persist user transcript", "session_id", b.sess.ID, "error", err)
		status = "error"
	}
	if err := b.sink.Save(ctx, b.sess.UserID, "assistant", assistant); err != nil {
		b.log.Warn("persist assistant transcript", "session_id", b.sess.ID, "error", err)
		status = "error"
	}
	observe.RecordStatus(ctx, b.metrics.TranscriptWrites, status)
}
