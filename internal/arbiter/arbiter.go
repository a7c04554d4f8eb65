// Package arbiter guards reply generation for one voice session.
//
// The upstream speech model and the conversation flow can both want to speak
// after a user utterance. The arbiter serializes them with a single
// ResponseOwnership flag: true while the orchestrator is driving a reply
// through the session, false while the upstream model is permitted to answer
// autonomously.
//
// The ordering rule that makes this race-free: BeginTurn — which cancels any
// autonomous reply already being generated — runs before intent
// classification starts, never after. Reordering these reintroduces the race
// where the model starts speaking over the flow's own reply.
package arbiter

import (
	"log/slog"
	"sync/atomic"
)

// Canceller aborts the upstream model's in-flight reply. Satisfied by
// realtime.SessionHandle.
type Canceller interface {
	CancelResponse() error
}

// Option is a functional option for configuring an Arbiter.
type Option func(*Arbiter)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Arbiter) { a.log = log }
}

// Arbiter is the per-session response-ownership gate. The flag flips only at
// turn boundaries; reads from the audio path are safe without further
// synchronization.
type Arbiter struct {
	owned     atomic.Bool
	canceller Canceller
	log       *slog.Logger
}

// New creates an Arbiter for one session. Ownership starts false: at rest,
// nobody is speaking.
func New(canceller Canceller, opts ...Option) *Arbiter {
	a := &Arbiter{
		canceller: canceller,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// BeginTurn prepares a newly finalized user utterance for intent handling.
// If ownership is not held, any reply the model may already have started is
// cancelled, closing the race where the model begins speaking before the
// flow has decided whether it wants the turn. A reply the orchestrator
// itself requested is never cancelled.
//
// Must be called before classification starts.
func (a *Arbiter) BeginTurn() {
	if a.owned.Load() {
		return
	}
	if err := a.canceller.CancelResponse(); err != nil {
		// Best effort: some providers cannot cancel, and cancelling when
		// nothing is in flight is harmless.
		a.log.Debug("cancel autonomous reply", "error", err)
	}
}

// Acquire marks the orchestrator as owner of the next spoken reply. Called
// when the flow decides to speak, before the reply text is pushed upstream.
func (a *Arbiter) Acquire() {
	a.owned.Store(true)
}

// Release returns ownership after a reply completes or is cancelled.
func (a *Arbiter) Release() {
	a.owned.Store(false)
}

// Owned reports whether the orchestrator currently owns reply generation.
func (a *Arbiter) Owned() bool {
	return a.owned.Load()
}
