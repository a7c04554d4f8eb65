// Package realtime defines the Provider interface for upstream conversational
// speech services.
//
// A realtime provider wraps a speech-to-speech model exposed over a stateful
// duplex connection: it accepts streamed PCM16 audio, recognises user speech,
// and synthesises spoken replies. The central abstraction is SessionHandle,
// a bidirectional, multiplexed channel carrying audio one way and a stream of
// [Event] values the other.
//
// Unlike a plain voice-chat integration, the orchestrator takes manual control
// of reply generation: sessions are always opened with automatic replies
// disabled, and the caller decides per turn whether to trigger the model's own
// answer ([SessionHandle.CreateResponse]), dictate the exact reply text
// ([SessionHandle.SpeakText]), or abort an in-flight reply
// ([SessionHandle.CancelResponse]).
//
// All implementations must be safe for concurrent use.
package realtime

import "context"

// EventKind enumerates the event types a session emits.
type EventKind int

const (
	// EventUserTranscriptFinal carries the finalized transcript of one user
	// utterance. This is the trigger for intent processing.
	EventUserTranscriptFinal EventKind = iota

	// EventAssistantTranscriptDelta carries an incremental fragment of the
	// assistant's spoken reply text.
	EventAssistantTranscriptDelta

	// EventAssistantTranscriptFinal carries the complete text of one assistant
	// reply, emitted when synthesis of that reply finishes.
	EventAssistantTranscriptFinal

	// EventResponseStarted signals that the model has begun generating a reply.
	EventResponseStarted

	// EventResponseCompleted signals that the current reply finished or was
	// cancelled. No further audio for that reply will arrive.
	EventResponseCompleted

	// EventSessionError carries a non-fatal error reported by the provider.
	EventSessionError
)

// String returns the event kind's wire-log name.
func (k EventKind) String() string {
	switch k {
	case EventUserTranscriptFinal:
		return "user_transcript_final"
	case EventAssistantTranscriptDelta:
		return "assistant_transcript_delta"
	case EventAssistantTranscriptFinal:
		return "assistant_transcript_final"
	case EventResponseStarted:
		return "response_started"
	case EventResponseCompleted:
		return "response_completed"
	case EventSessionError:
		return "session_error"
	default:
		return "unknown"
	}
}

// Event is a single occurrence on a session's event stream.
type Event struct {
	Kind EventKind

	// Text holds transcript content for the transcript event kinds.
	Text string

	// Err holds the provider error for EventSessionError.
	Err error
}

// SessionConfig is the initial configuration for a new realtime session.
type SessionConfig struct {
	// Voice selects the provider-specific synthesis voice.
	Voice string

	// Instructions is the system-level prompt injected at session start. The
	// orchestrator builds it from the user's policy context.
	Instructions string

	// DisableAutoReply turns off the provider's automatic reply generation on
	// end-of-speech. The orchestrator always sets this: reply timing is owned
	// by the response arbiter, not the model.
	DisableAutoReply bool
}

// SessionHandle represents an open realtime session.
//
// The session is the hot path of the voice bridge — every method must return
// quickly. Audio output and events are channel-based so the caller's pumps
// never block on provider I/O. Consumers must drain Audio and Events promptly;
// backpressure stalls the provider's receive loop.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers a raw PCM16 chunk to the provider. Returns an error
	// if the session is closed or the write fails.
	SendAudio(chunk []byte) error

	// Audio returns a read-only channel emitting raw PCM16 chunks of the
	// model's synthesised speech. Closed when the session ends; check Err
	// afterwards to distinguish clean shutdown from failure.
	Audio() <-chan []byte

	// Events returns a read-only channel of session events. Closed together
	// with Audio when the session ends.
	Events() <-chan Event

	// SpeakText instructs the model to speak exactly text as its next reply.
	// Used for flow-owned replies where the wording is decided locally.
	SpeakText(text string) error

	// CreateResponse hands the current turn to the model: it generates and
	// speaks its own reply based on the conversation so far.
	CreateResponse() error

	// CancelResponse aborts any reply currently being generated and discards
	// its buffered audio. Calling it with no reply in flight is harmless.
	CancelResponse() error

	// Err returns the error that terminated the session, or nil if it ended
	// cleanly or is still open.
	Err() error

	// Close terminates the session and closes the Audio and Events channels.
	// Safe to call multiple times.
	Close() error
}

// Provider is the abstraction over any realtime speech backend.
type Provider interface {
	// Connect establishes a new session. The returned handle is ready to
	// accept audio immediately. The caller owns the handle and must Close it.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
