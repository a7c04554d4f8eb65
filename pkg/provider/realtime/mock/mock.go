// Package mock provides a recording mock implementation of the realtime
// provider interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/alfielabs/alfie-voice/pkg/provider/realtime"
)

// Compile-time assertions.
var _ realtime.Provider = (*Provider)(nil)
var _ realtime.SessionHandle = (*Session)(nil)

// Provider is a mock realtime.Provider that records Connect calls and hands
// out pre-configured sessions.
type Provider struct {
	mu sync.Mutex

	// ConnectCalls records the configurations passed to Connect.
	ConnectCalls []realtime.SessionConfig

	// ConnectErr, when non-nil, is returned by Connect instead of a session.
	ConnectErr error

	// Sessions holds the sessions handed out, in order. If empty when Connect
	// is called, a fresh NewSession() is created and recorded.
	Sessions []*Session

	next int
}

// Connect records the call and returns the next configured session.
func (p *Provider) Connect(_ context.Context, cfg realtime.SessionConfig) (realtime.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ConnectCalls = append(p.ConnectCalls, cfg)
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}

	if p.next < len(p.Sessions) {
		s := p.Sessions[p.next]
		p.next++
		return s, nil
	}
	s := NewSession()
	p.Sessions = append(p.Sessions, s)
	p.next = len(p.Sessions)
	return s, nil
}

// Reset clears all recorded calls and handed-out sessions.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = nil
	p.ConnectErr = nil
	p.Sessions = nil
	p.next = 0
}

// Session is a mock realtime.SessionHandle. Tests feed model output through
// AudioCh and EventsCh and inspect the recorded calls afterwards.
type Session struct {
	mu sync.Mutex

	// AudioCh is the channel returned by Audio. Tests write synthesized audio
	// here and close it to end the session.
	AudioCh chan []byte

	// EventsCh is the channel returned by Events.
	EventsCh chan realtime.Event

	// SendAudioCalls records every chunk passed to SendAudio.
	SendAudioCalls [][]byte

	// SpeakTextCalls records every text passed to SpeakText.
	SpeakTextCalls []string

	// CreateResponseCalls counts CreateResponse invocations.
	CreateResponseCalls int

	// CancelResponseCalls counts CancelResponse invocations.
	CancelResponseCalls int

	// SendAudioErr, when non-nil, is returned by SendAudio.
	SendAudioErr error

	// SpeakTextErr, when non-nil, is returned by SpeakText.
	SpeakTextErr error

	// CancelResponseErr, when non-nil, is returned by CancelResponse.
	CancelResponseErr error

	// ManualCompletion suppresses the EventResponseCompleted that SpeakText
	// and CreateResponse otherwise emit after recording the call. Tests that
	// control completion timing themselves set it before driving the session.
	ManualCompletion bool

	// ErrVal is returned by Err.
	ErrVal error

	// Closed reports whether Close has been called.
	Closed bool

	closeOnce sync.Once
}

// NewSession creates a mock session with buffered audio and event channels.
func NewSession() *Session {
	return &Session{
		AudioCh:  make(chan []byte, 64),
		EventsCh: make(chan realtime.Event, 64),
	}
}

// SendAudio records the chunk.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, cp)
	return s.SendAudioErr
}

// Audio returns AudioCh.
func (s *Session) Audio() <-chan []byte { return s.AudioCh }

// Events returns EventsCh.
func (s *Session) Events() <-chan realtime.Event { return s.EventsCh }

// SpeakText records the text. Unless ManualCompletion is set, a
// response-completed event follows immediately, mirroring an upstream that
// finishes synthesis right away.
func (s *Session) SpeakText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SpeakTextCalls = append(s.SpeakTextCalls, text)
	if s.SpeakTextErr != nil {
		return s.SpeakTextErr
	}
	s.completeResponse()
	return nil
}

// CreateResponse increments the call counter and, unless ManualCompletion is
// set, emits a response-completed event.
func (s *Session) CreateResponse() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateResponseCalls++
	s.completeResponse()
	return nil
}

// completeResponse emits EventResponseCompleted. Callers hold s.mu.
func (s *Session) completeResponse() {
	if s.ManualCompletion || s.Closed {
		return
	}
	select {
	case s.EventsCh <- realtime.Event{Kind: realtime.EventResponseCompleted}:
	default:
	}
}

// CancelResponse increments the call counter.
func (s *Session) CancelResponse() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CancelResponseCalls++
	return s.CancelResponseErr
}

// Err returns ErrVal.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrVal
}

// Close marks the session closed and closes both channels. Idempotent. The
// channels close under the lock so event emission never races a closing
// channel.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	s.closeOnce.Do(func() {
		close(s.AudioCh)
		close(s.EventsCh)
	})
	return nil
}

// SpeakTexts returns a snapshot copy of SpeakTextCalls.
func (s *Session) SpeakTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.SpeakTextCalls))
	copy(out, s.SpeakTextCalls)
	return out
}

// Cancels returns the current CancelResponseCalls count.
func (s *Session) Cancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CancelResponseCalls
}

// Creates returns the current CreateResponseCalls count.
func (s *Session) Creates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CreateResponseCalls
}

// AudioSent returns the number of recorded SendAudio calls.
func (s *Session) AudioSent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendAudioCalls)
}

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Closed
}
