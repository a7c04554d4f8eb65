// Package openai implements the realtime.Provider interface for OpenAI's
// Realtime API.
//
// It establishes a bidirectional WebSocket connection to the Realtime endpoint
// and exchanges JSON events according to the Realtime API protocol. Audio is
// transmitted as base64-encoded PCM16 chunks. Sessions are opened with
// server-side VAD but with automatic response creation disabled, so the caller
// controls reply generation through SpeakText / CreateResponse /
// CancelResponse.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/alfielabs/alfie-voice/pkg/provider/realtime"
)

// Compile-time assertions that Provider and session satisfy the realtime interfaces.
var _ realtime.Provider = (*Provider)(nil)
var _ realtime.SessionHandle = (*session)(nil)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"

	// transcriptionModel transcribes user speech so that finalized user
	// utterances are surfaced as events.
	transcriptionModel = "whisper-1"
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the OpenAI model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements realtime.Provider for OpenAI's Realtime API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a new OpenAI Realtime Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect establishes a new OpenAI Realtime session with the given
// configuration. The returned SessionHandle is ready to accept audio
// immediately after the session.update message is sent.
func (p *Provider) Connect(ctx context.Context, cfg realtime.SessionConfig) (realtime.SessionHandle, error) {
	wsURL := fmt.Sprintf("%s?model=%s", p.baseURL, p.model)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:    conn,
		audioCh: make(chan []byte, 64),
		events:  make(chan realtime.Event, 32),
		ctx:     sessCtx,
		cancel:  sessCancel,
	}

	if err := sess.sendSessionUpdate(cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("openai: session update: %w", err)
	}

	go sess.receiveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice                   string              `json:"voice,omitempty"`
	Instructions            string              `json:"instructions,omitempty"`
	InputAudioFormat        string              `json:"input_audio_format"`
	OutputAudioFormat       string              `json:"output_audio_format"`
	InputAudioTranscription *transcriptionCfg   `json:"input_audio_transcription,omitempty"`
	TurnDetection           *turnDetectionCfg   `json:"turn_detection,omitempty"`
}

type transcriptionCfg struct {
	Model string `json:"model"`
}

type turnDetectionCfg struct {
	Type           string `json:"type"`
	CreateResponse bool   `json:"create_response"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16
}

type responseCreateMessage struct {
	Type     string          `json:"type"`
	Response *responseParams `json:"response,omitempty"`
}

type responseParams struct {
	Instructions string   `json:"instructions,omitempty"`
	Modalities   []string `json:"modalities,omitempty"`
}

// serverErrorDetail represents the nested error object in an OpenAI Realtime
// error event: {"type":"error","error":{"type":"...","code":"...","message":"..."}}.
type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta / response.audio_transcript.delta
	Delta string `json:"delta,omitempty"`

	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn    *websocket.Conn
	audioCh chan []byte
	events  chan realtime.Event

	mu     sync.Mutex
	errVal error
	closed bool

	// currentTxText accumulates response.audio_transcript.delta events until
	// response.audio_transcript.done is received.
	currentTxText string

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSessionUpdate sends a session.update event configuring voice,
// instructions, audio formats, user-speech transcription, and turn detection.
// create_response mirrors the inverse of cfg.DisableAutoReply.
func (s *session) sendSessionUpdate(cfg realtime.SessionConfig) error {
	params := sessionParams{
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		InputAudioTranscription: &transcriptionCfg{
			Model: transcriptionModel,
		},
		TurnDetection: &turnDetectionCfg{
			Type:           "server_vad",
			CreateResponse: !cfg.DisableAutoReply,
		},
	}
	if cfg.Voice != "" {
		params.Voice = cfg.Voice
	}
	if cfg.Instructions != "" {
		params.Instructions = cfg.Instructions
	}
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads events from the WebSocket and dispatches them.
// It owns audioCh and events: it closes both when it exits.
func (s *session) receiveLoop() {
	defer s.closeChannels()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.setErr(err)
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}

		s.handleServerEvent(&evt)
	}
}

func (s *session) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	case "response.audio.delta":
		if evt.Delta == "" {
			return
		}
		audioData, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil || len(audioData) == 0 {
			return
		}
		select {
		case s.audioCh <- audioData:
		case <-s.ctx.Done():
		}

	case "response.audio_transcript.delta":
		if evt.Delta == "" {
			return
		}
		s.mu.Lock()
		s.currentTxText += evt.Delta
		s.mu.Unlock()
		s.emit(realtime.Event{Kind: realtime.EventAssistantTranscriptDelta, Text: evt.Delta})

	case "response.audio_transcript.done":
		s.mu.Lock()
		text := s.currentTxText
		s.currentTxText = ""
		s.mu.Unlock()

		if text == "" {
			return
		}
		s.emit(realtime.Event{Kind: realtime.EventAssistantTranscriptFinal, Text: text})

	case "conversation.item.input_audio_transcription.completed":
		if evt.Transcript == "" {
			return
		}
		s.emit(realtime.Event{Kind: realtime.EventUserTranscriptFinal, Text: evt.Transcript})

	case "response.created":
		s.emit(realtime.Event{Kind: realtime.EventResponseStarted})

	case "response.done":
		s.emit(realtime.Event{Kind: realtime.EventResponseCompleted})

	case "error":
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		s.emit(realtime.Event{Kind: realtime.EventSessionError, Err: fmt.Errorf("openai: %s", msg)})
	}
}

// emit delivers an event unless the session is shutting down.
func (s *session) emit(evt realtime.Event) {
	select {
	case s.events <- evt:
	case <-s.ctx.Done():
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *session) closeChannels() {
	s.closeOnce.Do(func() {
		close(s.audioCh)
		close(s.events)
	})
}

// ── SessionHandle methods ──────────────────────────────────────────────────────

// SendAudio delivers a raw PCM16 audio chunk to the model.
func (s *session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("openai: session closed")
	}
	s.mu.Unlock()

	encoded := base64.StdEncoding.EncodeToString(chunk)
	return s.writeJSON(appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: encoded,
	})
}

// Audio returns the channel on which the model's synthesised audio arrives.
func (s *session) Audio() <-chan []byte { return s.audioCh }

// Events returns the channel on which session events arrive.
func (s *session) Events() <-chan realtime.Event { return s.events }

// Err returns the first non-nil error that caused the session to terminate.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// SpeakText triggers a response whose instructions pin the exact reply text.
func (s *session) SpeakText(text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("openai: session closed")
	}
	s.mu.Unlock()

	return s.writeJSON(responseCreateMessage{
		Type: "response.create",
		Response: &responseParams{
			Instructions: fmt.Sprintf("Say exactly the following, naturally and nothing else: %q", text),
			Modalities:   []string{"audio", "text"},
		},
	})
}

// CreateResponse hands the turn to the model's own reply generation.
func (s *session) CreateResponse() error {
	return s.writeJSON(responseCreateMessage{Type: "response.create"})
}

// CancelResponse sends a response.cancel event to stop the current reply.
func (s *session) CancelResponse() error {
	return s.writeJSON(responseCreateMessage{Type: "response.cancel"})
}

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
