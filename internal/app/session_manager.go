package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alfielabs/alfie-voice/internal/bridge"
	"github.com/alfielabs/alfie-voice/internal/flow"
	"github.com/alfielabs/alfie-voice/internal/insurer"
	"github.com/alfielabs/alfie-voice/internal/intent"
	"github.com/alfielabs/alfie-voice/internal/observe"
	"github.com/alfielabs/alfie-voice/internal/purchase"
	"github.com/alfielabs/alfie-voice/internal/store"
	"github.com/alfielabs/alfie-voice/pkg/provider/realtime"
	"github.com/alfielabs/alfie-voice/pkg/quotes"
)

// baseInstructions is the system prompt every upstream session starts from.
// Reply generation stays under orchestrator control; the model only speaks
// when told to.
const baseInstructions = `You are Alfie, a friendly UK car insurance assistant speaking with a customer
by voice. Keep replies short, natural, and conversational. You help the
customer search insurance quotes, compare insurers, and buy a policy. Never
invent prices or insurer names. When asked something unrelated to insurance,
answer briefly and steer back to the task.`

// SessionInfo holds metadata about one active voice session.
type SessionInfo struct {
	// SessionID uniquely identifies this session.
	SessionID string

	// UserID is the authenticated user the session belongs to.
	UserID string

	// StartedAt is when the session was accepted.
	StartedAt time.Time
}

// SessionManager runs voice sessions. Unlike the HTTP layer it owns the full
// per-session wiring: upstream connection, flow machine, and bridge. Any
// number of sessions may run concurrently, one per connected client.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	provider       realtime.Provider
	classifier     *intent.Classifier
	searcher       quotes.Searcher
	purchaser      purchase.Purchaser
	matcher        *insurer.Matcher
	sink           bridge.TranscriptSink
	policies       PolicyProvider
	metrics        *observe.Metrics
	voice          string
	strictGuidance bool
	log            *slog.Logger

	mu     sync.Mutex
	active map[string]SessionInfo
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Provider       realtime.Provider
	Classifier     *intent.Classifier
	Searcher       quotes.Searcher
	Purchaser      purchase.Purchaser
	Matcher        *insurer.Matcher
	Sink           bridge.TranscriptSink
	Policies       PolicyProvider
	Metrics        *observe.Metrics
	Voice          string
	StrictGuidance bool
	Logger         *slog.Logger
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &SessionManager{
		provider:       cfg.Provider,
		classifier:     cfg.Classifier,
		searcher:       cfg.Searcher,
		purchaser:      cfg.Purchaser,
		matcher:        cfg.Matcher,
		sink:           cfg.Sink,
		policies:       cfg.Policies,
		metrics:        metrics,
		voice:          cfg.Voice,
		strictGuidance: cfg.StrictGuidance,
		log:            log,
		active:         make(map[string]SessionInfo),
	}
}

// Run executes one full voice session over the given client connection and
// blocks until it ends. It connects the upstream provider, assembles the
// per-session flow machine and bridge, and tears everything down on exit.
func (sm *SessionManager) Run(ctx context.Context, userID string, client bridge.ClientConn) error {
	now := time.Now().UTC()
	sessionID := fmt.Sprintf("sess-%s-%s", sanitizeID(userID), now.Format("20060102T150405Z"))
	log := sm.log.With("session_id", sessionID, "user_id", userID)

	// Per-user briefing. Missing context is fine; the session starts cold.
	var pc store.PolicyContext
	if sm.policies != nil {
		var err error
		pc, err = sm.policies.PolicyContext(ctx, userID)
		if err != nil {
			log.Warn("policy context lookup failed", "err", err)
		}
	}

	upstream, err := sm.provider.Connect(ctx, realtime.SessionConfig{
		Voice:            sm.voice,
		Instructions:     buildInstructions(pc),
		DisableAutoReply: true,
	})
	if err != nil {
		client.Close()
		return fmt.Errorf("session %s: connect upstream: %w", sessionID, err)
	}

	var machineOpts []flow.Option
	if sm.strictGuidance {
		machineOpts = append(machineOpts, flow.WithStrictGuidance())
	}
	machineOpts = append(machineOpts, flow.WithLogger(log), flow.WithMetrics(sm.metrics))
	machine := flow.NewMachine(sm.searcher, sm.purchaser, sm.matcher, machineOpts...)

	sess := flow.NewSession(sessionID, userID)
	sess.VehicleReg = pc.VehicleReg

	b := bridge.New(client, upstream, sm.classifier, machine, sess, sm.sink,
		bridge.WithMetrics(sm.metrics),
		bridge.WithLogger(log),
	)

	sm.register(ctx, SessionInfo{SessionID: sessionID, UserID: userID, StartedAt: now})
	defer sm.unregister(ctx, sessionID)

	log.Info("session started")
	err = b.Run(ctx)
	log.Info("session ended", "err", err)
	return err
}

// Active returns a snapshot of the running sessions.
func (sm *SessionManager) Active() []SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make([]SessionInfo, 0, len(sm.active))
	for _, info := range sm.active {
		out = append(out, info)
	}
	return out
}

// Count returns the number of running sessions.
func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.active)
}

func (sm *SessionManager) register(ctx context.Context, info SessionInfo) {
	sm.mu.Lock()
	sm.active[info.SessionID] = info
	sm.mu.Unlock()
	sm.metrics.ActiveSessions.Add(ctx, 1)
}

func (sm *SessionManager) unregister(ctx context.Context, sessionID string) {
	sm.mu.Lock()
	delete(sm.active, sessionID)
	sm.mu.Unlock()
	sm.metrics.ActiveSessions.Add(ctx, -1)
}

// buildInstructions appends the user's policy briefing to the base prompt.
func buildInstructions(pc store.PolicyContext) string {
	var b strings.Builder
	b.WriteString(baseInstructions)
	if pc.VehicleReg != "" {
		b.WriteString("\n\nThe customer's vehicle registration is ")
		b.WriteString(pc.VehicleReg)
		b.WriteString(".")
	}
	if pc.Summary != "" {
		b.WriteString("\n\nCustomer policy context: ")
		b.WriteString(pc.Summary)
	}
	return b.String()
}

// sanitizeID lowercases an identifier and replaces spaces for use in session IDs.
func sanitizeID(id string) string {
	id = strings.ToLower(id)
	id = strings.ReplaceAll(id, " ", "-")
	return id
}
