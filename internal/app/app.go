// Package app wires all orchestrator subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context is cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithSearcher,
// WithTranscriptSink, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alfielabs/alfie-voice/internal/bridge"
	"github.com/alfielabs/alfie-voice/internal/config"
	"github.com/alfielabs/alfie-voice/internal/health"
	"github.com/alfielabs/alfie-voice/internal/insurer"
	"github.com/alfielabs/alfie-voice/internal/intent"
	"github.com/alfielabs/alfie-voice/internal/observe"
	"github.com/alfielabs/alfie-voice/internal/purchase"
	"github.com/alfielabs/alfie-voice/internal/resilience"
	"github.com/alfielabs/alfie-voice/internal/schedule"
	"github.com/alfielabs/alfie-voice/internal/server"
	"github.com/alfielabs/alfie-voice/internal/store"
	"github.com/alfielabs/alfie-voice/pkg/provider/llm"
	"github.com/alfielabs/alfie-voice/pkg/provider/realtime"
	"github.com/alfielabs/alfie-voice/pkg/quotes"
)

// Providers holds the externally-constructed provider implementations.
// Populated by main.go via the config registry.
type Providers struct {
	// Realtime is the upstream speech-to-speech provider. Required.
	Realtime realtime.Provider

	// Classifier is the remote intent-classification LLM. Nil means every
	// utterance is classified by the deterministic keyword fallback.
	Classifier llm.Client

	// Purchaser overrides the Stripe purchaser built from config. Used in
	// tests and for dry-run deployments.
	Purchaser purchase.Purchaser
}

// PolicyProvider looks up the per-user policy briefing injected into the
// upstream session instructions.
type PolicyProvider interface {
	PolicyContext(ctx context.Context, userID string) (store.PolicyContext, error)
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	db        *store.Store
	sink      bridge.TranscriptSink
	policies  PolicyProvider
	searcher  quotes.Searcher
	purchaser purchase.Purchaser
	matcher   *insurer.Matcher
	metrics   *observe.Metrics
	watch     *schedule.Runner
	sessions  *SessionManager
	srv       *server.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSearcher injects a quote searcher instead of the HTTP client built
// from config.
func WithSearcher(s quotes.Searcher) Option {
	return func(a *App) { a.searcher = s }
}

// WithTranscriptSink injects a transcript sink instead of the PostgreSQL store.
func WithTranscriptSink(s bridge.TranscriptSink) Option {
	return func(a *App) { a.sink = s }
}

// WithPolicyProvider injects a policy-context source instead of the
// PostgreSQL store.
func WithPolicyProvider(p PolicyProvider) Option {
	return func(a *App) { a.policies = p }
}

// WithMetrics injects a metrics instance instead of the process-wide default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Realtime == nil {
		return nil, errors.New("app: a realtime provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Storage ───────────────────────────────────────────────────────
	if err := a.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 2. Quote search ──────────────────────────────────────────────────
	if a.searcher == nil {
		a.searcher = resilience.NewSearchGuard(
			quotes.NewClient(cfg.Quotes.BaseURL),
			resilience.BreakerConfig{},
		)
	}

	// ── 3. Purchasing ────────────────────────────────────────────────────
	a.initPurchaser()

	// ── 4. Classification + flow dependencies ────────────────────────────
	a.matcher = insurer.New()
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 5. Session manager ───────────────────────────────────────────────
	a.sessions = NewSessionManager(SessionManagerConfig{
		Provider:       providers.Realtime,
		Classifier:     a.buildClassifier(),
		Searcher:       a.searcher,
		Purchaser:      a.purchaser,
		Matcher:        a.matcher,
		Sink:           a.sink,
		Policies:       a.policies,
		Metrics:        a.metrics,
		Voice:          cfg.Realtime.Voice,
		StrictGuidance: cfg.Flow.StrictGuidance,
	})

	// ── 6. Quote watch ───────────────────────────────────────────────────
	if cfg.Schedule.Enabled {
		watchOpts := []schedule.Option{
			schedule.WithLogger(slog.Default().With("job", "quote watch")),
		}
		if cfg.Schedule.Interval > 0 {
			watchOpts = append(watchOpts, schedule.WithInterval(cfg.Schedule.Interval))
		}
		// The search query sent to the quote service; the preference text
		// doubles as the query when none is configured.
		policyCtx := cfg.Schedule.PolicyContext
		if policyCtx == "" {
			policyCtx = cfg.Schedule.Preferences
		}
		a.watch = schedule.New(a.searcher, policyCtx, cfg.Schedule.Preferences, watchOpts...)
	}

	// ── 7. HTTP server ───────────────────────────────────────────────────
	a.srv = server.New(cfg.Server.ListenAddr, a.sessions.Run, a.serverOptions()...)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStorage connects the PostgreSQL store unless doubles were injected. An
// empty DSN leaves persistence off: sessions run, transcripts are dropped.
func (a *App) initStorage(ctx context.Context) error {
	if a.sink != nil && a.policies != nil {
		return nil // both injected
	}

	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		slog.Warn("storage.postgres_dsn is empty; transcripts and policy contexts disabled")
		return nil
	}

	db, err := store.New(ctx, dsn)
	if err != nil {
		return err
	}
	a.db = db
	if a.sink == nil {
		a.sink = db
	}
	if a.policies == nil {
		a.policies = db
	}

	a.closers = append(a.closers, func() error {
		db.Close()
		return nil
	})
	return nil
}

// initPurchaser picks the purchaser: injected double, Stripe from config, or
// a stub that reports purchasing as unavailable.
func (a *App) initPurchaser() {
	if a.providers.Purchaser != nil {
		a.purchaser = a.providers.Purchaser
		return
	}

	key := a.cfg.Payments.StripeKey
	if key == "" || a.db == nil {
		slog.Warn("purchasing disabled", "stripe_key_set", key != "", "database", a.db != nil)
		a.purchaser = disabledPurchaser{}
		return
	}

	a.purchaser = purchase.NewStripePurchaser(key, a.db.PaymentProfile, slog.Default())
}

// buildClassifier assembles the intent classifier from config.
func (a *App) buildClassifier() *intent.Classifier {
	remote := a.providers.Classifier
	if a.cfg.Classifier.Disabled {
		remote = nil
	}

	opts := []intent.Option{intent.WithMetrics(a.metrics)}
	if a.cfg.Classifier.Timeout > 0 {
		opts = append(opts, intent.WithTimeout(a.cfg.Classifier.Timeout))
	}
	return intent.New(remote, a.matcher, opts...)
}

// serverOptions builds the HTTP server options: health checkers and TLS.
func (a *App) serverOptions() []server.Option {
	var checkers []health.Checker
	if a.db != nil {
		checkers = append(checkers, health.Checker{Name: "database", Check: a.db.Ping})
	}

	opts := []server.Option{server.WithHealth(health.New(checkers...))}
	if tls := a.cfg.Server.TLS; tls != nil {
		opts = append(opts, server.WithTLS(tls.CertFile, tls.KeyFile))
	}
	return opts
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the quote watch and serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.watch != nil {
		a.watch.Start(ctx)
		defer a.watch.Stop()
	}

	slog.Info("app running",
		"addr", a.cfg.Server.ListenAddr,
		"realtime", a.cfg.Realtime.Name,
		"persistence", a.db != nil,
		"quote_watch", a.watch != nil,
	)

	return a.srv.Run(ctx)
}

// Sessions returns the session manager. Exposed for tests and diagnostics.
func (a *App) Sessions() *SessionManager {
	return a.sessions
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.watch != nil {
			a.watch.Stop()
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// disabledPurchaser rejects every purchase. Installed when Stripe is not
// configured so confirmation turns fail cleanly instead of panicking.
type disabledPurchaser struct{}

func (disabledPurchaser) Purchase(context.Context, purchase.Order) error {
	return errors.New("purchasing is not configured")
}
