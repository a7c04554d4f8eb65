// Command alfievoice is the main entry point for the Alfie voice
// orchestrator server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfielabs/alfie-voice/internal/app"
	"github.com/alfielabs/alfie-voice/internal/config"
	"github.com/alfielabs/alfie-voice/internal/observe"
	"github.com/alfielabs/alfie-voice/pkg/provider/llm"
	llmopenai "github.com/alfielabs/alfie-voice/pkg/provider/llm/openai"
	"github.com/alfielabs/alfie-voice/pkg/provider/realtime"
	"github.com/alfielabs/alfie-voice/pkg/provider/realtime/gemini"
	rtopenai "github.com/alfielabs/alfie-voice/pkg/provider/realtime/openai"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "alfievoice: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "alfievoice: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("alfievoice starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	resolveSecrets(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterRealtime("openai", func(entry config.RealtimeConfig) (realtime.Provider, error) {
		key := firstNonEmpty(entry.APIKey, os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, errors.New("openai realtime provider requires realtime.api_key or OPENAI_API_KEY")
		}
		var opts []rtopenai.Option
		if entry.Model != "" {
			opts = append(opts, rtopenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, rtopenai.WithBaseURL(entry.BaseURL))
		}
		return rtopenai.New(key, opts...), nil
	})

	reg.RegisterRealtime("gemini", func(entry config.RealtimeConfig) (realtime.Provider, error) {
		key := firstNonEmpty(entry.APIKey, os.Getenv("GEMINI_API_KEY"))
		if key == "" {
			return nil, errors.New("gemini realtime provider requires realtime.api_key or GEMINI_API_KEY")
		}
		var opts []gemini.Option
		if entry.Model != "" {
			opts = append(opts, gemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		return gemini.New(key, opts...), nil
	})

	reg.RegisterClassifier("openai", func(entry config.ClassifierConfig) (llm.Client, error) {
		key := firstNonEmpty(entry.APIKey, os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, errors.New("openai classifier requires classifier.api_key or OPENAI_API_KEY")
		}
		var opts []llmopenai.Option
		if entry.Model != "" {
			opts = append(opts, llmopenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		return llmopenai.New(key, opts...), nil
	})
}

// buildProviders instantiates the providers named in cfg using the registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	p, err := reg.CreateRealtime(cfg.Realtime)
	if err != nil {
		return nil, fmt.Errorf("create realtime provider %q: %w", cfg.Realtime.Name, err)
	}
	ps.Realtime = p
	slog.Info("provider created", "kind", "realtime", "name", cfg.Realtime.Name, "model", cfg.Realtime.Model)

	if cfg.Classifier.Disabled {
		slog.Info("remote classifier disabled; using keyword fallback only")
		return ps, nil
	}
	c, err := reg.CreateClassifier("openai", cfg.Classifier)
	if err != nil {
		slog.Warn("classifier unavailable; falling back to keyword classification", "err", err)
		return ps, nil
	}
	ps.Classifier = c
	slog.Info("provider created", "kind", "classifier", "name", "openai", "model", cfg.Classifier.Model)

	return ps, nil
}

// resolveSecrets fills config secrets from the environment when the YAML
// leaves them empty.
func resolveSecrets(cfg *config.Config) {
	cfg.Payments.StripeKey = firstNonEmpty(cfg.Payments.StripeKey, os.Getenv("STRIPE_SECRET_KEY"))
	cfg.Storage.PostgresDSN = firstNonEmpty(cfg.Storage.PostgresDSN, os.Getenv("ALFIEVOICE_POSTGRES_DSN"))
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
