package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"realtime":   {"openai", "gemini"},
	"classifier": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Realtime provider
	if cfg.Realtime.Name == "" {
		errs = append(errs, errors.New("realtime.name is required; valid values: openai, gemini"))
	} else {
		validateProviderName("realtime", cfg.Realtime.Name)
	}
	if cfg.Realtime.APIKey == "" {
		slog.Warn("realtime.api_key is empty; the provider's environment variable will be consulted at startup")
	}

	// Classifier
	if !cfg.Classifier.Disabled {
		validateProviderName("classifier", "openai")
		if cfg.Classifier.Timeout < 0 {
			errs = append(errs, fmt.Errorf("classifier.timeout %s must not be negative", cfg.Classifier.Timeout))
		}
	}

	// Quote service — the flow cannot search without it.
	if cfg.Quotes.BaseURL == "" {
		errs = append(errs, errors.New("quotes.base_url is required"))
	}

	// Payments availability
	if cfg.Payments.StripeKey == "" {
		slog.Warn("payments.stripe_key is empty; STRIPE_SECRET_KEY will be consulted at startup, otherwise purchases are disabled")
	}

	// Storage availability
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; transcripts and policy contexts will not be persisted")
	}

	// Schedule
	if cfg.Schedule.Interval < 0 {
		errs = append(errs, fmt.Errorf("schedule.interval %s must not be negative", cfg.Schedule.Interval))
	}
	if cfg.Schedule.Enabled && cfg.Schedule.Preferences == "" {
		slog.Warn("schedule.enabled is set but schedule.preferences is empty; every quote will count as a match")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
