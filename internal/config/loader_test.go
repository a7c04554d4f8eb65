package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/alfielabs/alfie-voice/internal/config"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
realtime:
  name: openai
  model: gpt-realtime
  voice: marin
classifier:
  model: gpt-4o-mini
  timeout: 2s
quotes:
  base_url: "http://localhost:5001"
payments:
  stripe_key: "sk_test_123"
storage:
  postgres_dsn: "postgres://localhost/alfie"
flow:
  strict_guidance: true
schedule:
  enabled: true
  interval: 168h
  policy_context: "car insurance, vehicle registration AB12 CDE"
  preferences: "under 500 with windscreen cover"
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Realtime.Name != "openai" {
		t.Errorf("realtime.name: got %q, want %q", cfg.Realtime.Name, "openai")
	}
	if cfg.Classifier.Timeout != 2*time.Second {
		t.Errorf("classifier.timeout: got %s, want 2s", cfg.Classifier.Timeout)
	}
	if !cfg.Flow.StrictGuidance {
		t.Error("flow.strict_guidance should be true")
	}
	if cfg.Schedule.Interval != 168*time.Hour {
		t.Errorf("schedule.interval: got %s, want 168h", cfg.Schedule.Interval)
	}
	if want := "car insurance, vehicle registration AB12 CDE"; cfg.Schedule.PolicyContext != want {
		t.Errorf("schedule.policy_context: got %q, want %q", cfg.Schedule.PolicyContext, want)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
realtime:
  name: openai
  voice_id: marin
quotes:
  base_url: "http://localhost:5001"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field voice_id, got nil")
	}
}

func TestValidate_RealtimeNameRequired(t *testing.T) {
	t.Parallel()
	yaml := `
quotes:
  base_url: "http://localhost:5001"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing realtime.name, got nil")
	}
	if !strings.Contains(err.Error(), "realtime.name") {
		t.Errorf("error should mention realtime.name, got: %v", err)
	}
}

func TestValidate_QuotesBaseURLRequired(t *testing.T) {
	t.Parallel()
	yaml := `
realtime:
  name: gemini
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing quotes.base_url, got nil")
	}
	if !strings.Contains(err.Error(), "quotes.base_url") {
		t.Errorf("error should mention quotes.base_url, got: %v", err)
	}
}

func TestValidate_JoinsAllFailures(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: bananas
schedule:
  interval: -1h
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected joined validation errors, got nil")
	}
	for _, want := range []string{"server.log_level", "realtime.name", "quotes.base_url", "schedule.interval"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_PartialTLSRejected(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: "/etc/alfie/cert.pem"
realtime:
  name: openai
quotes:
  base_url: "http://localhost:5001"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for TLS without key_file, got nil")
	}
	if !strings.Contains(err.Error(), "key_file") {
		t.Errorf("error should mention key_file, got: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/alfie.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
