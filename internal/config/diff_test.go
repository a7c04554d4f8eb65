package config_test

import (
	"testing"
	"time"

	"github.com/alfielabs/alfie-voice/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{LogLevel: config.LogInfo},
		Realtime: config.RealtimeConfig{Name: "openai"},
		Quotes:   config.QuotesConfig{BaseURL: "http://localhost:5001"},
		Flow:     config.FlowConfig{StrictGuidance: false},
		Schedule: config.ScheduleConfig{Enabled: true, Interval: 168 * time.Hour},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	d := config.Diff(old, new)
	if d.LogLevelChanged || d.StrictGuidanceChanged || d.ScheduleChanged {
		t.Errorf("identical configs should produce an empty diff, got %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("log level change not detected")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("new log level: got %q, want %q", d.NewLogLevel, config.LogDebug)
	}
}

func TestDiff_StrictGuidance(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Flow.StrictGuidance = true

	d := config.Diff(old, new)
	if !d.StrictGuidanceChanged {
		t.Fatal("strict guidance change not detected")
	}
	if !d.NewStrictGuidance {
		t.Error("new strict guidance value should be true")
	}
}

func TestDiff_Schedule(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Schedule.Interval = 24 * time.Hour

	d := config.Diff(old, new)
	if !d.ScheduleChanged {
		t.Fatal("schedule change not detected")
	}
}
