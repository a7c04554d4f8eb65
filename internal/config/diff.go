package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	StrictGuidanceChanged bool
	NewStrictGuidance     bool

	// ScheduleChanged is true when the quote watch needs a restart (enabled
	// flag, interval, or preferences changed).
	ScheduleChanged bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Flow.StrictGuidance != new.Flow.StrictGuidance {
		d.StrictGuidanceChanged = true
		d.NewStrictGuidance = new.Flow.StrictGuidance
	}

	if old.Schedule != new.Schedule {
		d.ScheduleChanged = true
	}

	return d
}
