package config

import "time"

// ConfigDiff describes what changed between two configs. Only log level and
// the ack timeout can be hot-reloaded; endpoint, user, and audio changes need
// a restart and are reported so the operator can be told.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	AckTimeoutChanged bool
	NewAckTimeout     time.Duration

	// RestartRequired is true when a field that cannot be applied to a live
	// session changed (endpoint, user identity, audio pipeline).
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Session.AckTimeout != new.Session.AckTimeout {
		d.AckTimeoutChanged = true
		d.NewAckTimeout = new.Session.AckTimeout
	}

	if old.Server.Endpoint != new.Server.Endpoint ||
		old.Server.ListenAddr != new.Server.ListenAddr ||
		old.User != new.User ||
		old.Audio != new.Audio {
		d.RestartRequired = true
	}

	return d
}
