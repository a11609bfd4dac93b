package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider and
// storage changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SessionChanged is true when any session tuning value changed. New
	// values apply to calls started after the reload; running calls keep
	// their current tuning.
	SessionChanged bool

	// CoachChanged is true when the scenario or tags changed.
	CoachChanged bool
}

// Changed reports whether the diff contains any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.SessionChanged || d.CoachChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !sessionEqual(old.Session, new.Session) {
		d.SessionChanged = true
	}

	if old.Coach.Scenario != new.Coach.Scenario || !slices.Equal(old.Coach.Tags, new.Coach.Tags) {
		d.CoachChanged = true
	}

	return d
}

func sessionEqual(a, b SessionConfig) bool {
	return a.NearDupWindow == b.NearDupWindow &&
		a.Similarity == b.Similarity &&
		a.EchoTail == b.EchoTail &&
		a.PauseGap == b.PauseGap &&
		a.DedupCap == b.DedupCap &&
		slices.Equal(a.LeakPhrases, b.LeakPhrases)
}
