package config

import "slices"

// ConfigDiff describes what changed between two configs. Log level and
// system prompts apply to running servers; everything else needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PromptsChanged is safe to hot-apply: prompts are read per turn, so
	// new sessions and new turns pick them up.
	PromptsChanged bool
	NewPrompts     []string

	// RestartRequired is set when endpoints, the session mode, or the
	// listen address changed. Running sessions keep their old wiring.
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Session.Prompts, new.Session.Prompts) {
		d.PromptsChanged = true
		d.NewPrompts = slices.Clone(new.Session.Prompts)
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Session.Mode != new.Session.Mode ||
		componentsChanged(old.Components, new.Components) {
		d.RestartRequired = true
	}

	return d
}

func componentsChanged(old, new ComponentsConfig) bool {
	if old.VAD != new.VAD || old.ASR != new.ASR || old.SLM != new.SLM ||
		old.TTS != new.TTS || old.Diarization != new.Diarization ||
		old.Interpret != new.Interpret {
		return true
	}
	return controlChanged(old.TTSControl, new.TTSControl) ||
		controlChanged(old.GateControl, new.GateControl)
}

func controlChanged(old, new *ControlConfig) bool {
	if (old == nil) != (new == nil) {
		return true
	}
	if old == nil {
		return false
	}
	return *old != *new
}
