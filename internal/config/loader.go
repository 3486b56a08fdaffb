package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Validate when fields are unset.
const (
	DefaultListenAddr    = ":9000"
	DefaultChunkMS       = 100
	DefaultAttachTimeout = 30 * time.Second
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
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

// Validate checks that cfg contains a coherent set of values and fills in
// defaults for unset fields. It returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Session
	if cfg.Session.Mode == "" {
		cfg.Session.Mode = ModeChat
	}
	if !cfg.Session.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("session.mode %q is invalid; valid values: chat, echo, interpret", cfg.Session.Mode))
	}
	if cfg.Session.ChunkMS < 0 {
		errs = append(errs, fmt.Errorf("session.chunk_ms %d must not be negative", cfg.Session.ChunkMS))
	}
	if cfg.Session.ChunkMS == 0 {
		cfg.Session.ChunkMS = DefaultChunkMS
	}
	if cfg.Session.AttachTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.attach_timeout %s must not be negative", cfg.Session.AttachTimeout.Std()))
	}
	if cfg.Session.AttachTimeout == 0 {
		cfg.Session.AttachTimeout = Duration(DefaultAttachTimeout)
	}
	if cfg.Session.ReferenceAudio != "" && cfg.Session.ReferenceText == "" {
		slog.Warn("session.reference_audio is set without session.reference_text; synthesis quality degrades without the transcript")
	}

	// Mode-dependent component requirements.
	switch cfg.Session.Mode {
	case ModeChat:
		if cfg.Components.VAD.URL == "" {
			errs = append(errs, errors.New("components.vad.url is required in chat mode"))
		}
		if cfg.Components.ASR.URL == "" {
			errs = append(errs, errors.New("components.asr.url is required in chat mode"))
		}
		if cfg.Components.SLM.BaseURL == "" {
			errs = append(errs, errors.New("components.slm.base_url is required in chat mode"))
		}
		if cfg.Components.SLM.Model == "" {
			errs = append(errs, errors.New("components.slm.model is required in chat mode"))
		}
		if cfg.Components.TTS.URL == "" {
			errs = append(errs, errors.New("components.tts.url is required in chat mode"))
		}
	case ModeInterpret:
		if cfg.Components.Interpret.BaseURL == "" {
			errs = append(errs, errors.New("components.interpret.base_url is required in interpret mode"))
		}
	}

	// VAD bounds
	if cfg.Components.VAD.LeftPadMS < 0 {
		errs = append(errs, fmt.Errorf("components.vad.left_pad_ms %d must not be negative", cfg.Components.VAD.LeftPadMS))
	}
	if cfg.Components.VAD.VoicedMSToInterrupt < 0 {
		errs = append(errs, fmt.Errorf("components.vad.voiced_ms_to_interrupt %d must not be negative", cfg.Components.VAD.VoicedMSToInterrupt))
	}

	// SLM
	if cfg.Components.SLM.MaxMessages < 0 {
		errs = append(errs, fmt.Errorf("components.slm.max_messages %d must not be negative", cfg.Components.SLM.MaxMessages))
	}

	// Diarization bounds
	d := cfg.Components.Diarization
	if d.URL != "" {
		if d.MinSpeakers < 0 || d.MaxSpeakers < 0 || d.NumSpeakers < 0 {
			errs = append(errs, errors.New("components.diarization speaker counts must not be negative"))
		}
		if d.MinSpeakers > 0 && d.MaxSpeakers > 0 && d.MinSpeakers > d.MaxSpeakers {
			errs = append(errs, fmt.Errorf("components.diarization.min_speakers %d exceeds max_speakers %d", d.MinSpeakers, d.MaxSpeakers))
		}
	}

	// Controls
	errs = append(errs, validateControl("tts_control", cfg.Components.TTSControl)...)
	errs = append(errs, validateControl("gate_control", cfg.Components.GateControl)...)

	// Soft warnings.
	if cfg.Session.Mode == ModeChat && cfg.Components.Diarization.URL == "" && len(cfg.Session.Prompts) == 0 {
		slog.Warn("no system prompts configured; the model falls back to its own defaults")
	}

	return errors.Join(errs...)
}

func validateControl(name string, c *ControlConfig) []error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Backend == "" {
		c.Backend = ControlBackendOpenAI
	}
	if !c.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("components.%s.backend %q is invalid; valid values: openai, anyllm", name, c.Backend))
	}
	if c.Backend == ControlBackendAnyLLM && c.Provider == "" {
		errs = append(errs, fmt.Errorf("components.%s.provider is required for the anyllm backend", name))
	}
	if c.Model == "" {
		errs = append(errs, fmt.Errorf("components.%s.model is required", name))
	}
	if c.Prompt == "" {
		errs = append(errs, fmt.Errorf("components.%s.prompt is required", name))
	}
	return errs
}
