// Package config provides the configuration schema, loader, and file watcher
// for the Selene voice agent server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a [time.Duration] that unmarshals from YAML strings such as
// "30s" or "1m30s".
type Duration time.Duration

// Std returns the value as a [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: duration must be a string like \"30s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// LogLevel controls log verbosity for the Selene server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Mode selects which session variant the server creates.
type Mode string

const (
	// ModeChat is the full dialog pipeline: VAD, ASR, SLM, controls, TTS.
	ModeChat Mode = "chat"

	// ModeEcho loops microphone audio straight back. Transport smoke test.
	ModeEcho Mode = "echo"

	// ModeInterpret relays the stream through the simultaneous
	// interpretation backend.
	ModeInterpret Mode = "interpret"
)

// IsValid reports whether m is a recognised session mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeChat, ModeEcho, ModeInterpret:
		return true
	}
	return false
}

// ControlBackend selects the completion backend for a control model.
type ControlBackend string

const (
	ControlBackendOpenAI ControlBackend = "openai"
	ControlBackendAnyLLM ControlBackend = "anyllm"
)

// IsValid reports whether b is a recognised control backend.
func (b ControlBackend) IsValid() bool {
	return b == ControlBackendOpenAI || b == ControlBackendAnyLLM
}

// Config is the root configuration structure for Selene.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Session    SessionConfig    `yaml:"session"`
	Components ComponentsConfig `yaml:"components"`
}

// ServerConfig holds network and logging settings for the Selene server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":9000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// SessionConfig holds per-session behaviour shared by all variants.
type SessionConfig struct {
	// Mode selects the session variant the server creates. Default "chat".
	Mode Mode `yaml:"mode"`

	// ChunkMS is the egress pacing cadence in milliseconds. Default 100.
	ChunkMS int `yaml:"chunk_ms"`

	// AttachTimeout bounds how long a created session may wait for its
	// audio WebSocket; unattached sessions are destroyed. Default 30s.
	AttachTimeout Duration `yaml:"attach_timeout"`

	// Prompts are the system instructions prepended to the language-model
	// conversation on every turn.
	Prompts []string `yaml:"prompts"`

	// ReferenceAudio is a path to a 16 kHz mono PCM16 WAV used as the
	// voice-cloning sample for synthesis. Optional.
	ReferenceAudio string `yaml:"reference_audio"`

	// ReferenceText is the transcript of ReferenceAudio.
	ReferenceText string `yaml:"reference_text"`
}

// ComponentsConfig declares the endpoints and options of each pipeline
// component. Which blocks are required depends on the session mode.
type ComponentsConfig struct {
	VAD         VADConfig       `yaml:"vad"`
	ASR         EndpointConfig  `yaml:"asr"`
	SLM         SLMConfig       `yaml:"slm"`
	TTS         TTSConfig       `yaml:"tts"`
	Diarization DiarConfig      `yaml:"diarization"`
	TTSControl  *ControlConfig  `yaml:"tts_control"`
	GateControl *ControlConfig  `yaml:"gate_control"`
	Interpret   InterpretConfig `yaml:"interpret"`
}

// EndpointConfig is the minimal block for plain HTTP components.
type EndpointConfig struct {
	// URL is the component's endpoint.
	URL string `yaml:"url"`

	// Timeout bounds each request. Zero keeps the component default.
	Timeout Duration `yaml:"timeout"`
}

// VADConfig configures the voice activity detection backend.
type VADConfig struct {
	// URL is the detection WebSocket endpoint.
	URL string `yaml:"url"`

	// LeftPadMS is the leading padding included in finalized utterances.
	// Zero keeps the default of 300 ms.
	LeftPadMS int `yaml:"left_pad_ms"`

	// VoicedMSToInterrupt is how long the user must have been speaking
	// before an active response is interrupted. Zero keeps the default of
	// 1000 ms.
	VoicedMSToInterrupt int `yaml:"voiced_ms_to_interrupt"`
}

// SLMConfig configures the speech language model backend.
type SLMConfig struct {
	// BaseURL is the OpenAI-compatible API root, without the
	// /chat/completions suffix.
	BaseURL string `yaml:"base_url"`

	// APIKey is the bearer token. Optional; local deployments accept any.
	APIKey string `yaml:"api_key"`

	// Model is the model identifier sent with each request.
	Model string `yaml:"model"`

	// UseTextHistory substitutes past audio turns with their transcripts.
	UseTextHistory bool `yaml:"use_text_history"`

	// MaxMessages caps the non-system history sent per request. Zero means
	// unlimited.
	MaxMessages int `yaml:"max_messages"`
}

// TTSConfig configures the speech synthesis backend.
type TTSConfig struct {
	// URL is the synthesis endpoint.
	URL string `yaml:"url"`

	// ForceDefault pins voice, speed and emotion to "default", ignoring
	// per-turn control hints.
	ForceDefault bool `yaml:"force_default"`
}

// DiarConfig configures speaker diarization. An empty URL disables it.
type DiarConfig struct {
	// URL is the diarization endpoint.
	URL string `yaml:"url"`

	// MinSpeakers and MaxSpeakers bound the speaker search.
	MinSpeakers int `yaml:"min_speakers"`
	MaxSpeakers int `yaml:"max_speakers"`

	// NumSpeakers, when positive, fixes the speaker count exactly.
	NumSpeakers int `yaml:"num_speakers"`
}

// ControlConfig configures one control model (rendering hints or response
// gating). A nil block disables the control.
type ControlConfig struct {
	// Backend selects the completion client: "openai" or "anyllm".
	Backend ControlBackend `yaml:"backend"`

	// Provider is the any-llm provider name (e.g., "anthropic", "ollama").
	// Ignored by the openai backend.
	Provider string `yaml:"provider"`

	// APIKey authenticates against the backend.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default endpoint. Optional.
	BaseURL string `yaml:"base_url"`

	// Model is the model identifier.
	Model string `yaml:"model"`

	// Prompt is the system instruction describing the decision to make.
	Prompt string `yaml:"prompt"`
}

// InterpretConfig configures the simultaneous interpretation backend.
type InterpretConfig struct {
	// BaseURL is the service root; sessions connect to
	// {base_url}/ws/{session_id}.
	BaseURL string `yaml:"base_url"`
}
