package config_test

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/selene/internal/config"
)

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()

	valid := []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError}
	for _, l := range valid {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	for _, l := range []config.LogLevel{"", "trace", "INFO", "verbose"} {
		if l.IsValid() {
			t.Errorf("%q should be invalid", l)
		}
	}
}

func TestMode_IsValid(t *testing.T) {
	t.Parallel()

	for _, m := range []config.Mode{config.ModeChat, config.ModeEcho, config.ModeInterpret} {
		if !m.IsValid() {
			t.Errorf("%q should be valid", m)
		}
	}
	for _, m := range []config.Mode{"", "duplex", "Chat"} {
		if m.IsValid() {
			t.Errorf("%q should be invalid", m)
		}
	}
}

func TestControlBackend_IsValid(t *testing.T) {
	t.Parallel()

	if !config.ControlBackendOpenAI.IsValid() || !config.ControlBackendAnyLLM.IsValid() {
		t.Error("known backends should be valid")
	}
	if config.ControlBackend("langchain").IsValid() {
		t.Error("unknown backend should be invalid")
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: `"30s"`, want: 30 * time.Second},
		{in: `"1m30s"`, want: 90 * time.Second},
		{in: `"250ms"`, want: 250 * time.Millisecond},
		{in: `"banana"`, wantErr: true},
		{in: `30`, wantErr: true},
	}
	for _, tc := range tests {
		var d config.Duration
		err := yaml.Unmarshal([]byte(tc.in), &d)
		if tc.wantErr {
			if err == nil {
				t.Errorf("unmarshal %s: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("unmarshal %s: %v", tc.in, err)
			continue
		}
		if d.Std() != tc.want {
			t.Errorf("unmarshal %s = %s, want %s", tc.in, d.Std(), tc.want)
		}
	}
}
