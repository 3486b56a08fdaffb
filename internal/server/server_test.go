package server_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/selene/internal/config"
	"github.com/MrWong99/selene/internal/server"
)

func echoConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Session: config.SessionConfig{
			Mode:          config.ModeEcho,
			ChunkMS:       10,
			AttachTimeout: config.Duration(2 * time.Second),
		},
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("validate config: %v", err)
	}
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*server.Server, *httptest.Server) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := server.New(func() *config.Config { return cfg }, server.WithLogger(log))
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func startSession(t *testing.T, ts *httptest.Server, body string) string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/start_session", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("start_session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("start_session status = %d, body %s", resp.StatusCode, raw)
	}
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.SessionID == "" {
		t.Fatal("empty session_id")
	}
	return out.SessionID
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestStartSession_ReturnsID(t *testing.T) {
	t.Parallel()
	s, ts := newTestServer(t, echoConfig(t))

	id := startSession(t, ts, `{"sample_rate": 16000, "num_channels": 1}`)
	if len(id) != 32 {
		t.Errorf("session id %q should be 32 hex chars", id)
	}
	if s.Sessions() != 1 {
		t.Errorf("sessions = %d, want 1", s.Sessions())
	}
}

func TestStartSession_EmptyBody(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, echoConfig(t))

	resp, err := http.Post(ts.URL+"/start_session", "application/json", nil)
	if err != nil {
		t.Fatalf("start_session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestEcho_EndToEnd(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, echoConfig(t))
	id := startSession(t, ts, `{"sample_rate": 16000, "num_channels": 1}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts, "/ws/agent/audio/"+id), nil)
	if err != nil {
		t.Fatalf("dial audio websocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// One paced chunk: 10 ms at 16 kHz mono PCM16.
	sent := make([]byte, 320)
	for i := range sent {
		sent[i] = byte(i)
	}
	if err := conn.Write(ctx, websocket.MessageBinary, sent); err != nil {
		t.Fatalf("write microphone chunk: %v", err)
	}

	var got []byte
	for len(got) < len(sent) {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if typ != websocket.MessageText {
			continue
		}
		var frame struct {
			Data     string `json:"data"`
			DataType string `json:"data_type"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if frame.DataType != "bytes" {
			t.Fatalf("data_type = %q, want bytes", frame.DataType)
		}
		pcm, err := base64.StdEncoding.DecodeString(frame.Data)
		if err != nil {
			t.Fatalf("decode audio payload: %v", err)
		}
		got = append(got, pcm...)
	}

	if !bytes.Equal(got[:len(sent)], sent) {
		t.Error("echoed audio differs from sent audio")
	}
}

func TestMute_UnknownSession(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, echoConfig(t))

	resp, err := http.Post(ts.URL+"/mute", "application/json", strings.NewReader(`{"session_id": "nope"}`))
	if err != nil {
		t.Fatalf("mute: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestMute_KnownSession(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, echoConfig(t))
	id := startSession(t, ts, `{}`)

	resp, err := http.Post(ts.URL+"/mute", "application/json", strings.NewReader(`{"session_id": "`+id+`"}`))
	if err != nil {
		t.Fatalf("mute: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Status != "success" {
		t.Errorf("status = %q, want success", out.Status)
	}
}

func TestAudioWS_UnknownSession(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, echoConfig(t))

	resp, err := http.Get(ts.URL + "/ws/agent/audio/absent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestAttachTimeout_DestroysSession(t *testing.T) {
	t.Parallel()
	cfg := echoConfig(t)
	cfg.Session.AttachTimeout = config.Duration(50 * time.Millisecond)
	s, ts := newTestServer(t, cfg)

	startSession(t, ts, `{}`)

	deadline := time.Now().Add(2 * time.Second)
	for s.Sessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session not destroyed after attach timeout, sessions = %d", s.Sessions())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCORS_Preflight(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, echoConfig(t))

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/start_session", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, echoConfig(t))

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, echoConfig(t))

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}
