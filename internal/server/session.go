package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/selene/internal/channel"
	"github.com/MrWong99/selene/internal/config"
	"github.com/MrWong99/selene/internal/dialog"
	"github.com/MrWong99/selene/internal/session"
	"github.com/MrWong99/selene/pkg/provider/control"
	ctrlanyllm "github.com/MrWong99/selene/pkg/provider/control/anyllm"
	ctrlopenai "github.com/MrWong99/selene/pkg/provider/control/openai"
	"github.com/MrWong99/selene/pkg/provider/diar"
	"github.com/MrWong99/selene/pkg/provider/interpret"
	interpretremote "github.com/MrWong99/selene/pkg/provider/interpret/remote"
	slmremote "github.com/MrWong99/selene/pkg/provider/slm/remote"
	ttsremote "github.com/MrWong99/selene/pkg/provider/tts/remote"
	vadremote "github.com/MrWong99/selene/pkg/provider/vad/remote"
)

// startSessionRequest is the body of POST /start_session. All fields are
// optional; zero values select the pipeline-native defaults.
type startSessionRequest struct {
	// SampleRate and NumChannels describe the client's audio stream, both
	// directions. Defaults: 16000 Hz mono.
	SampleRate  int `json:"sample_rate"`
	NumChannels int `json:"num_channels"`

	// Interpretation options; ignored in other modes.
	TargetLanguage string `json:"target_language"`
	VoiceClone     bool   `json:"voice_clone"`
	GenerateSpeech *bool  `json:"generate_speech"`
	NoiseReduction bool   `json:"noise_reduction"`
}

// startable is what the factory hands back: a registered driver that still
// needs its pumps launched.
type startable interface {
	session.Session
	Start() error
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}

	cfg := s.current()
	id := strings.ReplaceAll(uuid.NewString(), "-", "")

	base, err := channel.NewAudio(channel.AudioConfig{
		ReadSrcRate:      req.SampleRate,
		ReadSrcChannels:  req.NumChannels,
		WriteDstRate:     req.SampleRate,
		WriteDstChannels: req.NumChannels,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	paced := channel.NewPaced(base, cfg.Session.ChunkMS)
	event := channel.NewEvent()

	sess, err := s.buildSession(cfg, req, id, paced, event)
	if err != nil {
		s.log.Error("session construction failed", "session", id, "mode", cfg.Session.Mode, "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.mu.Lock()
	s.chans[id] = &sessionChannels{audio: paced, event: event}
	s.mu.Unlock()
	s.store.Insert(sess)

	if err := sess.Start(); err != nil {
		s.log.Error("session start failed", "session", id, "err", err)
		sess.Destroy()
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	paced.Start(context.Background())
	go s.watchAttach(sess, base, cfg.Session.AttachTimeout.Std())

	s.log.Info("session created", "session", id, "mode", cfg.Session.Mode,
		"sample_rate", req.SampleRate, "channels", req.NumChannels)
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

// buildSession constructs the driver for the configured mode. Chat sessions
// get their own VAD, SLM, TTS and diarization clients; the ASR and control
// clients are shared.
func (s *Server) buildSession(cfg *config.Config, req startSessionRequest, id string, paced *channel.Paced, event *channel.Event) (startable, error) {
	switch cfg.Session.Mode {
	case config.ModeEcho:
		return dialog.NewEcho(context.Background(), dialog.EchoConfig{
			SessionID: id,
			Audio:     paced,
			Event:     event,
			Log:       s.log,
			Metrics:   s.met,
			OnDestroy: s.dropSession,
		}), nil

	case config.ModeInterpret:
		client, err := interpretremote.New(cfg.Components.Interpret.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("server: interpret client: %w", err)
		}
		generateSpeech := true
		if req.GenerateSpeech != nil {
			generateSpeech = *req.GenerateSpeech
		}
		return dialog.NewInterpreter(context.Background(), dialog.InterpreterConfig{
			SessionID: id,
			Client:    client,
			Options: interpret.Options{
				TargetLanguage: req.TargetLanguage,
				VoiceClone:     req.VoiceClone,
				GenerateSpeech: generateSpeech,
				NoiseReduction: req.NoiseReduction,
			},
			Audio:     paced,
			Event:     event,
			Log:       s.log,
			Metrics:   s.met,
			OnDestroy: s.dropSession,
		}), nil

	default:
		return s.buildChatSession(cfg, id, paced, event)
	}
}

func (s *Server) buildChatSession(cfg *config.Config, id string, paced *channel.Paced, event *channel.Event) (startable, error) {
	c := cfg.Components

	var vadOpts []vadremote.Option
	if c.VAD.LeftPadMS > 0 {
		vadOpts = append(vadOpts, vadremote.WithLeftPadMS(c.VAD.LeftPadMS))
	}
	if c.VAD.VoicedMSToInterrupt > 0 {
		vadOpts = append(vadOpts, vadremote.WithVoicedMSToInterrupt(c.VAD.VoicedMSToInterrupt))
	}
	vadClient, err := vadremote.New(c.VAD.URL, vadOpts...)
	if err != nil {
		return nil, fmt.Errorf("server: vad client: %w", err)
	}

	slmOpts := []slmremote.Option{
		slmremote.WithPrompts(cfg.Session.Prompts),
		slmremote.WithTextHistory(c.SLM.UseTextHistory),
	}
	if c.SLM.APIKey != "" {
		slmOpts = append(slmOpts, slmremote.WithAPIKey(c.SLM.APIKey))
	}
	if c.SLM.MaxMessages > 0 {
		slmOpts = append(slmOpts, slmremote.WithMaxMessages(c.SLM.MaxMessages))
	}
	if c.Diarization.URL != "" {
		diarClient, err := buildDiarization(c.Diarization, id)
		if err != nil {
			return nil, err
		}
		slmOpts = append(slmOpts, slmremote.WithDiarization(diarClient))
	}
	slmClient, err := slmremote.New(c.SLM.BaseURL, c.SLM.Model, slmOpts...)
	if err != nil {
		return nil, fmt.Errorf("server: slm client: %w", err)
	}

	ttsClient, err := ttsremote.New(c.TTS.URL, id, ttsremote.WithForceDefault(c.TTS.ForceDefault))
	if err != nil {
		return nil, fmt.Errorf("server: tts client: %w", err)
	}

	orch := dialog.New(context.Background(), dialog.Config{
		SessionID:   id,
		VAD:         vadClient,
		ASR:         s.asr,
		SLM:         slmClient,
		TTS:         ttsClient,
		TTSControl:  s.ttsCtrl,
		GateControl: s.gateCtrl,
		Reference:   s.reference,
		Audio:       paced,
		Event:       event,
		Log:         s.log,
		Metrics:     s.met,
		OnDestroy:   s.dropSession,
	})
	paced.OnFlush = orch.HandleFlush
	return orch, nil
}

func buildDiarization(cfg config.DiarConfig, sessionID string) (diar.Provider, error) {
	var opts []diar.Option
	if cfg.MinSpeakers > 0 || cfg.MaxSpeakers > 0 {
		opts = append(opts, diar.WithSpeakerBounds(cfg.MinSpeakers, cfg.MaxSpeakers))
	}
	if cfg.NumSpeakers > 0 {
		opts = append(opts, diar.WithSpeakerCount(cfg.NumSpeakers))
	}
	client, err := diar.New(cfg.URL, sessionID, opts...)
	if err != nil {
		return nil, fmt.Errorf("server: diarization client: %w", err)
	}
	return client, nil
}

// buildControl creates one control client, or nil when the block is absent.
func buildControl(cc *config.ControlConfig) (*control.Client, error) {
	if cc == nil {
		return nil, nil
	}
	var completer control.Completer
	switch cc.Backend {
	case config.ControlBackendAnyLLM:
		var opts []anyllmlib.Option
		if cc.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(cc.APIKey))
		}
		if cc.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(cc.BaseURL))
		}
		comp, err := ctrlanyllm.New(cc.Provider, cc.Model, opts...)
		if err != nil {
			return nil, err
		}
		completer = comp
	default:
		var opts []ctrlopenai.Option
		if cc.BaseURL != "" {
			opts = append(opts, ctrlopenai.WithBaseURL(cc.BaseURL))
		}
		comp, err := ctrlopenai.New(cc.APIKey, cc.Model, opts...)
		if err != nil {
			return nil, err
		}
		completer = comp
	}
	return control.NewClient(completer, cc.Prompt), nil
}

// watchAttach destroys the session when the client never attaches its audio
// WebSocket.
func (s *Server) watchAttach(sess session.Session, audioCh *channel.Audio, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-audioCh.Attached():
	case <-audioCh.Closed():
	case <-timer.C:
		s.log.Warn("audio websocket never attached, destroying session",
			"session", sess.ID(), "timeout", timeout)
		sess.Destroy()
	}
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}
	sess, ok := s.store.Get(req.SessionID)
	if !ok {
		writeError(w, http.StatusNotFound, errUnknownSession.Error())
		return
	}
	if m, ok := sess.(interface{ MuteUser() }); ok {
		m.MuteUser()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleAudioWS(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	ch, ok := s.chans[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, errUnknownSession.Error())
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("audio websocket accept failed", "session", id, "err", err)
		return
	}
	s.log.Debug("audio websocket attached", "session", id)
	ch.audio.Attach(conn)

	select {
	case <-ch.audio.Closed():
	case <-r.Context().Done():
	}
	conn.Close(websocket.StatusNormalClosure, "session closed")
}

func (s *Server) handleEventWS(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	ch, ok := s.chans[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, errUnknownSession.Error())
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("event websocket accept failed", "session", id, "err", err)
		return
	}
	s.log.Debug("event websocket attached", "session", id)
	ch.event.Attach(conn)

	select {
	case <-ch.event.Closed():
	case <-r.Context().Done():
	}
	conn.Close(websocket.StatusNormalClosure, "session closed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
