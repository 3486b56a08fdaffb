// Package server exposes the Selene HTTP surface: session creation and
// muting over plain HTTP, the per-session audio and event WebSockets, and
// the health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/selene/internal/channel"
	"github.com/MrWong99/selene/internal/config"
	"github.com/MrWong99/selene/internal/health"
	"github.com/MrWong99/selene/internal/observe"
	"github.com/MrWong99/selene/internal/session"
	"github.com/MrWong99/selene/pkg/audio"
	"github.com/MrWong99/selene/pkg/provider/asr"
	asrremote "github.com/MrWong99/selene/pkg/provider/asr/remote"
	"github.com/MrWong99/selene/pkg/provider/control"
	"github.com/MrWong99/selene/pkg/provider/tts"
)

// shutdownTimeout bounds the graceful drain of in-flight requests.
const shutdownTimeout = 10 * time.Second

// sessionChannels holds the attachable transports of one live session. The
// WebSocket handlers resolve attachments against this map; the session store
// only knows the driver.
type sessionChannels struct {
	audio *channel.Paced
	event *channel.Event
}

// Server wires configuration, the session store and the HTTP routes
// together. Create with New, serve with Run.
type Server struct {
	current func() *config.Config
	log     *slog.Logger
	met     *observe.Metrics
	store   *session.Store
	checks  *health.Handler

	// Shared chat-mode components. Stateless across sessions; nil in other
	// modes.
	asr       asr.Provider
	ttsCtrl   *control.Client
	gateCtrl  *control.Client
	reference tts.Reference

	mu    sync.Mutex
	chans map[string]*sessionChannels
}

// Option configures a Server. Use these to inject test doubles.
type Option func(*Server)

// WithLogger injects the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics injects the metrics handle. Defaults to the process-wide
// instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.met = m }
}

// New creates a Server. current returns the live configuration; it is
// re-read on every session creation so hot-reloadable settings (prompts)
// apply to new sessions without a restart. Components that are fixed for
// the process lifetime are built here.
func New(current func() *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		current: current,
		store:   session.NewStore(),
		chans:   make(map[string]*sessionChannels),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.met == nil {
		s.met = observe.DefaultMetrics()
	}

	cfg := current()
	if cfg.Session.Mode == config.ModeChat {
		if err := s.initChatComponents(cfg); err != nil {
			return nil, err
		}
	}
	s.checks = health.New(s.buildCheckers(cfg)...)
	return s, nil
}

// initChatComponents builds the per-process chat components: the ASR client,
// the control clients and the voice-cloning reference. Per-session components
// (VAD, SLM, TTS, diarization) are built on session creation.
func (s *Server) initChatComponents(cfg *config.Config) error {
	var asrOpts []asrremote.Option
	if t := cfg.Components.ASR.Timeout.Std(); t > 0 {
		asrOpts = append(asrOpts, asrremote.WithTimeout(t))
	}
	asrClient, err := asrremote.New(cfg.Components.ASR.URL, asrOpts...)
	if err != nil {
		return fmt.Errorf("server: asr client: %w", err)
	}
	s.asr = asrClient

	if s.ttsCtrl, err = buildControl(cfg.Components.TTSControl); err != nil {
		return fmt.Errorf("server: tts control: %w", err)
	}
	if s.gateCtrl, err = buildControl(cfg.Components.GateControl); err != nil {
		return fmt.Errorf("server: gate control: %w", err)
	}

	if path := cfg.Session.ReferenceAudio; path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("server: read reference audio: %w", err)
		}
		pcm, err := audio.WAVToPCM(raw)
		if err != nil {
			return fmt.Errorf("server: decode reference audio %q: %w", path, err)
		}
		s.reference = tts.Reference{Speech: pcm, Transcript: cfg.Session.ReferenceText}
	}
	return nil
}

// buildCheckers assembles readiness checks for every configured component
// endpoint. Checks probe TCP reachability only; a reachable but misbehaving
// backend surfaces through session errors, not readiness.
func (s *Server) buildCheckers(cfg *config.Config) []health.Checker {
	var checkers []health.Checker
	add := func(name, rawURL string) {
		if rawURL == "" {
			return
		}
		checkers = append(checkers, endpointChecker(name, rawURL))
	}
	switch cfg.Session.Mode {
	case config.ModeChat:
		add("vad", cfg.Components.VAD.URL)
		add("asr", cfg.Components.ASR.URL)
		add("slm", cfg.Components.SLM.BaseURL)
		add("tts", cfg.Components.TTS.URL)
		add("diarization", cfg.Components.Diarization.URL)
	case config.ModeInterpret:
		add("interpret", cfg.Components.Interpret.BaseURL)
	}
	return checkers
}

// endpointChecker probes TCP reachability of a component URL.
func endpointChecker(name, rawURL string) health.Checker {
	return health.Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			u, err := url.Parse(rawURL)
			if err != nil {
				return fmt.Errorf("parse %q: %w", rawURL, err)
			}
			host := u.Host
			if u.Port() == "" {
				switch u.Scheme {
				case "https", "wss":
					host = net.JoinHostPort(u.Hostname(), "443")
				default:
					host = net.JoinHostPort(u.Hostname(), "80")
				}
			}
			var d net.Dialer
			conn, err := d.DialContext(ctx, "tcp", host)
			if err != nil {
				return err
			}
			return conn.Close()
		},
	}
}

// Handler returns the full HTTP handler: routes wrapped in the metrics and
// CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /start_session", s.handleStartSession)
	mux.HandleFunc("POST /mute", s.handleMute)
	mux.HandleFunc("GET /ws/agent/audio/{id}", s.handleAudioWS)
	mux.HandleFunc("GET /ws/agent/event/{id}", s.handleEventWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.checks.Register(mux)

	return corsMiddleware(observe.Middleware(s.met)(mux))
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// destroys every live session.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.current()
	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: s.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.Server.TLS != nil {
			errCh <- srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("server listening", "addr", cfg.Server.ListenAddr, "mode", cfg.Session.Mode, "tls", cfg.Server.TLS != nil)

	select {
	case err := <-errCh:
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("http shutdown", "err", err)
	}
	s.store.Shutdown()
	s.log.Info("server stopped")
	return nil
}

// Sessions returns the number of live sessions.
func (s *Server) Sessions() int { return s.store.Len() }

// dropSession removes a destroyed session from the registry and the
// attachment map. Wired as the session's OnDestroy callback.
func (s *Server) dropSession(id string) {
	s.store.Remove(id)
	s.mu.Lock()
	delete(s.chans, id)
	s.mu.Unlock()
}

// corsMiddleware allows browser clients from any origin. The session id is
// the only credential; the server is meant to sit behind a gateway.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var errUnknownSession = errors.New("server: unknown session")
