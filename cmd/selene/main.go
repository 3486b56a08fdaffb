// Command selene is the entry point for the Selene voice agent server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/MrWong99/selene/internal/config"
	"github.com/MrWong99/selene/internal/observe"
	"github.com/MrWong99/selene/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "selene: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "selene: %v\n", err)
		}
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("selene starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"mode", cfg.Session.Mode,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Config hot reload ─────────────────────────────────────────────────────
	// The watcher owns the live config. Log level changes apply immediately;
	// prompt changes apply to new sessions; everything else logs a restart
	// notice and keeps the old wiring.
	var mu sync.Mutex
	current := cfg
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if diff.LogLevelChanged {
			level.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		if diff.PromptsChanged {
			slog.Info("system prompts changed, applying to new sessions", "count", len(diff.NewPrompts))
		}
		if diff.RestartRequired {
			slog.Warn("config change requires a restart; running sessions keep the old settings")
		}
		mu.Lock()
		current = new
		mu.Unlock()
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	currentConfig := func() *config.Config {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	// ── Server ────────────────────────────────────────────────────────────────
	srv, err := server.New(currentConfig, server.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialise server", "err", err)
		return 1
	}

	printStartupSummary(cfg)
	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Selene — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("Mode", string(cfg.Session.Mode))
	printField("Listen addr", cfg.Server.ListenAddr)
	switch cfg.Session.Mode {
	case config.ModeInterpret:
		printField("Interpret", cfg.Components.Interpret.BaseURL)
	case config.ModeChat:
		printField("VAD", cfg.Components.VAD.URL)
		printField("ASR", cfg.Components.ASR.URL)
		printField("SLM", cfg.Components.SLM.Model)
		printField("TTS", cfg.Components.TTS.URL)
		printToggle("Diarization", cfg.Components.Diarization.URL != "")
		printToggle("TTS control", cfg.Components.TTSControl != nil)
		printToggle("Gate control", cfg.Components.GateControl != nil)
		printToggle("Voice clone", cfg.Session.ReferenceAudio != "")
		printField("Prompts", fmt.Sprintf("%d", len(cfg.Session.Prompts)))
	}
	printToggle("TLS", cfg.Server.TLS != nil)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printField(name, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", name, value)
}

func printToggle(name string, enabled bool) {
	value := "disabled"
	if enabled {
		value = "enabled"
	}
	printField(name, value)
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
