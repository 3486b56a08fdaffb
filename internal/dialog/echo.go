package dialog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/selene/internal/observe"
	"github.com/MrWong99/selene/internal/session"
)

// EchoConfig wires one loopback session together.
type EchoConfig struct {
	SessionID string

	Audio AudioChannel
	Event EventSender

	Log     *slog.Logger
	Metrics *observe.Metrics

	OnDestroy func(id string)
}

// Echo is the loopback session driver: microphone audio is written straight
// back to the client through the paced egress channel. It exists to exercise
// the transport path end to end without any model in the loop.
type Echo struct {
	id    string
	cfg   EchoConfig
	log   *slog.Logger
	tasks *session.Tasks

	destroyOne sync.Once
}

var _ session.Session = (*Echo)(nil)

// NewEcho creates an Echo driver. Call Start to bring the loop up.
func NewEcho(parent context.Context, cfg EchoConfig) *Echo {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("session", cfg.SessionID)
	return &Echo{
		id:    cfg.SessionID,
		cfg:   cfg,
		log:   log,
		tasks: session.NewTasks(parent, log),
	}
}

// ID implements session.Session.
func (e *Echo) ID() string { return e.id }

// Start launches the loopback pump.
func (e *Echo) Start() error {
	e.cfg.Metrics.SessionStarted(e.tasks.Context())
	e.log.Info("echo session started")

	e.tasks.Spawn("loopback", func(ctx context.Context) error {
		in := e.cfg.Audio.Read(ctx)
		for chunk := range in {
			if err := e.cfg.Audio.Write(ctx, chunk, 0); err != nil {
				e.log.Error("loopback write failed", "error", err)
			}
		}
		if ctx.Err() == nil {
			e.log.Info("client disconnected")
			go e.Destroy()
		}
		return nil
	})
	return nil
}

// Destroy implements session.Session. Idempotent.
func (e *Echo) Destroy() {
	e.destroyOne.Do(func() {
		e.log.Info("destroying session")
		e.cfg.Audio.Close()
		e.cfg.Event.Close()
		e.tasks.Destroy()

		e.cfg.Metrics.SessionEnded(context.Background())
		if e.cfg.OnDestroy != nil {
			e.cfg.OnDestroy(e.id)
		}
	})
}
