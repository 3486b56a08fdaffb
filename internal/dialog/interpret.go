package dialog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/selene/internal/channel"
	"github.com/MrWong99/selene/internal/observe"
	"github.com/MrWong99/selene/internal/session"
	"github.com/MrWong99/selene/pkg/provider/interpret"
)

// InterpreterConfig wires one interpretation session together.
type InterpreterConfig struct {
	SessionID string

	Client  interpret.Client
	Options interpret.Options

	Audio AudioChannel
	Event EventSender

	Log     *slog.Logger
	Metrics *observe.Metrics

	OnDestroy func(id string)
}

// Interpreter is the simultaneous-interpretation session driver. Microphone
// audio streams to the interpretation backend; transcripts, translations and
// synthesized target-language speech stream back interleaved and are relayed
// to the client as they arrive.
type Interpreter struct {
	id    string
	cfg   InterpreterConfig
	log   *slog.Logger
	tasks *session.Tasks

	destroyOne sync.Once
}

var _ session.Session = (*Interpreter)(nil)

// NewInterpreter creates an Interpreter driver. Call Start to bring the
// pumps up.
func NewInterpreter(parent context.Context, cfg InterpreterConfig) *Interpreter {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("session", cfg.SessionID)
	return &Interpreter{
		id:    cfg.SessionID,
		cfg:   cfg,
		log:   log,
		tasks: session.NewTasks(parent, log),
	}
}

// ID implements session.Session.
func (i *Interpreter) ID() string { return i.id }

// Start connects the interpretation backend and launches the pumps.
func (i *Interpreter) Start() error {
	ctx := i.tasks.Context()
	if err := i.cfg.Client.Setup(ctx, i.id, i.cfg.Options); err != nil {
		return err
	}
	i.cfg.Metrics.SessionStarted(ctx)
	i.log.Info("interpretation session started",
		"target_language", i.cfg.Options.TargetLanguage)

	i.tasks.Spawn("ingress", i.runIngress)
	i.tasks.Spawn("results", i.runResults)
	return nil
}

// runIngress feeds microphone chunks to the backend until disconnect.
func (i *Interpreter) runIngress(ctx context.Context) error {
	in := i.cfg.Audio.Read(ctx)
	for chunk := range in {
		if err := i.cfg.Client.Feed(ctx, chunk); err != nil {
			i.cfg.Metrics.RecordProviderError(ctx, "interpret", "feed")
			i.log.Error("interpret feed failed", "error", err)
		}
	}
	if ctx.Err() == nil {
		i.log.Info("client disconnected")
		go i.Destroy()
	}
	return nil
}

// runResults relays interpretation outcomes to the client.
func (i *Interpreter) runResults(ctx context.Context) error {
	results := i.cfg.Client.Results()
	for {
		select {
		case res, ok := <-results:
			if !ok {
				return nil
			}
			i.relay(ctx, res)
		case <-ctx.Done():
			return nil
		}
	}
}

func (i *Interpreter) relay(ctx context.Context, res interpret.Result) {
	var err error
	switch res.Kind {
	case interpret.KindASR:
		err = i.cfg.Audio.WriteText(ctx, res.Text, channel.TextTypeASR)
	case interpret.KindAST:
		err = i.cfg.Audio.WriteText(ctx, res.Text, channel.TextTypeAST)
	case interpret.KindAudio:
		err = i.cfg.Audio.Write(ctx, res.Speech, 0)
	}
	if err != nil {
		i.log.Error("relay failed", "kind", res.Kind, "error", err)
	}
}

// Destroy implements session.Session. Idempotent.
func (i *Interpreter) Destroy() {
	i.destroyOne.Do(func() {
		i.log.Info("destroying session")
		i.cfg.Client.Close()
		i.cfg.Audio.Close()
		i.cfg.Event.Close()
		i.tasks.Destroy()

		i.cfg.Metrics.SessionEnded(context.Background())
		if i.cfg.OnDestroy != nil {
			i.cfg.OnDestroy(i.id)
		}
	})
}
