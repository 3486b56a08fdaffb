package dialog

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/selene/internal/observe"
	"github.com/MrWong99/selene/internal/session"
	"github.com/MrWong99/selene/pkg/audio"
	"github.com/MrWong99/selene/pkg/provider/asr"
	"github.com/MrWong99/selene/pkg/provider/control"
	"github.com/MrWong99/selene/pkg/provider/slm"
	"github.com/MrWong99/selene/pkg/provider/tts"
	"github.com/MrWong99/selene/pkg/provider/vad"
)

// Config wires one chat session together. VAD, ASR, SLM, TTS, Audio and
// Event are required; the control clients, reference and metrics are
// optional.
type Config struct {
	SessionID string

	VAD vad.Client
	ASR asr.Provider
	SLM slm.Provider
	TTS tts.Provider

	// TTSControl decides the rendering hints (emotion, speed, timbre) for
	// each response. Nil leaves every hint at "default".
	TTSControl *control.Client

	// GateControl decides whether the agent should answer at all. Nil means
	// every utterance gets a response.
	GateControl *control.Client

	// Reference is the voice-cloning sample forwarded to synthesis.
	Reference tts.Reference

	Audio AudioChannel
	Event EventSender

	Log     *slog.Logger
	Metrics *observe.Metrics

	// OnDestroy is called once after teardown, with the session id. The
	// server uses it to drop the session from the store.
	OnDestroy func(id string)
}

// Orchestrator is the chat session driver. It pumps microphone audio into
// the VAD, reacts to speech boundaries, and runs one response pipeline per
// finalized utterance: transcription and language-model streaming in
// parallel, control decisions, then segment-wise synthesis into the paced
// egress channel. A new utterance or user speech over an active response
// cancels the in-flight pipeline.
type Orchestrator struct {
	id    string
	cfg   Config
	log   *slog.Logger
	tasks *session.Tasks

	// mic carries inbound chunks from the ingress pump (and injected
	// silence from MuteUser) to the VAD feeder.
	mic chan []byte

	mu         sync.Mutex
	status     string
	history    []slm.Message
	cancelResp context.CancelFunc
	respDone   chan struct{}

	destroyed  atomic.Bool
	destroyOne sync.Once
}

var _ session.Session = (*Orchestrator)(nil)

// New creates an Orchestrator. Call Start to bring the pumps up.
func New(parent context.Context, cfg Config) *Orchestrator {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("session", cfg.SessionID)
	return &Orchestrator{
		id:     cfg.SessionID,
		cfg:    cfg,
		log:    log,
		tasks:  session.NewTasks(parent, log),
		mic:    make(chan []byte, 64),
		status: StatusListening,
	}
}

// ID implements session.Session.
func (o *Orchestrator) ID() string { return o.id }

// Start connects the VAD and launches the session pumps. The audio and
// event WebSockets may attach later; the pumps wait for them.
func (o *Orchestrator) Start() error {
	ctx := o.tasks.Context()
	if err := o.cfg.VAD.Setup(ctx); err != nil {
		return err
	}
	o.cfg.Metrics.SessionStarted(ctx)
	o.log.Info("session started")

	o.tasks.Spawn("ingress", o.runIngress)
	o.tasks.Spawn("vad-feed", o.runFeeder)
	o.tasks.Spawn("dialog", o.runDialog)
	return nil
}

// runIngress moves microphone chunks from the audio channel into the mic
// queue. A closed read stream means the client disconnected; the whole
// session goes down with it.
func (o *Orchestrator) runIngress(ctx context.Context) error {
	in := o.cfg.Audio.Read(ctx)
	for chunk := range in {
		select {
		case o.mic <- chunk:
		case <-ctx.Done():
			return nil
		}
	}
	if ctx.Err() == nil {
		o.log.Info("client disconnected")
		go o.Destroy()
	}
	return nil
}

// runFeeder forwards mic chunks to the VAD.
func (o *Orchestrator) runFeeder(ctx context.Context) error {
	for {
		select {
		case chunk := <-o.mic:
			if err := o.cfg.VAD.Feed(ctx, chunk); err != nil {
				o.cfg.Metrics.RecordProviderError(ctx, "vad", "feed")
				o.log.Error("vad feed failed", "error", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// runDialog reacts to VAD results: barge-in on user speech over an active
// response, a new response pipeline per finalized utterance.
func (o *Orchestrator) runDialog(ctx context.Context) error {
	results := o.cfg.VAD.Results()
	for {
		select {
		case res, ok := <-results:
			if !ok {
				return nil
			}
			o.handleResult(ctx, res)
		case <-ctx.Done():
			return nil
		}
	}
}

func (o *Orchestrator) handleResult(ctx context.Context, res vad.Result) {
	if res.UserSpeaking {
		o.interrupt(ctx)
		return
	}
	if len(res.Utterance) == 0 {
		return
	}

	// A finalized utterance supersedes whatever is still playing.
	o.cancelResponse()

	respCtx, cancel := context.WithCancel(o.tasks.Context())
	done := make(chan struct{})
	o.mu.Lock()
	o.cancelResp = cancel
	o.respDone = done
	o.mu.Unlock()

	utterance := res.Utterance
	o.tasks.Spawn("respond", func(context.Context) error {
		defer close(done)
		defer cancel()
		o.respond(respCtx, utterance)
		return nil
	})
}

// interrupt handles the user speaking over an active response: the pipeline
// is cancelled, queued egress audio dropped, and the agent goes back to
// listening. User speech while already listening changes nothing.
func (o *Orchestrator) interrupt(ctx context.Context) {
	o.mu.Lock()
	active := o.status != StatusListening
	o.mu.Unlock()
	if !active {
		return
	}

	o.log.Info("barge-in, interrupting response")
	o.cfg.Metrics.RecordBargeIn(ctx, o.id)
	o.cancelResponse()
	o.setStatus(ctx, StatusListening)
}

// cancelResponse cancels the in-flight response pipeline, waits for it to
// unwind, and drops its unsent audio. No-op when nothing is in flight.
func (o *Orchestrator) cancelResponse() {
	o.mu.Lock()
	cancel, done := o.cancelResp, o.respDone
	o.cancelResp, o.respDone = nil, nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	o.cfg.Audio.Clear()
}

// respond runs one full response pipeline for a finalized utterance.
func (o *Orchestrator) respond(ctx context.Context, utterance []byte) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	met := o.cfg.Metrics
	met.RecordUtterance(ctx, o.id)
	o.setStatus(ctx, StatusThinking)
	timestamp := time.Now().UnixMilli()

	// The model sees the history as it was before this turn; the user turn
	// itself travels as audio alongside it.
	snapshot := o.snapshotHistory()

	var (
		reply   strings.Builder
		teeDone chan struct{}
	)
	defer func() {
		cancel()
		if teeDone != nil {
			<-teeDone
			if s := reply.String(); s != "" {
				o.appendHistory(slm.NewAssistantMessage(s))
			}
		}
		o.cfg.Audio.Flush()
		met.ObserveResponse(context.WithoutCancel(ctx), start)
	}()

	// Transcription and language-model streaming run in parallel. A failed
	// transcription degrades the turn (empty transcript); a failed stream
	// aborts it.
	var (
		transcript string
		tokens     <-chan string
	)
	var g errgroup.Group
	g.Go(func() error {
		asrStart := time.Now()
		t, err := o.cfg.ASR.Transcribe(ctx, utterance)
		if err != nil {
			met.RecordProviderError(ctx, "asr", "transcribe")
			o.log.Error("transcription failed", "error", err)
			return nil
		}
		met.ObserveASR(ctx, asrStart)
		transcript = t
		return nil
	})
	slmStart := time.Now()
	g.Go(func() error {
		ch, err := o.cfg.SLM.Stream(ctx, snapshot, utterance)
		if err != nil {
			met.RecordProviderError(ctx, "slm", "stream")
			return err
		}
		tokens = ch
		return nil
	})
	if err := g.Wait(); err != nil {
		o.log.Error("response aborted", "error", err)
		return
	}

	o.appendHistory(slm.NewUserAudioMessage(utterance, transcript))
	o.log.Info("user utterance", "transcript", transcript,
		"duration_ms", audio.BytesToMS(len(utterance), audio.DefaultSampleRate, 1))

	// Control decisions run on the fresh transcript, in parallel. Control
	// failures never block a response: Decide degrades to defaults.
	ttsBundle := control.Default()
	gate := control.Default()
	if o.cfg.TTSControl != nil || o.cfg.GateControl != nil {
		ctrlStart := time.Now()
		var cg errgroup.Group
		if o.cfg.TTSControl != nil {
			cg.Go(func() error {
				b, err := o.cfg.TTSControl.Decide(ctx, transcript)
				if err != nil {
					met.RecordProviderError(ctx, "control", "rendering")
					o.log.Error("rendering control failed", "error", err)
				}
				ttsBundle = b
				return nil
			})
		}
		if o.cfg.GateControl != nil {
			cg.Go(func() error {
				b, err := o.cfg.GateControl.Decide(ctx, transcript)
				if err != nil {
					met.RecordProviderError(ctx, "control", "gate")
					o.log.Error("gate control failed", "error", err)
				}
				gate = b
				return nil
			})
		}
		_ = cg.Wait()
		met.ObserveControl(ctx, ctrlStart)
	}
	if !gate.Respond() {
		o.log.Info("response withheld", "transcript", transcript)
		return
	}

	// Tee the token stream: every token feeds the conversation log, and is
	// forwarded to synthesis until the pipeline is cancelled. After a
	// cancellation the stream keeps draining into the log only, so the
	// history records what the model actually said.
	ttsIn := make(chan string, 32)
	teeDone = make(chan struct{})
	go func() {
		defer close(ttsIn)
		defer close(teeDone)
		forwarding := true
		for tok := range tokens {
			reply.WriteString(tok)
			if !forwarding {
				continue
			}
			select {
			case ttsIn <- tok:
			case <-ctx.Done():
				forwarding = false
			}
		}
		met.ObserveSLM(context.WithoutCancel(ctx), slmStart)
	}()

	ttsStart := time.Now()
	audioCh, err := o.cfg.TTS.Synthesize(ctx, ttsIn, ttsBundle, o.cfg.Reference)
	if err != nil {
		met.RecordProviderError(ctx, "tts", "synthesize")
		o.log.Error("synthesis failed", "error", err)
		return
	}

	// The speaking transition waits for the first synthesized chunk: a
	// backend that fails mid-stream produces zero chunks, and the client
	// must not hear about a response that never plays.
	speaking := false
	for chunk := range audioCh {
		if ctx.Err() != nil {
			break
		}
		if !speaking {
			speaking = true
			if err := o.cfg.Event.SetAvatar(ctx, ttsBundle.Timbre); err != nil {
				o.log.Debug("avatar event not delivered", "error", err)
			}
			o.setStatus(ctx, StatusSpeaking)
		}
		if err := o.cfg.Audio.Write(ctx, chunk, timestamp); err != nil {
			o.log.Error("egress write failed", "error", err)
			break
		}
	}
	met.ObserveTTS(context.WithoutCancel(ctx), ttsStart)
}

// HandleFlush is wired to the paced channel's OnFlush callback: once a
// finished response has fully drained to the client, the agent is listening
// again.
func (o *Orchestrator) HandleFlush() {
	if o.destroyed.Load() {
		return
	}
	o.setStatus(o.tasks.Context(), StatusListening)
}

// MuteUser injects one second of silence into the microphone stream, giving
// the VAD the trailing quiet it needs to finalize an utterance when the
// client cuts its capture short.
func (o *Orchestrator) MuteUser() {
	o.log.Info("user muted")
	silence := make([]byte, audio.MSToBytes(1000, audio.DefaultSampleRate, 1))
	select {
	case o.mic <- silence:
	case <-o.tasks.Context().Done():
	}
}

// Status returns the current agent status.
func (o *Orchestrator) Status() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

func (o *Orchestrator) setStatus(ctx context.Context, status string) {
	o.mu.Lock()
	o.status = status
	o.mu.Unlock()
	if err := o.cfg.Event.AgentStatusChanged(ctx, status); err != nil {
		o.log.Debug("status event not delivered", "status", status, "error", err)
	}
}

func (o *Orchestrator) snapshotHistory() []slm.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := make([]slm.Message, len(o.history))
	copy(snap, o.history)
	return snap
}

func (o *Orchestrator) appendHistory(msg slm.Message) {
	o.mu.Lock()
	o.history = append(o.history, msg)
	o.mu.Unlock()
}

// History returns a copy of the conversation log.
func (o *Orchestrator) History() []slm.Message {
	return o.snapshotHistory()
}

// Destroy implements session.Session. It tears the session down: component
// connections close, pumps unwind, and the store is notified. Idempotent.
func (o *Orchestrator) Destroy() {
	o.destroyOne.Do(func() {
		o.destroyed.Store(true)
		o.log.Info("destroying session")

		o.cfg.VAD.Close()
		o.cfg.Audio.Close()
		o.cfg.Event.Close()
		o.tasks.Destroy()

		o.cfg.Metrics.SessionEnded(context.Background())
		if o.cfg.OnDestroy != nil {
			o.cfg.OnDestroy(o.id)
		}
	})
}
