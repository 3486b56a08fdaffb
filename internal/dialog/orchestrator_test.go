package dialog_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/selene/internal/dialog"
	"github.com/MrWong99/selene/pkg/provider/control"
	controlmock "github.com/MrWong99/selene/pkg/provider/control/mock"
	"github.com/MrWong99/selene/pkg/provider/tts"
	"github.com/MrWong99/selene/pkg/provider/vad"

	asrmock "github.com/MrWong99/selene/pkg/provider/asr/mock"
	slmmock "github.com/MrWong99/selene/pkg/provider/slm/mock"
	ttsmock "github.com/MrWong99/selene/pkg/provider/tts/mock"
	vadmock "github.com/MrWong99/selene/pkg/provider/vad/mock"
)

// fakeAudio is an in-memory AudioChannel. The test injects microphone chunks
// through in and inspects what the session wrote back.
type fakeAudio struct {
	in chan []byte

	mu         sync.Mutex
	written    [][]byte
	timestamps []int64
	texts      []textFrame
	flushes    int
	clears     int
	closed     bool
}

type textFrame struct {
	Text string
	Type string
}

func newFakeAudio() *fakeAudio {
	return &fakeAudio{in: make(chan []byte, 64)}
}

func (f *fakeAudio) Read(ctx context.Context) <-chan []byte {
	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for {
			select {
			case chunk, ok := <-f.in:
				if !ok {
					return
				}
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (f *fakeAudio) Write(_ context.Context, pcm []byte, timestamp int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	f.written = append(f.written, cp)
	f.timestamps = append(f.timestamps, timestamp)
	return nil
}

func (f *fakeAudio) WriteText(_ context.Context, text, textType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, textFrame{Text: text, Type: textType})
	return nil
}

func (f *fakeAudio) Flush() {
	f.mu.Lock()
	f.flushes++
	f.mu.Unlock()
}

func (f *fakeAudio) Clear() {
	f.mu.Lock()
	f.clears++
	f.mu.Unlock()
}

func (f *fakeAudio) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeAudio) writtenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

func (f *fakeAudio) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}

func (f *fakeAudio) flushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushes
}

// fakeEvent records status transitions and avatar announcements.
type fakeEvent struct {
	mu       sync.Mutex
	statuses []string
	avatars  []string
	closed   bool
}

func (f *fakeEvent) AgentStatusChanged(_ context.Context, status string) error {
	f.mu.Lock()
	f.statuses = append(f.statuses, status)
	f.mu.Unlock()
	return nil
}

func (f *fakeEvent) SetAvatar(_ context.Context, avatar string) error {
	f.mu.Lock()
	f.avatars = append(f.avatars, avatar)
	f.mu.Unlock()
	return nil
}

func (f *fakeEvent) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeEvent) statusLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.statuses...)
}

func (f *fakeEvent) avatarCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.avatars)
}

// stallingTTS emits audio until its context is cancelled, keeping a response
// active for as long as the test needs it.
type stallingTTS struct{}

func (stallingTTS) Synthesize(ctx context.Context, text <-chan string, _ control.Bundle, _ tts.Reference) (<-chan []byte, error) {
	out := make(chan []byte, 4)
	go func() {
		defer close(out)
		go func() {
			for range text {
			}
		}()
		for {
			select {
			case out <- make([]byte, 320):
			case <-ctx.Done():
				return
			}
			select {
			case <-time.After(5 * time.Millisecond):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func TestOrchestrator_RespondsToUtterance(t *testing.T) {
	t.Parallel()

	vadc := vadmock.New()
	asrp := &asrmock.Provider{Transcript: "what is the weather"}
	slmp := &slmmock.Provider{Chunks: []string{"Sunny ", "all ", "week."}}
	ttsp := &ttsmock.Provider{Audio: [][]byte{make([]byte, 640), make([]byte, 640)}}
	audioCh := newFakeAudio()
	events := &fakeEvent{}

	o := dialog.New(context.Background(), dialog.Config{
		SessionID: "sess1",
		VAD:       vadc,
		ASR:       asrp,
		SLM:       slmp,
		TTS:       ttsp,
		Audio:     audioCh,
		Event:     events,
		Log:       quietLogger(),
	})
	if err := o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer o.Destroy()

	vadc.Push(vad.Result{Utterance: make([]byte, 16000)})

	waitFor(t, "synthesized audio", func() bool { return audioCh.writtenCount() == 2 })
	waitFor(t, "flush", func() bool { return audioCh.flushCount() >= 1 })

	statuses := events.statusLog()
	if !contains(statuses, dialog.StatusThinking) || !contains(statuses, dialog.StatusSpeaking) {
		t.Errorf("statuses = %v, want thinking and speaking", statuses)
	}

	if got := ttsp.LastCall().Text; got != "Sunny all week." {
		t.Errorf("synthesized text = %q", got)
	}

	hist := o.History()
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want user and assistant turn", len(hist))
	}
	if hist[0].Contents == nil || hist[0].Contents[0].Transcript != "what is the weather" {
		t.Errorf("user turn = %+v", hist[0])
	}
	if hist[1].Text != "Sunny all week." {
		t.Errorf("assistant turn = %q", hist[1].Text)
	}

	// The drained flush hands the turn back to the user.
	o.HandleFlush()
	if got := o.Status(); got != dialog.StatusListening {
		t.Errorf("status after flush = %q", got)
	}
}

func TestOrchestrator_NoSpeakingWhenSynthesisYieldsNoAudio(t *testing.T) {
	t.Parallel()

	vadc := vadmock.New()
	// A backend failing upstream closes the audio stream without a chunk.
	ttsp := &ttsmock.Provider{}
	audioCh := newFakeAudio()
	events := &fakeEvent{}

	o := dialog.New(context.Background(), dialog.Config{
		SessionID: "sess7",
		VAD:       vadc,
		ASR:       &asrmock.Provider{Transcript: "anything"},
		SLM:       &slmmock.Provider{Chunks: []string{"Unspoken reply."}},
		TTS:       ttsp,
		Audio:     audioCh,
		Event:     events,
		Log:       quietLogger(),
	})
	if err := o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer o.Destroy()

	vadc.Push(vad.Result{Utterance: make([]byte, 16000)})

	waitFor(t, "flush", func() bool { return audioCh.flushCount() >= 1 })
	waitFor(t, "synthesis call", func() bool { return ttsp.CallCount() == 1 })

	statuses := events.statusLog()
	if !contains(statuses, dialog.StatusThinking) {
		t.Errorf("statuses = %v, want thinking", statuses)
	}
	if contains(statuses, dialog.StatusSpeaking) {
		t.Errorf("statuses = %v, speaking announced for a response with no audio", statuses)
	}
	if got := events.avatarCount(); got != 0 {
		t.Errorf("avatar announced %d times for a response with no audio", got)
	}
	if got := audioCh.writtenCount(); got != 0 {
		t.Errorf("audio written = %d chunks, want 0", got)
	}
}

func TestOrchestrator_GateWithholdsResponse(t *testing.T) {
	t.Parallel()

	vadc := vadmock.New()
	ttsp := &ttsmock.Provider{Audio: [][]byte{make([]byte, 640)}}
	gate := control.NewClient(&controlmock.Completer{Response: `{"response": false}`}, "gate prompt")
	audioCh := newFakeAudio()

	o := dialog.New(context.Background(), dialog.Config{
		SessionID:   "sess2",
		VAD:         vadc,
		ASR:         &asrmock.Provider{Transcript: "talking to someone else"},
		SLM:         &slmmock.Provider{Chunks: []string{"Should not be spoken."}},
		TTS:         ttsp,
		GateControl: gate,
		Audio:       audioCh,
		Event:       &fakeEvent{},
		Log:         quietLogger(),
	})
	if err := o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer o.Destroy()

	vadc.Push(vad.Result{Utterance: make([]byte, 16000)})

	waitFor(t, "flush", func() bool { return audioCh.flushCount() >= 1 })

	if got := audioCh.writtenCount(); got != 0 {
		t.Errorf("audio written for a withheld response: %d chunks", got)
	}
	if ttsp.CallCount() != 0 {
		t.Error("synthesis invoked for a withheld response")
	}

	// The user turn still lands in the history; no assistant turn follows.
	hist := o.History()
	if len(hist) != 1 {
		t.Fatalf("history length = %d, want just the user turn", len(hist))
	}
}

func TestOrchestrator_BargeInCancelsResponse(t *testing.T) {
	t.Parallel()

	vadc := vadmock.New()
	audioCh := newFakeAudio()
	events := &fakeEvent{}

	o := dialog.New(context.Background(), dialog.Config{
		SessionID: "sess3",
		VAD:       vadc,
		ASR:       &asrmock.Provider{Transcript: "tell me a story"},
		SLM:       &slmmock.Provider{Chunks: []string{"Once upon a time."}},
		TTS:       stallingTTS{},
		Audio:     audioCh,
		Event:     events,
		Log:       quietLogger(),
	})
	if err := o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer o.Destroy()

	vadc.Push(vad.Result{Utterance: make([]byte, 16000)})
	waitFor(t, "speaking status", func() bool { return o.Status() == dialog.StatusSpeaking })
	waitFor(t, "some audio", func() bool { return audioCh.writtenCount() > 0 })

	vadc.Push(vad.Result{UserSpeaking: true})

	waitFor(t, "listening status", func() bool { return o.Status() == dialog.StatusListening })
	if got := audioCh.clearCount(); got == 0 {
		t.Error("queued egress audio was not cleared on barge-in")
	}

	// The interrupted reply is still logged so the model remembers it.
	waitFor(t, "assistant turn", func() bool { return len(o.History()) == 2 })
}

func TestOrchestrator_NewUtteranceSupersedesResponse(t *testing.T) {
	t.Parallel()

	vadc := vadmock.New()
	asrp := &asrmock.Provider{Transcript: "hello"}
	slmp := &slmmock.Provider{Chunks: []string{"Hi."}}
	audioCh := newFakeAudio()

	o := dialog.New(context.Background(), dialog.Config{
		SessionID: "sess4",
		VAD:       vadc,
		ASR:       asrp,
		SLM:       slmp,
		TTS:       stallingTTS{},
		Audio:     audioCh,
		Event:     &fakeEvent{},
		Log:       quietLogger(),
	})
	if err := o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer o.Destroy()

	vadc.Push(vad.Result{Utterance: make([]byte, 16000)})
	waitFor(t, "speaking status", func() bool { return o.Status() == dialog.StatusSpeaking })

	vadc.Push(vad.Result{Utterance: make([]byte, 8000)})

	waitFor(t, "second model call", func() bool { return slmp.CallCount() == 2 })
	if got := audioCh.clearCount(); got == 0 {
		t.Error("superseded response audio was not cleared")
	}

	// The second turn sees the completed first exchange.
	if got := len(slmp.CallAt(1).History); got != 2 {
		t.Errorf("second turn history length = %d, want 2", got)
	}
}

func TestOrchestrator_MuteUserInjectsSilence(t *testing.T) {
	t.Parallel()

	vadc := vadmock.New()

	o := dialog.New(context.Background(), dialog.Config{
		SessionID: "sess5",
		VAD:       vadc,
		ASR:       &asrmock.Provider{},
		SLM:       &slmmock.Provider{},
		TTS:       &ttsmock.Provider{},
		Audio:     newFakeAudio(),
		Event:     &fakeEvent{},
		Log:       quietLogger(),
	})
	if err := o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer o.Destroy()

	o.MuteUser()

	waitFor(t, "silence fed to vad", func() bool { return vadc.FedCount() == 1 })
	// One second of PCM16 mono at 16 kHz.
	if got := len(vadc.Fed[0]); got != 32000 {
		t.Errorf("silence length = %d bytes, want 32000", got)
	}
}

func TestOrchestrator_DisconnectDestroysSession(t *testing.T) {
	t.Parallel()

	vadc := vadmock.New()
	audioCh := newFakeAudio()

	destroyed := make(chan string, 1)
	o := dialog.New(context.Background(), dialog.Config{
		SessionID: "sess6",
		VAD:       vadc,
		ASR:       &asrmock.Provider{},
		SLM:       &slmmock.Provider{},
		TTS:       &ttsmock.Provider{},
		Audio:     audioCh,
		Event:     &fakeEvent{},
		Log:       quietLogger(),
		OnDestroy: func(id string) { destroyed <- id },
	})
	if err := o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The client going away ends the read stream.
	close(audioCh.in)

	select {
	case id := <-destroyed:
		if id != "sess6" {
			t.Errorf("destroyed id = %q", id)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("session was not destroyed on disconnect")
	}

	// Destroy is idempotent.
	o.Destroy()
}
