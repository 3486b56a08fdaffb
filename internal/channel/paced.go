package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/selene/pkg/audio"
)

// DefaultChunkMS is the egress cadence when the session config does not
// override it.
const DefaultChunkMS = 100

// Paced wraps an Audio channel with wall-clock pacing. Synthesized audio is
// appended to a queue and a ticker drains it in fixed chunks, which decouples
// synthesis burstiness from network jitter and makes Clear a cheap atomic
// barge-in: bytes still in the queue are simply never sent.
//
// Flush marks the current response as complete; once the queue drains after
// a flush the OnFlush callback fires, exactly once per flush.
type Paced struct {
	*Audio

	chunkMS    int
	chunkBytes int

	queue   audio.ByteQueue
	flushed atomic.Bool

	// resetConv asks the ticker to drop audio buffered in the write-side
	// conversion. Set by Clear; consumed on the next tick so the resampler
	// is only ever touched from the ticker goroutine.
	resetConv atomic.Bool

	// timestamp of the response currently being drained.
	timestamp atomic.Int64

	// OnFlush is invoked by the ticker when a flushed response has fully
	// drained. Set once at session creation, before Start.
	OnFlush func()

	stopOne sync.Once
	stop    chan struct{}
}

// NewPaced wraps base with a ticker draining chunkMS-sized chunks. Zero or
// negative chunkMS selects the default of 100 ms.
func NewPaced(base *Audio, chunkMS int) *Paced {
	if chunkMS <= 0 {
		chunkMS = DefaultChunkMS
	}
	cfg := base.cfg
	// The queue holds synthesizer-rate mono audio; conversion to the client
	// format happens at send time inside Audio.Write. Chunk size must match
	// the queue's rate or each tick drains more or less than chunkMS of
	// wall clock.
	return &Paced{
		Audio:      base,
		chunkMS:    chunkMS,
		chunkBytes: audio.MSToBytes(chunkMS, cfg.WriteSrcRate, 1),
		stop:       make(chan struct{}),
	}
}

// Start launches the ticker. Call once, after the session is created; the
// ticker waits for the WebSocket to attach before sending anything.
func (p *Paced) Start(ctx context.Context) {
	go p.loop(ctx)
}

// Write appends synthesized PCM to the egress queue. The write also clears
// the flushed flag: new audio means the previous flush is superseded.
func (p *Paced) Write(_ context.Context, pcm []byte, timestamp int64) error {
	p.timestamp.Store(timestamp)
	p.flushed.Store(false)
	p.queue.Append(pcm)
	return nil
}

// Flush marks the current response as complete. When the queue drains the
// ticker fires OnFlush once.
func (p *Paced) Flush() {
	p.flushed.Store(true)
}

// Clear drops all queued but unsent audio, including the tail buffered in
// the write-side conversion.
func (p *Paced) Clear() {
	p.queue.Clear()
	p.resetConv.Store(true)
}

// Close stops the ticker and shuts the underlying channel down.
func (p *Paced) Close() error {
	p.stopOne.Do(func() { close(p.stop) })
	return p.Audio.Close()
}

func (p *Paced) loop(ctx context.Context) {
	select {
	case <-p.Attached():
	case <-ctx.Done():
		return
	case <-p.stop:
		return
	case <-p.Closed():
		return
	}

	ticker := time.NewTicker(time.Duration(p.chunkMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.tick(ctx)
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-p.Closed():
			return
		}
	}
}

// tick sends one chunk if available, or fires the pending flush when the
// queue has drained.
func (p *Paced) tick(ctx context.Context) {
	if p.resetConv.CompareAndSwap(true, false) {
		p.Audio.resetWriteConversion()
	}
	chunk := p.queue.Pop(p.chunkBytes)
	if len(chunk) > 0 {
		// Send errors surface as a disconnect on the next read; pacing
		// carries on until the channel closes.
		_ = p.Audio.Write(ctx, chunk, p.timestamp.Load())
		return
	}
	if p.flushed.CompareAndSwap(true, false) && p.OnFlush != nil {
		p.OnFlush()
	}
}
