package vad

import "sync"

// SampleRate is the fixed analysis rate. All mark indices count samples at
// this rate and the rolling buffer stores PCM16 at this rate.
const SampleRate = 16000

const (
	// DefaultLeftPadMS is the speech kept in front of a detected utterance
	// start, compensating for detector onset latency.
	DefaultLeftPadMS = 300

	// DefaultVoicedMSToInterrupt is how long continuous speech must run
	// before a speaking signal is emitted while the agent holds the floor.
	DefaultVoicedMSToInterrupt = 1000
)

// msToSamples converts a millisecond duration to a 16 kHz sample count.
func msToSamples(ms int) int {
	return ms * SampleRate / 1000
}

// Mark is one message from the detector. All indices are sample positions at
// 16 kHz since session start. Absent fields repeat the last observed value.
type Mark struct {
	Start   *int `json:"start"`
	End     *int `json:"end"`
	Current *int `json:"current"`
}

// Tracker turns the detector's raw marks into Results. It owns the rolling
// PCM buffer and the (start, end) pair of the last observation.
//
// The decision per mark:
//   - start > end means the user is speaking. A speaking Result is emitted
//     only once a positive end has been seen on an earlier mark and the run
//     of voiced samples (current - start) exceeds the interrupt threshold.
//   - start <= end means an utterance finalised. If the (start, end) pair
//     changed since the last observation the buffer slice
//     [max(0, start-leftPad)*2 : end*2] is emitted; a repeated pair is the
//     detector re-announcing old state and produces nothing.
//
// The stored pair is updated after every mark regardless of outcome.
// Safe for concurrent use.
type Tracker struct {
	mu               sync.Mutex
	data             []byte
	start, end       int
	sawEnd           bool
	leftPadSamples   int
	interruptSamples int
}

// NewTracker creates a Tracker. Zero or negative arguments select the
// defaults.
func NewTracker(leftPadMS, voicedMSToInterrupt int) *Tracker {
	if leftPadMS <= 0 {
		leftPadMS = DefaultLeftPadMS
	}
	if voicedMSToInterrupt <= 0 {
		voicedMSToInterrupt = DefaultVoicedMSToInterrupt
	}
	return &Tracker{
		start:            -1,
		end:              -1,
		leftPadSamples:   msToSamples(leftPadMS),
		interruptSamples: msToSamples(voicedMSToInterrupt),
	}
}

// Append adds a fed PCM chunk to the rolling buffer.
func (t *Tracker) Append(chunk []byte) {
	t.mu.Lock()
	t.data = append(t.data, chunk...)
	t.mu.Unlock()
}

// Observe applies one mark and returns the Result it produced, if any.
func (t *Tracker) Observe(m Mark) (Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start, end, current := t.start, t.end, t.end
	if m.Start != nil {
		start = *m.Start
	}
	if m.End != nil {
		end = *m.End
	}
	if m.Current != nil {
		current = *m.Current
	}

	var (
		res Result
		ok  bool
	)
	if start > end {
		if t.sawEnd && current-start > t.interruptSamples {
			res, ok = Result{UserSpeaking: true}, true
		}
	} else if start != t.start || end != t.end {
		lo := start - t.leftPadSamples
		if lo < 0 {
			lo = 0
		}
		hi := end * 2
		if hi > len(t.data) {
			hi = len(t.data)
		}
		if lo*2 < hi {
			utt := make([]byte, hi-lo*2)
			copy(utt, t.data[lo*2:hi])
			res, ok = Result{Utterance: utt}, true
		}
	}

	t.start, t.end = start, end
	if end > 0 {
		t.sawEnd = true
	}
	return res, ok
}
