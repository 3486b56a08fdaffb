// Package vad defines the Client interface for Voice Activity Detection
// backends that segment a live microphone stream into utterances.
//
// Unlike a frame-level detector, a vad.Client is stateful over the whole
// session: it keeps a rolling copy of every PCM chunk it has been fed and
// announces two kinds of results on a single channel. A speaking signal says
// the user is talking over the agent and the current response should be
// abandoned. An utterance carries the finalised speech bytes, already sliced
// out of the rolling buffer with some leading padding, ready for recognition.
//
// Implementations must close the Results channel when the session ends.
// Feed and Results may be used from different goroutines.
package vad

import "context"

// Result is one detection outcome. Exactly one of the two aspects is
// meaningful: UserSpeaking true with a nil Utterance is a barge-in signal,
// UserSpeaking false with a non-nil Utterance is finalised speech.
type Result struct {
	// UserSpeaking reports that the user is talking right now and has been
	// for long enough to warrant interrupting the agent.
	UserSpeaking bool

	// Utterance is the finalised user speech as PCM16 mono at 16 kHz,
	// including the configured left padding. Nil for speaking signals.
	Utterance []byte
}

// Client is the abstraction over a voice activity detection session.
type Client interface {
	// Setup establishes the backend connection. Must be called once before
	// Feed.
	Setup(ctx context.Context) error

	// Feed submits a PCM16 mono 16 kHz chunk for analysis and appends it to
	// the rolling utterance buffer.
	Feed(ctx context.Context, chunk []byte) error

	// Results returns the channel of detection outcomes. The channel is
	// closed when the session ends or the backend disconnects.
	Results() <-chan Result

	// Close tears the session down and releases the backend connection.
	Close() error
}
