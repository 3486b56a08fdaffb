// Package tts defines the Provider interface for streaming text-to-speech
// backends and the sentence segmenter that feeds them.
//
// Synthesis is incremental on both sides: text arrives as a live token
// stream from the language model and leaves as a stream of PCM16 chunks.
// The segmenter batches tokens into prosodically sensible requests so the
// synthesizer never sees a half word, while the first audible audio still
// starts after one sentence rather than after the whole reply.
package tts

import (
	"context"

	"github.com/MrWong99/selene/pkg/provider/control"
)

// Reference is the voice-cloning reference for one response: the user's own
// finalised utterance and its transcript. Backends that support cloning
// condition the synthetic voice on it; others ignore it.
type Reference struct {
	// Speech is the reference PCM16 mono 16 kHz audio. May be nil.
	Speech []byte

	// Transcript is the recognized text of Speech.
	Transcript string
}

// Provider is the abstraction over any streaming synthesis backend.
type Provider interface {
	// Synthesize consumes the live text stream and returns a channel of
	// PCM16 chunks. ctrl carries the per-turn rendering hints; ref the
	// voice-cloning reference. The audio channel is closed when the text
	// channel is drained and all audio has been emitted, or when ctx is
	// cancelled. Callers must drain the channel.
	Synthesize(ctx context.Context, text <-chan string, ctrl control.Bundle, ref Reference) (<-chan []byte, error)
}
