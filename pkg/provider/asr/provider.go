// Package asr defines the Provider interface for automatic speech
// recognition backends. Recognition is one-shot: a finalised utterance goes
// in, a transcript comes out. Streaming partials are the detector's job, not
// the recognizer's.
//
// Implementations must be safe for concurrent use; a session may have
// several turns in flight during rapid barge-in.
package asr

import "context"

// Provider is the abstraction over any speech recognition backend.
type Provider interface {
	// Transcribe recognizes a finalised utterance. pcm is PCM16 mono at
	// 16 kHz. Returns the transcript, which may be empty for silence.
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}
