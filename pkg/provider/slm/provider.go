// Package slm defines the Provider interface for speech language models:
// chat models that accept raw user audio alongside text and stream a textual
// reply. The conversation history it consumes carries the original PCM of
// every user turn, so the model can listen to how something was said, not
// just what.
//
// Implementations must close the returned text channel when generation ends
// or ctx is cancelled, and must be safe for concurrent use.
package slm

import "context"

// Provider is the abstraction over any speech language model backend.
type Provider interface {
	// Stream sends the conversation history plus the new user utterance to
	// the model and returns a channel of incremental text chunks. utterance
	// is PCM16 mono at 16 kHz. The channel is closed when the reply is
	// complete or ctx is cancelled; callers must drain it.
	Stream(ctx context.Context, history []Message, utterance []byte) (<-chan string, error)
}
