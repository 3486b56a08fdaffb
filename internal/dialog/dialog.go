// Package dialog drives live sessions: the full-duplex chat orchestrator,
// the echo loopback, and the simultaneous-interpretation relay. A session
// owns its transport channels and component clients; the server constructs
// one driver per /start_session call and registers it in the session store.
package dialog

import (
	"context"

	"github.com/MrWong99/selene/internal/channel"
)

// Agent status values announced over the event channel.
const (
	StatusListening = "listening"
	StatusThinking  = "thinking"
	StatusSpeaking  = "speaking"
)

// AudioChannel is the duplex audio transport a session driver writes to.
// *channel.Paced implements it for live sessions.
type AudioChannel interface {
	// Read returns the inbound microphone stream as 16 kHz mono PCM16
	// chunks. The channel closes on disconnect.
	Read(ctx context.Context) <-chan []byte

	// Write queues one synthesized PCM chunk tagged with the response
	// timestamp it belongs to.
	Write(ctx context.Context, pcm []byte, timestamp int64) error

	// WriteText sends a text frame (transcripts and translations).
	WriteText(ctx context.Context, text, textType string) error

	// Flush marks the current response complete.
	Flush()

	// Clear drops all queued but unsent audio.
	Clear()

	Close() error
}

// EventSender is the client notification surface a session driver announces
// status transitions on. *channel.Event implements it.
type EventSender interface {
	AgentStatusChanged(ctx context.Context, status string) error
	SetAvatar(ctx context.Context, avatar string) error
	Close() error
}

var (
	_ AudioChannel = (*channel.Paced)(nil)
	_ EventSender  = (*channel.Event)(nil)
)
