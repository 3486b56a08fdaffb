package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/selene/pkg/provider/control"
)

// Event names sent to the client.
const (
	EventAgentStatusChanged = "agent_status_changed"
	EventSetAvatar          = "set_avatar"
)

// Event is the client-facing notification channel. Frames are JSON objects
// {"event": name, "data": {...}}.
type Event struct {
	mu   sync.Mutex
	conn *websocket.Conn

	attached  chan struct{}
	closed    chan struct{}
	attachOne sync.Once
	closeOne  sync.Once

	// lastAvatar suppresses repeated set_avatar emissions for the same
	// rendering.
	lastAvatar string
}

// NewEvent creates an unattached event channel.
func NewEvent() *Event {
	return &Event{
		attached: make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

// Attach binds the channel to an accepted WebSocket. Only the first attach
// takes effect.
func (e *Event) Attach(conn *websocket.Conn) {
	e.attachOne.Do(func() {
		e.mu.Lock()
		e.conn = conn
		e.mu.Unlock()
		close(e.attached)
	})
}

// Attached is closed once the client's WebSocket is bound.
func (e *Event) Attached() <-chan struct{} { return e.attached }

// Closed is closed when the channel shuts down.
func (e *Event) Closed() <-chan struct{} { return e.closed }

// eventFrame is the wire shape of one notification.
type eventFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// SendEvent sends one notification. Returns an error when the client has not
// attached its event WebSocket yet; callers log and carry on.
func (e *Event) SendEvent(ctx context.Context, name string, data any) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return errors.New("channel: event websocket not attached")
	}
	raw, err := json.Marshal(eventFrame{Event: name, Data: data})
	if err != nil {
		return fmt.Errorf("channel: marshal event: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		return fmt.Errorf("channel: send event: %w", err)
	}
	return nil
}

// AgentStatusChanged announces a status transition with a millisecond
// timestamp.
func (e *Event) AgentStatusChanged(ctx context.Context, status string) error {
	return e.SendEvent(ctx, EventAgentStatusChanged, map[string]any{
		"timestamp": time.Now().UnixMilli(),
		"status":    status,
	})
}

// SetAvatar announces the avatar for the current response. Emitted only when
// the rendering differs from "default" and from the previous emission.
func (e *Event) SetAvatar(ctx context.Context, avatar string) error {
	e.mu.Lock()
	skip := avatar == control.DefaultValue || avatar == e.lastAvatar
	if !skip {
		e.lastAvatar = avatar
	}
	e.mu.Unlock()
	if skip {
		return nil
	}
	return e.SendEvent(ctx, EventSetAvatar, map[string]any{"avatar": avatar})
}

// Close shuts the channel down and releases the WebSocket.
func (e *Event) Close() error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "session closed")
	}
	e.closeOne.Do(func() { close(e.closed) })
	return nil
}
