// Package remote provides a vad.Client backed by a remote voice activity
// detection service over a streaming WebSocket. Binary PCM16 mono 16 kHz
// frames go up; JSON marks with sample indices come back.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/selene/pkg/provider/vad"
)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithLeftPadMS sets the padding kept in front of each detected utterance.
func WithLeftPadMS(ms int) Option {
	return func(c *Client) {
		c.leftPadMS = ms
	}
}

// WithVoicedMSToInterrupt sets how long the user must speak before a
// barge-in signal is emitted.
func WithVoicedMSToInterrupt(ms int) Option {
	return func(c *Client) {
		c.voicedMS = ms
	}
}

// Client implements vad.Client against a remote detection service.
type Client struct {
	url       string
	leftPadMS int
	voicedMS  int

	conn    *websocket.Conn
	tracker *vad.Tracker
	results chan vad.Result
	audio   chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

var _ vad.Client = (*Client)(nil)

// New creates a Client for the given WebSocket URL. The connection is not
// opened until Setup.
func New(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.New("vad: url must not be empty")
	}
	c := &Client{
		url:     url,
		results: make(chan vad.Result, 16),
		audio:   make(chan []byte, 256),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.tracker = vad.NewTracker(c.leftPadMS, c.voicedMS)
	return c, nil
}

// Setup implements vad.Client. It dials the detection service and starts the
// read and write pumps.
func (c *Client) Setup(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("vad: dial %s: %w", c.url, err)
	}
	// Utterances can span many seconds of 16 kHz PCM.
	conn.SetReadLimit(16 << 20)
	c.conn = conn

	c.wg.Add(2)
	go c.readLoop(ctx)
	go c.writeLoop(ctx)
	return nil
}

// Feed implements vad.Client. The chunk is appended to the rolling utterance
// buffer and queued for delivery to the detector.
func (c *Client) Feed(ctx context.Context, chunk []byte) error {
	select {
	case <-c.done:
		return errors.New("vad: client is closed")
	default:
	}
	c.tracker.Append(chunk)
	select {
	case c.audio <- chunk:
		return nil
	case <-c.done:
		return errors.New("vad: client is closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results implements vad.Client.
func (c *Client) Results() <-chan vad.Result { return c.results }

// Close implements vad.Client.
func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close(websocket.StatusNormalClosure, "session closed")
		}
		c.wg.Wait()
	})
	return nil
}

// writeLoop drains the audio channel into binary WebSocket messages.
func (c *Client) writeLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case chunk := <-c.audio:
			if err := c.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// readLoop parses detector marks and forwards tracker decisions.
func (c *Client) readLoop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.results)

	for {
		_, msg, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		var m vad.Mark
		if err := json.Unmarshal(msg, &m); err != nil {
			continue
		}
		res, ok := c.tracker.Observe(m)
		if !ok {
			continue
		}
		select {
		case c.results <- res:
		case <-c.done:
			return
		}
	}
}
