// Package mock provides a test double for the vad.Client interface.
//
// Tests drive the orchestrator by pushing Results directly:
//
//	m := mock.New()
//	m.Push(vad.Result{Utterance: speech})
//	m.Finish()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/selene/pkg/provider/vad"
)

// Client is a mock implementation of vad.Client. Fed chunks are recorded and
// Results emits whatever the test pushes.
type Client struct {
	mu sync.Mutex

	// SetupErr, if non-nil, is returned from Setup.
	SetupErr error

	// FeedErr, if non-nil, is returned from Feed.
	FeedErr error

	// Fed records every chunk passed to Feed in order.
	Fed [][]byte

	results chan vad.Result
	once    sync.Once
}

var _ vad.Client = (*Client)(nil)

// New creates a mock Client with a buffered result channel.
func New() *Client {
	return &Client{results: make(chan vad.Result, 64)}
}

// Push queues a Result for the consumer.
func (c *Client) Push(r vad.Result) {
	c.results <- r
}

// Finish closes the result channel, ending the consumer's loop.
func (c *Client) Finish() {
	c.once.Do(func() { close(c.results) })
}

// Setup implements vad.Client.
func (c *Client) Setup(context.Context) error { return c.SetupErr }

// Feed implements vad.Client.
func (c *Client) Feed(_ context.Context, chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FeedErr != nil {
		return c.FeedErr
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	c.Fed = append(c.Fed, cp)
	return nil
}

// FedCount returns how many chunks have been fed so far.
func (c *Client) FedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Fed)
}

// Results implements vad.Client.
func (c *Client) Results() <-chan vad.Result { return c.results }

// Close implements vad.Client.
func (c *Client) Close() error {
	c.Finish()
	return nil
}
