// Package mock provides a test double for the interpret.Client interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/selene/pkg/provider/interpret"
)

// Client is a mock implementation of interpret.Client. Fed chunks are
// recorded and Results emits whatever the test pushes.
type Client struct {
	mu sync.Mutex

	// SetupErr, if non-nil, is returned from Setup.
	SetupErr error

	// Opts records the options passed to Setup.
	Opts interpret.Options

	// SessionID records the session id passed to Setup.
	SessionID string

	// Fed records every chunk passed to Feed in order.
	Fed [][]byte

	results chan interpret.Result
	once    sync.Once
}

var _ interpret.Client = (*Client)(nil)

// New creates a mock Client with a buffered result channel.
func New() *Client {
	return &Client{results: make(chan interpret.Result, 64)}
}

// Push queues a Result for the consumer.
func (c *Client) Push(r interpret.Result) {
	c.results <- r
}

// Finish closes the result channel, ending the consumer's loop.
func (c *Client) Finish() {
	c.once.Do(func() { close(c.results) })
}

// Setup implements interpret.Client.
func (c *Client) Setup(_ context.Context, sessionID string, opts interpret.Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SessionID = sessionID
	c.Opts = opts
	return c.SetupErr
}

// Feed implements interpret.Client.
func (c *Client) Feed(_ context.Context, chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
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

// Results implements interpret.Client.
func (c *Client) Results() <-chan interpret.Result { return c.results }

// Close implements interpret.Client.
func (c *Client) Close() error {
	c.Finish()
	return nil
}
