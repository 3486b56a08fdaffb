// Package mock provides a test double for the control.Completer interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/selene/pkg/provider/control"
)

// Call records a single invocation of Complete.
type Call struct {
	// System is the system instruction passed to Complete.
	System string
	// User is the transcript passed to Complete.
	User string
}

// Completer is a mock implementation of control.Completer.
// Set Response and Err before use; Calls records every invocation.
type Completer struct {
	mu sync.Mutex

	// Response is returned by Complete when Err is nil.
	Response string

	// Err, if non-nil, is returned as the error from Complete.
	Err error

	// Calls records every invocation of Complete in order.
	Calls []Call
}

var _ control.Completer = (*Completer)(nil)

// Complete implements control.Completer.
func (c *Completer) Complete(_ context.Context, system, user string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, Call{System: system, User: user})
	if c.Err != nil {
		return "", c.Err
	}
	return c.Response, nil
}
