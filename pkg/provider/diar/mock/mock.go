// Package mock provides a test double for the diar.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/selene/pkg/provider/diar"
)

// Provider is a mock implementation of diar.Provider.
// Set Map and Err before use; Calls counts the utterances received.
type Provider struct {
	mu sync.Mutex

	// Map is returned by Attribute when Err is nil.
	Map diar.Speakers

	// Err, if non-nil, is returned as the error from Attribute.
	Err error

	// Calls counts invocations of Attribute.
	Calls int
}

var _ diar.Provider = (*Provider)(nil)

// Attribute implements diar.Provider.
func (p *Provider) Attribute(context.Context, []byte) (diar.Speakers, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls++
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Map, nil
}
