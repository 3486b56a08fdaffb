// Package mock provides a test double for the asr.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/selene/pkg/provider/asr"
)

// Provider is a mock implementation of asr.Provider.
// Set Transcript and Err before use; Calls records every utterance received.
type Provider struct {
	mu sync.Mutex

	// Transcript is returned by Transcribe when Err is nil.
	Transcript string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records every pcm payload passed to Transcribe in order.
	Calls [][]byte
}

var _ asr.Provider = (*Provider)(nil)

// Transcribe implements asr.Provider.
func (p *Provider) Transcribe(_ context.Context, pcm []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	p.Calls = append(p.Calls, cp)
	if p.Err != nil {
		return "", p.Err
	}
	return p.Transcript, nil
}
