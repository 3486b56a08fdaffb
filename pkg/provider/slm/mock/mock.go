// Package mock provides a test double for the slm.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/selene/pkg/provider/slm"
)

// Call records a single invocation of Stream.
type Call struct {
	// History is the conversation history passed to Stream.
	History []slm.Message
	// Utterance is the PCM payload passed to Stream.
	Utterance []byte
}

// Provider is a mock implementation of slm.Provider.
// The channel returned by Stream emits Chunks in order and then closes.
type Provider struct {
	mu sync.Mutex

	// Chunks is the sequence of text chunks emitted per Stream call.
	Chunks []string

	// Err, if non-nil, is returned as the error from Stream.
	Err error

	// Calls records every invocation of Stream in order.
	Calls []Call
}

var _ slm.Provider = (*Provider)(nil)

// Stream implements slm.Provider.
func (p *Provider) Stream(ctx context.Context, history []slm.Message, utterance []byte) (<-chan string, error) {
	p.mu.Lock()
	if p.Err != nil {
		err := p.Err
		p.mu.Unlock()
		return nil, err
	}
	snapshot := make([]slm.Message, len(history))
	copy(snapshot, history)
	utt := make([]byte, len(utterance))
	copy(utt, utterance)
	p.Calls = append(p.Calls, Call{History: snapshot, Utterance: utt})
	chunks := make([]string, len(p.Chunks))
	copy(chunks, p.Chunks)
	p.mu.Unlock()

	ch := make(chan string, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// CallCount returns how many times Stream was invoked.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// CallAt returns the i-th recorded call, or a zero Call when out of range.
func (p *Provider) CallAt(i int) Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.Calls) {
		return Call{}
	}
	return p.Calls[i]
}
