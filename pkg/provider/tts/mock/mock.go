// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/selene/pkg/provider/control"
	"github.com/MrWong99/selene/pkg/provider/tts"
)

// Call records a single invocation of Synthesize.
type Call struct {
	// Text is the full concatenated text drained from the text channel.
	Text string
	// Ctrl is the control bundle passed to Synthesize.
	Ctrl control.Bundle
	// Ref is the voice reference passed to Synthesize.
	Ref tts.Reference
}

// Provider is a mock implementation of tts.Provider. It drains the text
// channel completely, records the call, and then emits Audio chunk by chunk.
type Provider struct {
	mu sync.Mutex

	// Audio is the sequence of PCM chunks emitted per Synthesize call.
	Audio [][]byte

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// Calls records every invocation of Synthesize in order.
	Calls []Call
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text <-chan string, ctrl control.Bundle, ref tts.Reference) (<-chan []byte, error) {
	p.mu.Lock()
	if p.Err != nil {
		err := p.Err
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([][]byte, len(p.Audio))
	copy(chunks, p.Audio)
	p.mu.Unlock()

	out := make(chan []byte, len(chunks))
	go func() {
		defer close(out)

		var sb strings.Builder
		for t := range text {
			sb.WriteString(t)
		}
		p.mu.Lock()
		p.Calls = append(p.Calls, Call{Text: sb.String(), Ctrl: ctrl, Ref: ref})
		p.mu.Unlock()

		for _, c := range chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// CallCount returns how many times Synthesize was invoked.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastCall returns the most recent call, or a zero Call when none happened.
func (p *Provider) LastCall() Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return Call{}
	}
	return p.Calls[len(p.Calls)-1]
}
