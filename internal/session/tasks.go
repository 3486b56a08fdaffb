package session

import (
	"context"
	"log/slog"
	"sync"
)

// Tasks is a per-session registry of background goroutines. Every task runs
// under the session context; Destroy cancels that context and waits for all
// tasks to return. Panics are recovered and logged so one broken turn cannot
// take the process down, and errors are logged rather than propagated since
// nobody is left to receive them once the spawning call has returned.
type Tasks struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *slog.Logger

	mu        sync.Mutex
	destroyed bool
}

// NewTasks creates a registry bound to a child of parent.
func NewTasks(parent context.Context, log *slog.Logger) *Tasks {
	ctx, cancel := context.WithCancel(parent)
	return &Tasks{ctx: ctx, cancel: cancel, log: log}
}

// Context returns the registry's context. It is cancelled by Destroy.
func (t *Tasks) Context() context.Context { return t.ctx }

// Spawn runs fn in a registered goroutine. name labels log output. Spawn
// after Destroy is a no-op.
func (t *Tasks) Spawn(name string, fn func(ctx context.Context) error) {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				t.log.Error("task panicked", "task", name, "panic", r)
			}
		}()
		if err := fn(t.ctx); err != nil && t.ctx.Err() == nil {
			t.log.Error("task failed", "task", name, "error", err)
		}
	}()
}

// Destroy cancels the registry context and waits for every task to return.
// Idempotent.
func (t *Tasks) Destroy() {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		t.wg.Wait()
		return
	}
	t.destroyed = true
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}
