package audio

import "sync"

// ByteQueue is an unbounded FIFO of raw PCM bytes. The paced egress uses one
// as its holding buffer: the orchestrator appends bursty TTS output on one
// goroutine while the ticker pops fixed-size chunks on another, so all
// operations are mutex-guarded.
type ByteQueue struct {
	mu  sync.Mutex
	buf []byte
}

// Append adds data to the tail of the queue. The input slice is copied.
func (q *ByteQueue) Append(data []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = append(q.buf, data...)
}

// Pop removes and returns up to n bytes from the head of the queue. It never
// blocks; on underflow it returns whatever is available, possibly nil.
func (q *ByteQueue) Pop(n int) []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || len(q.buf) == 0 {
		return nil
	}
	if n > len(q.buf) {
		n = len(q.buf)
	}
	out := make([]byte, n)
	copy(out, q.buf[:n])
	// Copy the remainder to a fresh slice so popped bytes do not pin the
	// old backing array for the lifetime of the session.
	rest := make([]byte, len(q.buf)-n)
	copy(rest, q.buf[n:])
	q.buf = rest
	return out
}

// Peek returns up to n bytes from the head without removing them.
func (q *ByteQueue) Peek(n int) []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || len(q.buf) == 0 {
		return nil
	}
	if n > len(q.buf) {
		n = len(q.buf)
	}
	out := make([]byte, n)
	copy(out, q.buf[:n])
	return out
}

// Len returns the number of buffered bytes.
func (q *ByteQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Clear discards all buffered bytes. Barge-in uses this to drop agent audio
// that was produced but not yet sent.
func (q *ByteQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = nil
}
