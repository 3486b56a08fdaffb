// Package session tracks live dialog sessions and their background tasks.
//
// A session is whatever drives one connected client: the chat orchestrator,
// the echo loopback, or the interpretation driver. The Store is the
// process-wide registry the HTTP layer resolves WebSocket attachments
// against; Tasks is the per-session goroutine registry that keeps panics and
// stray errors from escaping the session that caused them.
package session

import "sync"

// Session is the store's view of a live session.
type Session interface {
	// ID returns the opaque hex identifier handed to the client.
	ID() string

	// Destroy tears the session down. Must be idempotent; the store, the
	// disconnect path and shutdown may all race to call it.
	Destroy()
}

// Store is the process-wide session registry. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]Session)}
}

// Insert registers a session under its id.
func (s *Store) Insert(sess Session) {
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()
}

// Get resolves a session id.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Remove drops a session from the registry without destroying it. Called by
// the session's own Destroy.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len returns the number of registered sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown destroys every registered session. Used on server shutdown.
func (s *Store) Shutdown() {
	s.mu.Lock()
	all := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.Unlock()

	for _, sess := range all {
		sess.Destroy()
	}
}
