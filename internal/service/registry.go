package service

import (
	"fmt"
	"sync"

	"github.com/Strob0t/eventcast/internal/domain"
)

// Registry is the in-memory table of live sessions keyed by session ID.
// A single mutex guards every mutation and snapshot.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register adds s. It fails with domain.ErrConflict if the ID is taken.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; ok {
		return fmt.Errorf("register session %s: %w", s.ID, domain.ErrConflict)
	}
	r.sessions[s.ID] = s
	return nil
}

// Unregister removes and returns the session with the given ID, or nil if
// it is not registered.
func (r *Registry) Unregister(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	return s
}

// Get returns the session with the given ID, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// All returns a snapshot of the registered sessions in no particular order.
// The slice is owned by the caller and unaffected by later mutations.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Drain removes every session and returns them.
func (r *Registry) Drain() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		out = append(out, s)
		delete(r.sessions, id)
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
