package registry

import "sync"

// Session is a live client connection capable of receiving pushed events.
// The registry only needs delivery and teardown; the transport lives in the
// ws package.
type Session interface {
	Deliver(v any) error
	Close() error
}

// Registry is the process-wide map from user ID to active session. A user
// has at most one registration; registering again overwrites the previous
// entry without closing it (the stale session prunes itself on its own
// disconnect).
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
	}
}

// Register binds userID to s, replacing any previous registration.
// Last registration wins.
func (r *Registry) Register(userID string, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[userID] = s
}

// Lookup returns the current session for userID, if any.
func (r *Registry) Lookup(userID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Remove deletes the registration for userID only if the stored session is
// still s. A disconnect of a stale session must not evict a newer
// registration for the same user.
func (r *Registry) Remove(userID string, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[userID]; ok && current == s {
		delete(r.sessions, userID)
	}
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
