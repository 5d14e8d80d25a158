package callsession

import "sync"

// Registry is the process-wide mapping from call identifier to session,
// adapted from the gateway's service registry: a concurrent-safe lookup
// table is the only shared mutable structure in the whole process, since
// every other piece of per-call state is single-threaded by design.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session under its call identifier. A call is registered
// from creation until cleanup removes it.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.CallID] = s
}

// Lookup returns the session for a call identifier, or false if not
// registered (already cleaned up, or never existed).
func (r *Registry) Lookup(callID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[callID]
	return s, ok
}

// Remove deletes a session from the registry. Idempotent: removing a call
// identifier that is absent is a no-op, since cleanup may race a second
// terminal event for the same call.
func (r *Registry) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callID)
}

// Names returns all currently-registered call identifiers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		names = append(names, k)
	}
	return names
}

// Count returns the number of active sessions, used by the health endpoint
// and the call-capacity check.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
