package ingest

import (
	"sync"

	"github.com/google/uuid"

	"github.com/netneural/mqtt-ingest/internal/metrics"
)

// Registry tracks the live broker sessions keyed by integration ID
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewRegistry creates an empty session registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Add registers a session under the integration ID
func (r *Registry) Add(id uuid.UUID, session *Session) {
	r.mu.Lock()
	r.sessions[id] = session
	metrics.SetSessionsActive(len(r.sessions))
	r.mu.Unlock()
}

// Remove deregisters and returns the session, or nil when absent
func (r *Registry) Remove(id uuid.UUID) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	metrics.SetSessionsActive(len(r.sessions))
	return session
}

// Get returns the session for the integration ID, or nil when absent
func (r *Registry) Get(id uuid.UUID) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// IDs returns the integration IDs with a live session
func (r *Registry) IDs() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// All returns a snapshot of the live sessions keyed by integration ID
func (r *Registry) All() map[uuid.UUID]*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make(map[uuid.UUID]*Session, len(r.sessions))
	for id, session := range r.sessions {
		snapshot[id] = session
	}
	return snapshot
}
