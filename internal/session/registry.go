package session

import (
	"errors"
	"sync"
	"time"
)

// DefaultRetention is how long finished sessions stay readable.
const DefaultRetention = 10 * time.Minute

// ErrDuplicateID is returned when a session id is already registered.
var ErrDuplicateID = errors.New("session id already registered")

// Registry tracks sessions for the duration of their run plus an inspection
// window. Expired sessions are purged lazily on access.
type Registry struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	retention time.Duration
	now       func() time.Time
}

// NewRegistry creates a registry. retention <= 0 uses DefaultRetention.
func NewRegistry(retention time.Duration, now func() time.Time) *Registry {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{
		sessions:  make(map[string]*Session),
		retention: retention,
		now:       now,
	}
}

// Add registers s. Ids of purged sessions may be reused.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.purgeLocked()
	if _, exists := r.sessions[s.ID()]; exists {
		return ErrDuplicateID
	}
	r.sessions[s.ID()] = s
	return nil
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.purgeLocked()
	s, ok := r.sessions[id]
	return s, ok
}

// Snapshot returns the current state of id.
func (r *Registry) Snapshot(id string) (Snapshot, bool) {
	s, ok := r.Get(id)
	if !ok {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// Stop requests cooperative cancellation of id. It returns true only when a
// non-terminal session existed and this call delivered the signal.
func (r *Registry) Stop(id string) bool {
	s, ok := r.Get(id)
	if !ok {
		return false
	}
	return s.RequestStop()
}

// Active returns snapshots of sessions that have not reached a terminal state.
func (r *Registry) Active() map[string]Snapshot {
	return r.collect(func(s Snapshot) bool { return !s.Status.Terminal() })
}

// All returns snapshots of every retained session, including finished ones
// still inside the inspection window.
func (r *Registry) All() map[string]Snapshot {
	return r.collect(func(Snapshot) bool { return true })
}

func (r *Registry) collect(keep func(Snapshot) bool) map[string]Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.purgeLocked()
	out := make(map[string]Snapshot, len(r.sessions))
	for id, s := range r.sessions {
		snap := s.Snapshot()
		if keep(snap) {
			out[id] = snap
		}
	}
	return out
}

func (r *Registry) purgeLocked() {
	cutoff := r.now().Add(-r.retention)
	for id, s := range r.sessions {
		snap := s.Snapshot()
		if snap.EndedAt != nil && snap.EndedAt.Before(cutoff) {
			delete(r.sessions, id)
		}
	}
}
