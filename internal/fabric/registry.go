// Package fabric is the concurrency engine spec.md §4.4 describes:
// an Acceptor that spawns a Reader and Writer per accepted connection,
// a shared connection registry guarded by a single RWMutex, and a
// bounded per-connection outbound queue so one slow miner can't stall
// the others. It is mode-agnostic: Solo/Pool/Proxy/Client plug in
// through the Handler interface in reader.go.
package fabric

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is the shared connection table every background task and
// reader/writer pair reads or mutates, matching the teacher's
// StratumServer.connections map plus its connMutex but generalised to
// hold a full Session (connection + writer + state machine) and an
// explicit capacity ceiling (spec.md §4.4, §8 max_connections admission
// boundary).
type Registry struct {
	mu          sync.RWMutex
	sessions    map[uuid.UUID]*Session
	maxCapacity int
}

// NewRegistry returns an empty Registry admitting at most maxCapacity
// simultaneous connections. maxCapacity <= 0 means unlimited.
func NewRegistry(maxCapacity int) *Registry {
	return &Registry{sessions: make(map[uuid.UUID]*Session), maxCapacity: maxCapacity}
}

// ErrAtCapacity marks an Insert refused because the registry is already
// at maxCapacity.
type capacityError struct{}

func (capacityError) Error() string { return "fabric: connection registry at capacity" }

var ErrAtCapacity error = capacityError{}

// Insert admits sess, or returns ErrAtCapacity if the registry is
// already at its configured maximum (spec.md §8: the boundary is
// exactly max_connections, one more is refused).
func (r *Registry) Insert(sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.maxCapacity > 0 && len(r.sessions) >= r.maxCapacity {
		return ErrAtCapacity
	}
	r.sessions[sess.Conn.ID] = sess
	return nil
}

// Remove drops a session from the registry.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Get looks up a session by connection id.
func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len reports the current connection count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns a point-in-time copy of the registered session
// pointers, safe for a caller to range over without holding the lock
// (used by the stats updater and connection cleaner background tasks).
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Mutate runs fn against the connection identified by id while holding
// the registry's write lock, the pattern spec.md §4.4 requires for any
// state change to a Connection (state transitions, share counters,
// LastActivity). Returns false if id is not registered.
func (r *Registry) Mutate(id uuid.UUID, fn func(*Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// Broadcast enqueues frame on every currently registered session for
// which the predicate proto returns true (a nil proto broadcasts to
// all), used by job/template-refresh notifications that fan out to the
// whole connected fleet.
func (r *Registry) Broadcast(proto func(*Session) bool, frame []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if proto == nil || proto(s) {
			s.Send(frame)
		}
	}
}
