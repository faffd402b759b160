// Package registry owns the set of live connections and the
// bidirectional mapping between a connection and its authenticated
// identity. All mutation goes through the Registry's methods; no other
// component touches the maps.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/ogas1024/chat-room/internal/domain"
	"github.com/ogas1024/chat-room/internal/presence"
	"github.com/ogas1024/chat-room/internal/transport"
)

// Eviction asks the dispatcher to tear down a connection that lost a
// duplicate-login race. Evictions are queued rather than executed
// inline so Bind never recurses into the teardown path.
type Eviction struct {
	ConnID string
	Reason string
}

type entry struct {
	conn       transport.Conn
	remoteAddr string
	createdAt  time.Time
	user       *domain.User // nil until bound
}

// Registry tracks live connections. At most one connection per identity
// and at most one identity per connection, enforced at every Bind.
type Registry struct {
	mu       sync.RWMutex
	capacity int
	conns    map[string]*entry
	byUser   map[string]string // identity id -> conn id
	clock    *presence.Clock

	evictions chan Eviction
}

// New creates a registry bounded at capacity connections.
func New(capacity int, clock *presence.Clock) *Registry {
	return &Registry{
		capacity:  capacity,
		conns:     make(map[string]*entry),
		byUser:    make(map[string]string),
		clock:     clock,
		evictions: make(chan Eviction, 64),
	}
}

// Register adds a new, not-yet-authenticated connection and returns its
// id. Fails with ErrCapacityExceeded when the registry is full; the
// caller must reject the connection.
func (r *Registry) Register(conn transport.Conn) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.conns) >= r.capacity {
		return "", domain.ErrCapacityExceeded
	}

	id := newConnID()
	r.conns[id] = &entry{
		conn:       conn,
		remoteAddr: conn.RemoteAddr(),
		createdAt:  time.Now(),
	}
	r.clock.Touch(id)
	return id, nil
}

// Bind associates an identity with a connection. If the identity
// already has a live session on another connection, that connection is
// queued for eviction and the new binding wins ("last login wins").
func (r *Registry) Bind(connID string, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return fmt.Errorf("bind: unknown connection %s", connID)
	}

	if old, ok := r.byUser[user.ID]; ok && old != connID {
		// Drop the stale binding immediately so the evicted worker's
		// teardown cannot unbind the new session.
		if oldEntry, ok := r.conns[old]; ok {
			oldEntry.user = nil
		}
		delete(r.byUser, user.ID)
		r.queueEviction(Eviction{ConnID: old, Reason: domain.ErrDuplicateSession.Error()})
	}

	// Re-login on the same connection replaces the previous identity.
	if e.user != nil && e.user.ID != user.ID {
		delete(r.byUser, e.user.ID)
	}

	e.user = user
	r.byUser[user.ID] = connID
	r.clock.Touch(connID)
	return nil
}

// queueEviction must be called with the lock held. The send never
// blocks the caller: an overflowing queue falls back to a goroutine.
func (r *Registry) queueEviction(ev Eviction) {
	select {
	case r.evictions <- ev:
	default:
		go func() { r.evictions <- ev }()
	}
}

// Evictions delivers connections that must be torn down after losing a
// duplicate-login race. The dispatcher consumes this channel.
func (r *Registry) Evictions() <-chan Eviction {
	return r.evictions
}

// Unbind removes the identity association but keeps the connection
// bookkeeping for clean shutdown ordering. Idempotent.
func (r *Registry) Unbind(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok || e.user == nil {
		return
	}
	// Only clear the reverse edge if it still points here; an eviction
	// race may have rebound the identity to a newer connection.
	if r.byUser[e.user.ID] == connID {
		delete(r.byUser, e.user.ID)
	}
	e.user = nil
}

// Remove deletes all bookkeeping for a closed connection. Safe to call
// any number of times.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return
	}
	if e.user != nil && r.byUser[e.user.ID] == connID {
		delete(r.byUser, e.user.ID)
	}
	delete(r.conns, connID)
	r.clock.Forget(connID)
}

// LookupConnection returns the live connection bound to an identity.
func (r *Registry) LookupConnection(userID string) (transport.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connID, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	e, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// ConnFor returns the connection id and transport bound to an
// identity. Fan-out uses this so a failed write can be attributed to
// its connection id.
func (r *Registry) ConnFor(userID string) (string, transport.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connID, ok := r.byUser[userID]
	if !ok {
		return "", nil, false
	}
	e, ok := r.conns[connID]
	if !ok {
		return "", nil, false
	}
	return connID, e.conn, true
}

// LookupIdentity returns the identity bound to a connection, if any.
func (r *Registry) LookupIdentity(connID string) (*domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[connID]
	if !ok || e.user == nil {
		return nil, false
	}
	return e.user, true
}

// Conn returns the transport connection for a connection id.
func (r *Registry) Conn(connID string) (transport.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Touch records activity on a connection.
func (r *Registry) Touch(connID string) {
	r.clock.Touch(connID)
}

// SnapshotOnline returns the set of currently bound identity ids.
func (r *Registry) SnapshotOnline() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	online := make(map[string]struct{}, len(r.byUser))
	for userID := range r.byUser {
		online[userID] = struct{}{}
	}
	return online
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// OnlineCount returns the number of bound identities.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Idle returns connections whose last activity is older than threshold.
func (r *Registry) Idle(threshold time.Duration) []string {
	cutoff := time.Now().Add(-threshold)
	candidates := r.clock.IdleSince(cutoff)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var idle []string
	for _, id := range candidates {
		if _, ok := r.conns[id]; ok {
			idle = append(idle, id)
		}
	}
	return idle
}

// Unauthenticated returns connections that registered longer than grace
// ago and still have no bound identity.
func (r *Registry) Unauthenticated(grace time.Duration) []string {
	cutoff := time.Now().Add(-grace)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []string
	for id, e := range r.conns {
		if e.user == nil && e.createdAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale
}
