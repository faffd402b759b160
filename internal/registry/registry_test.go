package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ogas1024/chat-room/internal/domain"
	"github.com/ogas1024/chat-room/internal/presence"
)

// fakeConn is an in-memory transport connection for tests.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	addr   string
}

func newFakeConn() *fakeConn { return &fakeConn{addr: "test:0"} }

func (c *fakeConn) ReadFrame() ([]byte, error) { select {} }

func (c *fakeConn) WriteFrame(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, p)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) RemoteAddr() string { return c.addr }

func alice() *domain.User { return &domain.User{ID: "u-alice", Username: "alice"} }

func TestRegistry_Capacity(t *testing.T) {
	r := New(2, presence.NewClock())

	if _, err := r.Register(newFakeConn()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := r.Register(newFakeConn()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, err := r.Register(newFakeConn())
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestRegistry_BindAndLookup(t *testing.T) {
	r := New(8, presence.NewClock())
	conn := newFakeConn()

	connID, err := r.Register(conn)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, ok := r.LookupIdentity(connID); ok {
		t.Fatal("expected no identity before Bind")
	}

	if err := r.Bind(connID, alice()); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	got, ok := r.LookupIdentity(connID)
	if !ok || got.Username != "alice" {
		t.Fatalf("LookupIdentity() = %v, %v; want alice", got, ok)
	}
	if c, ok := r.LookupConnection("u-alice"); !ok || c != conn {
		t.Fatal("LookupConnection() did not return the bound connection")
	}

	online := r.SnapshotOnline()
	if _, ok := online["u-alice"]; !ok || len(online) != 1 {
		t.Errorf("SnapshotOnline() = %v, want exactly alice", online)
	}
}

// Scenario: alice logs in on c1, then a second login arrives on c2. The
// old connection is queued for eviction and c2 owns the session.
func TestRegistry_DuplicateLoginEvictsOld(t *testing.T) {
	r := New(8, presence.NewClock())
	c1 := newFakeConn()
	c2 := newFakeConn()

	id1, _ := r.Register(c1)
	id2, _ := r.Register(c2)

	if err := r.Bind(id1, alice()); err != nil {
		t.Fatalf("Bind(c1) error = %v", err)
	}
	if err := r.Bind(id2, alice()); err != nil {
		t.Fatalf("Bind(c2) error = %v", err)
	}

	select {
	case ev := <-r.Evictions():
		if ev.ConnID != id1 {
			t.Fatalf("evicted %s, want %s", ev.ConnID, id1)
		}
		if ev.Reason != domain.ErrDuplicateSession.Error() {
			t.Errorf("eviction reason = %q, want the duplicate-session error", ev.Reason)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an eviction to be queued")
	}

	if got, ok := r.LookupIdentity(id2); !ok || got.Username != "alice" {
		t.Fatal("c2 should own alice's session")
	}
	if _, ok := r.LookupIdentity(id1); ok {
		t.Fatal("c1 should have lost its binding")
	}
	if c, _ := r.LookupConnection("u-alice"); c != c2 {
		t.Fatal("LookupConnection(alice) should return c2")
	}
	if n := r.OnlineCount(); n != 1 {
		t.Errorf("OnlineCount() = %d, want 1 (one session per identity)", n)
	}

	// Teardown of the evicted connection must not disturb the new session.
	r.Unbind(id1)
	r.Remove(id1)
	if c, ok := r.LookupConnection("u-alice"); !ok || c != c2 {
		t.Fatal("evicted teardown removed the new session's binding")
	}
}

func TestRegistry_RemoveIdempotent(t *testing.T) {
	r := New(8, presence.NewClock())
	connID, _ := r.Register(newFakeConn())
	r.Bind(connID, alice())

	r.Remove(connID)
	r.Remove(connID)
	r.Remove(connID)

	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
	if _, ok := r.LookupConnection("u-alice"); ok {
		t.Fatal("identity still resolvable after Remove")
	}
}

func TestRegistry_UnbindKeepsConnection(t *testing.T) {
	r := New(8, presence.NewClock())
	connID, _ := r.Register(newFakeConn())
	r.Bind(connID, alice())

	r.Unbind(connID)
	r.Unbind(connID) // idempotent

	if _, ok := r.LookupIdentity(connID); ok {
		t.Fatal("identity should be gone after Unbind")
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1 (connection bookkeeping kept)", r.Count())
	}
}

func TestRegistry_Unauthenticated(t *testing.T) {
	r := New(8, presence.NewClock())
	stale, _ := r.Register(newFakeConn())
	bound, _ := r.Register(newFakeConn())
	r.Bind(bound, alice())

	got := r.Unauthenticated(0)
	if len(got) != 1 || got[0] != stale {
		t.Errorf("Unauthenticated() = %v, want [%s]", got, stale)
	}
}
