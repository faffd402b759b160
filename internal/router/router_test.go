package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ogas1024/chat-room/internal/autoreply"
	"github.com/ogas1024/chat-room/internal/domain"
	"github.com/ogas1024/chat-room/internal/presence"
	"github.com/ogas1024/chat-room/internal/registry"
	"github.com/ogas1024/chat-room/internal/room"
	"github.com/ogas1024/chat-room/internal/transport"
)

// fakeConn records delivered frames; it can be made to fail writes to
// simulate a dead or blocked peer.
type fakeConn struct {
	mu        sync.Mutex
	frames    [][]byte
	failWrite bool
	closed    bool
}

func (c *fakeConn) ReadFrame() ([]byte, error) { select {} }

func (c *fakeConn) WriteFrame(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrite {
		return transport.ErrSlowConsumer
	}
	c.frames = append(c.frames, p)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "test:0" }

func (c *fakeConn) messages(t *testing.T) []domain.MessageFrame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.MessageFrame, 0, len(c.frames))
	for _, raw := range c.frames {
		var f domain.MessageFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("bad frame %q: %v", raw, err)
		}
		out = append(out, f)
	}
	return out
}

// memStore is an in-memory Repository.
type memStore struct {
	mu   sync.Mutex
	msgs []domain.Message
	seq  int
}

func (s *memStore) Save(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	msg.ID = fmt.Sprintf("m-%d", s.seq)
	msg.CreatedAt = time.Now().UTC()
	s.msgs = append(s.msgs, *msg)
	return nil
}

func (s *memStore) History(_ context.Context, roomID string, limit int, _ string) ([]domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, m := range s.msgs {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, false, nil
}

func (s *memStore) count(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.msgs {
		if m.RoomID == roomID {
			n++
		}
	}
	return n
}

type memDirectory struct {
	users map[string]*domain.User
}

func (d *memDirectory) Lookup(_ context.Context, userID string) (*domain.User, error) {
	if u, ok := d.users[userID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrUserNotFound
}

// recordingResponder replies once with a fixed line and counts calls.
type recordingResponder struct {
	mu    sync.Mutex
	reply string
	calls int
	done  chan struct{}
}

func (r *recordingResponder) MaybeReply(context.Context, domain.Message, []domain.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.done != nil {
		close(r.done)
		r.done = nil
	}
	return r.reply, nil
}

func (r *recordingResponder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fixture struct {
	reg    *registry.Registry
	rooms  *room.Manager
	store  *memStore
	dir    *memDirectory
	router *Router
	conns  map[string]*fakeConn // username -> conn
	ids    map[string]string    // username -> conn id
}

func testConfig() Config {
	return Config{
		MaxBodyLength:    256,
		EchoBroadcast:    false,
		EchoPrivate:      true,
		HistoryContext:   10,
		ResponderTimeout: time.Second,
	}
}

func newFixture(t *testing.T, responder *recordingResponder, cfg Config) *fixture {
	t.Helper()

	f := &fixture{
		reg:   registry.New(16, presence.NewClock()),
		rooms: room.NewManager("general", 16),
		store: &memStore{},
		dir:   &memDirectory{users: make(map[string]*domain.User)},
		conns: make(map[string]*fakeConn),
		ids:   make(map[string]string),
	}

	var rsp autoreply.Responder
	if responder != nil {
		rsp = responder
	}
	f.router = New(f.reg, f.rooms, f.store, f.dir, rsp, cfg)
	return f
}

// online registers and binds a user, joining them to the default room.
func (f *fixture) online(t *testing.T, username string) {
	t.Helper()

	user := &domain.User{ID: "u-" + username, Username: username}
	f.dir.users[user.ID] = user

	conn := &fakeConn{}
	connID, err := f.reg.Register(conn)
	if err != nil {
		t.Fatalf("Register(%s) error = %v", username, err)
	}
	if err := f.reg.Bind(connID, user); err != nil {
		t.Fatalf("Bind(%s) error = %v", username, err)
	}
	if err := f.rooms.Join(f.rooms.DefaultRoom(), user.ID); err != nil {
		t.Fatalf("Join(%s) error = %v", username, err)
	}

	f.conns[username] = conn
	f.ids[username] = connID
}

// offline adds a user to the directory and default room without a
// connection.
func (f *fixture) offline(t *testing.T, username string) {
	t.Helper()
	user := &domain.User{ID: "u-" + username, Username: username}
	f.dir.users[user.ID] = user
	if err := f.rooms.Join(f.rooms.DefaultRoom(), user.ID); err != nil {
		t.Fatalf("Join(%s) error = %v", username, err)
	}
}

func TestRouter_SendRequiresAuthentication(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	conn := &fakeConn{}
	connID, _ := f.reg.Register(conn)

	_, err := f.router.Send(context.Background(), connID, Target{RoomID: f.rooms.DefaultRoom()}, "hi", "")
	if !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if f.store.count(f.rooms.DefaultRoom()) != 0 {
		t.Fatal("rejected message must not be persisted")
	}
}

func TestRouter_ContentValidation(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	f.online(t, "alice")
	ctx := context.Background()
	target := Target{RoomID: f.rooms.DefaultRoom()}

	cases := []struct {
		name string
		body string
		kind domain.MessageType
	}{
		{"empty body", "", ""},
		{"oversized body", string(make([]byte, 300)), ""},
		{"bad kind", "hi", domain.MessageType("exploit")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.router.Send(ctx, f.ids["alice"], target, tc.body, tc.kind)
			if !errors.Is(err, domain.ErrInvalidContent) {
				t.Fatalf("expected ErrInvalidContent, got %v", err)
			}
		})
	}

	if f.store.count(f.rooms.DefaultRoom()) != 0 {
		t.Fatal("invalid messages must not be persisted")
	}
	if len(f.conns["alice"].messages(t)) != 0 {
		t.Fatal("invalid messages must not be broadcast")
	}
}

// Scenario: a room with online members alice, bob, carol and offline
// member dave. A text from alice reaches exactly bob and carol.
func TestRouter_FanOutCorrectness(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	f.online(t, "alice")
	f.online(t, "bob")
	f.online(t, "carol")
	f.offline(t, "dave")

	msg, err := f.router.Send(context.Background(), f.ids["alice"], Target{RoomID: f.rooms.DefaultRoom()}, "hi", "")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.ID == "" {
		t.Fatal("message should carry its durable id")
	}

	for _, name := range []string{"bob", "carol"} {
		got := f.conns[name].messages(t)
		if len(got) != 1 {
			t.Fatalf("%s received %d messages, want 1", name, len(got))
		}
		if got[0].Sender != "alice" || got[0].Body != "hi" || got[0].RoomID != f.rooms.DefaultRoom() {
			t.Errorf("%s received %+v, want hi from alice", name, got[0])
		}
	}

	// No self-echo on broadcast by default.
	if n := len(f.conns["alice"].messages(t)); n != 0 {
		t.Errorf("alice received %d copies of her own broadcast, want 0", n)
	}

	if f.store.count(f.rooms.DefaultRoom()) != 1 {
		t.Errorf("history length = %d, want 1", f.store.count(f.rooms.DefaultRoom()))
	}
}

func TestRouter_PrivateMessageEcho(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	f.online(t, "alice")
	f.online(t, "bob")

	msg, err := f.router.Send(context.Background(), f.ids["alice"], Target{PeerID: "u-bob"}, "psst", "")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	rm, ok := f.rooms.Get(msg.RoomID)
	if !ok || rm.Type != domain.RoomPrivate {
		t.Fatalf("expected an implicit private room, got %+v", rm)
	}

	// Default policy: private chat echoes back to the sender.
	if n := len(f.conns["alice"].messages(t)); n != 1 {
		t.Errorf("alice received %d messages, want 1 (self-echo)", n)
	}
	if n := len(f.conns["bob"].messages(t)); n != 1 {
		t.Errorf("bob received %d messages, want 1", n)
	}

	// A second message reuses the same room.
	msg2, err := f.router.Send(context.Background(), f.ids["bob"], Target{PeerID: "u-alice"}, "yes?", "")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg2.RoomID != msg.RoomID {
		t.Error("reply should reuse the existing 1:1 room")
	}
}

func TestRouter_PrivateMessageRefused(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	f.online(t, "alice")
	f.dir.users["u-hermit"] = &domain.User{ID: "u-hermit", Username: "hermit", Roles: []string{domain.RoleNoDMs}}

	_, err := f.router.Send(context.Background(), f.ids["alice"], Target{PeerID: "u-hermit"}, "hi", "")
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	_, err = f.router.Send(context.Background(), f.ids["alice"], Target{PeerID: "u-nobody"}, "hi", "")
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

// Scenario: alice is not a member of private group g1.
func TestRouter_NonMemberRejected(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	f.online(t, "alice")
	f.online(t, "bob")
	g1, err := f.rooms.Create("g1", domain.RoomGroup, "u-bob")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, err = f.router.Send(context.Background(), f.ids["alice"], Target{RoomID: g1.ID}, "let me in", "")
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if f.store.count(g1.ID) != 0 {
		t.Fatal("rejected message must not be persisted")
	}
	if len(f.conns["bob"].messages(t)) != 0 {
		t.Fatal("rejected message must not be broadcast")
	}

	_, err = f.router.Send(context.Background(), f.ids["alice"], Target{RoomID: "no-such-room"}, "hi", "")
	if !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

// Fault isolation: bob's connection fails during fan-out; carol still
// receives the message and alice's send succeeds. Bob's connection is
// torn down as an implicit disconnect.
func TestRouter_FaultIsolation(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	f.online(t, "alice")
	f.online(t, "bob")
	f.online(t, "carol")

	torn := make(chan string, 1)
	f.router.SetTeardown(func(connID string) {
		f.reg.Remove(connID)
		torn <- connID
	})

	f.conns["bob"].failWrite = true

	_, err := f.router.Send(context.Background(), f.ids["alice"], Target{RoomID: f.rooms.DefaultRoom()}, "hi", "")
	if err != nil {
		t.Fatalf("Send() must succeed despite a failing recipient, got %v", err)
	}

	if n := len(f.conns["carol"].messages(t)); n != 1 {
		t.Errorf("carol received %d messages, want 1", n)
	}
	if f.store.count(f.rooms.DefaultRoom()) != 1 {
		t.Error("message should be persisted regardless of delivery outcomes")
	}

	select {
	case connID := <-torn:
		if connID != f.ids["bob"] {
			t.Errorf("tore down %s, want bob's connection %s", connID, f.ids["bob"])
		}
	case <-time.After(time.Second):
		t.Fatal("expected bob's connection to be torn down")
	}
}

func TestRouter_AutoReplyOnce(t *testing.T) {
	done := make(chan struct{})
	responder := &recordingResponder{reply: "pong", done: done}
	f := newFixture(t, responder, testConfig())
	f.online(t, "alice")
	f.online(t, "bob")

	_, err := f.router.Send(context.Background(), f.ids["alice"], Target{RoomID: f.rooms.DefaultRoom()}, "ping", "")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("responder was never offered the message")
	}

	// Wait until the injected reply lands.
	deadline := time.After(2 * time.Second)
	for f.store.count(f.rooms.DefaultRoom()) < 2 {
		select {
		case <-deadline:
			t.Fatal("auto-reply was not persisted")
		case <-time.After(10 * time.Millisecond):
		}
	}

	msgs := f.conns["bob"].messages(t)
	if len(msgs) != 2 {
		t.Fatalf("bob received %d messages, want original + reply", len(msgs))
	}
	reply := msgs[1]
	if reply.SenderID != domain.SystemUser.ID || reply.Kind != string(domain.MessageSystem) || reply.Body != "pong" {
		t.Errorf("reply frame = %+v, want system pong", reply)
	}

	// The reply itself is never offered back to the responder.
	time.Sleep(50 * time.Millisecond)
	if n := responder.callCount(); n != 1 {
		t.Errorf("responder called %d times, want exactly 1", n)
	}
}

// A reply exceeding the body limit is dropped, not persisted or
// broadcast.
func TestRouter_AutoReplyValidated(t *testing.T) {
	done := make(chan struct{})
	responder := &recordingResponder{reply: string(make([]byte, 1000)), done: done}
	f := newFixture(t, responder, testConfig())
	f.online(t, "alice")
	f.online(t, "bob")

	_, err := f.router.Send(context.Background(), f.ids["alice"], Target{RoomID: f.rooms.DefaultRoom()}, "ping", "")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("responder was never offered the message")
	}
	time.Sleep(50 * time.Millisecond)

	if n := f.store.count(f.rooms.DefaultRoom()); n != 1 {
		t.Errorf("history length = %d, want the original message only", n)
	}
	if n := len(f.conns["bob"].messages(t)); n != 1 {
		t.Errorf("bob received %d messages, want the original only", n)
	}
}

func TestRouter_SystemNotice(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	f.online(t, "alice")

	if _, err := f.router.SystemNotice(context.Background(), f.rooms.DefaultRoom(), "bob joined"); err != nil {
		t.Fatalf("SystemNotice() error = %v", err)
	}

	msgs := f.conns["alice"].messages(t)
	if len(msgs) != 1 || msgs[0].Kind != string(domain.MessageSystem) {
		t.Fatalf("alice received %+v, want one system notice", msgs)
	}
}
