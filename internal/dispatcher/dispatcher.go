// Package dispatcher owns the per-connection lifecycle: it reads
// frames, forwards them to the session, room and routing collaborators,
// and runs the single teardown path every disconnect reason funnels
// into.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ogas1024/chat-room/internal/domain"
	"github.com/ogas1024/chat-room/internal/registry"
	"github.com/ogas1024/chat-room/internal/room"
	"github.com/ogas1024/chat-room/internal/router"
	"github.com/ogas1024/chat-room/internal/session"
	"github.com/ogas1024/chat-room/internal/store"
	"github.com/ogas1024/chat-room/internal/transport"
	"github.com/ogas1024/chat-room/pkg/log"
)

// Registrar creates new accounts.
type Registrar interface {
	Register(ctx context.Context, username, password string) (*domain.User, error)
}

// Config bounds per-connection behavior.
type Config struct {
	// MaxLoginAttempts closes the connection after that many failed
	// logins.
	MaxLoginAttempts int
	// MaxProtocolErrors closes the connection after that many
	// malformed or unknown frames.
	MaxProtocolErrors int
	// HeartbeatInterval is how often the idle sweep runs.
	HeartbeatInterval time.Duration
	// IdleTimeout disconnects peers with no inbound traffic for this
	// long.
	IdleTimeout time.Duration
	// AuthGrace disconnects connections that never authenticate
	// within this window.
	AuthGrace time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxLoginAttempts:  5,
		MaxProtocolErrors: 8,
		HeartbeatInterval: 15 * time.Second,
		IdleTimeout:       5 * time.Minute,
		AuthGrace:         30 * time.Second,
	}
}

// Dispatcher runs one worker per connection and owns teardown.
type Dispatcher struct {
	reg      *registry.Registry
	rooms    *room.Manager
	sessions *session.Manager
	router   *router.Router
	store    store.Repository
	accounts Registrar
	cfg      Config

	mu      sync.Mutex
	workers map[string]*worker
}

// worker is the per-connection state. Reads are single-goroutine by
// construction; counters need no lock.
type worker struct {
	connID string
	conn   transport.Conn

	closeOnce     sync.Once
	loginAttempts int
	protocolErrs  int
}

// New wires the dispatcher and installs its teardown into the router,
// so fan-out write failures and every other disconnect reason share
// one closing path.
func New(reg *registry.Registry, rooms *room.Manager, sessions *session.Manager, rt *router.Router, repo store.Repository, accounts Registrar, cfg Config) *Dispatcher {
	d := &Dispatcher{
		reg:      reg,
		rooms:    rooms,
		sessions: sessions,
		router:   rt,
		store:    repo,
		accounts: accounts,
		cfg:      cfg,
		workers:  make(map[string]*worker),
	}
	rt.SetTeardown(func(connID string) {
		d.Teardown(connID, "write failure")
	})
	return d
}

// Serve admits the connection and runs its read loop until the peer
// disconnects or teardown closes the transport. It blocks; callers run
// it on a dedicated goroutine.
func (d *Dispatcher) Serve(conn transport.Conn) {
	connID, err := d.reg.Register(conn)
	if err != nil {
		// Over capacity: the peer gets a reason before the close.
		frame, _ := json.Marshal(domain.NewErrorFrame(err))
		conn.WriteFrame(frame)
		conn.Close()
		log.L().Warn().Err(err).Str(log.FieldRemote, conn.RemoteAddr()).Msg("connection rejected")
		return
	}

	w := &worker{connID: connID, conn: conn}
	d.mu.Lock()
	d.workers[connID] = w
	d.mu.Unlock()

	log.L().Info().
		Str(log.FieldConnID, connID).
		Str(log.FieldRemote, conn.RemoteAddr()).
		Msg("connection accepted")

	for {
		raw, err := conn.ReadFrame()
		if err != nil {
			d.Teardown(connID, "connection closed")
			return
		}
		d.reg.Touch(connID)
		d.dispatch(context.Background(), w, raw)
	}
}

// Teardown runs the closing path exactly once per connection: session
// logout, registry removal, transport close. Safe to call from any
// goroutine and for unknown connection ids.
func (d *Dispatcher) Teardown(connID, reason string) {
	d.mu.Lock()
	w, ok := d.workers[connID]
	if ok {
		delete(d.workers, connID)
	}
	d.mu.Unlock()
	if !ok {
		return
	}

	w.closeOnce.Do(func() {
		ctx := context.Background()
		user, authed := d.reg.LookupIdentity(connID)
		d.sessions.Logout(ctx, connID)
		d.reg.Remove(connID)
		w.conn.Close()

		ev := log.L().Info().
			Str(log.FieldConnID, connID).
			Str(log.FieldReason, reason)
		if authed {
			ev = ev.Str(log.FieldUsername, user.Username)
		}
		ev.Msg("connection closed")
	})
}

// notifyAndClose sends a disconnect frame before teardown, best effort.
func (d *Dispatcher) notifyAndClose(connID, reason string) {
	if conn, ok := d.reg.Conn(connID); ok {
		frame, _ := json.Marshal(&domain.DisconnectFrame{Type: domain.FrameDisconnect, Reason: reason})
		conn.WriteFrame(frame)
	}
	d.Teardown(connID, reason)
}

func (d *Dispatcher) dispatch(ctx context.Context, w *worker, raw []byte) {
	var base domain.BaseFrame
	if err := json.Unmarshal(raw, &base); err != nil {
		d.protocolError(w, fmt.Errorf("%w: %v", domain.ErrProtocol, err))
		return
	}

	switch base.Type {
	case domain.FrameLogin:
		var f domain.LoginFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			d.protocolError(w, fmt.Errorf("%w: bad login frame", domain.ErrProtocol))
			return
		}
		d.handleLogin(ctx, w, f)

	case domain.FrameRegister:
		var f domain.RegisterFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			d.protocolError(w, fmt.Errorf("%w: bad register frame", domain.ErrProtocol))
			return
		}
		d.handleRegister(ctx, w, f)

	case domain.FrameLogout:
		d.notifyAndClose(w.connID, "logout")

	case domain.FrameJoin:
		var f domain.JoinFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			d.protocolError(w, fmt.Errorf("%w: bad join frame", domain.ErrProtocol))
			return
		}
		d.handleJoin(ctx, w, f)

	case domain.FrameLeave:
		var f domain.LeaveFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			d.protocolError(w, fmt.Errorf("%w: bad leave frame", domain.ErrProtocol))
			return
		}
		d.handleLeave(ctx, w, f)

	case domain.FrameCreateRoom:
		var f domain.CreateRoomFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			d.protocolError(w, fmt.Errorf("%w: bad create_room frame", domain.ErrProtocol))
			return
		}
		d.handleCreateRoom(ctx, w, f)

	case domain.FrameDeleteRoom:
		var f domain.DeleteRoomFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			d.protocolError(w, fmt.Errorf("%w: bad delete_room frame", domain.ErrProtocol))
			return
		}
		d.handleDeleteRoom(ctx, w, f)

	case domain.FrameSend:
		var f domain.SendFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			d.protocolError(w, fmt.Errorf("%w: bad send frame", domain.ErrProtocol))
			return
		}
		d.handleSend(ctx, w, f)

	case domain.FrameHistory:
		var f domain.HistoryFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			d.protocolError(w, fmt.Errorf("%w: bad history frame", domain.ErrProtocol))
			return
		}
		d.handleHistory(ctx, w, f)

	case domain.FramePing:
		d.send(w, &domain.BaseFrame{Type: domain.FramePong, Timestamp: time.Now().Unix()})

	default:
		d.protocolError(w, fmt.Errorf("%w: unknown frame type %q", domain.ErrProtocol, base.Type))
	}
}

func (d *Dispatcher) handleLogin(ctx context.Context, w *worker, f domain.LoginFrame) {
	creds := session.Credentials{Username: f.Username, Password: f.Password, Token: f.Token}
	user, token, err := d.sessions.Login(ctx, w.connID, creds)
	if err != nil {
		w.loginAttempts++
		d.send(w, &domain.LoginResultFrame{
			Type:    domain.FrameLoginResult,
			Success: false,
			Message: err.Error(),
		})
		if w.loginAttempts >= d.cfg.MaxLoginAttempts {
			d.notifyAndClose(w.connID, "too many failed login attempts")
		}
		return
	}

	def := d.rooms.DefaultRoom()
	d.send(w, &domain.LoginResultFrame{
		Type:     domain.FrameLoginResult,
		Success:  true,
		UserID:   user.ID,
		Username: user.Username,
		Token:    token,
		RoomID:   def,
	})
	d.router.SystemNotice(ctx, def, user.Username+" is online")
}

func (d *Dispatcher) handleRegister(ctx context.Context, w *worker, f domain.RegisterFrame) {
	user, err := d.accounts.Register(ctx, f.Username, f.Password)
	if err != nil {
		d.sendError(w, err)
		return
	}
	d.send(w, &domain.RegisteredFrame{
		Type:     domain.FrameRegistered,
		UserID:   user.ID,
		Username: user.Username,
	})
}

func (d *Dispatcher) handleJoin(ctx context.Context, w *worker, f domain.JoinFrame) {
	user, ok := d.requireLogin(w)
	if !ok {
		return
	}

	if err := d.rooms.Join(f.RoomID, user.ID); err != nil {
		d.sendError(w, err)
		return
	}
	rm, _ := d.rooms.Get(f.RoomID)
	d.sessions.SetCurrentRoom(user.ID, rm.ID)

	d.send(w, &domain.RoomJoinedFrame{Type: domain.FrameRoomJoined, RoomID: rm.ID, Name: rm.Name})
	if rm.Type != domain.RoomPrivate {
		d.router.SystemNotice(ctx, rm.ID, user.Username+" joined "+rm.Name)
	}
}

func (d *Dispatcher) handleLeave(ctx context.Context, w *worker, f domain.LeaveFrame) {
	user, ok := d.requireLogin(w)
	if !ok {
		return
	}

	if err := d.rooms.Leave(f.RoomID, user.ID); err != nil {
		d.sendError(w, err)
		return
	}
	if current, ok := d.sessions.CurrentRoom(user.ID); ok && current == f.RoomID {
		d.sessions.SetCurrentRoom(user.ID, d.rooms.DefaultRoom())
	}

	d.send(w, &domain.RoomLeftFrame{Type: domain.FrameRoomLeft, RoomID: f.RoomID})
	if rm, ok := d.rooms.Get(f.RoomID); ok && rm.Type != domain.RoomPrivate {
		d.router.SystemNotice(ctx, rm.ID, user.Username+" left "+rm.Name)
	}
}

func (d *Dispatcher) handleCreateRoom(ctx context.Context, w *worker, f domain.CreateRoomFrame) {
	user, ok := d.requireLogin(w)
	if !ok {
		return
	}

	// Clients create group rooms only; the public room is the startup
	// singleton.
	switch strings.ToLower(f.Kind) {
	case "", string(domain.RoomGroup):
	default:
		d.sendError(w, fmt.Errorf("%w: unknown room kind %q", domain.ErrInvalidContent, f.Kind))
		return
	}

	rm, err := d.rooms.Create(f.Name, domain.RoomGroup, user.ID)
	if err != nil {
		d.sendError(w, err)
		return
	}
	d.sessions.SetCurrentRoom(user.ID, rm.ID)
	d.send(w, &domain.RoomCreatedFrame{
		Type:   domain.FrameRoomCreated,
		RoomID: rm.ID,
		Name:   rm.Name,
		Kind:   string(rm.Type),
	})
}

func (d *Dispatcher) handleDeleteRoom(ctx context.Context, w *worker, f domain.DeleteRoomFrame) {
	user, ok := d.requireLogin(w)
	if !ok {
		return
	}

	members, err := d.rooms.Delete(f.RoomID, user)
	if err != nil {
		d.sendError(w, err)
		return
	}
	d.sessions.ResetCurrentRoom(members)

	// Former members learn they were moved back to the default room.
	frame, _ := json.Marshal(&domain.RoomDeletedFrame{
		Type:          domain.FrameRoomDeleted,
		RoomID:        f.RoomID,
		DefaultRoomID: d.rooms.DefaultRoom(),
	})
	for _, userID := range members {
		if conn, ok := d.reg.LookupConnection(userID); ok {
			conn.WriteFrame(frame)
		}
	}
}

func (d *Dispatcher) handleSend(ctx context.Context, w *worker, f domain.SendFrame) {
	target := router.Target{RoomID: f.RoomID, PeerID: f.PeerID}
	if target.RoomID == "" && target.PeerID == "" {
		user, ok := d.requireLogin(w)
		if !ok {
			return
		}
		// No explicit target: the peer's current room.
		current, ok := d.sessions.CurrentRoom(user.ID)
		if !ok {
			current = d.rooms.DefaultRoom()
		}
		target.RoomID = current
	}

	if _, err := d.router.Send(ctx, w.connID, target, f.Body, domain.MessageType(f.Kind)); err != nil {
		d.sendError(w, err)
	}
}

func (d *Dispatcher) handleHistory(ctx context.Context, w *worker, f domain.HistoryFrame) {
	user, ok := d.requireLogin(w)
	if !ok {
		return
	}
	if _, ok := d.rooms.Get(f.RoomID); !ok {
		d.sendError(w, domain.ErrRoomNotFound)
		return
	}
	if !d.rooms.IsMember(f.RoomID, user.ID) {
		d.sendError(w, fmt.Errorf("%w: not a member", domain.ErrPermissionDenied))
		return
	}

	msgs, hasMore, err := d.store.History(ctx, f.RoomID, f.Limit, f.BeforeID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldRoomID, f.RoomID).Msg("history query failed")
		d.sendError(w, err)
		return
	}

	out := make([]domain.MessageFrame, 0, len(msgs))
	for i := range msgs {
		out = append(out, *domain.NewMessageFrame(&msgs[i]))
	}
	d.send(w, &domain.HistoryResultFrame{
		Type:     domain.FrameHistoryResult,
		RoomID:   f.RoomID,
		Messages: out,
		HasMore:  hasMore,
	})
}

// requireLogin resolves the bound identity or reports the failure to
// the peer.
func (d *Dispatcher) requireLogin(w *worker) (*domain.User, bool) {
	user, ok := d.reg.LookupIdentity(w.connID)
	if !ok {
		d.sendError(w, domain.ErrNotAuthenticated)
		return nil, false
	}
	return user, true
}

func (d *Dispatcher) protocolError(w *worker, err error) {
	w.protocolErrs++
	d.sendError(w, err)
	if w.protocolErrs >= d.cfg.MaxProtocolErrors {
		d.notifyAndClose(w.connID, "too many protocol errors")
	}
}

func (d *Dispatcher) sendError(w *worker, err error) {
	d.send(w, domain.NewErrorFrame(err))
}

// send writes a control frame to the worker's own connection. A failed
// write means the peer is gone; the read loop notices on its next read.
func (d *Dispatcher) send(w *worker, v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := w.conn.WriteFrame(frame); err != nil {
		log.L().Debug().Err(err).Str(log.FieldConnID, w.connID).Msg("control frame write failed")
	}
}
