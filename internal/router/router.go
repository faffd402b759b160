// Package router validates, persists and fans out chat messages.
// Persistence success is the sender's success criterion; delivery to
// individual recipients is best effort, and one dead peer never stalls
// or fails delivery to the rest.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ogas1024/chat-room/internal/autoreply"
	"github.com/ogas1024/chat-room/internal/domain"
	"github.com/ogas1024/chat-room/internal/registry"
	"github.com/ogas1024/chat-room/internal/room"
	"github.com/ogas1024/chat-room/internal/store"
	"github.com/ogas1024/chat-room/pkg/log"
)

// Target addresses a message: a room by id, or a peer identity for a
// 1:1 conversation (implicitly creating or reusing the private room).
type Target struct {
	RoomID string
	PeerID string
}

// PeerDirectory resolves peer identities for private messages.
type PeerDirectory interface {
	Lookup(ctx context.Context, userID string) (*domain.User, error)
}

// Config holds routing policy.
type Config struct {
	// MaxBodyLength bounds the byte length of a message body.
	MaxBodyLength int
	// EchoBroadcast controls whether the sender receives its own
	// message in public and group rooms.
	EchoBroadcast bool
	// EchoPrivate controls the same for 1:1 rooms.
	EchoPrivate bool
	// HistoryContext is how many recent messages accompany a message
	// offered to the auto-responder.
	HistoryContext int
	// ResponderTimeout bounds one auto-responder call.
	ResponderTimeout time.Duration
}

// Router resolves audiences and delivers messages.
type Router struct {
	reg       *registry.Registry
	rooms     *room.Manager
	store     store.Repository
	peers     PeerDirectory
	responder autoreply.Responder
	cfg       Config

	// onWriteFailure tears down a connection whose fan-out write
	// failed. The dispatcher installs its teardown here so eviction
	// and write failure share one closing path.
	onWriteFailure func(connID string)

	// mu serializes audience resolution, persistence and fan-out, so
	// messages from one sender to one room arrive in router order.
	mu sync.Mutex
}

// New wires the router to its collaborators.
func New(reg *registry.Registry, rooms *room.Manager, repo store.Repository, peers PeerDirectory, responder autoreply.Responder, cfg Config) *Router {
	r := &Router{
		reg:       reg,
		rooms:     rooms,
		store:     repo,
		peers:     peers,
		responder: responder,
		cfg:       cfg,
	}
	r.onWriteFailure = func(connID string) {
		if conn, ok := reg.Conn(connID); ok {
			conn.Close()
		}
		reg.Remove(connID)
	}
	return r
}

// SetTeardown replaces the default write-failure handling. The
// dispatcher installs its own teardown so failed recipients run the
// full Closing path.
func (r *Router) SetTeardown(fn func(connID string)) {
	if fn != nil {
		r.onWriteFailure = fn
	}
}

// Send validates and routes one message from the peer on connID.
// Validation order: authentication, content, permission. On success the
// message has been persisted; fan-out outcomes do not affect the
// result.
func (r *Router) Send(ctx context.Context, connID string, target Target, body string, kind domain.MessageType) (*domain.Message, error) {
	sender, ok := r.reg.LookupIdentity(connID)
	if !ok {
		return nil, domain.ErrNotAuthenticated
	}

	if err := r.validateBody(body); err != nil {
		return nil, err
	}
	switch kind {
	case "":
		kind = domain.MessageText
	case domain.MessageText, domain.MessageFile:
	default:
		return nil, fmt.Errorf("%w: unknown message kind %q", domain.ErrInvalidContent, kind)
	}

	rm, err := r.resolveRoom(ctx, sender, target)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		SenderID:   sender.ID,
		SenderName: sender.Username,
		RoomID:     rm.ID,
		Type:       kind,
		Body:       body,
	}

	if err := r.deliver(ctx, rm, msg); err != nil {
		return nil, err
	}

	// Offer to the auto-responder off the acknowledgement path.
	if r.responder != nil && kind == domain.MessageText {
		go r.maybeAutoReply(rm.ID, *msg)
	}

	return msg, nil
}

// validateBody applies the content rules shared by user messages and
// injected auto-replies.
func (r *Router) validateBody(body string) error {
	if body == "" {
		return fmt.Errorf("%w: empty body", domain.ErrInvalidContent)
	}
	if len(body) > r.cfg.MaxBodyLength {
		return fmt.Errorf("%w: body exceeds %d bytes", domain.ErrInvalidContent, r.cfg.MaxBodyLength)
	}
	return nil
}

// resolveRoom maps the target to a room the sender may write to.
func (r *Router) resolveRoom(ctx context.Context, sender *domain.User, target Target) (*domain.Room, error) {
	if target.PeerID != "" {
		peer, err := r.peers.Lookup(ctx, target.PeerID)
		if err != nil {
			return nil, err
		}
		if !peer.AllowsDirectMessages() || peer.IsBanned() {
			return nil, fmt.Errorf("%w: peer does not accept private messages", domain.ErrPermissionDenied)
		}
		return r.rooms.EnsurePrivate(sender.ID, peer.ID)
	}

	rm, ok := r.rooms.Get(target.RoomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	if !r.rooms.IsMember(rm.ID, sender.ID) {
		return nil, fmt.Errorf("%w: not a member of %s", domain.ErrPermissionDenied, rm.Name)
	}
	return rm, nil
}

// SystemNotice persists and broadcasts a system message to a room, for
// example join/leave notices. System messages are never offered to the
// auto-responder.
func (r *Router) SystemNotice(ctx context.Context, roomID, body string) (*domain.Message, error) {
	rm, ok := r.rooms.Get(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}

	msg := &domain.Message{
		SenderID:   domain.SystemUser.ID,
		SenderName: domain.SystemUser.Username,
		RoomID:     rm.ID,
		Type:       domain.MessageSystem,
		Body:       body,
	}
	if err := r.deliver(ctx, rm, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// deliver persists the message, resolves the audience and fans out.
// The whole step runs in one critical section so deliveries to a room
// keep router order.
func (r *Router) deliver(ctx context.Context, rm *domain.Room, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Save(ctx, msg); err != nil {
		return fmt.Errorf("persist message: %w", err)
	}

	members, err := r.rooms.Members(rm.ID)
	if err != nil {
		// Room deleted between resolution and delivery; the message is
		// persisted but there is no one to fan out to.
		return nil
	}
	online := r.reg.SnapshotOnline()

	echo := r.cfg.EchoBroadcast
	if rm.Type == domain.RoomPrivate {
		echo = r.cfg.EchoPrivate
	}

	frame, err := json.Marshal(domain.NewMessageFrame(msg))
	if err != nil {
		return fmt.Errorf("encode message frame: %w", err)
	}

	delivered := 0
	for userID := range members {
		if userID == msg.SenderID && !echo {
			continue
		}
		if _, ok := online[userID]; !ok {
			continue
		}
		connID, conn, ok := r.reg.ConnFor(userID)
		if !ok {
			continue
		}
		if err := conn.WriteFrame(frame); err != nil {
			// A recipient that cannot accept the write is treated as
			// disconnected; delivery to everyone else continues.
			log.L().Warn().
				Err(err).
				Str(log.FieldConnID, connID).
				Str(log.FieldUserID, userID).
				Str(log.FieldRoomID, rm.ID).
				Msg("dropping recipient after failed write")
			go r.onWriteFailure(connID)
			continue
		}
		delivered++
	}

	log.L().Debug().
		Str(log.FieldMessageID, msg.ID).
		Str(log.FieldRoomID, rm.ID).
		Int("recipients", delivered).
		Msg("message routed")
	return nil
}

// maybeAutoReply offers the message to the responder and injects a
// non-empty reply as a single system message. The reply is not offered
// back to the responder, so one message produces at most one reply.
func (r *Router) maybeAutoReply(roomID string, msg domain.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.ResponderTimeout)
	defer cancel()

	history, _, err := r.store.History(ctx, roomID, r.cfg.HistoryContext, "")
	if err != nil {
		history = nil
	}

	reply, err := r.responder.MaybeReply(ctx, msg, history)
	if err != nil {
		log.L().Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("auto-responder call failed")
		return
	}
	if reply == "" {
		return
	}
	// The reply obeys the same content rules as user messages.
	if err := r.validateBody(reply); err != nil {
		log.L().Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("dropping invalid auto-reply")
		return
	}

	if _, err := r.SystemNotice(ctx, roomID, reply); err != nil {
		log.L().Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to deliver auto-reply")
	}
}
