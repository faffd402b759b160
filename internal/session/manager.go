// Package session orchestrates login and logout: credential checks via
// the identity collaborator, connection-identity binding in the
// registry, and the per-identity "current room" pointer for single-pane
// clients.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/ogas1024/chat-room/internal/domain"
	"github.com/ogas1024/chat-room/internal/registry"
	"github.com/ogas1024/chat-room/internal/room"
	"github.com/ogas1024/chat-room/pkg/jwt"
	"github.com/ogas1024/chat-room/pkg/log"
	"github.com/ogas1024/chat-room/pkg/pubsub"
)

// PresenceChannel is the event bus channel presence changes are
// published to.
const PresenceChannel = "chat:presence"

// Presence event types.
const (
	EventOnline  = "online"
	EventOffline = "offline"
)

// IdentityStore is the external identity collaborator. Credential
// verification is opaque to the session manager.
type IdentityStore interface {
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
	Lookup(ctx context.Context, userID string) (*domain.User, error)
}

// Credentials carries one authentication attempt. Either a
// username/password pair or a resume token issued by a previous login.
type Credentials struct {
	Username string
	Password string
	Token    string
}

// Manager owns the login/logout flow and the current-room pointers.
type Manager struct {
	reg    *registry.Registry
	rooms  *room.Manager
	ids    IdentityStore
	tokens *jwt.Manager
	events pubsub.Publisher

	mu      sync.RWMutex
	current map[string]string // identity id -> room id
}

// NewManager wires the session manager to its collaborators.
func NewManager(reg *registry.Registry, rooms *room.Manager, ids IdentityStore, tokens *jwt.Manager, events pubsub.Publisher) *Manager {
	return &Manager{
		reg:     reg,
		rooms:   rooms,
		ids:     ids,
		tokens:  tokens,
		events:  events,
		current: make(map[string]string),
	}
}

// Login authenticates the peer on the given connection and binds the
// identity in the registry. A duplicate login evicts the older
// connection inside Bind ("last login wins"). On success it returns the
// identity and a resume token; on failure the connection stays open and
// unauthenticated.
func (m *Manager) Login(ctx context.Context, connID string, creds Credentials) (*domain.User, string, error) {
	user, err := m.authenticate(ctx, creds)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldConnID, connID).Msg("login rejected")
		return nil, "", err
	}

	if user.IsBanned() {
		return nil, "", fmt.Errorf("%w: account is banned", domain.ErrPermissionDenied)
	}

	if err := m.reg.Bind(connID, user); err != nil {
		return nil, "", fmt.Errorf("bind session: %w", err)
	}

	// Everyone lands in the default public room.
	def := m.rooms.DefaultRoom()
	if err := m.rooms.Join(def, user.ID); err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to join default room")
	}
	m.SetCurrentRoom(user.ID, def)

	token, err := m.tokens.Generate(user.ID, user.Username, user.Roles)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to issue resume token")
		token = ""
	}

	m.publishPresence(ctx, EventOnline, user)
	log.Ctx(ctx).Info().
		Str(log.FieldConnID, connID).
		Str(log.FieldUserID, user.ID).
		Str(log.FieldUsername, user.Username).
		Msg("session started")

	return user, token, nil
}

func (m *Manager) authenticate(ctx context.Context, creds Credentials) (*domain.User, error) {
	if creds.Token != "" {
		claims, err := m.tokens.Validate(creds.Token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
		}
		// Re-resolve the identity so role changes since token issue
		// take effect.
		user, err := m.ids.Lookup(ctx, claims.UserID)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown token subject", domain.ErrAuthentication)
		}
		return user, nil
	}
	return m.ids.Authenticate(ctx, creds.Username, creds.Password)
}

// Logout unbinds the connection's identity, drops its current-room
// pointer and emits a presence-changed event. Room membership is kept:
// membership is not presence. Idempotent.
func (m *Manager) Logout(ctx context.Context, connID string) {
	user, ok := m.reg.LookupIdentity(connID)
	if !ok {
		return
	}

	m.reg.Unbind(connID)

	m.mu.Lock()
	delete(m.current, user.ID)
	m.mu.Unlock()

	m.publishPresence(ctx, EventOffline, user)
	log.Ctx(ctx).Info().
		Str(log.FieldConnID, connID).
		Str(log.FieldUserID, user.ID).
		Msg("session ended")
}

// CurrentRoom returns the identity's active room, if any.
func (m *Manager) CurrentRoom(userID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.current[userID]
	return id, ok
}

// SetCurrentRoom points the identity's single active context at a room.
func (m *Manager) SetCurrentRoom(userID, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current[userID] = roomID
}

// ResetCurrentRoom moves the given identities back to the default
// public room; used after their current room is deleted.
func (m *Manager) ResetCurrentRoom(userIDs []string) {
	def := m.rooms.DefaultRoom()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range userIDs {
		if _, ok := m.current[id]; ok {
			m.current[id] = def
		}
	}
}

type presencePayload struct {
	Username string `json:"username"`
}

// publishPresence emits a presence-changed event. Publisher failures
// are logged and never affect the session flow.
func (m *Manager) publishPresence(ctx context.Context, eventType string, user *domain.User) {
	ev, err := pubsub.NewEvent(eventType, user.ID, presencePayload{Username: user.Username})
	if err != nil {
		return
	}
	if err := m.events.Publish(ctx, PresenceChannel, ev); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to publish presence event")
	}
}
