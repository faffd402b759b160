// Package room owns room definitions and membership sets. Identity
// resolution is passed in by callers; the manager never talks to the
// registry or the identity store.
package room

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ogas1024/chat-room/internal/domain"
)

// Manager owns all rooms and their membership. Membership sets never
// contain duplicates and never exceed the room's member limit.
type Manager struct {
	mu         sync.RWMutex
	rooms      map[string]*domain.Room
	byName     map[string]string            // case-sensitive name -> room id
	members    map[string]map[string]struct{} // room id -> identity ids
	memberOf   map[string]map[string]struct{} // identity id -> room ids
	maxMembers int
	defaultID  string
}

// NewManager creates the manager and its singleton default public room,
// which every identity joins at login and which cannot be deleted.
func NewManager(defaultRoomName string, maxMembers int) *Manager {
	m := &Manager{
		rooms:      make(map[string]*domain.Room),
		byName:     make(map[string]string),
		members:    make(map[string]map[string]struct{}),
		memberOf:   make(map[string]map[string]struct{}),
		maxMembers: maxMembers,
	}

	def := &domain.Room{
		ID:         uuid.New().String(),
		Name:       defaultRoomName,
		Type:       domain.RoomPublic,
		MaxMembers: maxMembers,
		CreatedAt:  time.Now(),
	}
	m.insertLocked(def)
	m.defaultID = def.ID
	return m
}

// insertLocked registers a room; the caller holds the write lock (or is
// the constructor).
func (m *Manager) insertLocked(r *domain.Room) {
	m.rooms[r.ID] = r
	m.byName[r.Name] = r.ID
	m.members[r.ID] = make(map[string]struct{})
}

// DefaultRoom returns the id of the singleton public room.
func (m *Manager) DefaultRoom() string {
	return m.defaultID
}

// Create adds a new group room owned by the creator, who becomes its
// first member. Room names are unique, compared case-sensitively.
func (m *Manager) Create(name string, kind domain.RoomType, creatorID string) (*domain.Room, error) {
	if kind != domain.RoomGroup && kind != domain.RoomPublic {
		kind = domain.RoomGroup
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byName[name]; ok {
		return nil, domain.ErrDuplicateName
	}

	r := &domain.Room{
		ID:         uuid.New().String(),
		Name:       name,
		Type:       kind,
		OwnerID:    creatorID,
		MaxMembers: m.maxMembers,
		CreatedAt:  time.Now(),
	}
	m.insertLocked(r)
	m.joinLocked(r.ID, creatorID)
	return r, nil
}

// EnsurePrivate returns the 1:1 room between two identities, creating
// it on first use. A private room has exactly two members, fixed for
// its whole lifetime, and is not user-deletable.
func (m *Manager) EnsurePrivate(userA, userB string) (*domain.Room, error) {
	name := privateName(userA, userB)

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byName[name]; ok {
		return m.rooms[id], nil
	}

	r := &domain.Room{
		ID:         uuid.New().String(),
		Name:       name,
		Type:       domain.RoomPrivate,
		MaxMembers: 2,
		CreatedAt:  time.Now(),
	}
	m.insertLocked(r)
	m.joinLocked(r.ID, userA)
	m.joinLocked(r.ID, userB)
	return r, nil
}

// privateName derives a canonical, order-independent name for a 1:1
// room.
func privateName(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return "dm:" + strings.Join(ids, ":")
}

// Join adds an identity to a room. Re-joining is a no-op success. The
// capacity check happens before any mutation.
func (m *Manager) Join(roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.members[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if _, ok := set[userID]; ok {
		return nil
	}

	r := m.rooms[roomID]
	if r.Type == domain.RoomPrivate {
		return domain.ErrPermissionDenied
	}
	if len(set) >= r.MaxMembers {
		return domain.ErrRoomFull
	}

	m.joinLocked(roomID, userID)
	return nil
}

func (m *Manager) joinLocked(roomID, userID string) {
	m.members[roomID][userID] = struct{}{}
	if m.memberOf[userID] == nil {
		m.memberOf[userID] = make(map[string]struct{})
	}
	m.memberOf[userID][roomID] = struct{}{}
}

// Leave removes an identity from a room. Removing the last member does
// not delete a group room; only Delete does.
func (m *Manager) Leave(roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.members[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if _, ok := set[userID]; !ok {
		return domain.ErrNotMember
	}

	m.leaveLocked(roomID, userID)
	return nil
}

func (m *Manager) leaveLocked(roomID, userID string) {
	delete(m.members[roomID], userID)
	if rooms := m.memberOf[userID]; rooms != nil {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(m.memberOf, userID)
		}
	}
}

// Members returns the membership set of a room.
func (m *Manager) Members(roomID string) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.members[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	out := make(map[string]struct{}, len(set))
	for id := range set {
		out[id] = struct{}{}
	}
	return out, nil
}

// IsMember reports whether the identity belongs to the room.
func (m *Manager) IsMember(roomID, userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.members[roomID]
	if !ok {
		return false
	}
	_, ok = set[userID]
	return ok
}

// RoomsFor returns the set of room ids the identity belongs to.
func (m *Manager) RoomsFor(userID string) map[string]struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]struct{}, len(m.memberOf[userID]))
	for id := range m.memberOf[userID] {
		out[id] = struct{}{}
	}
	return out
}

// Get returns a room by id.
func (m *Manager) Get(roomID string) (*domain.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	return r, ok
}

// Delete removes a group room. Only the owner or an admin may delete,
// and neither the default public room nor private rooms are deletable.
// It returns the former members so the caller can repoint their current
// room at the default room.
func (m *Manager) Delete(roomID string, requester *domain.User) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	if roomID == m.defaultID || r.Type == domain.RoomPrivate {
		return nil, domain.ErrPermissionDenied
	}
	if r.OwnerID != requester.ID && !requester.IsAdmin() {
		return nil, domain.ErrPermissionDenied
	}

	former := make([]string, 0, len(m.members[roomID]))
	for userID := range m.members[roomID] {
		former = append(former, userID)
		m.leaveLocked(roomID, userID)
	}

	delete(m.rooms, roomID)
	delete(m.byName, r.Name)
	delete(m.members, roomID)
	return former, nil
}

// Snapshot returns all rooms with their member counts, for the status
// API.
func (m *Manager) Snapshot() []RoomStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]RoomStatus, 0, len(m.rooms))
	for id, r := range m.rooms {
		out = append(out, RoomStatus{
			ID:      id,
			Name:    r.Name,
			Type:    string(r.Type),
			Members: len(m.members[id]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RoomStatus is a read-only view of one room for operators.
type RoomStatus struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Members int    `json:"members"`
}
