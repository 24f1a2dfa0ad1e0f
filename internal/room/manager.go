package room

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidName   = errors.New("room name cannot be empty")
	ErrRoomExists    = errors.New("room already exists")
	ErrRoomMissing   = errors.New("room does not exist")
	ErrBadPassword   = errors.New("wrong room password")
	ErrNotAuthorized = errors.New("not the room owner")
	ErrProtectedRoom = errors.New("room cannot be deleted")
)

// Manager owns every room and the client-to-room index. A single
// manager-wide lock keeps the two views consistent: a client is a member of
// exactly one room, and that room is the one the index names.
type Manager struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	clientRooms map[uint64]string
}

// NewManager creates the manager with the general room already present.
func NewManager() *Manager {
	m := &Manager{
		rooms:       make(map[string]*Room),
		clientRooms: make(map[uint64]string),
	}
	general := newRoom(General, AdminID)
	general.Topic = "Welcome to the chat server!"
	m.rooms[General] = general
	return m
}

// CreateRoom adds a new room. Private rooms may carry a password, stored as
// a bcrypt hash; the empty password stays empty so that public creation
// paths never pay the hashing cost.
func (m *Manager) CreateRoom(name string, owner uint64, private bool, password string) error {
	if name == "" {
		return ErrInvalidName
	}

	var hash []byte
	if private && password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash room password: %w", err)
		}
		hash = h
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[name]; ok {
		return ErrRoomExists
	}

	r := newRoom(name, owner)
	r.Private = private
	r.passwordHash = hash
	m.rooms[name] = r
	return nil
}

// DeleteRoom removes a room. Only the owner or the administrator may delete
// it, general never can, and every member migrates to general atomically
// under the manager lock.
func (m *Manager) DeleteRoom(name string, requester uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == General {
		return ErrProtectedRoom
	}
	r, ok := m.rooms[name]
	if !ok {
		return ErrRoomMissing
	}
	if r.OwnerID != requester && requester != AdminID {
		return ErrNotAuthorized
	}

	general := m.rooms[General]
	for id := range r.members {
		m.clientRooms[id] = General
		general.members[id] = struct{}{}
	}
	delete(m.rooms, name)
	return nil
}

// JoinRoom moves a client into a room, leaving its previous room first.
// Both transitions become visible atomically. Private rooms require the
// password to match; an empty stored password counts as a match for the
// empty string.
func (m *Manager) JoinRoom(name string, client uint64, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[name]
	if !ok {
		return ErrRoomMissing
	}

	if r.Private {
		if len(r.passwordHash) == 0 {
			if password != "" {
				return ErrBadPassword
			}
		} else if bcrypt.CompareHashAndPassword(r.passwordHash, []byte(password)) != nil {
			return ErrBadPassword
		}
	}

	if current, ok := m.clientRooms[client]; ok {
		if prev, ok := m.rooms[current]; ok {
			delete(prev.members, client)
		}
	}

	r.members[client] = struct{}{}
	m.clientRooms[client] = name
	return nil
}

// LeaveRoom removes a client from its current room and forgets it. Used on
// disconnect; protocol-level #leave is a JoinRoom back to general.
func (m *Manager) LeaveRoom(client uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.clientRooms[client]; ok {
		if r, ok := m.rooms[current]; ok {
			delete(r.members, client)
		}
		delete(m.clientRooms, client)
	}
}

// SetTopic updates a room topic; owner or administrator only.
func (m *Manager) SetTopic(name, topic string, requester uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[name]
	if !ok {
		return ErrRoomMissing
	}
	if r.OwnerID != requester && requester != AdminID {
		return ErrNotAuthorized
	}
	r.Topic = topic
	return nil
}

// ListRooms returns the public room names sorted ascending.
func (m *Manager) ListRooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.rooms))
	for name, r := range m.rooms {
		if !r.Private {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// GetMembers returns the member IDs of a room in ascending order, empty for
// unknown rooms.
func (m *Manager) GetMembers(name string) []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.membersLocked(name)
}

func (m *Manager) membersLocked(name string) []uint64 {
	r, ok := m.rooms[name]
	if !ok {
		return nil
	}
	ids := make([]uint64, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GetClientRoom returns the client's current room, defaulting to general
// for clients the manager does not know.
func (m *Manager) GetClientRoom(client uint64) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name, ok := m.clientRooms[client]; ok {
		return name
	}
	return General
}

// RoomExists reports whether a room with the given name exists.
func (m *Manager) RoomExists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rooms[name]
	return ok
}

// GetRoomInfo returns a snapshot of one room.
func (m *Manager) GetRoomInfo(name string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[name]
	if !ok {
		return Info{}, false
	}
	return r.info(), true
}

// GetRoommates returns the members of the client's current room. Unknown
// clients fall back to general's members.
func (m *Manager) GetRoommates(client uint64) []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, ok := m.clientRooms[client]
	if !ok {
		name = General
	}
	return m.membersLocked(name)
}

// Count returns the number of rooms, private ones included.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Infos returns snapshots of every room sorted by name, for the ops API.
func (m *Manager) Infos() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Info, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
