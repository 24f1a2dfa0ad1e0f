package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"tcpchat/internal/types"
)

// Client is the registry's record of one connection. The registry owns the
// record from accept to post-disconnect cleanup; callers get copies.
type Client struct {
	ID          uint64
	Addr        string
	Name        string // empty until the client registers one
	State       types.ClientState
	ConnectedAt time.Time
	LastActive  time.Time
	Messages    int
	Room        string
}

// Named reports whether the client chose a display name. The empty name is
// the anonymous tag; SetName refuses empty names, so the two states cannot
// be confused even when a user literally types "User#5".
func (c Client) Named() bool {
	return c.Name != ""
}

// DisplayName is the chosen name, or the User#<id> placeholder while
// anonymous.
func (c Client) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("User#%d", c.ID)
}

// Registry is the thread-safe table of connected clients. It is sized for
// at most the configured connection cap, so name resolution is a linear
// scan rather than a secondary index.
type Registry struct {
	mu      sync.RWMutex
	clients map[uint64]*Client
}

func New() *Registry {
	return &Registry{
		clients: make(map[uint64]*Client),
	}
}

// Add inserts a fresh anonymous record for an accepted connection.
func (r *Registry) Add(id uint64, addr string) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[id] = &Client{
		ID:          id,
		Addr:        addr,
		State:       types.StateConnected,
		ConnectedAt: now,
		LastActive:  now,
	}
}

// Remove deletes the record. Safe to call for unknown IDs.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
}

// SetName registers the display name and marks the client authenticated.
// Returns false for unknown clients and empty names. Duplicate names are
// accepted; see FindByName.
func (r *Registry) SetName(id uint64, name string) bool {
	if name == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return false
	}
	c.Name = name
	c.State = types.StateAuthenticated
	return true
}

// IsNamed reports whether the client has registered a name.
func (r *Registry) IsNamed(id uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return ok && c.Named()
}

// DisplayName resolves a name for any ID, falling back to the placeholder
// for anonymous or unknown clients.
func (r *Registry) DisplayName(id uint64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.clients[id]; ok {
		return c.DisplayName()
	}
	return fmt.Sprintf("User#%d", id)
}

// SetRoom records the client's current room. The room manager holds the
// authoritative membership; this mirror exists so reads like #online do not
// need to consult it.
func (r *Registry) SetRoom(id uint64, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[id]; ok {
		c.Room = room
	}
}

// Room returns the mirrored room name, empty for unknown clients.
func (r *Registry) Room(id uint64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.clients[id]; ok {
		return c.Room
	}
	return ""
}

// RecordActivity bumps the activity timestamp and inbound message count.
func (r *Registry) RecordActivity(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[id]; ok {
		c.LastActive = time.Now()
		c.Messages++
	}
}

// FindByName resolves a display name to a client ID with a case-sensitive
// exact match. The scan runs in ascending ID order so duplicate names
// resolve deterministically to the earliest connection.
func (r *Registry) FindByName(name string) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if r.clients[id].DisplayName() == name {
			return id, true
		}
	}
	return 0, false
}

// Info returns a copy of the record.
func (r *Registry) Info(id uint64) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.clients[id]; ok {
		return *c, true
	}
	return Client{}, false
}

// List returns copies of every record in ascending ID order.
func (r *Registry) List() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns every live client ID in ascending order.
func (r *Registry) IDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count returns the number of live records.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
