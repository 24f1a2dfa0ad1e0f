package room

import (
	"time"
)

// General is the default room every client lands in. It exists from server
// start, is owned by the administrator, and cannot be deleted.
const General = "general"

// AdminID is the sentinel principal allowed to manage any room. It is never
// bound to a real connection.
const AdminID uint64 = 0

// Room is one named chat room. All mutation happens under the Manager's
// lock; Room itself carries no synchronization.
type Room struct {
	Name      string
	Topic     string
	OwnerID   uint64
	CreatedAt time.Time
	Private   bool

	// bcrypt hash of the join password; empty when the room has none.
	passwordHash []byte

	members map[uint64]struct{}
}

func newRoom(name string, owner uint64) *Room {
	return &Room{
		Name:      name,
		OwnerID:   owner,
		CreatedAt: time.Now(),
		members:   make(map[uint64]struct{}),
	}
}

// MemberCount returns the number of members. Callers outside the manager
// should use Manager.GetRoomInfo for a consistent snapshot.
func (r *Room) MemberCount() int {
	return len(r.members)
}

// Info is a read-only snapshot of a room.
type Info struct {
	Name      string    `json:"name"`
	Topic     string    `json:"topic"`
	OwnerID   uint64    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	Private   bool      `json:"private"`
	Members   int       `json:"members"`
}

func (r *Room) info() Info {
	return Info{
		Name:      r.Name,
		Topic:     r.Topic,
		OwnerID:   r.OwnerID,
		CreatedAt: r.CreatedAt,
		Private:   r.Private,
		Members:   len(r.members),
	}
}
