package types

import (
	"fmt"
	"time"
)

// ClientState represents where a connection is in its lifecycle
type ClientState int

const (
	// StateConnected means the peer is accepted but has not registered a name
	StateConnected ClientState = iota
	// StateAuthenticated means the peer has registered a display name
	StateAuthenticated
	// StateDisconnected is terminal
	StateDisconnected
)

func (s ClientState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ChatMessage is one chat line. The same record backs the in-memory cache,
// the transcript log, and published events.
type ChatMessage struct {
	SenderID   uint64    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Room       string    `json:"room"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewChatMessage builds a message stamped with the current wall-clock time.
func NewChatMessage(senderID uint64, senderName, room, content string) ChatMessage {
	return ChatMessage{
		SenderID:   senderID,
		SenderName: senderName,
		Room:       room,
		Content:    content,
		Timestamp:  time.Now(),
	}
}

// TimestampString formats the message time as local wall-clock time.
func (m ChatMessage) TimestampString() string {
	return m.Timestamp.Format("2006-01-02 15:04:05")
}

// String renders the transcript form shared by #history replies and log lines:
// [YYYY-MM-DD HH:MM:SS] [#room] sender: content
func (m ChatMessage) String() string {
	return fmt.Sprintf("[%s] [#%s] %s: %s", m.TimestampString(), m.Room, m.SenderName, m.Content)
}
