package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Event types published on the stream.
const (
	TypeConnected    = "connected"
	TypeDisconnected = "disconnected"
	TypeNamed        = "named"
	TypeMessage      = "message"
	TypeWhisper      = "whisper"
	TypeJoined       = "joined"
	TypeLeft         = "left"
	TypeRoomCreated  = "room_created"
	TypeRoomDeleted  = "room_deleted"
	TypeKicked       = "kicked"
	TypeBanned       = "banned"
	TypeMuted        = "muted"
)

const subjectPrefix = "chat.events"

// Subject returns the NATS subject for an event type.
func Subject(eventType string) string {
	return fmt.Sprintf("%s.%s", subjectPrefix, eventType)
}

// Event is one server-side occurrence, serialized as JSON.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	ServerID   string    `json:"server_id"`
	ClientID   uint64    `json:"client_id,omitempty"`
	ClientName string    `json:"client_name,omitempty"`
	Room       string    `json:"room,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher pushes events to NATS. All methods are safe on a nil
// receiver, so the server runs unchanged when no event stream is
// configured. Publishing is best-effort; failures are logged and
// dropped.
type Publisher struct {
	logger   zerolog.Logger
	serverID string

	mu        sync.RWMutex
	conn      *nats.Conn
	connected bool
}

// Connect dials the NATS server and keeps the connection alive with
// automatic reconnects.
func Connect(url string, logger zerolog.Logger) (*Publisher, error) {
	p := &Publisher{
		logger:   logger,
		serverID: "chat-" + uuid.NewString(),
	}

	opts := []nats.Option{
		nats.Name("tcpchat"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("event stream reconnected")
			p.mu.Lock()
			p.connected = true
			p.mu.Unlock()
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("event stream disconnected")
			p.mu.Lock()
			p.connected = false
			p.mu.Unlock()
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			p.mu.Lock()
			p.connected = false
			p.mu.Unlock()
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect event stream: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.connected = true
	p.mu.Unlock()

	logger.Info().Str("url", url).Msg("event stream connected")
	return p, nil
}

// Emit fills the event's identity fields and publishes it.
func (p *Publisher) Emit(e Event) {
	if p == nil {
		return
	}
	p.mu.RLock()
	conn, ok := p.conn, p.connected
	p.mu.RUnlock()
	if !ok || conn == nil {
		return
	}

	e.ID = uuid.NewString()
	e.ServerID = p.serverID
	e.Timestamp = time.Now()

	data, err := json.Marshal(e)
	if err != nil {
		p.logger.Debug().Err(err).Str("type", e.Type).Msg("event marshal failed")
		return
	}
	if err := conn.Publish(Subject(e.Type), data); err != nil {
		p.logger.Debug().Err(err).Str("type", e.Type).Msg("event publish failed")
	}
}

// IsConnected reports whether events currently reach the stream.
func (p *Publisher) IsConnected() bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Close flushes and drops the connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
		p.connected = false
	}
}
