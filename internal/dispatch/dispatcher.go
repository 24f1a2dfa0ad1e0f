package dispatch

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tcpchat/internal/audit"
	"tcpchat/internal/events"
	"tcpchat/internal/metrics"
	"tcpchat/internal/policy"
	"tcpchat/internal/registry"
	"tcpchat/internal/room"
	"tcpchat/internal/store"
	"tcpchat/internal/types"
)

const welcomeText = "Welcome to the chat server! You are in #general.\n" +
	"Type #help for available commands.\n"

// Sender is the outbound side of the transport.
type Sender interface {
	Send(id uint64, data []byte) bool
	Disconnect(id uint64)
}

// Deps are the components the dispatcher routes between. Events may be
// nil.
type Deps struct {
	Registry *registry.Registry
	Rooms    *room.Manager
	Policy   *policy.Controller
	Store    *store.Store
	Metrics  *metrics.Metrics
	Audit    *audit.Logger
	Events   *events.Publisher
	Logger   zerolog.Logger
}

// Dispatcher owns the protocol: it admits connections, turns inbound
// chunks into name registrations, commands, or room broadcasts, and
// cleans up on disconnect. It runs entirely on the transport's worker
// pool, which serializes calls per client.
type Dispatcher struct {
	registry *registry.Registry
	rooms    *room.Manager
	policy   *policy.Controller
	store    *store.Store
	metrics  *metrics.Metrics
	audit    *audit.Logger
	events   *events.Publisher
	logger   zerolog.Logger

	sender Sender
}

func New(d Deps) *Dispatcher {
	return &Dispatcher{
		registry: d.Registry,
		rooms:    d.Rooms,
		policy:   d.Policy,
		store:    d.Store,
		metrics:  d.Metrics,
		audit:    d.Audit,
		events:   d.Events,
		logger:   d.Logger,
	}
}

// SetSender wires the transport in. Must be called before the transport
// starts delivering events.
func (d *Dispatcher) SetSender(s Sender) {
	d.sender = s
}

// OnConnect admits or refuses a new connection. Admitted clients are
// registered, join general, and get the welcome line.
func (d *Dispatcher) OnConnect(id uint64, addr string) bool {
	if !d.policy.AllowConnection(clientIP(addr)) {
		d.metrics.ConnectionRejected()
		d.audit.LogConnectionRefused(addr, "rate limit, capacity, or ban")
		d.logger.Info().Uint64("client", id).Str("addr", addr).Msg("connection refused")
		return false
	}

	d.policy.OnConnect()
	d.policy.UpdateActivity(id)
	d.metrics.ConnectionOpened()

	d.registry.Add(id, addr)
	_ = d.rooms.JoinRoom(room.General, id, "")
	d.registry.SetRoom(id, room.General)

	d.send(id, welcomeText)
	d.events.Emit(events.Event{Type: events.TypeConnected, ClientID: id})
	d.logger.Info().Uint64("client", id).Str("addr", addr).Msg("client connected")
	return true
}

// OnMessage handles one inbound chunk: trailing CR, LF, and NUL bytes are
// trimmed and the rest is one name registration, command, or chat line.
func (d *Dispatcher) OnMessage(id uint64, chunk []byte) {
	text := strings.TrimRight(string(chunk), "\r\n\x00")
	if text == "" {
		return
	}

	if d.policy.IsMuted(id) {
		d.send(id, "You are muted.\n")
		return
	}
	if !d.policy.AllowMessage(id) {
		d.metrics.MessageRateLimited()
		d.send(id, "You are sending too many messages. Please slow down.\n")
		return
	}
	d.policy.RecordMessage(id)
	d.registry.RecordActivity(id)

	if !d.registry.IsNamed(id) && !strings.HasPrefix(text, "#") {
		d.registerName(id, text)
		return
	}
	if strings.HasPrefix(text, "#") {
		d.metrics.CommandExecuted()
		d.handleCommand(id, text)
		return
	}
	d.broadcastChat(id, text)
}

// OnDisconnect tears down one client: membership, policy state, and the
// registry record go, then the former room hears about it.
func (d *Dispatcher) OnDisconnect(id uint64) {
	info, ok := d.registry.Info(id)
	if !ok {
		return
	}
	name := info.DisplayName()
	roomName := d.rooms.GetClientRoom(id)

	d.rooms.LeaveRoom(id)
	d.policy.OnDisconnect()
	d.policy.Forget(id)
	d.registry.Remove(id)
	d.metrics.ConnectionClosed()

	d.sendToRoom(roomName, name+" has left the chat\n", 0)
	d.events.Emit(events.Event{Type: events.TypeDisconnected, ClientID: id, ClientName: name})
	d.logger.Info().Uint64("client", id).Str("name", name).Msg("client disconnected")
}

// RunIdleSweep disconnects clients with no inbound activity for the
// given timeout, checking once per second until ctx is done.
func (d *Dispatcher) RunIdleSweep(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range d.policy.CheckTimeouts(d.registry.IDs()) {
				d.logger.Info().Uint64("client", id).Msg("idle timeout")
				d.sender.Disconnect(id)
			}
		}
	}
}

// registerName takes the first non-command chunk as the display name and
// tells the room.
func (d *Dispatcher) registerName(id uint64, name string) {
	if !d.registry.SetName(id, name) {
		return
	}
	roomName := d.rooms.GetClientRoom(id)
	d.sendToRoom(roomName, name+" has joined #"+roomName+"\n", id)
	d.events.Emit(events.Event{Type: events.TypeNamed, ClientID: id, ClientName: name})
	d.logger.Info().Uint64("client", id).Str("name", name).Msg("client registered")
}

// broadcastChat stores the message and fans it out to the room, skipping
// the sender.
func (d *Dispatcher) broadcastChat(id uint64, text string) {
	name := d.registry.DisplayName(id)
	roomName := d.rooms.GetClientRoom(id)

	d.store.StoreMessage(types.NewChatMessage(id, name, roomName, text))
	d.metrics.MessageStored()

	delivered := d.sendToRoom(roomName, name+": "+text+"\n", id)
	d.metrics.BroadcastDelivered(delivered)
	d.events.Emit(events.Event{Type: events.TypeMessage, ClientID: id, ClientName: name, Room: roomName})
	d.logger.Debug().Str("room", roomName).Str("name", name).Str("text", text).Msg("chat")
}

// send delivers one reply line, adding the trailing newline when missing.
// Empty replies are suppressed.
func (d *Dispatcher) send(id uint64, text string) {
	if text == "" {
		return
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	d.sender.Send(id, []byte(text))
}

// sendToRoom delivers a line to the room's members except exclude and
// returns the delivery count.
func (d *Dispatcher) sendToRoom(roomName, line string, exclude uint64) int {
	delivered := 0
	for _, member := range d.rooms.GetMembers(roomName) {
		if member == exclude {
			continue
		}
		if d.sender.Send(member, []byte(line)) {
			delivered++
		}
	}
	return delivered
}

// clientIP strips the port from a host:port peer address.
func clientIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
