package audit

import (
	"time"

	"github.com/rs/zerolog"
)

// EventType classifies an audited action.
type EventType string

const (
	EventKick              EventType = "kick"
	EventBan               EventType = "ban"
	EventMute              EventType = "mute"
	EventRoomCreate        EventType = "room_create"
	EventRoomDelete        EventType = "room_delete"
	EventConnectionRefused EventType = "connection_refused"
)

// Event is one audit log entry.
type Event struct {
	Type       EventType
	ActorID    uint64
	ActorName  string
	TargetID   uint64
	TargetName string
	Room       string
	Address    string
	Detail     string
	Timestamp  time.Time
}

// Logger writes the audit trail of administrative commands and policy
// refusals to the structured server log.
type Logger struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Logger {
	return &Logger{log: log.With().Str("component", "audit").Logger()}
}

// LogEvent records one entry.
func (a *Logger) LogEvent(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	evt := a.log.Info().
		Str("event", string(e.Type)).
		Time("at", e.Timestamp)
	if e.ActorID != 0 || e.ActorName != "" {
		evt = evt.Uint64("actor_id", e.ActorID).Str("actor", e.ActorName)
	}
	if e.TargetID != 0 || e.TargetName != "" {
		evt = evt.Uint64("target_id", e.TargetID).Str("target", e.TargetName)
	}
	if e.Room != "" {
		evt = evt.Str("room", e.Room)
	}
	if e.Address != "" {
		evt = evt.Str("address", e.Address)
	}
	if e.Detail != "" {
		evt = evt.Str("detail", e.Detail)
	}
	evt.Msg("audit")
}

// LogKick records a forced disconnect.
func (a *Logger) LogKick(actorID uint64, actor string, targetID uint64, target string) {
	a.LogEvent(Event{
		Type:       EventKick,
		ActorID:    actorID,
		ActorName:  actor,
		TargetID:   targetID,
		TargetName: target,
	})
}

// LogBan records an IP ban.
func (a *Logger) LogBan(actorID uint64, actor string, targetID uint64, target, address string) {
	a.LogEvent(Event{
		Type:       EventBan,
		ActorID:    actorID,
		ActorName:  actor,
		TargetID:   targetID,
		TargetName: target,
		Address:    address,
	})
}

// LogMute records a mute; a zero duration is permanent.
func (a *Logger) LogMute(actorID uint64, actor string, targetID uint64, target string, d time.Duration) {
	detail := "permanent"
	if d > 0 {
		detail = d.String()
	}
	a.LogEvent(Event{
		Type:       EventMute,
		ActorID:    actorID,
		ActorName:  actor,
		TargetID:   targetID,
		TargetName: target,
		Detail:     detail,
	})
}

// LogRoomCreate records a room creation.
func (a *Logger) LogRoomCreate(actorID uint64, actor, room string, private bool) {
	detail := ""
	if private {
		detail = "private"
	}
	a.LogEvent(Event{
		Type:      EventRoomCreate,
		ActorID:   actorID,
		ActorName: actor,
		Room:      room,
		Detail:    detail,
	})
}

// LogRoomDelete records a room deletion.
func (a *Logger) LogRoomDelete(actorID uint64, actor, room string) {
	a.LogEvent(Event{
		Type:      EventRoomDelete,
		ActorID:   actorID,
		ActorName: actor,
		Room:      room,
	})
}

// LogConnectionRefused records a policy rejection at accept time.
func (a *Logger) LogConnectionRefused(address, reason string) {
	a.LogEvent(Event{
		Type:    EventConnectionRefused,
		Address: address,
		Detail:  reason,
	})
}
