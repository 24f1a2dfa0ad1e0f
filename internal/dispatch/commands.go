package dispatch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"tcpchat/internal/events"
	"tcpchat/internal/room"
)

const helpText = "Available commands:\n" +
	"  #rooms     - List all chat rooms\n" +
	"  #join <r>  - Join room <r>\n" +
	"  #create <r>- Create new room\n" +
	"  #leave     - Leave to general\n" +
	"  #online    - List online users\n" +
	"  #whisper <user> <msg> - Private message\n" +
	"  #history [n] - Show last n messages\n" +
	"  #exit      - Disconnect\n"

const (
	historyDefault = 10
	historyMax     = 50
	muteDefault    = 60
)

// handleCommand routes one #-prefixed line. Unknown commands get a hint.
func (d *Dispatcher) handleCommand(id uint64, text string) {
	fields := strings.Fields(text)
	args := fields[1:]

	switch fields[0] {
	case "#help":
		d.send(id, helpText)
	case "#rooms":
		d.cmdRooms(id)
	case "#join":
		d.cmdJoin(id, args)
	case "#create":
		d.cmdCreate(id, args)
	case "#leave":
		d.cmdLeave(id)
	case "#online":
		d.cmdOnline(id)
	case "#whisper":
		d.cmdWhisper(id, text)
	case "#history":
		d.cmdHistory(id, args)
	case "#kick":
		d.cmdKick(id, args)
	case "#ban":
		d.cmdBan(id, args)
	case "#mute":
		d.cmdMute(id, args)
	case "#exit":
		d.sender.Disconnect(id)
	default:
		d.send(id, "Unknown command. Type #help for available commands.\n")
	}
}

func (d *Dispatcher) cmdRooms(id uint64) {
	var b strings.Builder
	b.WriteString("Available rooms:\n")
	for _, name := range d.rooms.ListRooms() {
		info, ok := d.rooms.GetRoomInfo(name)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "  #%s (%d users)\n", info.Name, info.Members)
	}
	d.send(id, b.String())
}

func (d *Dispatcher) cmdJoin(id uint64, args []string) {
	if len(args) < 1 {
		d.send(id, "Usage: #join <room_name>\n")
		return
	}
	target := args[0]

	current := d.rooms.GetClientRoom(id)
	if current == target {
		d.send(id, "You are already in #"+target+"\n")
		return
	}

	// The protocol carries no password, so private rooms only admit
	// joins when their stored password is empty.
	if err := d.rooms.JoinRoom(target, id, ""); err != nil {
		d.send(id, "Failed to join room. Does it exist?\n")
		return
	}
	d.registry.SetRoom(id, target)

	name := d.registry.DisplayName(id)
	d.sendToRoom(current, name+" left #"+current+"\n", id)
	d.sendToRoom(target, name+" joined #"+target+"\n", id)
	d.send(id, "Joined #"+target+"\n")
	d.events.Emit(events.Event{Type: events.TypeJoined, ClientID: id, ClientName: name, Room: target})
}

func (d *Dispatcher) cmdCreate(id uint64, args []string) {
	if len(args) < 1 {
		d.send(id, "Usage: #create <room_name>\n")
		return
	}
	name := args[0]

	if err := d.rooms.CreateRoom(name, id, false, ""); err != nil {
		d.send(id, "Failed to create room. Does it already exist?\n")
		return
	}
	_ = d.rooms.JoinRoom(name, id, "")
	d.registry.SetRoom(id, name)
	d.send(id, "Created and joined #"+name+"\n")

	creator := d.registry.DisplayName(id)
	d.audit.LogRoomCreate(id, creator, name, false)
	d.events.Emit(events.Event{Type: events.TypeRoomCreated, ClientID: id, ClientName: creator, Room: name})
	d.logger.Info().Str("room", name).Str("by", creator).Msg("room created")
}

func (d *Dispatcher) cmdLeave(id uint64) {
	current := d.rooms.GetClientRoom(id)
	if current == room.General {
		d.send(id, "You are already in #general\n")
		return
	}
	_ = d.rooms.JoinRoom(room.General, id, "")
	d.registry.SetRoom(id, room.General)
	d.send(id, "You left #"+current+" and joined #general\n")
	d.events.Emit(events.Event{Type: events.TypeLeft, ClientID: id, Room: current})
}

func (d *Dispatcher) cmdOnline(id uint64) {
	clients := d.registry.List()

	var b strings.Builder
	fmt.Fprintf(&b, "Online users (%d):\n", len(clients))
	for _, c := range clients {
		fmt.Fprintf(&b, "  %s (#%s)\n", c.DisplayName(), d.rooms.GetClientRoom(c.ID))
	}
	d.send(id, b.String())
}

// cmdWhisper parses from the raw text so the message keeps its internal
// spacing.
func (d *Dispatcher) cmdWhisper(id uint64, text string) {
	rest := strings.TrimSpace(strings.TrimPrefix(text, "#whisper"))
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		d.send(id, "Usage: #whisper <username> <message>\n")
		return
	}
	target, message := parts[0], parts[1]

	targetID, ok := d.registry.FindByName(target)
	if !ok {
		d.send(id, "User not found: "+target+"\n")
		return
	}

	sender := d.registry.DisplayName(id)
	d.send(targetID, "[Whisper from "+sender+"]:"+message+"\n")
	d.send(id, "[Whisper to "+target+"]:"+message+"\n")
	d.metrics.WhisperDelivered()
	d.events.Emit(events.Event{Type: events.TypeWhisper, ClientID: id, ClientName: sender, Detail: target})
}

func (d *Dispatcher) cmdHistory(id uint64, args []string) {
	n := historyDefault
	if len(args) >= 1 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			n = v
		}
	}
	if n < 1 {
		n = historyDefault
	}
	if n > historyMax {
		n = historyMax
	}

	roomName := d.rooms.GetClientRoom(id)
	msgs := d.store.GetRecent(roomName, n)

	var b strings.Builder
	fmt.Fprintf(&b, "Last %d messages in #%s:\n", len(msgs), roomName)
	for _, m := range msgs {
		b.WriteString("  " + m.String() + "\n")
	}
	d.send(id, b.String())
}

func (d *Dispatcher) cmdKick(id uint64, args []string) {
	target := firstArg(args)
	targetID, ok := d.registry.FindByName(target)
	if !ok {
		d.send(id, "User not found\n")
		return
	}

	sender := d.registry.DisplayName(id)
	d.send(targetID, "You have been kicked by "+sender+"\n")
	d.sender.Disconnect(targetID)
	d.send(id, "Kicked "+target+"\n")

	d.audit.LogKick(id, sender, targetID, target)
	d.events.Emit(events.Event{Type: events.TypeKicked, ClientID: targetID, ClientName: target, Detail: sender})
}

func (d *Dispatcher) cmdBan(id uint64, args []string) {
	target := firstArg(args)
	targetID, ok := d.registry.FindByName(target)
	if !ok {
		d.send(id, "User not found\n")
		return
	}
	info, ok := d.registry.Info(targetID)
	if !ok {
		d.send(id, "User not found\n")
		return
	}

	ip := clientIP(info.Addr)
	d.policy.Ban(ip)

	sender := d.registry.DisplayName(id)
	d.send(targetID, "You have been banned by "+sender+"\n")
	d.sender.Disconnect(targetID)
	d.send(id, "Banned IP for "+target+"\n")

	d.audit.LogBan(id, sender, targetID, target, ip)
	d.events.Emit(events.Event{Type: events.TypeBanned, ClientID: targetID, ClientName: target, Detail: sender})
}

func (d *Dispatcher) cmdMute(id uint64, args []string) {
	target := firstArg(args)
	seconds := muteDefault
	if len(args) >= 2 {
		if v, err := strconv.Atoi(args[1]); err == nil {
			seconds = v
		}
	}

	targetID, ok := d.registry.FindByName(target)
	if !ok {
		d.send(id, "User not found\n")
		return
	}

	duration := time.Duration(seconds) * time.Second
	d.policy.Mute(targetID, duration)

	sender := d.registry.DisplayName(id)
	d.send(targetID, fmt.Sprintf("You have been muted for %d seconds\n", seconds))
	d.send(id, fmt.Sprintf("Muted %s for %d seconds\n", target, seconds))

	d.audit.LogMute(id, sender, targetID, target, duration)
	d.events.Emit(events.Event{Type: events.TypeMuted, ClientID: targetID, ClientName: target, Detail: sender})
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
