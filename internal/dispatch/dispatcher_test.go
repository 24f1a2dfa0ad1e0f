package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcpchat/internal/audit"
	"tcpchat/internal/metrics"
	"tcpchat/internal/policy"
	"tcpchat/internal/registry"
	"tcpchat/internal/room"
	"tcpchat/internal/store"
)

// fakeSender records outbound traffic per client instead of writing to
// sockets.
type fakeSender struct {
	mu          sync.Mutex
	sent        map[uint64][]string
	disconnects []uint64
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[uint64][]string)}
}

func (f *fakeSender) Send(id uint64, data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[id] = append(f.sent[id], string(data))
	return true
}

func (f *fakeSender) Disconnect(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, id)
}

func (f *fakeSender) lines(id uint64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[id]...)
}

func (f *fakeSender) lastLine(id uint64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent[id]) == 0 {
		return ""
	}
	return f.sent[id][len(f.sent[id])-1]
}

func (f *fakeSender) disconnected() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.disconnects...)
}

type harness struct {
	d      *Dispatcher
	sender *fakeSender
	reg    *registry.Registry
	rooms  *room.Manager
	pol    *policy.Controller
	st     *store.Store
	m      *metrics.Metrics
}

func newHarness(t *testing.T, pcfg policy.Config) *harness {
	t.Helper()
	if pcfg.MaxConnectionsPerSecond == 0 {
		pcfg.MaxConnectionsPerSecond = 100
	}
	if pcfg.MaxMessagesPerMinute == 0 {
		pcfg.MaxMessagesPerMinute = 1000
	}
	if pcfg.MaxTotalConnections == 0 {
		pcfg.MaxTotalConnections = 100
	}
	if pcfg.ConnectionTimeout == 0 {
		pcfg.ConnectionTimeout = time.Minute
	}

	logger := zerolog.Nop()
	m := metrics.New()
	h := &harness{
		sender: newFakeSender(),
		reg:    registry.New(),
		rooms:  room.NewManager(),
		pol:    policy.New(pcfg),
		st:     store.New(store.Config{MaxMessagesPerRoom: 100}, logger, m),
		m:      m,
	}
	h.d = New(Deps{
		Registry: h.reg,
		Rooms:    h.rooms,
		Policy:   h.pol,
		Store:    h.st,
		Metrics:  m,
		Audit:    audit.New(logger),
		Logger:   logger,
	})
	h.d.SetSender(h.sender)
	return h
}

func (h *harness) connect(t *testing.T, id uint64) {
	t.Helper()
	require.True(t, h.d.OnConnect(id, fmt.Sprintf("10.0.0.%d:5000", id)))
}

// named connects a client and registers its display name in one step.
func (h *harness) named(t *testing.T, id uint64, name string) {
	t.Helper()
	h.connect(t, id)
	h.d.OnMessage(id, []byte(name+"\n"))
}

func (h *harness) say(id uint64, text string) {
	h.d.OnMessage(id, []byte(text+"\n"))
}

func TestConnectSendsWelcomeAndJoinsGeneral(t *testing.T) {
	h := newHarness(t, policy.Config{})

	h.connect(t, 1)

	want := "Welcome to the chat server! You are in #general.\n" +
		"Type #help for available commands.\n"
	require.Equal(t, []string{want}, h.sender.lines(1))

	assert.Equal(t, 1, h.reg.Count())
	assert.Equal(t, room.General, h.rooms.GetClientRoom(1))
	assert.Equal(t, 1, h.pol.GetConnectionCount())
}

func TestConnectRefusedForBannedIP(t *testing.T) {
	h := newHarness(t, policy.Config{})
	h.pol.Ban("10.0.0.9")

	ok := h.d.OnConnect(9, "10.0.0.9:5000")

	require.False(t, ok)
	assert.Empty(t, h.sender.lines(9))
	assert.Equal(t, 0, h.reg.Count())
	assert.Equal(t, 0, h.pol.GetConnectionCount())
}

func TestConnectRefusedAtCapacity(t *testing.T) {
	h := newHarness(t, policy.Config{MaxTotalConnections: 1})

	h.connect(t, 1)
	ok := h.d.OnConnect(2, "10.0.0.2:5000")

	require.False(t, ok)
	assert.Equal(t, 1, h.reg.Count())
	assert.Equal(t, 1, h.pol.GetConnectionCount())
}

func TestFirstPlainLineRegistersName(t *testing.T) {
	h := newHarness(t, policy.Config{})
	h.connect(t, 1)
	h.connect(t, 2)

	h.say(1, "alice")

	assert.Equal(t, "alice", h.reg.DisplayName(1))
	assert.True(t, h.reg.IsNamed(1))
	// The announcement goes to everyone else in the room, not back to
	// the registrant.
	assert.Equal(t, "alice has joined #general\n", h.sender.lastLine(2))
	assert.Len(t, h.sender.lines(1), 1)
}

func TestChatBroadcastSkipsSender(t *testing.T) {
	h := newHarness(t, policy.Config{})
	welcome := "Welcome to the chat server! You are in #general.\n" +
		"Type #help for available commands.\n"

	h.connect(t, 1)
	h.connect(t, 2)
	h.say(1, "alice")
	h.say(2, "bob")
	h.say(1, "hi")

	require.Equal(t, []string{
		welcome,
		"alice has joined #general\n",
		"alice: hi\n",
	}, h.sender.lines(2))
	require.Equal(t, []string{
		welcome,
		"bob has joined #general\n",
	}, h.sender.lines(1))

	msgs := h.st.GetRecent(room.General, 10)
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice", msgs[0].SenderName)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestBroadcastStaysInsideRoom(t *testing.T) {
	h := newHarness(t, policy.Config{})
	h.named(t, 1, "alice")
	h.named(t, 2, "bob")
	h.named(t, 3, "carol")
	h.say(1, "#create devs")
	h.say(2, "#join devs")

	before := len(h.sender.lines(3))
	h.say(1, "standup time")

	assert.Equal(t, "alice: standup time\n", h.sender.lastLine(2))
	assert.Len(t, h.sender.lines(3), before)
}

func TestEmptyChunkIsDropped(t *testing.T) {
	h := newHarness(t, policy.Config{})
	h.named(t, 1, "alice")
	h.named(t, 2, "bob")
	before := len(h.sender.lines(2))

	h.d.OnMessage(1, []byte("\r\n"))
	h.d.OnMessage(1, []byte("\x00\x00"))
	h.d.OnMessage(1, []byte(""))

	assert.Len(t, h.sender.lines(2), before)
	assert.Zero(t, h.st.GetTotalCount())
	assert.True(t, h.reg.IsNamed(1), "empty chunk must not be taken as a name")
}

func TestMutedClientGetsNoticeAndNothingIsSent(t *testing.T) {
	h := newHarness(t, policy.Config{})
	h.named(t, 1, "alice")
	h.named(t, 2, "bob")
	h.pol.Mute(2, 0)
	before := len(h.sender.lines(1))

	h.say(2, "can anyone hear me")

	assert.Equal(t, "You are muted.\n", h.sender.lastLine(2))
	assert.Len(t, h.sender.lines(1), before)
	assert.Zero(t, h.st.GetTotalCount())
}

func TestMessageRateLimitReply(t *testing.T) {
	h := newHarness(t, policy.Config{MaxMessagesPerMinute: 3})
	h.connect(t, 1)
	h.connect(t, 2)
	h.say(1, "alice")
	h.say(2, "bob")

	// Name registration consumed one slot each, so two chats fit.
	h.say(1, "one")
	h.say(1, "two")
	h.say(1, "three")

	assert.Equal(t, "You are sending too many messages. Please slow down.\n", h.sender.lastLine(1))

	got := h.sender.lines(2)
	require.NotEmpty(t, got)
	assert.Equal(t, "alice: two\n", got[len(got)-1])
	assert.NotContains(t, got, "alice: three\n")
}

func TestDisconnectAnnouncesToFormerRoom(t *testing.T) {
	h := newHarness(t, policy.Config{})
	h.named(t, 1, "alice")
	h.named(t, 2, "bob")

	h.d.OnDisconnect(1)

	assert.Equal(t, "alice has left the chat\n", h.sender.lastLine(2))
	assert.Equal(t, 1, h.reg.Count())
	assert.Equal(t, 1, h.pol.GetConnectionCount())
	assert.NotContains(t, h.rooms.GetMembers(room.General), uint64(1))
}

func TestDisconnectAnonymousUsesPlaceholder(t *testing.T) {
	h := newHarness(t, policy.Config{})
	h.connect(t, 7)
	h.named(t, 2, "bob")

	h.d.OnDisconnect(7)

	assert.Equal(t, "User#7 has left the chat\n", h.sender.lastLine(2))
}

func TestDisconnectUnknownIDIsNoop(t *testing.T) {
	h := newHarness(t, policy.Config{})
	h.named(t, 1, "alice")
	before := len(h.sender.lines(1))

	h.d.OnDisconnect(99)

	assert.Len(t, h.sender.lines(1), before)
	assert.Equal(t, 1, h.pol.GetConnectionCount())
}

func TestIdleSweepDisconnectsSilentClients(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the sweep tick")
	}
	h := newHarness(t, policy.Config{ConnectionTimeout: 30 * time.Millisecond})
	h.connect(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.d.RunIdleSweep(ctx)

	assert.Eventually(t, func() bool {
		for _, id := range h.sender.disconnected() {
			if id == 1 {
				return true
			}
		}
		return false
	}, 3*time.Second, 50*time.Millisecond)
}
