package policy

import (
	"sync"
	"sync/atomic"
	"time"
)

// Config bounds connection and message admission.
type Config struct {
	MaxConnectionsPerSecond int
	MaxMessagesPerMinute    int
	MaxTotalConnections     int
	ConnectionTimeout       time.Duration
}

// mute is the state of one muted client: permanent, or expiring at a fixed
// instant.
type mute struct {
	forever bool
	until   time.Time
}

// Controller enforces connection-level and per-client abuse policy: the
// shared connection-rate window, per-client message windows, the IP ban
// set, mutes, and idle detection. Each state family lives under its own
// lock, and no lock is held across calls into other components.
type Controller struct {
	cfg Config

	// Window lengths are fixed by the protocol; fields so tests can
	// shrink them.
	connWindow time.Duration
	msgWindow  time.Duration

	connCount atomic.Int64

	connMu     sync.Mutex
	connStamps []time.Time

	msgMu     sync.Mutex
	msgStamps map[uint64][]time.Time

	banMu  sync.RWMutex
	banned map[string]struct{}

	muteMu sync.Mutex
	muted  map[uint64]mute

	activityMu   sync.Mutex
	lastActivity map[uint64]time.Time
}

func New(cfg Config) *Controller {
	return &Controller{
		cfg:          cfg,
		connWindow:   time.Second,
		msgWindow:    time.Minute,
		msgStamps:    make(map[uint64][]time.Time),
		banned:       make(map[string]struct{}),
		muted:        make(map[uint64]mute),
		lastActivity: make(map[uint64]time.Time),
	}
}

// pruneBefore drops timestamps older than cutoff, preserving order.
func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && stamps[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}

// AllowConnection decides whether a new connection from ip may be admitted:
// not banned, under the total cap, and under the per-second accept rate.
// An accepted call appends its timestamp to the shared window.
func (c *Controller) AllowConnection(ip string) bool {
	if c.IsBanned(ip) {
		return false
	}
	if int(c.connCount.Load()) >= c.cfg.MaxTotalConnections {
		return false
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	now := time.Now()
	c.connStamps = pruneBefore(c.connStamps, now.Add(-c.connWindow))
	if len(c.connStamps) >= c.cfg.MaxConnectionsPerSecond {
		return false
	}
	c.connStamps = append(c.connStamps, now)
	return true
}

// AllowMessage decides whether the client may send another message: not
// muted, and strictly under the per-minute rate. It does not record the
// message; callers follow up with RecordMessage once the message is
// actually processed.
func (c *Controller) AllowMessage(client uint64) bool {
	if c.IsMuted(client) {
		return false
	}

	c.msgMu.Lock()
	defer c.msgMu.Unlock()

	stamps := pruneBefore(c.msgStamps[client], time.Now().Add(-c.msgWindow))
	c.msgStamps[client] = stamps
	return len(stamps) < c.cfg.MaxMessagesPerMinute
}

// RecordMessage appends a timestamp to the client's window and refreshes
// its activity.
func (c *Controller) RecordMessage(client uint64) {
	c.msgMu.Lock()
	c.msgStamps[client] = append(c.msgStamps[client], time.Now())
	c.msgMu.Unlock()

	c.UpdateActivity(client)
}

// IsBanned reports whether the IP is banned.
func (c *Controller) IsBanned(ip string) bool {
	c.banMu.RLock()
	defer c.banMu.RUnlock()
	_, ok := c.banned[ip]
	return ok
}

// Ban adds an IP to the ban set.
func (c *Controller) Ban(ip string) {
	c.banMu.Lock()
	defer c.banMu.Unlock()
	c.banned[ip] = struct{}{}
}

// Unban removes an IP from the ban set.
func (c *Controller) Unban(ip string) {
	c.banMu.Lock()
	defer c.banMu.Unlock()
	delete(c.banned, ip)
}

// Mute silences a client for the given duration; zero means permanently.
func (c *Controller) Mute(client uint64, d time.Duration) {
	c.muteMu.Lock()
	defer c.muteMu.Unlock()
	if d == 0 {
		c.muted[client] = mute{forever: true}
	} else {
		c.muted[client] = mute{until: time.Now().Add(d)}
	}
}

// Unmute lifts a mute.
func (c *Controller) Unmute(client uint64) {
	c.muteMu.Lock()
	defer c.muteMu.Unlock()
	delete(c.muted, client)
}

// IsMuted reports whether the client is muted, evicting expired entries.
func (c *Controller) IsMuted(client uint64) bool {
	c.muteMu.Lock()
	defer c.muteMu.Unlock()

	m, ok := c.muted[client]
	if !ok {
		return false
	}
	if !m.forever && time.Now().After(m.until) {
		delete(c.muted, client)
		return false
	}
	return true
}

// UpdateActivity marks the client as alive now.
func (c *Controller) UpdateActivity(client uint64) {
	c.activityMu.Lock()
	defer c.activityMu.Unlock()
	c.lastActivity[client] = time.Now()
}

// CheckTimeouts returns the subset of ids whose last recorded activity is
// older than the configured timeout.
func (c *Controller) CheckTimeouts(ids []uint64) []uint64 {
	cutoff := time.Now().Add(-c.cfg.ConnectionTimeout)

	c.activityMu.Lock()
	defer c.activityMu.Unlock()

	var timedOut []uint64
	for _, id := range ids {
		if last, ok := c.lastActivity[id]; ok && last.Before(cutoff) {
			timedOut = append(timedOut, id)
		}
	}
	return timedOut
}

// OnConnect counts an admitted connection.
func (c *Controller) OnConnect() {
	c.connCount.Add(1)
}

// OnDisconnect releases the connection slot.
func (c *Controller) OnDisconnect() {
	c.connCount.Add(-1)
}

// GetConnectionCount returns the number of admitted connections.
func (c *Controller) GetConnectionCount() int {
	return int(c.connCount.Load())
}

// Forget drops the client's message window, mute, and activity entries.
// IDs are never reused, so leftover state would only leak.
func (c *Controller) Forget(client uint64) {
	c.msgMu.Lock()
	delete(c.msgStamps, client)
	c.msgMu.Unlock()

	c.muteMu.Lock()
	delete(c.muted, client)
	c.muteMu.Unlock()

	c.activityMu.Lock()
	delete(c.lastActivity, client)
	c.activityMu.Unlock()
}
