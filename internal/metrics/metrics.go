package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics aggregates server counters. The atomic fields back both the
// ops-API summary and the Prometheus collectors, so the two surfaces can
// never disagree.
type Metrics struct {
	connectionsTotal    atomic.Int64
	connectionsActive   atomic.Int64
	connectionsRejected atomic.Int64
	messagesTotal       atomic.Int64
	messagesRateLimited atomic.Int64
	commandsTotal       atomic.Int64
	broadcastsTotal     atomic.Int64
	whispersTotal       atomic.Int64
	storeWritesTotal    atomic.Int64
	storeBytesTotal     atomic.Int64

	registry *prometheus.Registry
}

// New creates a metric set registered on its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	counter := func(name, help string, v *atomic.Int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, func() float64 {
			return float64(v.Load())
		})
	}
	gauge := func(name, help string, v *atomic.Int64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return float64(v.Load())
		})
	}

	m.registry.MustRegister(
		counter("chat_connections_total", "Connections accepted since start.", &m.connectionsTotal),
		gauge("chat_connections_active", "Currently open connections.", &m.connectionsActive),
		counter("chat_connections_rejected_total", "Connections refused by policy.", &m.connectionsRejected),
		counter("chat_messages_total", "Chat messages stored and fanned out.", &m.messagesTotal),
		counter("chat_messages_rate_limited_total", "Inbound chunks refused by the message rate limit.", &m.messagesRateLimited),
		counter("chat_commands_total", "Commands executed.", &m.commandsTotal),
		counter("chat_broadcasts_total", "Lines delivered to room members.", &m.broadcastsTotal),
		counter("chat_whispers_total", "Private messages delivered.", &m.whispersTotal),
		counter("chat_store_writes_total", "Lines appended to the transcript log.", &m.storeWritesTotal),
		counter("chat_store_bytes_total", "Bytes appended to the transcript log.", &m.storeBytesTotal),
	)

	return m
}

// Gatherer exposes the registry for the /metrics endpoint.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) ConnectionOpened() {
	m.connectionsTotal.Add(1)
	m.connectionsActive.Add(1)
}

func (m *Metrics) ConnectionClosed() {
	m.connectionsActive.Add(-1)
}

func (m *Metrics) ConnectionRejected() {
	m.connectionsRejected.Add(1)
}

func (m *Metrics) MessageStored() {
	m.messagesTotal.Add(1)
}

func (m *Metrics) MessageRateLimited() {
	m.messagesRateLimited.Add(1)
}

func (m *Metrics) CommandExecuted() {
	m.commandsTotal.Add(1)
}

func (m *Metrics) BroadcastDelivered(n int) {
	m.broadcastsTotal.Add(int64(n))
}

func (m *Metrics) WhisperDelivered() {
	m.whispersTotal.Add(1)
}

func (m *Metrics) StoreWrite(bytes int) {
	m.storeWritesTotal.Add(1)
	m.storeBytesTotal.Add(int64(bytes))
}

// GetSummary returns a snapshot for the ops API.
func (m *Metrics) GetSummary() map[string]interface{} {
	return map[string]interface{}{
		"connections_total":           m.connectionsTotal.Load(),
		"connections_active":          m.connectionsActive.Load(),
		"connections_rejected_total":  m.connectionsRejected.Load(),
		"messages_total":              m.messagesTotal.Load(),
		"messages_rate_limited_total": m.messagesRateLimited.Load(),
		"commands_total":              m.commandsTotal.Load(),
		"broadcasts_total":            m.broadcastsTotal.Load(),
		"whispers_total":              m.whispersTotal.Load(),
		"store_writes_total":          m.storeWritesTotal.Load(),
		"store_bytes_total":           m.storeBytesTotal.Load(),
	}
}
