package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"tcpchat/internal/metrics"
	"tcpchat/internal/types"
)

// Config bounds the in-memory cache and the on-disk log.
type Config struct {
	MaxMessagesPerRoom int
	MaxFileSizeBytes   int64
	LogDirectory       string
	EnablePersistence  bool
}

// Store keeps the two-tier message history: a bounded per-room window of
// recent messages for #history and search, and an append-only daily
// transcript log. Cache and file cursor have independent locks so a slow
// disk never stalls history reads.
type Store struct {
	maxPerRoom int

	mu    sync.Mutex
	cache map[string][]types.ChatMessage

	writer *logWriter // nil when persistence is off
}

func New(cfg Config, logger zerolog.Logger, m *metrics.Metrics) *Store {
	s := &Store{
		maxPerRoom: cfg.MaxMessagesPerRoom,
		cache:      make(map[string][]types.ChatMessage),
	}
	if cfg.EnablePersistence {
		s.writer = newLogWriter(cfg.LogDirectory, cfg.MaxFileSizeBytes, logger, m)
	}
	return s
}

// StoreMessage appends to the room's window, dropping the oldest entry
// once the window is full, and queues the line for the transcript log.
func (s *Store) StoreMessage(msg types.ChatMessage) {
	s.mu.Lock()
	q := append(s.cache[msg.Room], msg)
	if len(q) > s.maxPerRoom {
		n := copy(q, q[len(q)-s.maxPerRoom:])
		q = q[:n]
	}
	s.cache[msg.Room] = q
	s.mu.Unlock()

	if s.writer != nil {
		s.writer.add(msg)
	}
}

// GetRecent returns the room's last n cached messages in chronological
// order, fewer if the window holds fewer.
func (s *Store) GetRecent(room string, n int) []types.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.cache[room]
	if n <= 0 || len(q) == 0 {
		return nil
	}
	if n > len(q) {
		n = len(q)
	}
	out := make([]types.ChatMessage, n)
	copy(out, q[len(q)-n:])
	return out
}

// GetBySender returns up to n cached messages from one sender, walking
// rooms in name order and each room oldest first.
func (s *Store) GetBySender(sender uint64, n int) []types.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		return nil
	}
	var out []types.ChatMessage
	for _, room := range s.roomsLocked() {
		for _, msg := range s.cache[room] {
			if msg.SenderID != sender {
				continue
			}
			out = append(out, msg)
			if len(out) >= n {
				return out
			}
		}
	}
	return out
}

// Search returns up to max cached messages whose content contains query,
// compared ASCII case-insensitively. An empty room searches every room in
// name order.
func (s *Store) Search(query, room string, max int) []types.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	if max <= 0 {
		return nil
	}
	q := lowerASCII(query)

	var out []types.ChatMessage
	scan := func(msgs []types.ChatMessage) bool {
		for _, msg := range msgs {
			if !strings.Contains(lowerASCII(msg.Content), q) {
				continue
			}
			out = append(out, msg)
			if len(out) >= max {
				return true
			}
		}
		return false
	}

	if room != "" {
		scan(s.cache[room])
		return out
	}
	for _, r := range s.roomsLocked() {
		if scan(s.cache[r]) {
			break
		}
	}
	return out
}

// GetTotalCount sums the cached message counts across rooms.
func (s *Store) GetTotalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, q := range s.cache {
		total += len(q)
	}
	return total
}

// Clear empties one room's window, or every window when room is empty.
// The transcript log is untouched.
func (s *Store) Clear(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room == "" {
		s.cache = make(map[string][]types.ChatMessage)
		return
	}
	delete(s.cache, room)
}

// Flush drains queued transcript lines to the log file before returning.
func (s *Store) Flush() {
	if s.writer != nil {
		s.writer.flush()
	}
}

// Close flushes and releases the log file.
func (s *Store) Close() {
	if s.writer != nil {
		s.writer.close()
	}
}

// PersistenceEnabled reports whether transcript logging is still active.
func (s *Store) PersistenceEnabled() bool {
	return s.writer != nil && s.writer.active()
}

func (s *Store) roomsLocked() []string {
	rooms := make([]string, 0, len(s.cache))
	for room := range s.cache {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// lowerASCII folds A-Z only; other bytes pass through untouched.
func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
