package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tcpchat/internal/metrics"
	"tcpchat/internal/types"
)

const (
	dayLayout = "20060102"

	// Batching parameters: bursts coalesce into one write pass, and a
	// debounce timer picks up stragglers.
	logBatchSize  = 64
	logFlushAfter = 250 * time.Millisecond
)

// logWriter appends transcript lines to a daily log file. Writes are
// batched behind a debounce timer; flush drains synchronously. A write
// failure disables the writer for the rest of the process.
type logWriter struct {
	dir        string
	maxBytes   int64
	maxPending int
	flushAfter time.Duration

	logger  zerolog.Logger
	metrics *metrics.Metrics

	stopOnce sync.Once
	done     chan struct{}
	timer    *time.Timer

	mu       sync.Mutex
	pending  []types.ChatMessage
	file     *os.File
	fileDay  string
	written  int64 // bytes appended since the file was opened
	disabled bool
}

func newLogWriter(dir string, maxBytes int64, logger zerolog.Logger, m *metrics.Metrics) *logWriter {
	w := &logWriter{
		dir:        dir,
		maxBytes:   maxBytes,
		maxPending: logBatchSize,
		flushAfter: logFlushAfter,
		logger:     logger,
		metrics:    m,
		done:       make(chan struct{}),
	}

	w.mu.Lock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.disableLocked(err)
	} else if err := w.openLocked(time.Now().Format(dayLayout)); err != nil {
		w.disableLocked(err)
	}
	w.mu.Unlock()

	w.timer = time.NewTimer(w.flushAfter)
	go w.run()
	return w
}

// add queues one message for the log. Full batches drain immediately,
// otherwise the debounce timer restarts.
func (w *logWriter) add(msg types.ChatMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.disabled {
		return
	}
	w.pending = append(w.pending, msg)
	if len(w.pending) >= w.maxPending {
		w.flushLocked()
	} else {
		w.timer.Reset(w.flushAfter)
	}
}

// flush drains queued messages to the file before returning.
func (w *logWriter) flush() {
	w.mu.Lock()
	w.flushLocked()
	w.mu.Unlock()
}

// active reports whether the writer still accepts messages.
func (w *logWriter) active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.disabled
}

// close drains pending messages, closes the file, and stops the timer
// goroutine. Safe to call more than once.
func (w *logWriter) close() {
	w.stopOnce.Do(func() { close(w.done) })

	w.mu.Lock()
	defer w.mu.Unlock()

	w.timer.Stop()
	w.flushLocked()
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	w.disabled = true
}

func (w *logWriter) run() {
	for {
		select {
		case <-w.timer.C:
			w.mu.Lock()
			w.flushLocked()
			w.mu.Unlock()
		case <-w.done:
			return
		}
	}
}

func (w *logWriter) flushLocked() {
	for _, msg := range w.pending {
		if w.disabled {
			break
		}
		w.writeLocked(msg)
	}
	w.pending = w.pending[:0]
}

// writeLocked appends one line, rolling the file when the day changes or
// the bytes written since open exceed the cap.
func (w *logWriter) writeLocked(msg types.ChatMessage) {
	day := time.Now().Format(dayLayout)
	if w.file == nil || day != w.fileDay {
		w.rotateLocked(day)
		if w.disabled {
			return
		}
	}

	n, err := w.file.WriteString(msg.String() + "\n")
	if err != nil {
		w.disableLocked(err)
		return
	}
	w.written += int64(n)
	if w.metrics != nil {
		w.metrics.StoreWrite(n)
	}

	if w.written > w.maxBytes {
		w.rotateLocked(day)
	}
}

// rotateLocked starts a fresh file under the daily name. Within the same
// day the full file is moved aside first, so the open file's size stays
// bounded without losing lines.
func (w *logWriter) rotateLocked(day string) {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}

	if day == w.fileDay && w.fileDay != "" {
		path := w.filePath(w.fileDay)
		for i := 1; ; i++ {
			archived := fmt.Sprintf("%s.%d", path, i)
			if _, err := os.Stat(archived); errors.Is(err, os.ErrNotExist) {
				if err := os.Rename(path, archived); err != nil {
					w.logger.Warn().Err(err).Str("file", path).Msg("archiving chat log failed")
				}
				break
			}
		}
	}

	if err := w.openLocked(day); err != nil {
		w.disableLocked(err)
	}
}

func (w *logWriter) openLocked(day string) error {
	f, err := os.OpenFile(w.filePath(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.fileDay = day
	w.written = 0
	return nil
}

func (w *logWriter) filePath(day string) string {
	return filepath.Join(w.dir, "chat_"+day+".log")
}

func (w *logWriter) disableLocked(err error) {
	w.logger.Error().Err(err).Str("dir", w.dir).Msg("chat log unavailable, disabling persistence")
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	w.pending = nil
	w.disabled = true
}
