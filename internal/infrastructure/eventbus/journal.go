package eventbus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JournalBus wraps InMemoryBus with an append-only JSONL journal.
//
// Every event is serialized as one JSON line before dispatch, so the
// journal doubles as an audit trail of what the pipeline did and when.
// Replay() re-emits journaled events to handlers, and single-file
// rotation keeps the journal from growing unbounded.
type JournalBus struct {
	inner   *InMemoryBus
	file    *os.File
	writer  *bufio.Writer
	path    string
	mu      sync.Mutex // protects file writes
	logger  *zap.Logger
	maxSize int64 // bytes; rotation threshold
	written int64
}

// journalEntry is the JSON-serializable form of an event on disk.
type journalEntry struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"ts"`
	Payload   any       `json:"payload"`
}

// JournalConfig configures the journaling event bus.
type JournalConfig struct {
	Path       string // journal file path (required)
	BufferSize int    // channel buffer size for InMemoryBus (default: 256)
	MaxSize    int64  // max journal size in bytes before rotation (default: 64MB)
}

// NewJournalBus creates an event bus backed by a JSONL journal file.
func NewJournalBus(cfg JournalConfig, logger *zap.Logger) (*JournalBus, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 64 * 1024 * 1024
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	f, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal file: %w", err)
	}

	// Carry over the existing size for rotation tracking
	stat, _ := f.Stat()
	var currentSize int64
	if stat != nil {
		currentSize = stat.Size()
	}

	return &JournalBus{
		inner:   NewInMemoryBus(logger, cfg.BufferSize),
		file:    f,
		writer:  bufio.NewWriterSize(f, 64*1024),
		path:    cfg.Path,
		logger:  logger.With(zap.String("component", "event-journal")),
		maxSize: cfg.MaxSize,
		written: currentSize,
	}, nil
}

// Publish appends the event to the journal, then delegates to InMemoryBus
// for dispatch. A journal write failure never blocks dispatch.
func (b *JournalBus) Publish(ctx context.Context, event Event) {
	entry := journalEntry{
		Type:      event.Type(),
		Timestamp: event.Timestamp(),
		Payload:   event.Payload(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		b.logger.Error("Failed to marshal event for journal",
			zap.String("type", event.Type()),
			zap.Error(err),
		)
	} else {
		b.mu.Lock()
		n, writeErr := b.writer.Write(append(data, '\n'))
		if writeErr != nil {
			b.logger.Error("Journal write failed",
				zap.String("type", event.Type()),
				zap.Error(writeErr),
			)
		}
		b.written += int64(n)

		// Flush per event so a crash loses at most the event in flight
		_ = b.writer.Flush()

		if b.maxSize > 0 && b.written >= b.maxSize {
			b.rotateLocked()
		}
		b.mu.Unlock()
	}

	b.inner.Publish(ctx, event)
}

// Subscribe delegates to InMemoryBus.
func (b *JournalBus) Subscribe(eventType string, handler Handler) {
	b.inner.Subscribe(eventType, handler)
}

// Unsubscribe delegates to InMemoryBus.
func (b *JournalBus) Unsubscribe(eventType string) {
	b.inner.Unsubscribe(eventType)
}

// Close flushes the journal and shuts down the bus.
func (b *JournalBus) Close() {
	b.mu.Lock()
	_ = b.writer.Flush()
	_ = b.file.Sync()
	_ = b.file.Close()
	b.mu.Unlock()

	b.inner.Close()
	b.logger.Info("Event journal closed")
}

// Replay reads the journal and re-emits events to registered handlers.
// Call it after Subscribe but before normal operation. Returns the
// number of events replayed. Corrupt lines are skipped, not fatal.
func (b *JournalBus) Replay(ctx context.Context) (int, error) {
	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open journal for replay: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) // 1MB max line

	count := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry journalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			b.logger.Warn("Skipping corrupt journal entry",
				zap.Error(err),
			)
			continue
		}

		event := &BaseEvent{
			EventType:      entry.Type,
			EventTimestamp: entry.Timestamp,
			EventPayload:   entry.Payload,
		}

		b.inner.Publish(ctx, event)
		count++
	}

	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("journal scan error: %w", err)
	}

	b.logger.Info("Journal replay complete",
		zap.Int("events_replayed", count),
	)
	return count, nil
}

// Truncate clears the journal file.
func (b *JournalBus) Truncate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_ = b.writer.Flush()
	_ = b.file.Close()

	f, err := os.Create(b.path)
	if err != nil {
		return fmt.Errorf("truncate journal: %w", err)
	}

	b.file = f
	b.writer = bufio.NewWriterSize(f, 64*1024)
	b.written = 0

	b.logger.Info("Journal truncated")
	return nil
}

// rotateLocked rotates the journal file (must be called with b.mu held).
// Single-file rotation: the previous journal is kept at <path>.old.
func (b *JournalBus) rotateLocked() {
	_ = b.writer.Flush()
	_ = b.file.Close()

	oldPath := b.path + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(b.path, oldPath)

	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		b.logger.Error("Journal rotation failed", zap.Error(err))
		return
	}

	b.file = f
	b.writer = bufio.NewWriterSize(f, 64*1024)
	b.written = 0

	b.logger.Info("Journal rotated",
		zap.String("old_path", oldPath),
	)
}

// Size returns the current journal size in bytes.
func (b *JournalBus) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.written
}
