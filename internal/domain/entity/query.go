package entity

import (
	"hash/fnv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MaxQueryLength is the cap on raw query text. Longer inputs are truncated
// before the Query is frozen, never rejected.
const MaxQueryLength = 2000

var querySeq atomic.Uint64

// Query is one immutable user turn. It is created once per request and
// never mutated afterwards; everything downstream reads through getters.
type Query struct {
	requestID string
	seq       uint64
	userID    string
	userKey   int64
	sessionID string
	text      string
	voice     bool
	arrivedAt time.Time
}

// NewQuery freezes a user turn. Text is trimmed and truncated to
// MaxQueryLength runes. The voice flag marks turns that arrived as voice
// notes, which halves the response token budget later in the pipeline.
func NewQuery(userID, sessionID, text string, voice bool) (*Query, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if runes := []rune(text); len(runes) > MaxQueryLength {
		text = string(runes[:MaxQueryLength])
	}

	return &Query{
		requestID: uuid.New().String(),
		seq:       querySeq.Add(1),
		userID:    userID,
		userKey:   HashUserID(userID),
		sessionID: sessionID,
		text:      text,
		voice:     voice,
		arrivedAt: time.Now(),
	}, nil
}

// HashUserID normalizes an arbitrary user identifier to a stable 64-bit
// integer for storage. FNV-1a, clamped to 63 bits so every backend stores
// it as a plain signed integer.
func HashUserID(userID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(userID))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}

// RequestID returns the globally unique request id.
func (q *Query) RequestID() string { return q.requestID }

// Seq returns the process-monotonic request sequence number.
func (q *Query) Seq() uint64 { return q.seq }

// UserID returns the raw user identifier as received from the adapter.
func (q *Query) UserID() string { return q.userID }

// UserKey returns the normalized 64-bit user key used by all stores.
func (q *Query) UserKey() int64 { return q.userKey }

// SessionID returns the optional session identifier ("" when absent).
func (q *Query) SessionID() string { return q.sessionID }

// Text returns the frozen query text.
func (q *Query) Text() string { return q.text }

// Voice reports whether this turn arrived as a voice note.
func (q *Query) Voice() bool { return q.voice }

// ArrivedAt returns the arrival timestamp.
func (q *Query) ArrivedAt() time.Time { return q.arrivedAt }
