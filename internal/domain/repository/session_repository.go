package repository

import (
	"context"
	"time"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
)

// SessionRepository persists conversation turns per session.
//
// Append must insert and trim to maxTurns inside one transaction so the
// window never overshoots, and writers for different sessions must not
// block each other beyond the backing engine's own locking.
type SessionRepository interface {
	// Append stores one turn and drops the oldest turns beyond maxTurns.
	Append(ctx context.Context, sessionID string, userKey int64, role entity.Role, content string, maxTurns int) error

	// RecentTurns returns the last up-to-maxTurns turns in chronological order.
	RecentTurns(ctx context.Context, sessionID string, maxTurns int) ([]entity.SessionTurn, error)

	// Clear removes every turn of one session.
	Clear(ctx context.Context, sessionID string) error

	// Reap deactivates sessions idle past the cutoff and deletes their
	// turns. Returns the number of turns removed.
	Reap(ctx context.Context, olderThan time.Duration) (int64, error)
}
