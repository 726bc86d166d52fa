package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/repository"
	domainErrors "github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/pkg/errors"
)

// MemorySessionRepository 内存实现的会话仓储（用于开发/测试）
type MemorySessionRepository struct {
	mu       sync.RWMutex
	turns    map[string][]entity.SessionTurn
	touched  map[string]time.Time
	userKeys map[string]int64
}

// NewMemorySessionRepository 创建内存会话仓储
func NewMemorySessionRepository() repository.SessionRepository {
	return &MemorySessionRepository{
		turns:    make(map[string][]entity.SessionTurn),
		touched:  make(map[string]time.Time),
		userKeys: make(map[string]int64),
	}
}

// Append 追加会话消息并修剪窗口
func (r *MemorySessionRepository) Append(ctx context.Context, sessionID string, userKey int64, role entity.Role, content string, maxTurns int) error {
	if maxTurns < 1 {
		return domainErrors.NewInvalidInputError("maxTurns must be at least 1")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	window := append(r.turns[sessionID], entity.SessionTurn{Role: role, Content: content, TS: now})
	if len(window) > maxTurns {
		window = window[len(window)-maxTurns:]
	}
	r.turns[sessionID] = window
	r.touched[sessionID] = now
	r.userKeys[sessionID] = userKey
	return nil
}

// RecentTurns 查询最近的会话消息 (按时间正序返回)
func (r *MemorySessionRepository) RecentTurns(ctx context.Context, sessionID string, maxTurns int) ([]entity.SessionTurn, error) {
	if maxTurns < 1 {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	window := r.turns[sessionID]
	if len(window) > maxTurns {
		window = window[len(window)-maxTurns:]
	}
	out := make([]entity.SessionTurn, len(window))
	copy(out, window)
	return out, nil
}

// Clear 清空会话
func (r *MemorySessionRepository) Clear(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.turns, sessionID)
	delete(r.touched, sessionID)
	delete(r.userKeys, sessionID)
	return nil
}

// Reap 清理过期会话
func (r *MemorySessionRepository) Reap(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for sessionID, last := range r.touched {
		if last.Before(cutoff) {
			removed += int64(len(r.turns[sessionID]))
			delete(r.turns, sessionID)
			delete(r.touched, sessionID)
			delete(r.userKeys, sessionID)
		}
	}
	return removed, nil
}
