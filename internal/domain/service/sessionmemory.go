package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/repository"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/pkg/safego"
)

const (
	// DefaultMaxTurns bounds the stored window per session.
	DefaultMaxTurns = 50
	// DefaultContextTurns is how many recent turns feed the prompt.
	DefaultContextTurns = 10
	// DefaultSessionRetention is how long idle sessions survive.
	DefaultSessionRetention = 7 * 24 * time.Hour
	// DefaultReapInterval is how often idle sessions are reaped.
	DefaultReapInterval = time.Hour
)

// conversationHeader starts every prompt-ready context block.
const conversationHeader = "RECENT CONVERSATION:"

// SessionMemoryConfig tunes the conversation window. Zero values fall
// back to the defaults above.
type SessionMemoryConfig struct {
	MaxTurns     int
	ContextTurns int
	Retention    time.Duration
	ReapInterval time.Duration
}

// SessionMemory is the persistent conversation window per session. It
// owns the window policy; storage mechanics live in the repository.
type SessionMemory struct {
	repo         repository.SessionRepository
	maxTurns     int
	contextTurns int
	retention    time.Duration
	reapInterval time.Duration
	logger       *zap.Logger
}

func NewSessionMemory(repo repository.SessionRepository, cfg SessionMemoryConfig, logger *zap.Logger) *SessionMemory {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = DefaultContextTurns
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultSessionRetention
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = DefaultReapInterval
	}
	return &SessionMemory{
		repo:         repo,
		maxTurns:     cfg.MaxTurns,
		contextTurns: cfg.ContextTurns,
		retention:    cfg.Retention,
		reapInterval: cfg.ReapInterval,
		logger:       logger.With(zap.String("component", "session-memory")),
	}
}

// Append stores one turn and trims the window. Empty content is skipped
// so a failed LLM stage never writes a blank assistant turn.
func (m *SessionMemory) Append(ctx context.Context, sessionID string, userKey int64, role entity.Role, content string) error {
	if !entity.ValidRole(role) {
		return entity.ErrInvalidRole
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	return m.repo.Append(ctx, sessionID, userKey, role, content, m.maxTurns)
}

// ContextFor returns the recent turns as a prompt-ready block, oldest
// first. Empty history yields an empty string so the prompt assembler
// can omit the section.
func (m *SessionMemory) ContextFor(ctx context.Context, sessionID string) (string, error) {
	turns, err := m.repo.RecentTurns(ctx, sessionID, m.contextTurns)
	if err != nil {
		return "", err
	}
	if len(turns) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString(conversationHeader)
	for _, turn := range turns {
		b.WriteByte('\n')
		if turn.Role == entity.RoleAssistant {
			b.WriteString("Assistant: ")
		} else {
			b.WriteString("User: ")
		}
		b.WriteString(turn.Content)
	}
	return b.String(), nil
}

// Clear wipes one session's window.
func (m *SessionMemory) Clear(ctx context.Context, sessionID string) error {
	return m.repo.Clear(ctx, sessionID)
}

// StartReaper periodically deactivates sessions idle past the retention
// window and drops their messages, until ctx is cancelled.
func (m *SessionMemory) StartReaper(ctx context.Context) {
	safego.Go(m.logger, "session-reaper", func() {
		ticker := time.NewTicker(m.reapInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := m.repo.Reap(ctx, m.retention)
				if err != nil {
					m.logger.Warn("session reap failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					m.logger.Info("reaped idle sessions", zap.Int64("turns_removed", removed))
				}
			}
		}
	})
}
