package tui

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
)

// Config holds terminal chat settings.
type Config struct {
	SessionID string // empty starts a fresh session
	Persona   string // display name for the assistant column
}

// Pipeline is the query entry point the chat drives.
type Pipeline interface {
	Handle(ctx context.Context, query *entity.Query, source string) *entity.Response
}

// Run starts the interactive terminal chat and blocks until the user
// quits. The session lives only as long as the process unless a
// SessionID is pinned in cfg.
func Run(pipeline Pipeline, cfg Config, logger *zap.Logger) error {
	m := newModel(pipeline, cfg, logger)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("terminal chat failed: %w", err)
	}
	return nil
}

func freshSessionID() string {
	return fmt.Sprintf("tui-%d", time.Now().UnixNano())
}

func localUserID() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "local"
}
