package persistence

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/repository"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/config"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/persistence/models"
)

func newGormRepo(t *testing.T) repository.SessionRepository {
	t.Helper()
	db, err := NewDBConnection(&config.DatabaseConfig{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "sessions.db"),
	})
	if err != nil {
		t.Fatalf("NewDBConnection failed: %v", err)
	}
	return NewGormSessionRepository(db)
}

func TestGormSessionRepository(t *testing.T) {
	runSessionRepositorySuite(t, newGormRepo)
}

func TestMemorySessionRepository(t *testing.T) {
	runSessionRepositorySuite(t, func(t *testing.T) repository.SessionRepository {
		return NewMemorySessionRepository()
	})
}

// runSessionRepositorySuite checks the behavior both backends must share so
// they stay interchangeable behind the repository interface.
func runSessionRepositorySuite(t *testing.T, newRepo func(t *testing.T) repository.SessionRepository) {
	ctx := context.Background()

	t.Run("AppendAndRecentTurns", func(t *testing.T) {
		repo := newRepo(t)

		pairs := []struct {
			role    entity.Role
			content string
		}{
			{entity.RoleUser, "who won in monza?"},
			{entity.RoleAssistant, "Verstappen took the win."},
			{entity.RoleUser, "and second place?"},
			{entity.RoleAssistant, "Norris finished second."},
		}
		for _, p := range pairs {
			if err := repo.Append(ctx, "chat-1", 42, p.role, p.content, 50); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}

		turns, err := repo.RecentTurns(ctx, "chat-1", 10)
		if err != nil {
			t.Fatalf("RecentTurns failed: %v", err)
		}
		if len(turns) != len(pairs) {
			t.Fatalf("got %d turns, want %d", len(turns), len(pairs))
		}
		for i, p := range pairs {
			if turns[i].Role != p.role {
				t.Errorf("turn %d role = %q, want %q", i, turns[i].Role, p.role)
			}
			if turns[i].Content != p.content {
				t.Errorf("turn %d content = %q, want %q", i, turns[i].Content, p.content)
			}
		}
	})

	t.Run("AppendTrimsWindow", func(t *testing.T) {
		repo := newRepo(t)

		for i := 0; i < 5; i++ {
			content := fmt.Sprintf("message %d", i)
			if err := repo.Append(ctx, "chat-1", 42, entity.RoleUser, content, 3); err != nil {
				t.Fatalf("Append %d failed: %v", i, err)
			}
		}

		turns, err := repo.RecentTurns(ctx, "chat-1", 10)
		if err != nil {
			t.Fatalf("RecentTurns failed: %v", err)
		}
		if len(turns) != 3 {
			t.Fatalf("got %d turns after trim, want 3", len(turns))
		}
		for i, want := range []string{"message 2", "message 3", "message 4"} {
			if turns[i].Content != want {
				t.Errorf("turn %d content = %q, want %q", i, turns[i].Content, want)
			}
		}
	})

	t.Run("AppendRejectsNonPositiveWindow", func(t *testing.T) {
		repo := newRepo(t)

		if err := repo.Append(ctx, "chat-1", 42, entity.RoleUser, "hi", 0); err == nil {
			t.Fatal("expected error for maxTurns 0, got nil")
		}
	})

	t.Run("RecentTurnsLimit", func(t *testing.T) {
		repo := newRepo(t)

		for i := 0; i < 5; i++ {
			content := fmt.Sprintf("message %d", i)
			if err := repo.Append(ctx, "chat-1", 42, entity.RoleUser, content, 50); err != nil {
				t.Fatalf("Append %d failed: %v", i, err)
			}
		}

		turns, err := repo.RecentTurns(ctx, "chat-1", 2)
		if err != nil {
			t.Fatalf("RecentTurns failed: %v", err)
		}
		if len(turns) != 2 {
			t.Fatalf("got %d turns, want 2", len(turns))
		}
		if turns[0].Content != "message 3" || turns[1].Content != "message 4" {
			t.Errorf("got tail %q, %q; want message 3, message 4", turns[0].Content, turns[1].Content)
		}
	})

	t.Run("RecentTurnsNonPositiveLimit", func(t *testing.T) {
		repo := newRepo(t)

		if err := repo.Append(ctx, "chat-1", 42, entity.RoleUser, "hi", 50); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		turns, err := repo.RecentTurns(ctx, "chat-1", 0)
		if err != nil {
			t.Fatalf("RecentTurns failed: %v", err)
		}
		if len(turns) != 0 {
			t.Errorf("got %d turns for limit 0, want 0", len(turns))
		}
	})

	t.Run("SessionsAreIsolated", func(t *testing.T) {
		repo := newRepo(t)

		if err := repo.Append(ctx, "chat-1", 42, entity.RoleUser, "from chat one", 50); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if err := repo.Append(ctx, "chat-2", 43, entity.RoleUser, "from chat two", 50); err != nil {
			t.Fatalf("Append failed: %v", err)
		}

		turns, err := repo.RecentTurns(ctx, "chat-2", 10)
		if err != nil {
			t.Fatalf("RecentTurns failed: %v", err)
		}
		if len(turns) != 1 || turns[0].Content != "from chat two" {
			t.Errorf("chat-2 turns = %+v, want only its own message", turns)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		repo := newRepo(t)

		if err := repo.Append(ctx, "chat-1", 42, entity.RoleUser, "to be wiped", 50); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if err := repo.Append(ctx, "chat-2", 43, entity.RoleUser, "kept", 50); err != nil {
			t.Fatalf("Append failed: %v", err)
		}

		if err := repo.Clear(ctx, "chat-1"); err != nil {
			t.Fatalf("Clear failed: %v", err)
		}

		turns, err := repo.RecentTurns(ctx, "chat-1", 10)
		if err != nil {
			t.Fatalf("RecentTurns failed: %v", err)
		}
		if len(turns) != 0 {
			t.Errorf("got %d turns after Clear, want 0", len(turns))
		}

		kept, err := repo.RecentTurns(ctx, "chat-2", 10)
		if err != nil {
			t.Fatalf("RecentTurns failed: %v", err)
		}
		if len(kept) != 1 {
			t.Errorf("chat-2 lost %d turns to Clear of chat-1", 1-len(kept))
		}
	})

	t.Run("Reap", func(t *testing.T) {
		repo := newRepo(t)

		if err := repo.Append(ctx, "chat-1", 42, entity.RoleUser, "one", 50); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if err := repo.Append(ctx, "chat-1", 42, entity.RoleAssistant, "two", 50); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if err := repo.Append(ctx, "chat-2", 43, entity.RoleUser, "three", 50); err != nil {
			t.Fatalf("Append failed: %v", err)
		}

		// A one-hour retention keeps everything that was just written.
		removed, err := repo.Reap(ctx, time.Hour)
		if err != nil {
			t.Fatalf("Reap failed: %v", err)
		}
		if removed != 0 {
			t.Errorf("removed %d turns with fresh sessions, want 0", removed)
		}

		// A cutoff in the future reaps every session.
		removed, err = repo.Reap(ctx, -time.Minute)
		if err != nil {
			t.Fatalf("Reap failed: %v", err)
		}
		if removed != 3 {
			t.Errorf("removed %d turns, want 3", removed)
		}

		for _, sessionID := range []string{"chat-1", "chat-2"} {
			turns, err := repo.RecentTurns(ctx, sessionID, 10)
			if err != nil {
				t.Fatalf("RecentTurns failed: %v", err)
			}
			if len(turns) != 0 {
				t.Errorf("session %s still has %d turns after reap", sessionID, len(turns))
			}
		}
	})
}

// TestGormSessionRows pins the row-level contract of the sessions table:
// appends keep last_activity, message_count and active current, reaping
// deactivates idle sessions without deleting their rows, and a later
// write reactivates them.
func TestGormSessionRows(t *testing.T) {
	ctx := context.Background()
	db, err := NewDBConnection(&config.DatabaseConfig{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "sessions.db"),
	})
	if err != nil {
		t.Fatalf("NewDBConnection failed: %v", err)
	}
	repo := NewGormSessionRepository(db)

	if err := repo.Append(ctx, "chat-idle", 42, entity.RoleUser, "who won in monza?", 50); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := repo.Append(ctx, "chat-idle", 42, entity.RoleAssistant, "Verstappen took the win.", 50); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := repo.Append(ctx, "chat-fresh", 43, entity.RoleUser, "lakers score?", 50); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	var row models.SessionModel
	if err := db.First(&row, "session_id = ?", "chat-idle").Error; err != nil {
		t.Fatalf("load session row: %v", err)
	}
	if row.UserID != 42 {
		t.Errorf("user_id = %d, want 42", row.UserID)
	}
	if row.MessageCount != 2 {
		t.Errorf("message_count = %d, want 2", row.MessageCount)
	}
	if !row.Active {
		t.Error("fresh session is inactive")
	}
	if row.LastActivity.IsZero() {
		t.Error("last_activity never set")
	}

	// Push one session past a seven-day retention window.
	stale := time.Now().UTC().Add(-8 * 24 * time.Hour)
	if err := db.Model(&models.SessionModel{}).
		Where("session_id = ?", "chat-idle").
		Update("last_activity", stale).Error; err != nil {
		t.Fatalf("backdate session: %v", err)
	}

	removed, err := repo.Reap(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Reap failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("reaped %d messages, want 2", removed)
	}

	if err := db.First(&row, "session_id = ?", "chat-idle").Error; err != nil {
		t.Fatalf("reaped session row is gone: %v", err)
	}
	if row.Active {
		t.Error("reaped session still active")
	}
	if row.MessageCount != 0 {
		t.Errorf("reaped session message_count = %d, want 0", row.MessageCount)
	}
	turns, err := repo.RecentTurns(ctx, "chat-idle", 10)
	if err != nil {
		t.Fatalf("RecentTurns failed: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("reaped session still has %d messages", len(turns))
	}

	row = models.SessionModel{}
	if err := db.First(&row, "session_id = ?", "chat-fresh").Error; err != nil {
		t.Fatalf("load fresh session row: %v", err)
	}
	if !row.Active || row.MessageCount != 1 {
		t.Errorf("fresh session disturbed by reap: active=%v count=%d", row.Active, row.MessageCount)
	}

	// An already-deactivated session is not reaped twice.
	removed, err = repo.Reap(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Reap failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("second reap removed %d messages, want 0", removed)
	}

	// Writing to a reaped session brings it back.
	if err := repo.Append(ctx, "chat-idle", 42, entity.RoleUser, "back again", 50); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	row = models.SessionModel{}
	if err := db.First(&row, "session_id = ?", "chat-idle").Error; err != nil {
		t.Fatalf("load session row: %v", err)
	}
	if !row.Active {
		t.Error("write did not reactivate the session")
	}
	if row.MessageCount != 1 {
		t.Errorf("reactivated session message_count = %d, want 1", row.MessageCount)
	}
}
