package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
)

// fakeSessionRepo records calls and serves canned turns.
type fakeSessionRepo struct {
	mu        sync.Mutex
	turns     []entity.SessionTurn
	appends   int
	lastMax   int
	cleared   []string
	reapCalls atomic.Int64
	err       error
}

func (f *fakeSessionRepo) Append(ctx context.Context, sessionID string, userKey int64, role entity.Role, content string, maxTurns int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.appends++
	f.lastMax = maxTurns
	f.turns = append(f.turns, entity.SessionTurn{Role: role, Content: content, TS: time.Now()})
	return nil
}

func (f *fakeSessionRepo) RecentTurns(ctx context.Context, sessionID string, maxTurns int) ([]entity.SessionTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.turns) > maxTurns {
		return f.turns[len(f.turns)-maxTurns:], nil
	}
	return f.turns, nil
}

func (f *fakeSessionRepo) Clear(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, sessionID)
	f.turns = nil
	return nil
}

func (f *fakeSessionRepo) Reap(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.reapCalls.Add(1)
	return 0, nil
}

func TestSessionMemory_AppendValidatesRole(t *testing.T) {
	repo := &fakeSessionRepo{}
	mem := NewSessionMemory(repo, SessionMemoryConfig{}, zap.NewNop())

	err := mem.Append(context.Background(), "s1", 42, entity.Role("system"), "hello")
	if err != entity.ErrInvalidRole {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if repo.appends != 0 {
		t.Fatal("invalid role must not reach the repository")
	}
}

func TestSessionMemory_AppendSkipsEmptyContent(t *testing.T) {
	repo := &fakeSessionRepo{}
	mem := NewSessionMemory(repo, SessionMemoryConfig{}, zap.NewNop())

	if err := mem.Append(context.Background(), "s1", 42, entity.RoleAssistant, "   "); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if repo.appends != 0 {
		t.Fatal("blank content must not be stored")
	}
}

func TestSessionMemory_AppendPassesWindowSize(t *testing.T) {
	repo := &fakeSessionRepo{}
	mem := NewSessionMemory(repo, SessionMemoryConfig{MaxTurns: 7}, zap.NewNop())

	if err := mem.Append(context.Background(), "s1", 42, entity.RoleUser, "hi"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if repo.lastMax != 7 {
		t.Fatalf("expected window size 7, got %d", repo.lastMax)
	}
}

func TestSessionMemory_ContextForFormatsBlock(t *testing.T) {
	repo := &fakeSessionRepo{
		turns: []entity.SessionTurn{
			{Role: entity.RoleUser, Content: "hi"},
			{Role: entity.RoleAssistant, Content: "hello! how can I help?"},
			{Role: entity.RoleUser, Content: "who won the last race?"},
		},
	}
	mem := NewSessionMemory(repo, SessionMemoryConfig{}, zap.NewNop())

	got, err := mem.ContextFor(context.Background(), "s1")
	if err != nil {
		t.Fatalf("ContextFor failed: %v", err)
	}
	want := "RECENT CONVERSATION:\nUser: hi\nAssistant: hello! how can I help?\nUser: who won the last race?"
	if got != want {
		t.Fatalf("context block mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestSessionMemory_ContextForEmptyHistory(t *testing.T) {
	mem := NewSessionMemory(&fakeSessionRepo{}, SessionMemoryConfig{}, zap.NewNop())

	got, err := mem.ContextFor(context.Background(), "s1")
	if err != nil {
		t.Fatalf("ContextFor failed: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty context, got %q", got)
	}
}

func TestSessionMemory_ContextForLimitsTurns(t *testing.T) {
	repo := &fakeSessionRepo{}
	for i := 0; i < 20; i++ {
		role := entity.RoleUser
		if i%2 == 1 {
			role = entity.RoleAssistant
		}
		repo.turns = append(repo.turns, entity.SessionTurn{Role: role, Content: "turn"})
	}
	mem := NewSessionMemory(repo, SessionMemoryConfig{ContextTurns: 4}, zap.NewNop())

	got, _ := mem.ContextFor(context.Background(), "s1")
	lines := 0
	for _, c := range got {
		if c == '\n' {
			lines++
		}
	}
	if lines != 4 {
		t.Fatalf("expected 4 turn lines, got %d in %q", lines, got)
	}
}

func TestSessionMemory_ContextForPropagatesError(t *testing.T) {
	repo := &fakeSessionRepo{err: errors.New("db gone")}
	mem := NewSessionMemory(repo, SessionMemoryConfig{}, zap.NewNop())

	if _, err := mem.ContextFor(context.Background(), "s1"); err == nil {
		t.Fatal("expected error from repository")
	}
}

func TestSessionMemory_ReaperRunsAndStops(t *testing.T) {
	repo := &fakeSessionRepo{}
	mem := NewSessionMemory(repo, SessionMemoryConfig{ReapInterval: 5 * time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	mem.StartReaper(ctx)

	deadline := time.After(time.Second)
	for repo.reapCalls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("reaper never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
}
