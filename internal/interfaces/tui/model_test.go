package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
)

type pipelineFunc func(ctx context.Context, query *entity.Query, source string) *entity.Response

func (f pipelineFunc) Handle(ctx context.Context, query *entity.Query, source string) *entity.Response {
	return f(ctx, query, source)
}

func readyModel(t *testing.T, pipeline Pipeline) model {
	t.Helper()
	m := newModel(pipeline, Config{Persona: "Daredevil"}, zap.NewNop())
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(model)
}

func TestSubmitStartsWaiting(t *testing.T) {
	m := readyModel(t, pipelineFunc(func(ctx context.Context, q *entity.Query, source string) *entity.Response {
		return &entity.Response{Content: "ok", Method: entity.MethodBasicLLM}
	}))

	m.input.SetValue("what happened in monza")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)

	if !m.waiting {
		t.Error("model should be waiting after submit")
	}
	if len(m.transcript) != 1 {
		t.Fatalf("expected the user line in the transcript, got %d entries", len(m.transcript))
	}
	if cmd == nil {
		t.Error("submit should schedule the pipeline call")
	}
	if m.input.Value() != "" {
		t.Error("input should be cleared on submit")
	}
}

func TestAskProducesResponseMsg(t *testing.T) {
	var gotSource string
	m := readyModel(t, pipelineFunc(func(ctx context.Context, q *entity.Query, source string) *entity.Response {
		gotSource = source
		return &entity.Response{Content: "answer", Method: entity.MethodStandardRAG}
	}))

	msg := m.ask("who leads the standings")()
	resp, ok := msg.(responseMsg)
	if !ok {
		t.Fatalf("expected responseMsg, got %T", msg)
	}
	if resp.resp.Content != "answer" {
		t.Errorf("unexpected content %q", resp.resp.Content)
	}
	if gotSource != "tui" {
		t.Errorf("expected source tui, got %q", gotSource)
	}
}

func TestAskMapsNilToRateLimited(t *testing.T) {
	m := readyModel(t, pipelineFunc(func(ctx context.Context, q *entity.Query, source string) *entity.Response {
		return nil
	}))

	if _, ok := m.ask("hi")().(rateLimitedMsg); !ok {
		t.Error("nil pipeline result should surface as rateLimitedMsg")
	}
}

func TestResponseStopsWaiting(t *testing.T) {
	m := readyModel(t, pipelineFunc(func(ctx context.Context, q *entity.Query, source string) *entity.Response {
		return nil
	}))
	m.waiting = true

	next, _ := m.Update(responseMsg{
		resp:    &entity.Response{Content: "done", Method: entity.MethodWebOnly},
		elapsed: 120 * time.Millisecond,
	})
	m = next.(model)

	if m.waiting {
		t.Error("response should stop the spinner")
	}
	if len(m.transcript) != 1 {
		t.Errorf("expected the answer in the transcript, got %d entries", len(m.transcript))
	}
}

func TestClearRotatesSession(t *testing.T) {
	m := readyModel(t, pipelineFunc(func(ctx context.Context, q *entity.Query, source string) *entity.Response {
		return nil
	}))
	m.transcript = []string{"old line"}
	before := m.sessionID

	m.input.SetValue("/clear")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)

	if len(m.transcript) != 0 {
		t.Error("transcript should be empty after /clear")
	}
	if m.sessionID == before {
		t.Error("/clear should rotate the session id")
	}
}

func TestQuitCommand(t *testing.T) {
	m := readyModel(t, pipelineFunc(func(ctx context.Context, q *entity.Query, source string) *entity.Response {
		return nil
	}))

	m.input.SetValue("/quit")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)

	if !m.quitting {
		t.Error("/quit should mark the model as quitting")
	}
	if cmd == nil {
		t.Error("/quit should return the quit command")
	}
}

func TestRendererMetaMarksFallback(t *testing.T) {
	r := newRenderer(100, "Daredevil")

	out := r.meta(&entity.Response{
		Method:   entity.MethodTimeoutFallback,
		TimedOut: true,
	}, 45*time.Second)
	if !strings.Contains(out, "⚠") {
		t.Error("fallback responses should carry the warning marker")
	}
	if !strings.Contains(out, "timed out") {
		t.Error("timed out responses should say so")
	}
}

func TestRendererMetaTruncatesSources(t *testing.T) {
	r := newRenderer(100, "Daredevil")

	out := r.meta(&entity.Response{
		Method:  entity.MethodStandardRAG,
		Sources: []string{"a.md", "b.md", "c.md", "d.md", "e.md"},
	}, time.Second)
	if !strings.Contains(out, "+2 more") {
		t.Errorf("expected source truncation note, got %q", out)
	}
	if strings.Contains(out, "d.md") {
		t.Error("truncated sources should not be listed")
	}
}

func TestBannerFallsBackWhenNarrow(t *testing.T) {
	wide := RenderBanner(BannerInfo{Persona: "Daredevil", Session: "tui-1"}, 120)
	if !strings.Contains(wide, "██") {
		t.Error("wide banner should use the block logo")
	}

	narrow := RenderBanner(BannerInfo{Persona: "Daredevil", Session: "tui-1"}, 40)
	if !strings.Contains(narrow, "D A R E D E V I L") {
		t.Error("narrow banner should use the compact wordmark")
	}
}
