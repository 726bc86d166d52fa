package websearch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/service"
)

type scriptedProvider struct {
	name      string
	results   []entity.WebResult
	err       error
	calls     int
	lastQuery string
	lastLimit int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Search(ctx context.Context, query string, limit int) ([]entity.WebResult, error) {
	p.calls++
	p.lastQuery = query
	p.lastLimit = limit
	if p.err != nil {
		return nil, p.err
	}
	return p.results, nil
}

func usableResults(n int) []entity.WebResult {
	out := make([]entity.WebResult, n)
	for i := range out {
		out[i] = entity.WebResult{
			Title:   "result",
			Snippet: "a snippet comfortably longer than twenty characters",
			URL:     "https://example.com/page",
		}
	}
	return out
}

func newTestSearcher(maxRetries int, providers ...Provider) (*Searcher, *service.BreakerRegistry) {
	breakers := service.NewBreakerRegistry(5, time.Minute, zap.NewNop())
	s := NewSearcher(providers, breakers, NewCache(time.Minute, 16), 2*time.Second, time.Second, maxRetries, zap.NewNop())
	return s, breakers
}

func TestSearchEmptyQuery(t *testing.T) {
	p := &scriptedProvider{name: "one", results: usableResults(1)}
	s, _ := newTestSearcher(0, p)

	if got := s.Search(context.Background(), "   ", 3); got != nil {
		t.Errorf("expected nil for empty query, got %v", got)
	}
	if p.calls != 0 {
		t.Errorf("provider called %d times for empty query", p.calls)
	}
}

func TestSearchFirstProviderWins(t *testing.T) {
	first := &scriptedProvider{name: "wikipedia", results: usableResults(2)}
	second := &scriptedProvider{name: "duckduckgo", results: usableResults(2)}
	s, breakers := newTestSearcher(0, first, second)

	breakers.RecordFailure(service.ServiceWebSearch)

	got := s.Search(context.Background(), "who won monza", 3)
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if second.calls != 0 {
		t.Errorf("second provider called %d times after first won", second.calls)
	}
	if f := breakers.State(service.ServiceWebSearch).Failures; f != 0 {
		t.Errorf("breaker failures = %d after success, want 0", f)
	}
}

func TestSearchFallsThroughOnThinContent(t *testing.T) {
	thin := &scriptedProvider{name: "thin", results: []entity.WebResult{
		{Title: "stub", Snippet: "too short", URL: "https://example.com"},
	}}
	full := &scriptedProvider{name: "full", results: usableResults(1)}
	s, _ := newTestSearcher(0, thin, full)

	got := s.Search(context.Background(), "who won monza", 3)
	if len(got) != 1 || got[0].Title != "result" {
		t.Fatalf("expected full provider's result, got %+v", got)
	}
	if thin.calls != 1 || full.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", thin.calls, full.calls)
	}
}

func TestSearchClampsN(t *testing.T) {
	p := &scriptedProvider{name: "one", results: usableResults(12)}
	s, _ := newTestSearcher(0, p)

	got := s.Search(context.Background(), "busy query", 50)
	if p.lastLimit != 10 {
		t.Errorf("provider limit = %d, want clamp to 10", p.lastLimit)
	}
	if len(got) != 10 {
		t.Errorf("got %d results, want cap at 10", len(got))
	}
}

func TestSearchTruncatesLongQuery(t *testing.T) {
	p := &scriptedProvider{name: "one", results: usableResults(1)}
	s, _ := newTestSearcher(0, p)

	s.Search(context.Background(), strings.Repeat("q", 600), 3)
	if len([]rune(p.lastQuery)) != 500 {
		t.Errorf("provider query length = %d, want 500", len([]rune(p.lastQuery)))
	}
}

func TestSearchSuggestionWhenAllEmpty(t *testing.T) {
	empty1 := &scriptedProvider{name: "one"}
	empty2 := &scriptedProvider{name: "two"}
	s, breakers := newTestSearcher(0, empty1, empty2)

	got := s.Search(context.Background(), "obscure question", 3)
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1 suggestion", len(got))
	}
	if got[0].URL != entity.NoSourceURL {
		t.Errorf("suggestion URL = %q, want %q", got[0].URL, entity.NoSourceURL)
	}
	if got[0].HasAbsoluteURL() {
		t.Error("suggestion must not count as an absolute URL")
	}
	if !strings.Contains(got[0].Snippet, "obscure+question") {
		t.Errorf("suggestion snippet lacks escaped query: %q", got[0].Snippet)
	}
	if f := breakers.State(service.ServiceWebSearch).Failures; f != 0 {
		t.Errorf("breaker failures = %d for empty-but-working providers, want 0", f)
	}
}

func TestSearchAllProvidersErroredRecordsFailure(t *testing.T) {
	bad1 := &scriptedProvider{name: "one", err: errors.New("connect refused")}
	bad2 := &scriptedProvider{name: "two", err: errors.New("connect refused")}
	s, breakers := newTestSearcher(1, bad1, bad2)

	got := s.Search(context.Background(), "anything", 3)
	if len(got) != 1 || got[0].URL != entity.NoSourceURL {
		t.Fatalf("expected suggestion fallback, got %+v", got)
	}
	if f := breakers.State(service.ServiceWebSearch).Failures; f != 1 {
		t.Errorf("breaker failures = %d, want 1", f)
	}
	// One initial attempt plus one retry per provider.
	if bad1.calls != 2 || bad2.calls != 2 {
		t.Errorf("calls = %d/%d, want 2/2", bad1.calls, bad2.calls)
	}
}

func TestSearchMixedErrorAndEmptyIsNeutral(t *testing.T) {
	bad := &scriptedProvider{name: "one", err: errors.New("timeout")}
	empty := &scriptedProvider{name: "two"}
	s, breakers := newTestSearcher(0, bad, empty)

	got := s.Search(context.Background(), "anything", 3)
	if len(got) != 1 || got[0].URL != entity.NoSourceURL {
		t.Fatalf("expected suggestion fallback, got %+v", got)
	}
	if f := breakers.State(service.ServiceWebSearch).Failures; f != 0 {
		t.Errorf("breaker failures = %d when one provider answered, want 0", f)
	}
}

func TestSearchBreakerOpenSkipsProviders(t *testing.T) {
	p := &scriptedProvider{name: "one", results: usableResults(1)}
	s, breakers := newTestSearcher(0, p)

	for i := 0; i < 5; i++ {
		breakers.RecordFailure(service.ServiceWebSearch)
	}

	if got := s.Search(context.Background(), "anything", 3); got != nil {
		t.Errorf("expected nil with open breaker, got %v", got)
	}
	if p.calls != 0 {
		t.Errorf("provider called %d times with open breaker", p.calls)
	}
}

func TestSearchServesFromCache(t *testing.T) {
	p := &scriptedProvider{name: "one", results: usableResults(2)}
	s, _ := newTestSearcher(0, p)

	first := s.Search(context.Background(), "repeat me", 3)
	second := s.Search(context.Background(), "repeat me", 3)
	if p.calls != 1 {
		t.Errorf("provider called %d times, want 1 (second from cache)", p.calls)
	}
	if len(first) != len(second) {
		t.Errorf("cache returned %d results, want %d", len(second), len(first))
	}
}

func TestSearchDoesNotCacheSuggestion(t *testing.T) {
	p := &scriptedProvider{name: "one"}
	s, _ := newTestSearcher(0, p)

	s.Search(context.Background(), "nothing out there", 3)
	s.Search(context.Background(), "nothing out there", 3)
	if p.calls != 2 {
		t.Errorf("provider called %d times, want 2 (suggestions are not cached)", p.calls)
	}
}
