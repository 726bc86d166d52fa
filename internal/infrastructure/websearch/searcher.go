package websearch

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/service"
)

const (
	// DefaultTimeout bounds one whole search across all providers.
	DefaultTimeout = 15 * time.Second
	// DefaultProviderTimeout bounds a single provider attempt.
	DefaultProviderTimeout = 10 * time.Second
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 2

	// minUsableContentLength: a provider wins only when at least one
	// result's snippet exceeds this.
	minUsableContentLength = 20

	maxQueryLength = 500
	retryBackoff   = 200 * time.Millisecond
)

// Searcher runs the provider chain under the web_search breaker. Failures
// degrade: empty list when the breaker is open, a synthetic suggestion
// when every provider comes back empty-handed.
type Searcher struct {
	providers       []Provider
	breakers        *service.BreakerRegistry
	cache           *Cache
	timeout         time.Duration
	providerTimeout time.Duration
	maxRetries      int
	logger          *zap.Logger
}

// NewSearcher builds a searcher over the given provider chain, tried in
// order. Non-positive tuning falls back to defaults.
func NewSearcher(providers []Provider, breakers *service.BreakerRegistry, cache *Cache, timeout, providerTimeout time.Duration, maxRetries int, logger *zap.Logger) *Searcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if providerTimeout <= 0 {
		providerTimeout = DefaultProviderTimeout
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if cache == nil {
		cache = NewCache(0, 0)
	}
	return &Searcher{
		providers:       providers,
		breakers:        breakers,
		cache:           cache,
		timeout:         timeout,
		providerTimeout: providerTimeout,
		maxRetries:      maxRetries,
		logger:          logger.With(zap.String("component", "web-searcher")),
	}
}

// Search fetches up to n snippets for the query. It never returns an
// error: infrastructure trouble is recorded on the breaker and the caller
// gets an empty list or the synthetic suggestion.
func (s *Searcher) Search(ctx context.Context, query string, n int) []entity.WebResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if runes := []rune(query); len(runes) > maxQueryLength {
		query = string(runes[:maxQueryLength])
	}
	if n < 1 {
		n = 1
	}
	if n > 10 {
		n = 10
	}

	if results, ok := s.cache.Get(query, n); ok {
		s.logger.Debug("web search cache hit", zap.String("query", query))
		return results
	}

	if !s.breakers.Allow(service.ServiceWebSearch) {
		s.logger.Info("web search skipped, breaker open")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var errored, emptyOK int
	for _, provider := range s.providers {
		results, err := s.tryProvider(ctx, provider, query, n)
		if err != nil {
			errored++
			s.logger.Warn("provider exhausted",
				zap.String("provider", provider.Name()),
				zap.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if hasUsableResult(results) {
			s.breakers.RecordSuccess(service.ServiceWebSearch)
			if len(results) > n {
				results = results[:n]
			}
			s.cache.Put(query, n, results)
			s.logger.Info("web search succeeded",
				zap.String("provider", provider.Name()),
				zap.Int("results", len(results)))
			return results
		}
		emptyOK++
	}

	// Pure infrastructure failure counts against the breaker; providers
	// that answered with nothing keep it neutral.
	if errored > 0 && emptyOK == 0 {
		s.breakers.RecordFailure(service.ServiceWebSearch)
	}

	s.logger.Info("web search found nothing, returning suggestion",
		zap.String("query", query),
		zap.Int("errored", errored))
	return []entity.WebResult{suggestionResult(query)}
}

// tryProvider runs one provider with retries and per-attempt deadlines.
func (s *Searcher) tryProvider(ctx context.Context, provider Provider, query string, n int) ([]entity.WebResult, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, lastErr
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
		results, err := provider.Search(attemptCtx, query, n)
		cancel()
		if err == nil {
			return results, nil
		}
		lastErr = err
		s.logger.Debug("provider attempt failed",
			zap.String("provider", provider.Name()),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return nil, lastErr
}

func hasUsableResult(results []entity.WebResult) bool {
	for _, r := range results {
		if len(r.Snippet) > minUsableContentLength {
			return true
		}
	}
	return false
}

// suggestionResult is the fallback when no provider delivers: it points
// the user at an external search page. Its URL is the no-source
// placeholder so it never counts as web evidence downstream.
func suggestionResult(query string) entity.WebResult {
	return entity.WebResult{
		Title:   "Search suggestion",
		Snippet: "No direct results found. Try searching the web: https://duckduckgo.com/?q=" + url.QueryEscape(query),
		URL:     entity.NoSourceURL,
	}
}
