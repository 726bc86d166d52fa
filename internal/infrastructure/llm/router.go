package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	providerFailureThreshold = 3
	providerCooldown         = 30 * time.Second
)

// Router implements Provider by trying configured endpoints in priority
// order and returning the first success. An endpoint that keeps failing
// is skipped for a cooldown so one dead provider does not tax every
// request with its timeout.
type Router struct {
	providers []*routedProvider
	mu        sync.RWMutex
	logger    *zap.Logger
}

type routedProvider struct {
	provider Provider
	priority int
	breaker  *providerBreaker
	stats    providerStats
}

// providerStats tracks per-provider performance, guarded by Router.mu.
type providerStats struct {
	TotalCalls   int64
	FailureCount int64
	LastLatency  time.Duration
}

// NewRouter creates an empty router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		logger: logger.With(zap.String("component", "llm-router")),
	}
}

// Compile-time interface check: the router is itself a Provider.
var _ Provider = (*Router)(nil)

func (r *Router) Name() string { return "router" }

// AddProvider registers an endpoint. Lower priority wins; equal
// priorities keep insertion order.
func (r *Router) AddProvider(p Provider, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, &routedProvider{
		provider: p,
		priority: priority,
		breaker:  newProviderBreaker(providerFailureThreshold, providerCooldown),
	})
	sort.SliceStable(r.providers, func(i, j int) bool {
		return r.providers[i].priority < r.providers[j].priority
	})
	r.logger.Info("LLM provider added",
		zap.String("name", p.Name()),
		zap.Int("priority", priority),
	)
}

// Generate implements Provider. It routes to the first provider whose
// circuit admits the call; failures fall through to the next one.
func (r *Router) Generate(ctx context.Context, req Request) (string, error) {
	r.mu.RLock()
	providers := make([]*routedProvider, len(r.providers))
	copy(providers, r.providers)
	r.mu.RUnlock()

	if len(providers) == 0 {
		return "", fmt.Errorf("no completion providers configured")
	}

	var lastErr error
	for _, rp := range providers {
		// A dead request context would fail every remaining provider
		// and poison their circuits for no fault of their own.
		if ctx.Err() != nil {
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			break
		}

		if !rp.breaker.allow() {
			r.logger.Debug("Provider circuit open, skipping",
				zap.String("provider", rp.provider.Name()),
			)
			continue
		}

		r.logger.Debug("Routing to provider",
			zap.String("provider", rp.provider.Name()),
		)

		start := time.Now()
		text, err := rp.provider.Generate(ctx, req)
		latency := time.Since(start)

		r.mu.Lock()
		rp.stats.TotalCalls++
		rp.stats.LastLatency = latency
		if err != nil {
			rp.stats.FailureCount++
		}
		r.mu.Unlock()

		if err != nil {
			rp.breaker.recordFailure()
			lastErr = err
			r.logger.Warn("Provider failed, trying next",
				zap.String("provider", rp.provider.Name()),
				zap.Duration("latency", latency),
				zap.Error(err),
			)
			continue
		}

		cleaned := StripReasoning(text)
		if cleaned == "" {
			rp.breaker.recordFailure()
			lastErr = fmt.Errorf("provider %s returned only reasoning content", rp.provider.Name())
			r.logger.Warn("Provider returned no answer content, trying next",
				zap.String("provider", rp.provider.Name()),
			)
			continue
		}

		rp.breaker.recordSuccess()
		r.logger.Debug("Provider succeeded",
			zap.String("provider", rp.provider.Name()),
			zap.Duration("latency", latency),
		)
		return cleaned, nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("all providers failed, last error: %w", lastErr)
	}
	return "", fmt.Errorf("all providers skipped by open circuits")
}

// Status reports each provider's standing for health endpoints and the
// doctor command.
func (r *Router) Status() []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ProviderStatus, 0, len(r.providers))
	for _, rp := range r.providers {
		result = append(result, ProviderStatus{
			Name:          rp.provider.Name(),
			Priority:      rp.priority,
			TotalCalls:    rp.stats.TotalCalls,
			FailureCount:  rp.stats.FailureCount,
			LastLatencyMs: float64(rp.stats.LastLatency) / float64(time.Millisecond),
			CircuitOpen:   !rp.breaker.healthy(),
		})
	}
	return result
}

// ProviderStatus describes one endpoint's current state and performance.
type ProviderStatus struct {
	Name          string  `json:"name"`
	Priority      int     `json:"priority"`
	TotalCalls    int64   `json:"total_calls"`
	FailureCount  int64   `json:"failure_count"`
	LastLatencyMs float64 `json:"last_latency_ms"`
	CircuitOpen   bool    `json:"circuit_open"`
}

// providerBreaker is the router's per-endpoint circuit: consecutive
// failures past the threshold open it, and after the cooldown a single
// probe call is admitted. A probe failure re-opens immediately.
type providerBreaker struct {
	mu        sync.Mutex
	failures  int
	openedAt  time.Time
	threshold int
	cooldown  time.Duration
}

func newProviderBreaker(threshold int, cooldown time.Duration) *providerBreaker {
	return &providerBreaker{threshold: threshold, cooldown: cooldown}
}

func (b *providerBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < b.threshold {
		return true
	}
	if time.Since(b.openedAt) >= b.cooldown {
		// One failure of headroom: the probe either resets the count
		// or trips the circuit again.
		b.failures = b.threshold - 1
		return true
	}
	return false
}

func (b *providerBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

func (b *providerBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.openedAt = time.Now()
	}
}

func (b *providerBreaker) healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures < b.threshold
}
