package service

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMinInterval is the per-user floor between admitted messages.
	DefaultMinInterval = 2 * time.Second

	// rateLimitIdleTTL is how long an idle entry survives before purge.
	rateLimitIdleTTL = time.Hour
	// rateLimitPurgeEvery bounds how often Admit scans for stale entries.
	rateLimitPurgeEvery = time.Minute
)

// RateLimiter throttles per-user message admission. Rejected messages are
// silently dropped by the calling adapter and never count as breaker
// failures.
type RateLimiter interface {
	// Admit records an admission attempt for userKey at now and reports
	// whether the message may enter the pipeline.
	Admit(userKey int64, now time.Time) bool
}

// MemoryRateLimiter is the default in-process limiter: a bounded map of
// last-admitted timestamps under one mutex. Entries idle for over an hour
// are purged opportunistically during Admit, at most once a minute.
type MemoryRateLimiter struct {
	mu           sync.Mutex
	lastAdmitted map[int64]time.Time
	minInterval  time.Duration
	lastPurge    time.Time
	logger       *zap.Logger
}

var _ RateLimiter = (*MemoryRateLimiter)(nil)

// NewMemoryRateLimiter creates a limiter. Non-positive interval falls back
// to the 2s default.
func NewMemoryRateLimiter(minInterval time.Duration, logger *zap.Logger) *MemoryRateLimiter {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &MemoryRateLimiter{
		lastAdmitted: make(map[int64]time.Time),
		minInterval:  minInterval,
		logger:       logger.With(zap.String("component", "rate-limiter")),
	}
}

// Admit implements RateLimiter.
func (l *MemoryRateLimiter) Admit(userKey int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.lastAdmitted[userKey]; ok && now.Sub(last) < l.minInterval {
		return false
	}
	l.lastAdmitted[userKey] = now
	l.purgeLocked(now)
	return true
}

// purgeLocked drops entries idle beyond the TTL. Caller holds the mutex.
func (l *MemoryRateLimiter) purgeLocked(now time.Time) {
	if now.Sub(l.lastPurge) < rateLimitPurgeEvery {
		return
	}
	l.lastPurge = now

	var purged int
	for key, last := range l.lastAdmitted {
		if now.Sub(last) > rateLimitIdleTTL {
			delete(l.lastAdmitted, key)
			purged++
		}
	}
	if purged > 0 {
		l.logger.Debug("Purged idle rate-limit entries", zap.Int("count", purged))
	}
}

// Size returns the number of tracked users. Test hook.
func (l *MemoryRateLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lastAdmitted)
}
