package service

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Well-known breaker service names. The registry accepts any name, but
// these three always exist.
const (
	ServiceRAGSearch = "rag_search"
	ServiceWebSearch = "web_search"
	ServiceLLM       = "llm"
)

const (
	// DefaultBreakerThreshold is the failure count that opens a breaker.
	DefaultBreakerThreshold = 5
	// DefaultBreakerCooldown is how long an open breaker refuses calls.
	DefaultBreakerCooldown = 300 * time.Second
)

// BreakerState is a point-in-time snapshot of one service's breaker.
type BreakerState struct {
	Failures    int
	LastFailure time.Time
	Open        bool
}

// TransitionHook observes open/close transitions. Called outside the
// registry lock, so a hook may call back into the registry.
type TransitionHook func(service string, open bool, failures int)

type breakerEntry struct {
	failures    int
	lastFailure time.Time
	open        bool
}

// BreakerRegistry tracks per-service failure counters with a cool-down.
// All mutations run under one registry-wide mutex; critical sections are
// O(1) and hold no I/O. Counters are eventually consistent across
// goroutines; a missed decrement is preferable to a blocked request.
type BreakerRegistry struct {
	mu         sync.Mutex
	services   map[string]*breakerEntry
	threshold  int
	cooldown   time.Duration
	now        func() time.Time
	transition TransitionHook
	logger     *zap.Logger
}

// NewBreakerRegistry creates a registry with the rag_search, web_search
// and llm breakers pre-seeded. Non-positive tuning falls back to defaults.
func NewBreakerRegistry(threshold int, cooldown time.Duration, logger *zap.Logger) *BreakerRegistry {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}
	r := &BreakerRegistry{
		services:  make(map[string]*breakerEntry),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		logger:    logger.With(zap.String("component", "breaker-registry")),
	}
	for _, name := range []string{ServiceRAGSearch, ServiceWebSearch, ServiceLLM} {
		r.services[name] = &breakerEntry{}
	}
	return r
}

func (r *BreakerRegistry) entry(service string) *breakerEntry {
	e, ok := r.services[service]
	if !ok {
		e = &breakerEntry{}
		r.services[service] = e
	}
	return e
}

// Allow reports whether a call to service may proceed. It returns false
// iff failures reached the threshold and the cool-down has not elapsed.
// Once the cool-down elapses the breaker resets and one probe is admitted.
func (r *BreakerRegistry) Allow(service string) bool {
	r.mu.Lock()

	e := r.entry(service)
	if e.failures < r.threshold {
		r.mu.Unlock()
		return true
	}
	if r.now().Sub(e.lastFailure) < r.cooldown {
		e.open = true
		r.mu.Unlock()
		return false
	}

	// Cool-down elapsed: reset and admit a half-open probe.
	wasOpen := e.open
	e.failures = 0
	e.open = false
	hook := r.transition
	r.mu.Unlock()

	r.logger.Info("Breaker cool-down elapsed, admitting probe",
		zap.String("service", service))
	if wasOpen && hook != nil {
		hook(service, false, 0)
	}
	return true
}

// RecordFailure increments the failure counter and stamps the failure time.
func (r *BreakerRegistry) RecordFailure(service string) {
	r.mu.Lock()

	e := r.entry(service)
	e.failures++
	e.lastFailure = r.now()
	opened := false
	if e.failures >= r.threshold && !e.open {
		e.open = true
		opened = true
	}
	failures := e.failures
	hook := r.transition
	r.mu.Unlock()

	if opened {
		r.logger.Warn("Breaker opened",
			zap.String("service", service),
			zap.Int("failures", failures))
		if hook != nil {
			hook(service, true, failures)
		}
	}
}

// RecordSuccess decrements the failure counter (floor 0) and closes the
// breaker when the counter reaches 0.
func (r *BreakerRegistry) RecordSuccess(service string) {
	r.mu.Lock()

	e := r.entry(service)
	if e.failures > 0 {
		e.failures--
	}
	closed := false
	if e.failures == 0 && e.open {
		e.open = false
		closed = true
	}
	hook := r.transition
	r.mu.Unlock()

	if closed {
		r.logger.Info("Breaker closed", zap.String("service", service))
		if hook != nil {
			hook(service, false, 0)
		}
	}
}

// State returns a snapshot of one service's breaker.
func (r *BreakerRegistry) State(service string) BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entry(service)
	return BreakerState{Failures: e.failures, LastFailure: e.lastFailure, Open: e.open}
}

// States returns a snapshot of every known breaker, keyed by service.
func (r *BreakerRegistry) States() map[string]BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]BreakerState, len(r.services))
	for name, e := range r.services {
		out[name] = BreakerState{Failures: e.failures, LastFailure: e.lastFailure, Open: e.open}
	}
	return out
}

// OpenServices lists currently open breakers, sorted, for the log surface.
func (r *BreakerRegistry) OpenServices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var open []string
	for name, e := range r.services {
		if e.open {
			open = append(open, name)
		}
	}
	sort.Strings(open)
	return open
}

// SetTransitionHook registers the observer for open/close transitions.
// Set once during wiring, before traffic.
func (r *BreakerRegistry) SetTransitionHook(hook TransitionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transition = hook
}

// SetClock replaces the time source. Test hook.
func (r *BreakerRegistry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}
