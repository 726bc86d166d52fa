package service

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBreaker_AllowsWhileClosed(t *testing.T) {
	r := NewBreakerRegistry(5, 300*time.Second, zap.NewNop())

	for i := 0; i < 4; i++ {
		r.RecordFailure(ServiceLLM)
	}
	if !r.Allow(ServiceLLM) {
		t.Fatal("breaker should allow below threshold")
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	r := NewBreakerRegistry(5, 300*time.Second, zap.NewNop())

	for i := 0; i < 5; i++ {
		r.RecordFailure(ServiceWebSearch)
	}
	if r.Allow(ServiceWebSearch) {
		t.Fatal("breaker should refuse at threshold")
	}
	if !r.State(ServiceWebSearch).Open {
		t.Fatal("state should report open")
	}

	// Other services are unaffected.
	if !r.Allow(ServiceLLM) {
		t.Fatal("llm breaker should be independent")
	}
}

func TestBreaker_HalfOpenProbeAfterCooldown(t *testing.T) {
	r := NewBreakerRegistry(5, 300*time.Second, zap.NewNop())

	base := time.Now()
	now := base
	r.SetClock(func() time.Time { return now })

	for i := 0; i < 5; i++ {
		r.RecordFailure(ServiceRAGSearch)
	}
	if r.Allow(ServiceRAGSearch) {
		t.Fatal("breaker should be open inside cool-down")
	}

	// Just before the cool-down boundary: still open.
	now = base.Add(299 * time.Second)
	if r.Allow(ServiceRAGSearch) {
		t.Fatal("breaker should stay open until cool-down elapses")
	}

	// Past the boundary: counter resets and one probe is admitted.
	now = base.Add(301 * time.Second)
	if !r.Allow(ServiceRAGSearch) {
		t.Fatal("breaker should admit a probe after cool-down")
	}
	st := r.State(ServiceRAGSearch)
	if st.Failures != 0 {
		t.Fatalf("failures should reset to 0, got %d", st.Failures)
	}
	if st.Open {
		t.Fatal("breaker should be closed after reset")
	}
}

func TestBreaker_SuccessDecrementsWithFloor(t *testing.T) {
	r := NewBreakerRegistry(5, 300*time.Second, zap.NewNop())

	r.RecordFailure(ServiceLLM)
	r.RecordFailure(ServiceLLM)
	r.RecordSuccess(ServiceLLM)
	if got := r.State(ServiceLLM).Failures; got != 1 {
		t.Fatalf("expected 1 failure after decrement, got %d", got)
	}

	r.RecordSuccess(ServiceLLM)
	r.RecordSuccess(ServiceLLM)
	if got := r.State(ServiceLLM).Failures; got != 0 {
		t.Fatalf("failures must floor at 0, got %d", got)
	}
}

func TestBreaker_SuccessClosesOpenBreaker(t *testing.T) {
	r := NewBreakerRegistry(2, 300*time.Second, zap.NewNop())

	r.RecordFailure(ServiceLLM)
	r.RecordFailure(ServiceLLM)
	if r.Allow(ServiceLLM) {
		t.Fatal("breaker should be open")
	}

	r.RecordSuccess(ServiceLLM)
	r.RecordSuccess(ServiceLLM)
	st := r.State(ServiceLLM)
	if st.Open || st.Failures != 0 {
		t.Fatalf("breaker should be closed at 0 failures, got %+v", st)
	}
	if !r.Allow(ServiceLLM) {
		t.Fatal("closed breaker should allow")
	}
}

func TestBreaker_OpenServicesSorted(t *testing.T) {
	r := NewBreakerRegistry(1, 300*time.Second, zap.NewNop())

	r.RecordFailure(ServiceWebSearch)
	r.RecordFailure(ServiceLLM)

	open := r.OpenServices()
	if len(open) != 2 || open[0] != ServiceLLM || open[1] != ServiceWebSearch {
		t.Fatalf("unexpected open list: %v", open)
	}
}

func TestBreaker_UnknownServiceStartsClosed(t *testing.T) {
	r := NewBreakerRegistry(5, 300*time.Second, zap.NewNop())

	if !r.Allow("speech_synthesis") {
		t.Fatal("unknown service should start closed")
	}
	r.RecordFailure("speech_synthesis")
	if got := r.State("speech_synthesis").Failures; got != 1 {
		t.Fatalf("expected 1 failure, got %d", got)
	}
}

func TestBreaker_TransitionHookFiresOnEdges(t *testing.T) {
	r := NewBreakerRegistry(2, 300*time.Second, zap.NewNop())

	type transition struct {
		service  string
		open     bool
		failures int
	}
	var seen []transition
	r.SetTransitionHook(func(service string, open bool, failures int) {
		seen = append(seen, transition{service, open, failures})
	})

	// Only the crossing failure fires the hook, not every failure.
	r.RecordFailure(ServiceLLM)
	r.RecordFailure(ServiceLLM)
	r.RecordFailure(ServiceLLM)
	if len(seen) != 1 {
		t.Fatalf("expected 1 transition after opening, got %d", len(seen))
	}
	if !seen[0].open || seen[0].service != ServiceLLM || seen[0].failures != 2 {
		t.Fatalf("unexpected open transition: %+v", seen[0])
	}

	// Draining failures to zero fires exactly one close.
	r.RecordSuccess(ServiceLLM)
	r.RecordSuccess(ServiceLLM)
	r.RecordSuccess(ServiceLLM)
	if len(seen) != 2 {
		t.Fatalf("expected 2 transitions after closing, got %d", len(seen))
	}
	if seen[1].open {
		t.Fatalf("second transition should be a close, got %+v", seen[1])
	}
}

func TestBreaker_TransitionHookFiresOnHalfOpenReset(t *testing.T) {
	r := NewBreakerRegistry(2, 300*time.Second, zap.NewNop())

	base := time.Now()
	now := base
	r.SetClock(func() time.Time { return now })

	var closes int
	r.SetTransitionHook(func(service string, open bool, failures int) {
		if !open {
			closes++
		}
	})

	r.RecordFailure(ServiceWebSearch)
	r.RecordFailure(ServiceWebSearch)
	if r.Allow(ServiceWebSearch) {
		t.Fatal("breaker should be open")
	}

	now = base.Add(301 * time.Second)
	if !r.Allow(ServiceWebSearch) {
		t.Fatal("probe should be admitted after cool-down")
	}
	if closes != 1 {
		t.Fatalf("expected 1 close transition from the probe reset, got %d", closes)
	}
}
