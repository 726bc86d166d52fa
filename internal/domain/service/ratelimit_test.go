package service

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRateLimiter_AdmitsFirstMessage(t *testing.T) {
	l := NewMemoryRateLimiter(2*time.Second, zap.NewNop())

	if !l.Admit(42, time.Now()) {
		t.Fatal("first message should be admitted")
	}
}

func TestRateLimiter_RejectsWithinInterval(t *testing.T) {
	l := NewMemoryRateLimiter(2*time.Second, zap.NewNop())
	base := time.Now()

	if !l.Admit(42, base) {
		t.Fatal("first message should be admitted")
	}
	if l.Admit(42, base.Add(1500*time.Millisecond)) {
		t.Fatal("message inside the interval should be rejected")
	}
	if !l.Admit(42, base.Add(2100*time.Millisecond)) {
		t.Fatal("message past the interval should be admitted")
	}
}

func TestRateLimiter_UsersAreIndependent(t *testing.T) {
	l := NewMemoryRateLimiter(2*time.Second, zap.NewNop())
	base := time.Now()

	if !l.Admit(1, base) {
		t.Fatal("user 1 should be admitted")
	}
	if !l.Admit(2, base.Add(10*time.Millisecond)) {
		t.Fatal("user 2 should be admitted regardless of user 1")
	}
}

func TestRateLimiter_RejectionDoesNotResetWindow(t *testing.T) {
	l := NewMemoryRateLimiter(2*time.Second, zap.NewNop())
	base := time.Now()

	l.Admit(7, base)
	if l.Admit(7, base.Add(time.Second)) {
		t.Fatal("should reject inside interval")
	}
	// The rejected attempt must not have pushed the window forward.
	if !l.Admit(7, base.Add(2*time.Second)) {
		t.Fatal("window should be measured from the last admission")
	}
}

func TestRateLimiter_PurgesIdleEntries(t *testing.T) {
	l := NewMemoryRateLimiter(2*time.Second, zap.NewNop())
	base := time.Now()

	l.Admit(1, base)
	l.Admit(2, base)
	if l.Size() != 2 {
		t.Fatalf("expected 2 tracked users, got %d", l.Size())
	}

	// A new admission over an hour later sweeps the stale entries.
	l.Admit(3, base.Add(61*time.Minute))
	if l.Size() != 1 {
		t.Fatalf("expected stale entries purged, got %d", l.Size())
	}
}
