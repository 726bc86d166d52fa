package application

import "time"

// budget tracks the unspent share of one request's response-time
// allowance. Stage deadlines are clipped to what is left; once the
// remainder drops under the floor the pipeline stops starting stages
// and short-circuits to the timeout fallback.
type budget struct {
	start time.Time
	total time.Duration
	floor time.Duration
	now   func() time.Time
}

func newBudget(total, floor time.Duration, start time.Time, now func() time.Time) *budget {
	return &budget{start: start, total: total, floor: floor, now: now}
}

// Remaining returns the unspent portion of the allowance. Negative once
// the allowance is overdrawn.
func (b *budget) Remaining() time.Duration {
	return b.total - b.now().Sub(b.start)
}

// Stage returns the deadline for the next stage: the stage default
// clipped to the remaining allowance.
func (b *budget) Stage(stageDefault time.Duration) time.Duration {
	if remaining := b.Remaining(); remaining < stageDefault {
		return remaining
	}
	return stageDefault
}

// Exhausted reports whether the remainder fell under the floor.
func (b *budget) Exhausted() bool {
	return b.Remaining() < b.floor
}

// Elapsed returns the time spent since admission.
func (b *budget) Elapsed() time.Duration {
	return b.now().Sub(b.start)
}
