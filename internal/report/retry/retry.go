package retry

import (
	"math/rand"
	"time"
)

// Policy holds the polling retry settings.
type Policy struct {
	InitialDelay time.Duration // First tick interval (3s)
	MaxDelay     time.Duration // Cap on the tick interval (30s)
	MaxJitter    time.Duration // Random jitter range added on each retry (1s)
	MaxRetries   int           // Retry ceiling (5)

	// Jitter returns a random duration in [0, max). Nil uses math/rand.
	Jitter func(max time.Duration) time.Duration
}

// DefaultPolicy returns the production polling policy.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: 3 * time.Second,
		MaxDelay:     30 * time.Second,
		MaxJitter:    1 * time.Second,
		MaxRetries:   5,
	}
}

// State is the retry bookkeeping for one job.
type State struct {
	Count int
	Delay time.Duration
}

// Initial returns the state a job starts with, and the state a reset restores.
func (p Policy) Initial() State {
	return State{Count: 0, Delay: p.InitialDelay}
}

// Exhausted reports whether the ceiling has been reached.
func (p Policy) Exhausted(s State) bool {
	return s.Count >= p.MaxRetries
}

// Advance records one retry.
//
// Formula: min(delay*2 + jitter, MaxDelay)
//
// With the default policy (jitter omitted):
//
//	Retry 1: 3s  -> 6s
//	Retry 2: 6s  -> 12s
//	Retry 3: 12s -> 24s
//	Retry 4: 24s -> 30s (capped)
//	Retry 5: 30s -> 30s
//
// ok is false when the ceiling was already reached; the state is returned
// unchanged and the caller must stop polling.
func (p Policy) Advance(s State) (next State, ok bool) {
	if p.Exhausted(s) {
		return s, false
	}
	return State{Count: s.Count + 1, Delay: p.NextDelay(s.Delay)}, true
}

// NextDelay computes the interval after current. It never returns less than
// current, so the delay is non-decreasing within a job.
func (p Policy) NextDelay(current time.Duration) time.Duration {
	next := current*2 + p.jitter()
	if next > p.MaxDelay {
		next = p.MaxDelay
	}
	if next < current {
		next = current
	}
	return next
}

func (p Policy) jitter() time.Duration {
	// Only add jitter if MaxJitter > 0 to avoid panic in rand.Int63n
	if p.MaxJitter <= 0 {
		return 0
	}
	if p.Jitter != nil {
		return p.Jitter(p.MaxJitter)
	}
	return time.Duration(rand.Int63n(int64(p.MaxJitter)))
}
