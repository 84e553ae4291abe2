// Package concurrency holds the small lock-free primitives shared between
// concurrently running universes: the spawn budget and the result map.
package concurrency

import "sync/atomic"

// SpawnBudget caps the total number of tasks ever started across a run. The
// check against the ceiling and the increment happen as one CAS so concurrent
// acquirers never overshoot.
type SpawnBudget struct {
	ceiling int64
	started atomic.Int64
}

// NewSpawnBudget creates a budget with `initial` slots already consumed.
func NewSpawnBudget(ceiling, initial int64) *SpawnBudget {
	b := &SpawnBudget{ceiling: ceiling}
	b.started.Store(initial)
	return b
}

// TryAcquire consumes one slot, returning false once the ceiling is reached.
func (b *SpawnBudget) TryAcquire() bool {
	for {
		cur := b.started.Load()
		if cur >= b.ceiling {
			return false
		}
		if b.started.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Started returns the number of slots consumed so far.
func (b *SpawnBudget) Started() int64 { return b.started.Load() }

// Ceiling returns the configured maximum.
func (b *SpawnBudget) Ceiling() int64 { return b.ceiling }
