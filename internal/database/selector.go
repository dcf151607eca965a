package database

import (
	"math/rand/v2"
	"sync/atomic"
)

// ReplicaSelector picks one of n replica pools. Implementations must be safe
// for concurrent use and return an index in [0, n).
type ReplicaSelector interface {
	Select(n int) int
}

// RandomSelector spreads reads uniformly at random. Replicas are assumed
// interchangeable, so no health or weighting is applied.
type RandomSelector struct{}

// Select returns a uniformly random index.
func (RandomSelector) Select(n int) int {
	return rand.IntN(n)
}

// RoundRobinSelector cycles through replicas in order.
type RoundRobinSelector struct {
	next atomic.Uint64
}

// Select returns the next index in the cycle.
func (s *RoundRobinSelector) Select(n int) int {
	return int((s.next.Add(1) - 1) % uint64(n)) //nolint:gosec // n > 0
}

// FixedSelector always returns the same index.
type FixedSelector int

// Select returns the fixed index.
func (f FixedSelector) Select(int) int {
	return int(f)
}
