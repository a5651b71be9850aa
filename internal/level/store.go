// Package level holds the process-wide DEFCON level.
//
// The level is a single digit: 0 is the most severe alert and 9 means off.
// It can be set directly or derived from up to eight independent reasons,
// where the effective level is the lowest-numbered reason currently asserted.
package level

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

const (
	// Max is the most severe level.
	Max = 0
	// Off is the unset / all-clear level.
	Off = 9
	// Unset marks a consumer that has not yet seen any level.
	Unset = -1
	// Reasons is the number of reason bits.
	Reasons = 8
)

// Valid reports whether l is a storable level.
func Valid(l int) bool {
	return l >= Max && l <= Off
}

// Store holds the current level and reason mask.
// Reads are lock-free; writers are serialised so that a reason update and
// the level derived from it are published together.
type Store struct {
	mu      sync.Mutex
	level   atomic.Int32
	reasons atomic.Uint32
}

// NewStore returns a store at level Off with no reasons asserted.
func NewStore() *Store {
	s := &Store{}
	s.level.Store(Off)
	return s
}

// Level returns the current effective level.
func (s *Store) Level() int {
	return int(s.level.Load())
}

// Reasons returns the current reason mask.
func (s *Store) Reasons() uint8 {
	return uint8(s.reasons.Load())
}

// SetLevel sets the level directly, bypassing the reason mask.
// Values outside [0,9] are ignored.
func (s *Store) SetLevel(l int) {
	if !Valid(l) {
		return
	}
	s.mu.Lock()
	s.level.Store(int32(l))
	s.mu.Unlock()
}

// SetReason asserts or clears one reason and recomputes the level from the
// mask. Ids outside [0,7] are ignored.
func (s *Store) SetReason(id int, asserted bool) {
	if id < 0 || id >= Reasons {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	mask := uint8(s.reasons.Load())
	if asserted {
		mask |= 1 << id
	} else {
		mask &^= 1 << id
	}
	s.reasons.Store(uint32(mask))
	s.level.Store(int32(FromMask(mask)))
}

// Step moves the level by delta, clamped to [0,9], and returns the result.
func (s *Store) Step(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := int(s.level.Load()) + delta
	if l < Max {
		l = Max
	}
	if l > Off {
		l = Off
	}
	s.level.Store(int32(l))
	return l
}

// FromMask returns the lowest asserted reason, or Off when none are set.
func FromMask(mask uint8) int {
	if mask == 0 {
		return Off
	}
	return bits.TrailingZeros8(mask)
}
