package logic

import "github.com/sweeney/defcon/internal/level"

// Debouncer tracks the committed level and decides when an observed change
// should be acted on. It is driven in two stages: Observe on every poll and,
// if that returns true, Confirm after the confirmation delay.
type Debouncer struct {
	stable  int
	pending bool
}

// NewDebouncer creates a debouncer that has never committed a level, so the
// first observed value always produces a commit.
func NewDebouncer() *Debouncer {
	return &Debouncer{stable: level.Unset}
}

// Observe records a polled level. It returns true when the value differs
// from the committed level and the caller should wait and call Confirm.
func (d *Debouncer) Observe(v int) bool {
	d.pending = v != d.stable
	return d.pending
}

// Confirm re-checks the level after the confirmation delay. A value that has
// reverted to the committed level discards the pending change. Any other value
// is committed, including one that differs from the value Observe saw: the
// store moved away from the committed level and stayed away.
func (d *Debouncer) Confirm(v int) (Transition, bool) {
	if !d.pending {
		return Transition{}, false
	}
	d.pending = false

	if v == d.stable {
		return Transition{}, false
	}

	t := Transition{From: d.stable, To: v}
	d.stable = v
	return t, true
}

// Stable returns the last committed level, or level.Unset before the first
// commit.
func (d *Debouncer) Stable() int {
	return d.stable
}
