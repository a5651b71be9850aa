// Package command validates and applies inbound level-change requests from
// the web page, MQTT and the CLI. Malformed input is rejected here and never
// reaches the level store.
package command

import (
	"errors"
	"fmt"

	"github.com/sweeney/defcon/internal/level"
)

var (
	// ErrInvalidLevel is returned for anything other than a single digit 0-9.
	ErrInvalidLevel = errors.New("level must be a single digit 0-9")
	// ErrInvalidReason is returned for anything other than a single digit 0-7.
	ErrInvalidReason = errors.New("reason must be a single digit 0-7")
	// ErrInvalidTarget is returned when a command target is not a single digit.
	ErrInvalidTarget = errors.New("target must be a single digit")
)

// Store is the subset of the level store that requests mutate.
type Store interface {
	Level() int
	SetLevel(l int)
	SetReason(id int, asserted bool)
	Step(delta int) int
}

// ParseLevel parses a single digit level.
func ParseLevel(s string) (int, error) {
	d, ok := digit(s)
	if !ok {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidLevel)
	}
	return d, nil
}

// ParseReason parses a single digit reason id.
func ParseReason(s string) (int, error) {
	d, ok := digit(s)
	if !ok || d >= level.Reasons {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidReason)
	}
	return d, nil
}

// Truthy reports whether a reason value asserts the reason: any value
// starting with '1', 't' or 'y'. Everything else clears it.
func Truthy(v string) bool {
	if v == "" {
		return false
	}
	switch v[0] {
	case '1', 't', 'y':
		return true
	}
	return false
}

// ApplyQuery applies a single-character web query: a digit sets the level,
// '+' and '-' step it within [0,9]. Anything else is ignored. It reports
// whether the store was touched.
func ApplyQuery(s Store, q string) bool {
	if len(q) != 1 {
		return false
	}
	if d, ok := digit(q); ok {
		s.SetLevel(d)
		return true
	}
	switch q {
	case "+":
		s.Step(1)
		return true
	case "-":
		s.Step(-1)
		return true
	}
	return false
}

// Dispatch applies a command addressed to a digit target. With an empty
// value the target is an absolute level; otherwise it is a reason id and the
// value asserts or clears it.
func Dispatch(s Store, target, value string) error {
	d, ok := digit(target)
	if !ok {
		return fmt.Errorf("%q: %w", target, ErrInvalidTarget)
	}
	if value == "" {
		s.SetLevel(d)
		return nil
	}
	if d >= level.Reasons {
		return fmt.Errorf("%q: %w", target, ErrInvalidReason)
	}
	s.SetReason(d, Truthy(value))
	return nil
}

func digit(s string) (int, bool) {
	if len(s) != 1 || s[0] < '0' || s[0] > '9' {
		return 0, false
	}
	return int(s[0] - '0'), true
}
