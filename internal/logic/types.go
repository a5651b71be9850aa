// Package logic contains the pure annunciator logic: level debouncing and the
// output sequence played when a level is committed.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Waits are expressed as plan steps and executed by the caller.
package logic

import (
	"fmt"
	"time"
)

// ChannelKind identifies a class of output.
type ChannelKind int

const (
	KindLight ChannelKind = iota
	KindBlinker
	KindBeeper
	KindClicker
	KindStatus
)

func (k ChannelKind) String() string {
	switch k {
	case KindLight:
		return "light"
	case KindBlinker:
		return "blinker"
	case KindBeeper:
		return "beeper"
	case KindClicker:
		return "clicker"
	case KindStatus:
		return "status"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Channel is a logical output. Index is only meaningful for lights, where
// light i shows level i+1.
type Channel struct {
	Kind  ChannelKind
	Index int
}

// Light returns the light channel with the given index.
func Light(i int) Channel { return Channel{Kind: KindLight, Index: i} }

var (
	Blinker = Channel{Kind: KindBlinker}
	Beeper  = Channel{Kind: KindBeeper}
	Clicker = Channel{Kind: KindClicker}
	Status  = Channel{Kind: KindStatus}
)

func (c Channel) String() string {
	if c.Kind == KindLight {
		return fmt.Sprintf("light%d", c.Index)
	}
	return c.Kind.String()
}

// Color is an RGB value for LED strip outputs.
type Color struct {
	R, G, B uint8
}

// Thresholds are the configured level cutoffs. The clicker and blinker are
// active while level < Blink; beeps are only sounded while level < Beep.
type Thresholds struct {
	Blink int
	Beep  int
}

// Timing holds the durations used by the sequencer and blinker.
type Timing struct {
	Poll     time.Duration
	Confirm  time.Duration
	Settle   time.Duration
	BeepOn   time.Duration
	BeepOff  time.Duration
	Hold     time.Duration
	BlinkOn  time.Duration
	BlinkOff time.Duration
}

// DefaultTiming returns the stock annunciator timing.
func DefaultTiming() Timing {
	return Timing{
		Poll:     10 * time.Millisecond,
		Confirm:  100 * time.Millisecond,
		Settle:   200 * time.Millisecond,
		BeepOn:   250 * time.Millisecond,
		BeepOff:  250 * time.Millisecond,
		Hold:     time.Second,
		BlinkOn:  500 * time.Millisecond,
		BlinkOff: 500 * time.Millisecond,
	}
}

// Transition is a committed level change.
type Transition struct {
	From int
	To   int
}

// Counts tracks sequencer activity since startup.
type Counts struct {
	Commits   int
	Discarded int
	Beeps     int
}
