// Package gpio drives the annunciator outputs with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation records commands for tests.
package gpio

import (
	"sort"

	"github.com/sweeney/defcon/internal/logic"
)

// Driver switches logical output channels.
// Channels with no assigned line are accepted and ignored.
type Driver interface {
	Set(ch logic.Channel, on bool) error

	// Close drives outputs low and releases resources.
	Close() error
}

// LEDSetter is implemented by drivers that also control an addressable LED
// strip.
type LEDSetter interface {
	SetLED(index int, brightness uint8, c logic.Color) error
}

// Pin is a GPIO line offset on the chip.
type Pin struct {
	Line      int  `yaml:"line"`
	ActiveLow bool `yaml:"active_low,omitempty"`
}

// Assignment maps logical channels to lines. It is built once at startup.
type Assignment map[logic.Channel]Pin

// Lights returns the number of consecutive light channels assigned,
// starting at light 0.
func (a Assignment) Lights() int {
	n := 0
	for {
		if _, ok := a[logic.Light(n)]; !ok {
			return n
		}
		n++
	}
}

// Has reports whether ch has a line.
func (a Assignment) Has(ch logic.Channel) bool {
	_, ok := a[ch]
	return ok
}

// Channels returns the assigned channels in a stable order.
func (a Assignment) Channels() []logic.Channel {
	out := make([]logic.Channel, 0, len(a))
	for ch := range a {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Index < out[j].Index
	})
	return out
}

// Default line offsets (BCM numbering).
const (
	DefaultChip    = "gpiochip0"
	DefaultBlinker = 21
	DefaultBeeper  = 20
	DefaultClicker = 16
	DefaultStatus  = 12
)

// DefaultLights are the light lines for levels 1..5.
var DefaultLights = []int{5, 6, 13, 19, 26}
