package gpio

import (
	"sync"

	"github.com/sweeney/defcon/internal/logic"
)

// Op is a recorded Set call.
type Op struct {
	Channel logic.Channel
	On      bool
}

// LEDOp is a recorded SetLED call.
type LEDOp struct {
	Index      int
	Brightness uint8
	Color      logic.Color
}

// FakeDriver is a test double that records every command.
// It is safe for concurrent use: the sequencer and blinker share one driver.
type FakeDriver struct {
	mu sync.Mutex

	ops   []Op
	leds  []LEDOp
	state map[logic.Channel]bool

	// SetError, if set, is returned by Set after the op is recorded.
	SetError error

	closed bool
}

// NewFakeDriver creates an empty FakeDriver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{state: make(map[logic.Channel]bool)}
}

// Set records the command.
func (f *FakeDriver) Set(ch logic.Channel, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, Op{Channel: ch, On: on})
	f.state[ch] = on
	return f.SetError
}

// SetLED records the pixel command.
func (f *FakeDriver) SetLED(index int, brightness uint8, c logic.Color) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leds = append(f.leds, LEDOp{Index: index, Brightness: brightness, Color: c})
	return nil
}

// Close marks the driver as closed.
func (f *FakeDriver) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Ops returns a copy of all recorded Set calls.
func (f *FakeDriver) Ops() []Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Op(nil), f.ops...)
}

// OpsFor returns recorded Set calls for one channel kind.
func (f *FakeDriver) OpsFor(kind logic.ChannelKind) []Op {
	var out []Op
	for _, op := range f.Ops() {
		if op.Channel.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// LEDs returns a copy of all recorded SetLED calls.
func (f *FakeDriver) LEDs() []LEDOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]LEDOp(nil), f.leds...)
}

// State returns the last value set on ch.
func (f *FakeDriver) State(ch logic.Channel) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state[ch]
}

// Closed reports whether Close was called.
func (f *FakeDriver) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears recorded commands.
func (f *FakeDriver) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = nil
	f.leds = nil
	f.state = make(map[logic.Channel]bool)
	f.closed = false
	f.SetError = nil
}
