//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/defcon/internal/logic"
)

// RealDriver drives outputs on actual hardware using the Linux GPIO character device.
type RealDriver struct {
	chip  *gpiocdev.Chip
	lines map[logic.Channel]*gpiocdev.Line
}

// NewRealDriver requests every assigned line as an output, initially inactive.
func NewRealDriver(chipName string, a Assignment) (*RealDriver, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	d := &RealDriver{
		chip:  chip,
		lines: make(map[logic.Channel]*gpiocdev.Line, len(a)),
	}
	for _, ch := range a.Channels() {
		pin := a[ch]
		opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
		if pin.ActiveLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		line, err := chip.RequestLine(pin.Line, opts...)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("request %s line %d: %w", ch, pin.Line, err)
		}
		d.lines[ch] = line
	}
	return d, nil
}

// Set drives the channel's line active (on) or inactive (off).
func (d *RealDriver) Set(ch logic.Channel, on bool) error {
	line, ok := d.lines[ch]
	if !ok {
		return nil
	}
	v := 0
	if on {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("set %s: %w", ch, err)
	}
	return nil
}

// Close turns every output off and returns the lines to inputs with
// pull-down, matching the Pi boot defaults, before releasing them.
func (d *RealDriver) Close() error {
	var errs []error

	for ch, line := range d.lines {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", ch, err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s: %w", ch, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", ch, err))
		}
	}
	d.lines = nil

	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		d.chip = nil
	}

	return errors.Join(errs...)
}
