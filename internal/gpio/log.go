package gpio

import (
	"go.uber.org/zap"

	"github.com/sweeney/defcon/internal/logic"
)

// LogDriver logs commands instead of touching hardware. Used for --dry-run
// and on machines without a GPIO chip.
type LogDriver struct {
	assign Assignment
	log    *zap.SugaredLogger
}

// NewLogDriver creates a driver that logs commands for assigned channels.
func NewLogDriver(a Assignment, log *zap.SugaredLogger) *LogDriver {
	return &LogDriver{assign: a, log: log}
}

// Set logs the command at debug level.
func (d *LogDriver) Set(ch logic.Channel, on bool) error {
	pin, ok := d.assign[ch]
	if !ok {
		return nil
	}
	d.log.Debugw("set output", "channel", ch.String(), "line", pin.Line, "on", on)
	return nil
}

// SetLED logs the pixel command at debug level.
func (d *LogDriver) SetLED(index int, brightness uint8, c logic.Color) error {
	d.log.Debugw("set led", "index", index, "brightness", brightness, "r", c.R, "g", c.G, "b", c.B)
	return nil
}

// Close is a no-op.
func (d *LogDriver) Close() error {
	return nil
}
