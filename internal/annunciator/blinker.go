package annunciator

import (
	"context"

	"go.uber.org/zap"

	"github.com/sweeney/defcon/internal/gpio"
	"github.com/sweeney/defcon/internal/logic"
)

// Blinker flashes the blinker channel while the level is below the blink
// threshold. It reads the store afresh every cycle and does not debounce.
type Blinker struct {
	store     LevelReader
	driver    gpio.Driver
	clock     Clock
	threshold int
	timing    logic.Timing
	log       *zap.SugaredLogger
}

// NewBlinker creates a blinker. It is the only writer of the blinker channel.
func NewBlinker(store LevelReader, driver gpio.Driver, clock Clock, th logic.Thresholds, timing logic.Timing, log *zap.SugaredLogger) *Blinker {
	if clock == nil {
		clock = RealClock()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Blinker{
		store:     store,
		driver:    driver,
		clock:     clock,
		threshold: th.Blink,
		timing:    timing,
		log:       log,
	}
}

// Run blinks until ctx is cancelled, leaving the blinker off.
func (b *Blinker) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		b.set(false)
		b.clock.Sleep(b.timing.BlinkOff)
		if b.store.Level() < b.threshold {
			b.set(true)
		}
		b.clock.Sleep(b.timing.BlinkOn)
	}
	b.set(false)
	return nil
}

func (b *Blinker) set(on bool) {
	if err := b.driver.Set(logic.Blinker, on); err != nil {
		b.log.Warnw("blinker output failed", "on", on, "error", err)
	}
}
