// Package annunciator runs the long-lived output loops: the level sequencer,
// which debounces level changes and plays the commit sequence, and the
// blinker, which flashes the secondary indicator while the level is below
// the blink threshold.
package annunciator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/defcon/internal/gpio"
	"github.com/sweeney/defcon/internal/logic"
	"github.com/sweeney/defcon/internal/telemetry"
)

// LevelReader is the read side of the level store.
type LevelReader interface {
	Level() int
}

// Recorder receives sequencer activity, typically the status tracker.
type Recorder interface {
	RecordCommit(t logic.Transition, beeps int, at time.Time)
	RecordDiscard()
}

// SequencerConfig wires a Sequencer.
type SequencerConfig struct {
	Store      LevelReader
	Driver     gpio.Driver
	Telemetry  telemetry.Emitter
	Recorder   Recorder
	Clock      Clock
	Lights     int
	Thresholds logic.Thresholds
	Timing     logic.Timing
	Log        *zap.SugaredLogger
}

// Sequencer is the only writer of lights, clicker, beeper and status outputs.
type Sequencer struct {
	store    LevelReader
	driver   gpio.Driver
	leds     gpio.LEDSetter
	emit     telemetry.Emitter
	recorder Recorder
	clock    Clock
	plan     logic.PlanConfig
	timing   logic.Timing
	log      *zap.SugaredLogger

	debouncer *logic.Debouncer
}

// NewSequencer creates a sequencer that has not committed any level yet.
func NewSequencer(cfg SequencerConfig) *Sequencer {
	s := &Sequencer{
		store:    cfg.Store,
		driver:   cfg.Driver,
		emit:     cfg.Telemetry,
		recorder: cfg.Recorder,
		clock:    cfg.Clock,
		timing:   cfg.Timing,
		log:      cfg.Log,
		plan: logic.PlanConfig{
			Lights:     cfg.Lights,
			Thresholds: cfg.Thresholds,
			Timing:     cfg.Timing,
		},
		debouncer: logic.NewDebouncer(),
	}
	if leds, ok := cfg.Driver.(gpio.LEDSetter); ok {
		s.leds = leds
		s.plan.LED = true
	}
	if s.clock == nil {
		s.clock = RealClock()
	}
	if s.emit == nil {
		s.emit = telemetry.Fanout(nil)
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	return s
}

// Run polls the store until ctx is cancelled. A commit sequence that has
// started always runs to completion.
func (s *Sequencer) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		s.clock.Sleep(s.timing.Poll)
		if !s.debouncer.Observe(s.store.Level()) {
			continue
		}

		s.clock.Sleep(s.timing.Confirm)
		tr, ok := s.debouncer.Confirm(s.store.Level())
		if !ok {
			s.log.Debugw("level change debounced", "level", s.debouncer.Stable())
			if s.recorder != nil {
				s.recorder.RecordDiscard()
			}
			continue
		}
		s.Commit(tr)
	}
	return nil
}

// Commit plays the output sequence for a transition.
func (s *Sequencer) Commit(tr logic.Transition) {
	steps := logic.Plan(tr.From, tr.To, s.plan)
	beeps := logic.Beeps(steps)
	s.log.Infow("level committed", "from", tr.From, "to", tr.To, "beeps", beeps)

	if s.recorder != nil {
		s.recorder.RecordCommit(tr, beeps, s.clock.Now())
	}

	for _, step := range steps {
		switch step.Kind {
		case logic.StepEmit:
			if err := s.emit.PublishLevel(step.Level); err != nil {
				s.log.Warnw("telemetry failed", "level", step.Level, "error", err)
			}
		case logic.StepSet:
			if err := s.driver.Set(step.Channel, step.On); err != nil {
				s.log.Warnw("output failed", "channel", step.Channel.String(), "on", step.On, "error", err)
			}
		case logic.StepLED:
			if err := s.leds.SetLED(step.LED, step.Brightness, step.Color); err != nil {
				s.log.Warnw("led failed", "index", step.LED, "error", err)
			}
		case logic.StepWait:
			s.clock.Sleep(step.Duration)
		}
	}
}
