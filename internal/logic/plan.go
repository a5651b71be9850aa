package logic

import (
	"fmt"
	"time"

	"github.com/sweeney/defcon/internal/level"
)

// StepKind is the type of a plan step.
type StepKind int

const (
	// StepEmit publishes the new level to telemetry.
	StepEmit StepKind = iota
	// StepSet switches a channel on or off.
	StepSet
	// StepWait blocks for Duration.
	StepWait
	// StepLED sets an LED strip pixel.
	StepLED
)

// Step is one action in a commit sequence.
type Step struct {
	Kind       StepKind
	Level      int
	Channel    Channel
	On         bool
	Duration   time.Duration
	LED        int
	Brightness uint8
	Color      Color
}

func (s Step) String() string {
	switch s.Kind {
	case StepEmit:
		return fmt.Sprintf("emit(%d)", s.Level)
	case StepSet:
		if s.On {
			return s.Channel.String() + "=on"
		}
		return s.Channel.String() + "=off"
	case StepWait:
		return "wait(" + s.Duration.String() + ")"
	case StepLED:
		return fmt.Sprintf("led%d(%d,#%02x%02x%02x)", s.LED, s.Brightness, s.Color.R, s.Color.G, s.Color.B)
	default:
		return "unknown"
	}
}

// PlanConfig describes the outputs available to a plan.
type PlanConfig struct {
	// Lights is the number of light channels; light i shows level i+1.
	Lights     int
	Thresholds Thresholds
	Timing     Timing
	// LED adds a status pixel step for drivers with an LED strip.
	LED bool
}

// levelColors follow the web page palette.
var levelColors = map[int]Color{
	0: {R: 255},
	1: {R: 255, G: 255, B: 255},
	2: {R: 255},
	3: {R: 255, G: 255},
	4: {G: 255},
	5: {B: 255},
}

// LevelColor returns the status pixel colour and brightness for a level.
// Levels without a light are dark.
func LevelColor(l int) (Color, uint8) {
	c, ok := levelColors[l]
	if !ok {
		return Color{}, 0
	}
	return c, 255
}

// BeepCount returns the number of beeps for a committed change.
// At or above the beep threshold the change is silent. Otherwise an
// improvement (higher number) beeps once, a worsening beeps twice and
// reaching level 0 beeps three times.
func BeepCount(prev, next, threshold int) int {
	switch {
	case next >= threshold:
		return 0
	case next > prev:
		return 1
	case next != level.Max:
		return 2
	default:
		return 3
	}
}

// ClickerOn reports whether the clicker relay is held on at a level.
func ClickerOn(l int, th Thresholds) bool {
	return l < th.Blink
}

// Plan returns the output sequence for committing next after prev.
// The relative order of steps is the externally observable contract.
func Plan(prev, next int, cfg PlanConfig) []Step {
	var steps []Step
	set := func(ch Channel, on bool) {
		steps = append(steps, Step{Kind: StepSet, Channel: ch, On: on})
	}
	wait := func(d time.Duration) {
		steps = append(steps, Step{Kind: StepWait, Duration: d})
	}

	steps = append(steps, Step{Kind: StepEmit, Level: next})

	for i := 0; i < cfg.Lights; i++ {
		set(Light(i), false)
	}

	click := ClickerOn(next, cfg.Thresholds)
	if click {
		set(Clicker, true)
	}

	switch {
	case next == level.Max:
		state := click
		for i := 0; i < cfg.Lights; i++ {
			wait(cfg.Timing.Settle)
			if click {
				state = !state
				set(Clicker, state)
			}
			set(Light(i), true)
		}
	case next >= 1 && next <= cfg.Lights:
		wait(cfg.Timing.Settle)
		set(Light(next-1), true)
	}

	set(Clicker, click)
	set(Status, next != level.Off)

	if cfg.LED {
		c, b := LevelColor(next)
		steps = append(steps, Step{Kind: StepLED, LED: 0, Brightness: b, Color: c})
	}

	for i := BeepCount(prev, next, cfg.Thresholds.Beep); i > 0; i-- {
		set(Beeper, true)
		wait(cfg.Timing.BeepOn)
		set(Beeper, false)
		wait(cfg.Timing.BeepOff)
	}

	wait(cfg.Timing.Hold)
	return steps
}

// Beeps counts the beeps in a plan.
func Beeps(steps []Step) int {
	n := 0
	for _, s := range steps {
		if s.Kind == StepSet && s.Channel == Beeper && s.On {
			n++
		}
	}
	return n
}
