// Package telemetry fans committed level changes out to reporting sinks.
// Delivery is fire-and-forget: network sinks are wrapped in Async so the
// caller never blocks, and failures are logged, never retried.
package telemetry

import (
	"errors"
	"fmt"
)

// Emitter reports a committed level.
type Emitter interface {
	PublishLevel(level int) error
}

// Fanout delivers to every emitter and joins their errors.
type Fanout []Emitter

// PublishLevel calls every emitter even when earlier ones fail.
func (f Fanout) PublishLevel(level int) error {
	var errs []error
	for i, e := range f {
		if err := e.PublishLevel(level); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
