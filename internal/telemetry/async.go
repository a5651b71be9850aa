package telemetry

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// DefaultQueueSize is the number of levels an Async sink holds before it
// starts dropping.
const DefaultQueueSize = 16

var (
	// ErrQueueFull is returned when an Async sink drops a level.
	ErrQueueFull = errors.New("telemetry queue full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("telemetry sink closed")
)

// Async delivers levels to a slow emitter from its own goroutine so the
// caller never waits on the network. Levels are dropped when the queue is full.
type Async struct {
	next  Emitter
	log   *zap.SugaredLogger
	queue chan int
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewAsync starts the delivery goroutine. A size of 0 uses DefaultQueueSize.
func NewAsync(next Emitter, size int, log *zap.SugaredLogger) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	a := &Async{
		next:  next,
		log:   log,
		queue: make(chan int, size),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for l := range a.queue {
		if err := a.next.PublishLevel(l); err != nil {
			a.log.Warnw("telemetry delivery failed", "level", l, "error", err)
		}
	}
}

// PublishLevel queues the level and returns immediately.
func (a *Async) PublishLevel(level int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- level:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting levels and waits for queued ones to be delivered.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
	return nil
}
