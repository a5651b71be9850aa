package annunciator

import "time"

// Clock abstracts time so the loops can run against virtual time in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks the calling goroutine only.
	Sleep(d time.Duration)
}

type realClock struct{}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
