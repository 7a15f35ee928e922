package correlator

import "time"

// Clock is the time source of the poll loop. Implementations must report monotonic time.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

// SystemClock returns the process clock. time.Now carries a monotonic reading, so deadlines
// computed from it are immune to wall-clock steps.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
