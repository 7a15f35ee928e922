package correlator

import (
	"fmt"
	"time"

	"github.com/c360/iqrfgw/errors"
)

// Reference timing of the daemon examples
const (
	DefaultTimeout      = 1000 * time.Millisecond
	DefaultPollInterval = 10 * time.Millisecond
)

// Governor bounds the wait for a response.
type Governor struct {
	Timeout      time.Duration
	PollInterval time.Duration
	clock        Clock
}

// NewGovernor creates a governor. Zero values select the defaults.
func NewGovernor(timeout, pollInterval time.Duration, clock Clock) (Governor, error) {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if pollInterval == 0 {
		pollInterval = DefaultPollInterval
	}
	if clock == nil {
		clock = SystemClock()
	}

	g := Governor{Timeout: timeout, PollInterval: pollInterval, clock: clock}
	if err := g.Validate(); err != nil {
		return Governor{}, err
	}
	return g, nil
}

// Validate checks the timing parameters.
func (g Governor) Validate() error {
	switch {
	case g.Timeout <= 0:
		return errors.WrapInvalid(fmt.Errorf("%w: timeout must be positive, got %s", errors.ErrInvalidConfig, g.Timeout),
			"Governor", "Validate", "timeout check")
	case g.PollInterval <= 0:
		return errors.WrapInvalid(fmt.Errorf("%w: poll interval must be positive, got %s", errors.ErrInvalidConfig, g.PollInterval),
			"Governor", "Validate", "poll interval check")
	case g.PollInterval > g.Timeout:
		return errors.WrapInvalid(fmt.Errorf("%w: poll interval %s exceeds timeout %s", errors.ErrInvalidConfig, g.PollInterval, g.Timeout),
			"Governor", "Validate", "poll interval check")
	}
	return nil
}

// Now returns the governor's current time.
func (g Governor) Now() time.Time {
	return g.clock.Now()
}

// Deadline returns the absolute deadline for a request issued now.
func (g Governor) Deadline() time.Time {
	return g.clock.Now().Add(g.Timeout)
}

// Remaining returns the budget left before deadline, never negative.
func (g Governor) Remaining(deadline time.Time) time.Duration {
	if d := deadline.Sub(g.clock.Now()); d > 0 {
		return d
	}
	return 0
}

// Expired reports whether deadline has been reached.
func (g Governor) Expired(deadline time.Time) bool {
	return !g.clock.Now().Before(deadline)
}

// NextWait returns how long to sleep before the next poll: the poll interval, cut short
// so the loop wakes exactly at the deadline.
func (g Governor) NextWait(deadline time.Time) time.Duration {
	return min(g.PollInterval, g.Remaining(deadline))
}

// Since returns the time elapsed since start on the governor's clock.
func (g Governor) Since(start time.Time) time.Duration {
	return g.clock.Now().Sub(start)
}

func (g Governor) after(d time.Duration) <-chan time.Time {
	return g.clock.After(d)
}
