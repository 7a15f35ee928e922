package correlator

import (
	"context"
	"sync"
	"time"

	"github.com/c360/iqrfgw/errors"
)

// fakeClock advances only when the poll loop sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// delivery is a payload that becomes readable at a given offset from the first Send.
type delivery struct {
	at   time.Duration
	data []byte
}

// scriptedTransport replays deliveries against a fake clock.
type scriptedTransport struct {
	clock   *fakeClock
	sendErr error
	recvErr error

	mu         sync.Mutex
	start      time.Time
	script     []delivery
	sent       [][]byte
	recvCalls  int
	reply      func(req []byte) []delivery
	pendingErr time.Duration
}

func (s *scriptedTransport) Name() string                  { return "scripted" }
func (s *scriptedTransport) Connect(context.Context) error { return nil }
func (s *scriptedTransport) Close() error                  { return nil }

func (s *scriptedTransport) Send(_ context.Context, data []byte) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start = s.clock.Now()
	s.sent = append(s.sent, data)
	if s.reply != nil {
		s.script = append(s.script, s.reply(data)...)
	}
	return nil
}

func (s *scriptedTransport) Receive(time.Duration) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recvCalls++

	elapsed := s.clock.Now().Sub(s.start)
	if s.recvErr != nil && elapsed >= s.pendingErr {
		return nil, false, s.recvErr
	}
	for i, d := range s.script {
		if d.at <= elapsed {
			s.script = append(s.script[:i], s.script[i+1:]...)
			return d.data, true, nil
		}
	}
	return nil, false, nil
}

func (s *scriptedTransport) remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.script)
}

func (s *scriptedTransport) receiveCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recvCalls
}

var errBusy = errors.WrapTransient(errors.ErrTransportBusy, "scripted", "Send", "enqueue payload")
