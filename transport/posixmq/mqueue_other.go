//go:build !linux

package posixmq

import (
	stderrors "errors"
	"time"
)

var errUnsupported = stderrors.New("POSIX message queues are only supported on linux")

type mqueue struct{}

func openQueue(string, int, int, int) (*mqueue, error) { return nil, errUnsupported }

func (*mqueue) send([]byte) error                           { return errUnsupported }
func (*mqueue) receive(time.Duration) ([]byte, bool, error) { return nil, false, errUnsupported }
func (*mqueue) limit() int                                  { return 0 }
func (*mqueue) close() error                                { return nil }

func unlinkQueue(string) error { return errUnsupported }

func isBusy(error) bool { return false }

func isUnsupported(err error) bool { return stderrors.Is(err, errUnsupported) }

const (
	flagsSend    = 0
	flagsReceive = 0
	flagCreate   = 0
)
