//go:build linux

package posixmq

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mqAttr mirrors struct mq_attr, whose fields are C longs.
type mqAttr struct {
	Flags    int
	MaxMsg   int
	MsgSize  int
	CurMsgs  int
	reserved [4]int
}

// mqueue is an open message queue descriptor.
type mqueue struct {
	fd      int
	msgSize int
}

func openQueue(name string, flags int, maxMsg, msgSize int) (*mqueue, error) {
	p, err := unix.BytePtrFromString(queueName(name))
	if err != nil {
		return nil, err
	}

	var attrPtr uintptr
	attr := mqAttr{MaxMsg: maxMsg, MsgSize: msgSize}
	if flags&unix.O_CREAT != 0 {
		attrPtr = uintptr(unsafe.Pointer(&attr))
	}

	fd, _, errno := unix.Syscall6(unix.SYS_MQ_OPEN,
		uintptr(unsafe.Pointer(p)), uintptr(flags|unix.O_CLOEXEC), 0o660, attrPtr, 0, 0)
	if errno != 0 {
		return nil, errno
	}

	q := &mqueue{fd: int(fd)}
	cur, err := q.attr()
	if err != nil {
		_ = unix.Close(q.fd)
		return nil, err
	}
	q.msgSize = cur.MsgSize
	return q, nil
}

func (q *mqueue) attr() (mqAttr, error) {
	var cur mqAttr
	_, _, errno := unix.Syscall(unix.SYS_MQ_GETSETATTR, uintptr(q.fd), 0, uintptr(unsafe.Pointer(&cur)))
	if errno != 0 {
		return cur, errno
	}
	return cur, nil
}

// send enqueues without blocking; a full queue returns EAGAIN.
func (q *mqueue) send(data []byte) error {
	var ptr uintptr
	if len(data) > 0 {
		ptr = uintptr(unsafe.Pointer(&data[0]))
	}
	_, _, errno := unix.Syscall6(unix.SYS_MQ_TIMEDSEND, uintptr(q.fd), ptr, uintptr(len(data)), 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// receive dequeues one message, waiting up to wait. An empty queue returns
// (nil, false, nil) once the wait is over.
func (q *mqueue) receive(wait time.Duration) ([]byte, bool, error) {
	buf := make([]byte, q.msgSize)
	ts := unix.NsecToTimespec(time.Now().Add(wait).UnixNano())

	for {
		n, _, errno := unix.Syscall6(unix.SYS_MQ_TIMEDRECEIVE, uintptr(q.fd),
			uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)), 0, uintptr(unsafe.Pointer(&ts)), 0)
		switch errno {
		case 0:
			return buf[:n], true, nil
		case unix.EINTR:
			continue
		case unix.ETIMEDOUT, unix.EAGAIN:
			return nil, false, nil
		default:
			return nil, false, errno
		}
	}
}

// limit returns the maximum message size of the queue.
func (q *mqueue) limit() int {
	return q.msgSize
}

func (q *mqueue) close() error {
	return unix.Close(q.fd)
}

func unlinkQueue(name string) error {
	p, err := unix.BytePtrFromString(queueName(name))
	if err != nil {
		return err
	}
	_, _, errno := unix.Syscall(unix.SYS_MQ_UNLINK, uintptr(unsafe.Pointer(p)), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func isBusy(err error) bool {
	return err == unix.EAGAIN
}

func isUnsupported(err error) bool {
	return err == unix.ENOSYS || err == unix.EACCES || err == unix.EPERM
}

const (
	flagsSend    = unix.O_WRONLY | unix.O_NONBLOCK
	flagsReceive = unix.O_RDONLY
	flagCreate   = unix.O_CREAT
)
