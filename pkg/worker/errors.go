package worker

import "errors"

// Lifecycle errors returned by Submit, SubmitWait, Start and Stop.
var (
	ErrPoolNotStarted     = errors.New("worker: pool not started")
	ErrPoolStopped        = errors.New("worker: pool stopped")
	ErrPoolAlreadyStarted = errors.New("worker: pool already started")
	ErrStopTimeout        = errors.New("worker: workers did not stop in time")
)

// ErrQueueFull is returned by Submit when every queue slot is taken. The batch runner
// uses SubmitWait instead, so it only surfaces to callers that opt out of backpressure.
var ErrQueueFull = errors.New("worker: queue full")

// ErrNilProcessor rejects a pool built without a processor.
var ErrNilProcessor = errors.New("worker: nil processor")
