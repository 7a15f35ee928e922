// Package worker provides a fixed-size generic worker pool.
//
// Each worker is identified by an index in [0, workers) that is passed to the processor,
// so callers can give every worker resources of its own, such as a client bound to a
// dedicated transport:
//
//	clients := make([]*correlator.Client, n)
//	pool, err := worker.NewPool(n, 64, func(ctx context.Context, id int, job Job) error {
//	    res := clients[id].Request(ctx, job.Command, job.Payload)
//	    return res.AsError()
//	})
//
// Submit never blocks and reports ErrQueueFull when the queue is at capacity. SubmitWait
// blocks until there is room or the context ends. Stop closes the queue, lets workers
// drain it and waits up to the given timeout.
//
// Statistics are always tracked. Prometheus metrics are registered when the pool is
// created WithMetricsRegistry:
//
//	<prefix>_queue_depth, <prefix>_submitted_total, <prefix>_processed_total,
//	<prefix>_failed_total, <prefix>_dropped_total,
//	<prefix>_processing_duration_seconds{status}
package worker
