package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/iqrfgw/metric"
)

// Processor handles one work item on worker id.
type Processor[T any] func(ctx context.Context, id int, work T) error

// Pool processes work items of type T on a fixed set of workers
type Pool[T any] struct {
	workers   int
	queueSize int
	processor Processor[T]

	workChan chan T
	metrics  *poolMetrics
	wg       sync.WaitGroup
	stopping chan struct{}

	lifecycleMu sync.Mutex
	sendMu      sync.RWMutex
	started     bool
	stopped     bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	metricsRegistry *metric.MetricsRegistry
	metricsPrefix   string
}

type poolMetrics struct {
	queueDepth     prometheus.Gauge
	submitted      prometheus.Counter
	processed      prometheus.Counter
	failed         prometheus.Counter
	dropped        prometheus.Counter
	processingTime *prometheus.HistogramVec
}

// Option represents a configuration option for the worker pool
type Option[T any] func(*Pool[T])

// WithMetricsRegistry registers the pool's metrics under prefix
func WithMetricsRegistry[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(p *Pool[T]) {
		p.metricsRegistry = registry
		p.metricsPrefix = prefix
	}
}

// NewPool creates a pool. Zero workers or queue size select the defaults of 4 and 64.
func NewPool[T any](workers, queueSize int, processor Processor[T], opts ...Option[T]) (*Pool[T], error) {
	if processor == nil {
		return nil, ErrNilProcessor
	}
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	p := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		workChan:  make(chan T, queueSize),
		stopping:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.metricsRegistry != nil && p.metricsPrefix != "" {
		if err := p.initializeMetrics(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Pool[T]) initializeMetrics() error {
	prefix := p.metricsPrefix
	m := &poolMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_queue_depth",
			Help: "Current worker pool queue depth",
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_submitted_total",
			Help: "Total work items submitted",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_processed_total",
			Help: "Total work items processed",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_failed_total",
			Help: "Total work items that failed processing",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_dropped_total",
			Help: "Total work items rejected because the queue was full",
		}),
		processingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_processing_duration_seconds",
			Help:    "Time spent processing work items",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"status"}),
	}

	const service = "worker_pool"
	r := p.metricsRegistry
	for _, err := range []error{
		r.RegisterGauge(service, prefix+"_queue_depth", m.queueDepth),
		r.RegisterCounter(service, prefix+"_submitted_total", m.submitted),
		r.RegisterCounter(service, prefix+"_processed_total", m.processed),
		r.RegisterCounter(service, prefix+"_failed_total", m.failed),
		r.RegisterCounter(service, prefix+"_dropped_total", m.dropped),
		r.RegisterHistogramVec(service, prefix+"_processing_duration_seconds", m.processingTime),
	} {
		if err != nil {
			return fmt.Errorf("register %s pool metrics: %w", prefix, err)
		}
	}

	p.metrics = m
	return nil
}

// Submit queues work without blocking. It returns ErrQueueFull when the queue is at
// capacity.
func (p *Pool[T]) Submit(work T) error {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()

	if err := p.checkRunning(); err != nil {
		return err
	}

	select {
	case p.workChan <- work:
		p.recordSubmit()
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		return ErrQueueFull
	}
}

// SubmitWait queues work, blocking until there is room, the pool stops or ctx ends.
func (p *Pool[T]) SubmitWait(ctx context.Context, work T) error {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()

	if err := p.checkRunning(); err != nil {
		return err
	}

	select {
	case p.workChan <- work:
		p.recordSubmit()
		return nil
	case <-p.stopping:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool[T]) checkRunning() error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}
	return nil
}

func (p *Pool[T]) recordSubmit() {
	p.submitted.Add(1)
	if p.metrics != nil {
		p.metrics.submitted.Inc()
		p.metrics.queueDepth.Set(float64(len(p.workChan)))
	}
}

// Start launches the workers. They exit when ctx ends or the pool is stopped.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.started = true
	return nil
}

// Stop closes the queue and waits up to timeout for the workers to drain it. It is safe
// to call more than once.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if !p.started || p.stopped {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.stopping)
	p.lifecycleMu.Unlock()

	// senders hold sendMu while they may write to workChan
	p.sendMu.Lock()
	close(p.workChan)
	p.sendMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// ReleaseMetrics unregisters the pool's metrics so a later pool can reuse the prefix.
func (p *Pool[T]) ReleaseMetrics() {
	if p.metrics == nil {
		return
	}
	const service = "worker_pool"
	for _, name := range []string{
		"_queue_depth", "_submitted_total", "_processed_total",
		"_failed_total", "_dropped_total", "_processing_duration_seconds",
	} {
		p.metricsRegistry.Unregister(service, p.metricsPrefix+name)
	}
	p.metrics = nil
}

// Wait blocks until every worker has exited. Call it after Stop.
func (p *Pool[T]) Wait() {
	p.wg.Wait()
}

// Stats returns current pool statistics
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.workChan),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

// PoolStats represents worker pool statistics
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

func (p *Pool[T]) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.workChan:
			if !ok {
				return
			}
			p.process(ctx, id, work)
		}
	}
}

func (p *Pool[T]) process(ctx context.Context, id int, work T) {
	start := time.Now()
	err := p.processor(ctx, id, work)

	p.processed.Add(1)
	if err != nil {
		p.failed.Add(1)
	}

	m := p.metrics
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		m.failed.Inc()
	}
	m.processed.Inc()
	m.queueDepth.Set(float64(len(p.workChan)))
	m.processingTime.WithLabelValues(status).Observe(time.Since(start).Seconds())
}
