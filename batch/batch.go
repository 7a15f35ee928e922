// Package batch runs many gateway requests concurrently. Every worker owns a client bound
// to a transport of its own, so requests never share a correlator. Results are reported
// in submission order with aggregate latency statistics.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/iqrfgw/correlator"
	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/metric"
	"github.com/c360/iqrfgw/pkg/worker"
)

// Job is one request to run.
type Job struct {
	// Label identifies the job in reports, e.g. the node address.
	Label   string
	Command string
	Payload map[string]any
	Options []correlator.RequestOption
}

// Item is the outcome of one job.
type Item struct {
	Index  int
	Job    Job
	Worker int
	Result correlator.Result

	// Attempts counts the sends made for the job, resends included.
	Attempts int
}

// Report is the outcome of a run.
type Report struct {
	Items []Item
	Stats Stats
}

// ClientFactory creates the connected client used by worker id for the whole run.
type ClientFactory func(ctx context.Context, id int) (*correlator.Client, error)

// Runner runs jobs on a worker pool.
type Runner struct {
	factory   ClientFactory
	workers   int
	queueSize int
	logger    *slog.Logger
	registry  *metric.MetricsRegistry
	policy    *errors.RetryConfig
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers sets the number of concurrent clients. Defaults to 1.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

// WithQueueSize sets the pool queue size. Defaults to twice the worker count.
func WithQueueSize(n int) Option {
	return func(r *Runner) { r.queueSize = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithMetricsRegistry exposes the pool metrics under the iqrfgw_batch prefix while a run
// is in progress.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(r *Runner) { r.registry = registry }
}

// WithRetry resends jobs whose result policy deems retryable (by default busy and timed
// out requests). Without it every job is sent exactly once.
func WithRetry(policy errors.RetryConfig) Option {
	return func(r *Runner) { r.policy = &policy }
}

// NewRunner creates a Runner.
func NewRunner(factory ClientFactory, opts ...Option) (*Runner, error) {
	if factory == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "batch", "NewRunner", "factory check")
	}

	r := &Runner{factory: factory, workers: 1}
	for _, opt := range opts {
		opt(r)
	}
	if r.policy != nil && r.policy.MaxRetries < 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: retries must not be negative, got %d", errors.ErrInvalidConfig, r.policy.MaxRetries),
			"batch", "NewRunner", "retry check")
	}
	if r.workers <= 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: workers must be positive, got %d", errors.ErrInvalidConfig, r.workers),
			"batch", "NewRunner", "workers check")
	}
	if r.queueSize <= 0 {
		r.queueSize = 2 * r.workers
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "batch")
	return r, nil
}

// Run executes jobs and waits for all of them. Request failures are part of the report;
// the returned error is only set when the run itself could not proceed (a client could
// not be created, or ctx ended before every job was queued).
func (r *Runner) Run(ctx context.Context, jobs []Job) (Report, error) {
	if len(jobs) == 0 {
		return Report{}, nil
	}

	workers := min(r.workers, len(jobs))
	clients, err := r.openClients(ctx, workers)
	if err != nil {
		return Report{}, err
	}
	defer closeClients(clients, r.logger)

	// each index is written by exactly one worker
	items := make([]Item, len(jobs))
	ran := make([]bool, len(jobs))
	process := func(ctx context.Context, id int, idx int) error {
		job := jobs[idx]
		res, attempts := Attempt(ctx, clients[id], job, r.policy, r.logger)
		items[idx] = Item{Index: idx, Job: job, Worker: id, Result: res, Attempts: attempts}
		ran[idx] = true
		return res.AsError()
	}

	var opts []worker.Option[int]
	if r.registry != nil {
		opts = append(opts, worker.WithMetricsRegistry[int](r.registry, "iqrfgw_batch"))
	}
	pool, err := worker.NewPool[int](workers, r.queueSize, process, opts...)
	if err != nil {
		return Report{}, errors.Wrap(err, "batch", "Run", "pool creation")
	}
	defer pool.ReleaseMetrics()

	start := time.Now()
	if err := pool.Start(ctx); err != nil {
		return Report{}, errors.Wrap(err, "batch", "Run", "pool start")
	}

	var submitErr error
	for idx := range jobs {
		if submitErr = pool.SubmitWait(ctx, idx); submitErr != nil {
			break
		}
	}
	if err := pool.Stop(time.Minute); err != nil {
		r.logger.Warn("Workers still busy after stop", "error", err)
	}
	pool.Wait()

	report := Report{Items: items}
	if submitErr != nil {
		report.Items = report.Items[:0:0]
		for idx, ok := range ran {
			if ok {
				report.Items = append(report.Items, items[idx])
			}
		}
	}
	report.Stats = Summarize(report.Items, time.Since(start))

	r.logger.Info("Batch finished",
		"sent", report.Stats.Sent, "ok", report.Stats.OK, "failed", report.Stats.Failed,
		"retries", report.Stats.Retries,
		"elapsed", report.Stats.Elapsed)
	return report, errors.Wrap(submitErr, "batch", "Run", "submit job")
}

func (r *Runner) openClients(ctx context.Context, n int) ([]*correlator.Client, error) {
	clients := make([]*correlator.Client, 0, n)
	for id := 0; id < n; id++ {
		c, err := r.factory(ctx, id)
		if err != nil {
			closeClients(clients, r.logger)
			return nil, errors.Wrap(err, "batch", "Run", fmt.Sprintf("client %d creation", id))
		}
		clients = append(clients, c)
	}
	return clients, nil
}

func closeClients(clients []*correlator.Client, logger *slog.Logger) {
	for _, c := range clients {
		if err := c.Close(); err != nil {
			logger.Warn("Client close failed", "error", err)
		}
	}
}

// Repeat returns n copies of job labelled by iteration.
func Repeat(job Job, n int) []Job {
	jobs := make([]Job, n)
	for i := range jobs {
		jobs[i] = job
		jobs[i].Label = fmt.Sprintf("%d", i+1)
	}
	return jobs
}

// ForNodes builds one job per node address, count times over, in round-robin order.
func ForNodes(nodes []uint16, count int, build func(nadr uint16) Job) []Job {
	jobs := make([]Job, 0, len(nodes)*count)
	for i := 0; i < count; i++ {
		for _, nadr := range nodes {
			job := build(nadr)
			if job.Label == "" {
				job.Label = fmt.Sprintf("node %d", nadr)
			}
			jobs = append(jobs, job)
		}
	}
	return jobs
}
