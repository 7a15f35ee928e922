package batch

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/iqrfgw/correlator"
	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/message"
	"github.com/c360/iqrfgw/metric"
	"github.com/c360/iqrfgw/transport/loopback"
)

// daemon answers current-shape requests; nodes listed in silent never answer and nodes
// in failing answer with an error status.
func daemon(silent, failing map[float64]bool) loopback.Responder {
	return func(req []byte) [][]byte {
		var w map[string]any
		if json.Unmarshal(req, &w) != nil {
			return nil
		}
		data := w["data"].(map[string]any)
		reqBody, _ := data["req"].(map[string]any)
		nadr, _ := reqBody["nAdr"].(float64)
		if silent[nadr] {
			return nil
		}

		status := 0
		if failing[nadr] {
			status = 8
		}
		rsp, _ := json.Marshal(map[string]any{
			"mType": w["mType"],
			"data": map[string]any{
				"msgId":  data["msgId"],
				"rsp":    map[string]any{"nAdr": nadr},
				"status": status,
			},
		})
		return [][]byte{rsp}
	}
}

func loopbackFactory(t *testing.T, responder loopback.Responder, opts ...correlator.Option) (ClientFactory, *sync.Map) {
	t.Helper()
	codec, err := message.NewCodec(message.VariantCurrent)
	require.NoError(t, err)

	transports := &sync.Map{}
	return func(ctx context.Context, id int) (*correlator.Client, error) {
		tr, err := loopback.New(loopback.DefaultConfig(), loopback.WithResponder(responder))
		if err != nil {
			return nil, err
		}
		if err := tr.Connect(ctx); err != nil {
			return nil, err
		}
		transports.Store(id, tr)
		return correlator.NewClient(tr, codec, opts...)
	}, transports
}

func ledJob(nadr uint16) Job {
	return Job{Command: "iqrfEmbedLedr_Pulse", Payload: map[string]any{"nAdr": int(nadr)}}
}

func TestRunner_AllSucceed(t *testing.T) {
	factory, transports := loopbackFactory(t, daemon(nil, nil))
	runner, err := NewRunner(factory, WithWorkers(3))
	require.NoError(t, err)

	jobs := ForNodes([]uint16{1, 2, 3, 4}, 3, ledJob)
	require.Len(t, jobs, 12)

	report, err := runner.Run(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, report.Items, 12)

	for i, it := range report.Items {
		assert.Equal(t, i, it.Index, "submission order")
		assert.Equal(t, jobs[i].Label, it.Job.Label)
		require.Equal(t, correlator.Success, it.Result.Outcome)
		assert.Equal(t, float64(jobs[i].Payload["nAdr"].(int)), it.Result.Envelope.Payload["nAdr"])
		assert.GreaterOrEqual(t, it.Worker, 0)
		assert.Less(t, it.Worker, 3)
		assert.Equal(t, 1, it.Attempts)
	}

	assert.Equal(t, 12, report.Stats.Sent)
	assert.Equal(t, 12, report.Stats.OK)
	assert.Equal(t, 0, report.Stats.Failed)
	assert.LessOrEqual(t, report.Stats.MinLatency, report.Stats.MeanLatency)
	assert.LessOrEqual(t, report.Stats.MeanLatency, report.Stats.MaxLatency)

	// one transport per worker, all closed after the run
	count := 0
	transports.Range(func(_, v any) bool {
		count++
		err := v.(*loopback.Transport).Connect(context.Background())
		assert.ErrorIs(t, err, errors.ErrTransportClosed)
		return true
	})
	assert.Equal(t, 3, count)
}

func TestRunner_MixedOutcomes(t *testing.T) {
	factory, _ := loopbackFactory(t,
		daemon(map[float64]bool{2: true}, map[float64]bool{3: true}),
		correlator.WithTimeout(50*time.Millisecond))
	runner, err := NewRunner(factory, WithWorkers(2))
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), ForNodes([]uint16{1, 2, 3}, 2, ledJob))
	require.NoError(t, err)

	s := report.Stats
	assert.Equal(t, 6, s.Sent)
	assert.Equal(t, 2, s.OK)
	assert.Equal(t, 4, s.Failed)
	assert.Equal(t, 2, s.Timeouts)
	assert.Equal(t, "node 2", report.Items[1].Job.Label)
	assert.Equal(t, correlator.Timeout, report.Items[1].Result.Outcome)
	assert.Equal(t, "8", report.Items[2].Result.StatusString())
}

// firstSendLost drops the first request for every node and lets later ones through to
// answer.
func firstSendLost(answer loopback.Responder) loopback.Responder {
	var mu sync.Mutex
	seen := map[float64]bool{}
	return func(req []byte) [][]byte {
		var w struct {
			Data struct {
				Req struct {
					NAdr float64 `json:"nAdr"`
				} `json:"req"`
			} `json:"data"`
		}
		if json.Unmarshal(req, &w) != nil {
			return nil
		}
		mu.Lock()
		first := !seen[w.Data.Req.NAdr]
		seen[w.Data.Req.NAdr] = true
		mu.Unlock()
		if first {
			return nil
		}
		return answer(req)
	}
}

func TestRunner_RetriesTimedOutRequests(t *testing.T) {
	factory, _ := loopbackFactory(t,
		firstSendLost(daemon(nil, map[float64]bool{3: true})),
		correlator.WithTimeout(30*time.Millisecond))
	policy := errors.RetryConfig{
		MaxRetries:      2,
		InitialDelay:    5 * time.Millisecond,
		MaxDelay:        10 * time.Millisecond,
		BackoffFactor:   2,
		RetryableErrors: []error{errors.ErrTimeout, errors.ErrTransportBusy},
	}
	runner, err := NewRunner(factory, WithWorkers(2), WithRetry(policy))
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), ForNodes([]uint16{1, 2, 3}, 1, ledJob))
	require.NoError(t, err)
	require.Len(t, report.Items, 3)

	for _, it := range report.Items {
		require.Equal(t, correlator.Success, it.Result.Outcome, it.Job.Label)
		assert.Equal(t, 2, it.Attempts, it.Job.Label)
	}
	// an error status is an answer, never resent
	assert.False(t, report.Items[2].Result.OK())
	assert.Equal(t, 3, report.Stats.Retries)
	assert.Equal(t, 2, report.Stats.OK)
}

func TestAttempt_GivesUpAfterMaxRetries(t *testing.T) {
	factory, _ := loopbackFactory(t, daemon(map[float64]bool{1: true}, nil),
		correlator.WithTimeout(20*time.Millisecond))
	client, err := factory(context.Background(), 0)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	policy := errors.DefaultRetryConfig()
	policy.InitialDelay, policy.MaxDelay = time.Millisecond, 2*time.Millisecond

	res, attempts := Attempt(context.Background(), client, ledJob(1), &policy, nil)
	assert.Equal(t, correlator.Timeout, res.Outcome)
	assert.Equal(t, policy.MaxRetries+1, attempts)

	res, attempts = Attempt(context.Background(), client, ledJob(1), nil, nil)
	assert.Equal(t, correlator.Timeout, res.Outcome)
	assert.Equal(t, 1, attempts)
}

func TestRunner_FewerJobsThanWorkers(t *testing.T) {
	factory, transports := loopbackFactory(t, daemon(nil, nil))
	runner, err := NewRunner(factory, WithWorkers(8))
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), Repeat(ledJob(1), 2))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Stats.OK)
	assert.Equal(t, "1", report.Items[0].Job.Label)
	assert.Equal(t, "2", report.Items[1].Job.Label)

	count := 0
	transports.Range(func(_, _ any) bool { count++; return true })
	assert.Equal(t, 2, count)
}

func TestRunner_FactoryFailure(t *testing.T) {
	good, _ := loopbackFactory(t, daemon(nil, nil))
	boom := stderrors.New("daemon unreachable")
	runner, err := NewRunner(func(ctx context.Context, id int) (*correlator.Client, error) {
		if id == 1 {
			return nil, boom
		}
		return good(ctx, id)
	}, WithWorkers(2))
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), Repeat(ledJob(1), 4))
	assert.ErrorIs(t, err, boom)
}

func TestRunner_Cancelled(t *testing.T) {
	factory, _ := loopbackFactory(t, daemon(map[float64]bool{1: true}, nil),
		correlator.WithTimeout(time.Second))
	runner, err := NewRunner(factory, WithWorkers(1), WithQueueSize(1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	report, err := runner.Run(ctx, Repeat(ledJob(1), 20))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assert.Less(t, len(report.Items), 20)
	for _, it := range report.Items {
		assert.NotEqual(t, correlator.Success, it.Result.Outcome)
	}
}

func TestRunner_PoolMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	factory, _ := loopbackFactory(t, daemon(nil, nil))
	runner, err := NewRunner(factory, WithWorkers(2), WithMetricsRegistry(registry))
	require.NoError(t, err)

	// a second run reuses the released prefix
	for i := 0; i < 2; i++ {
		report, err := runner.Run(context.Background(), Repeat(ledJob(1), 3))
		require.NoError(t, err)
		assert.Equal(t, 3, report.Stats.OK)
	}
}

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(nil)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	factory, _ := loopbackFactory(t, daemon(nil, nil))
	_, err = NewRunner(factory, WithWorkers(-1))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	_, err = NewRunner(factory, WithRetry(errors.RetryConfig{MaxRetries: -1}))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	runner, err := NewRunner(factory)
	require.NoError(t, err)
	report, err := runner.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Items)
}

func TestSummarize(t *testing.T) {
	ok := message.Status{Present: true}
	items := []Item{
		{Result: correlator.Result{Outcome: correlator.Success, Elapsed: 10 * time.Millisecond, Envelope: message.Envelope{Status: ok}}},
		{Result: correlator.Result{Outcome: correlator.Success, Elapsed: 30 * time.Millisecond, Envelope: message.Envelope{Status: ok}}},
		{Result: correlator.Result{Outcome: correlator.TransportBusy}, Attempts: 3},
		{Result: correlator.Result{Outcome: correlator.TransportError}},
		{Result: correlator.Result{Outcome: correlator.Timeout, Elapsed: time.Second}},
	}

	s := Summarize(items, 2*time.Second)
	assert.Equal(t, Stats{
		Sent: 5, OK: 2, Failed: 3, Timeouts: 1, Busy: 1, TransportErrors: 1, Retries: 2,
		MinLatency: 10 * time.Millisecond, MaxLatency: 30 * time.Millisecond, MeanLatency: 20 * time.Millisecond,
		Elapsed: 2 * time.Second,
	}, s)
}
