package natsclient

import (
	"context"
	"crypto/tls"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/iqrfgw/errors"
)

func TestNewClient(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Equal(t, time.Second, client.Backoff())

	_, err = NewClient("")
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	_, err = NewClient("nats://localhost:4222", WithCircuitBreakerThreshold(0))
	assert.True(t, errors.IsInvalid(err))
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	client, err := NewClient("nats://invalid:4222", WithCircuitBreakerThreshold(3))
	require.NoError(t, err)

	client.recordFailure()
	client.recordFailure()
	assert.Equal(t, StatusDisconnected, client.Status())

	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(3), client.Failures())

	err = client.Connect(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, errors.IsTransient(err))
}

func TestCircuitBreaker_Reset(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	require.Equal(t, StatusCircuitOpen, client.Status())

	client.resetCircuit()
	assert.Equal(t, int32(0), client.Failures())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.Equal(t, time.Second, client.Backoff())
}

func TestCircuitBreaker_ExponentialBackoff(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithMaxBackoff(4*time.Second))
	require.NoError(t, err)

	open := func() {
		for i := 0; i < 5; i++ {
			client.recordFailure()
		}
		client.testCircuit()
	}

	open()
	assert.Equal(t, 2*time.Second, client.Backoff())
	open()
	assert.Equal(t, 4*time.Second, client.Backoff())
	open()
	assert.Equal(t, 4*time.Second, client.Backoff(), "capped at max backoff")
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithCircuitBreakerThreshold(1))
	require.NoError(t, err)

	client.recordFailure()
	require.Equal(t, StatusCircuitOpen, client.Status())

	client.testCircuit()
	assert.Equal(t, StatusDisconnected, client.Status())

	st := client.GetStatus()
	assert.Equal(t, int32(1), st.FailureCount)
	assert.False(t, st.LastFailureTime.IsZero())
}

func TestConnect_Unreachable(t *testing.T) {
	client, err := NewClient("nats://127.0.0.1:1",
		WithTimeout(200*time.Millisecond),
		WithMaxReconnects(0),
	)
	require.NoError(t, err)

	err = client.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, int32(1), client.Failures())
	assert.Equal(t, StatusDisconnected, client.Status())
}

func TestConnect_ContextCancelled(t *testing.T) {
	// a server that accepts but never sends INFO
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	client, err := NewClient("nats://"+ln.Addr().String(), WithTimeout(5*time.Second))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = client.Connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNotConnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.ErrorIs(t, client.Publish(context.Background(), "a", []byte("x")), ErrNotConnected)
	assert.ErrorIs(t, client.Subscribe("a", func([]byte) {}), ErrNotConnected)
	assert.ErrorIs(t, client.Flush(context.Background()), ErrNotConnected)
	_, err = client.RTT()
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, client.Close(context.Background()))
	require.NoError(t, client.Close(context.Background()))
	assert.ErrorIs(t, client.Connect(context.Background()), errors.ErrTransportClosed)
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "circuit_open", StatusCircuitOpen.String())
	assert.Equal(t, "unknown", ConnectionStatus(42).String())
}

func TestConnectionOptions(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithCredentials("user", "pass"),
		WithName("iqrfgw"),
		WithReconnectBufSize(1024),
	)
	require.NoError(t, err)
	assert.Len(t, client.ConnectionOptions(), 12)

	secure, err := NewClient("tls://localhost:4222",
		WithTLS(&tls.Config{MinVersion: tls.VersionTLS12}),
		WithReconnectWait(500*time.Millisecond),
		WithPingInterval(10*time.Second),
		WithDrainTimeout(time.Second),
	)
	require.NoError(t, err)
	assert.Len(t, secure.ConnectionOptions(), 10)
	assert.Equal(t, 500*time.Millisecond, secure.reconnectWait)
	assert.Equal(t, 10*time.Second, secure.pingInterval)
	assert.Equal(t, time.Second, secure.drainTimeout)

	_, err = NewClient("tls://localhost:4222", WithTLS(nil))
	assert.Error(t, err)
}
