package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/iqrfgw/errors"
)

type nopTransport struct{ cfg map[string]any }

func (nopTransport) Name() string                                { return "nop" }
func (nopTransport) Connect(context.Context) error               { return nil }
func (nopTransport) Send(context.Context, []byte) error          { return nil }
func (nopTransport) Receive(time.Duration) ([]byte, bool, error) { return nil, false, nil }
func (nopTransport) Close() error                                { return nil }

func nopFactory(raw json.RawMessage, _ Dependencies) (Transport, error) {
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return nopTransport{cfg: cfg}, nil
}

func TestRegistry_RegisterAndCreate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Registration{Kind: "nop", Factory: nopFactory}))
	assert.True(t, r.Has("nop"))
	assert.Equal(t, []string{"nop"}, r.Kinds())

	tr, err := r.Create("nop", json.RawMessage(`{"a":1}`), Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, "nop", tr.Name())
	assert.Equal(t, 1.0, tr.(nopTransport).cfg["a"])

	// empty section decodes as an empty object
	_, err = r.Create("nop", nil, Dependencies{})
	require.NoError(t, err)
}

func TestRegistry_Errors(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(Registration{Factory: nopFactory}))
	assert.Error(t, r.Register(Registration{Kind: "nop"}))

	require.NoError(t, r.Register(Registration{Kind: "nop", Factory: nopFactory}))
	err := r.Register(Registration{Kind: "nop", Factory: nopFactory})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = r.Create("carrier-pigeon", nil, Dependencies{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoTransport)

	_, err = r.Create("nop", json.RawMessage(`[`), Dependencies{})
	assert.Error(t, err)
}

func TestQueue_OutboxRejectsWhenFull(t *testing.T) {
	q, err := NewOutbox("test", 2)
	require.NoError(t, err)

	require.NoError(t, q.Push([]byte("a")))
	require.NoError(t, q.Push([]byte("b")))

	err = q.Push([]byte("c"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransportBusy)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, int64(1), q.Dropped())

	data, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", string(data))
}

func TestQueue_InboxDropsOldest(t *testing.T) {
	q, err := NewInbox("test", 2)
	require.NoError(t, err)

	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push([]byte(s)))
	}
	assert.Equal(t, 2, q.Len())

	data, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", string(data))
	assert.Equal(t, 1, q.Clear())

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueue_PopWait(t *testing.T) {
	q, err := NewInbox("test", 4)
	require.NoError(t, err)

	start := time.Now()
	_, ok := q.PopWait(20 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = q.Push([]byte("late"))
	}()
	data, ok := q.PopWait(time.Second)
	require.True(t, ok)
	assert.Equal(t, "late", string(data))
}

func TestQueue_Closed(t *testing.T) {
	q, err := NewOutbox("test", 1)
	require.NoError(t, err)
	require.NoError(t, q.Close())

	err = q.Push([]byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransportClosed)
}
