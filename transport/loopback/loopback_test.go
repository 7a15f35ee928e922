package loopback

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/transport"
)

func TestTransport_Echo(t *testing.T) {
	tr, err := New(Config{Capacity: 4, Echo: true})
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background()))

	require.NoError(t, tr.Send(context.Background(), []byte(`{"x":1}`)))

	data, ok, err := tr.Receive(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"x":1}`, string(data))

	_, ok, err = tr.Receive(0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, tr.Sent())
}

func TestTransport_BusyWhenRequestsUnread(t *testing.T) {
	tr, err := New(Config{Capacity: 2})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, tr.Send(ctx, []byte("1")))
	require.NoError(t, tr.Send(ctx, []byte("2")))

	err = tr.Send(ctx, []byte("3"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransportBusy)

	req, ok := tr.NextRequest(0)
	require.True(t, ok)
	assert.Equal(t, "1", string(req))
	assert.NoError(t, tr.Send(ctx, []byte("3")))
}

func TestTransport_ScriptedResponder(t *testing.T) {
	tr, err := New(Config{}, WithResponder(func(req []byte) [][]byte {
		return [][]byte{[]byte("confirmation"), append([]byte("final:"), req...)}
	}))
	require.NoError(t, err)

	require.NoError(t, tr.Send(context.Background(), []byte("ping")))
	assert.Equal(t, 2, tr.Pending())

	first, _, _ := tr.Receive(0)
	second, _, _ := tr.Receive(0)
	assert.Equal(t, "confirmation", string(first))
	assert.Equal(t, "final:ping", string(second))
}

func TestTransport_Closed(t *testing.T) {
	tr, err := New(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	err = tr.Send(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, errors.ErrTransportClosed)

	_, _, err = tr.Receive(0)
	assert.ErrorIs(t, err, errors.ErrTransportClosed)
	assert.True(t, errors.IsFatal(err))
}

func TestTransport_SendHonorsContext(t *testing.T) {
	tr, err := New(DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, tr.Send(ctx, []byte("x")), context.Canceled)
}

func TestTransport_ReceiveWaits(t *testing.T) {
	tr, err := New(DefaultConfig())
	require.NoError(t, err)

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = tr.Inject([]byte("late"))
	}()

	data, ok, err := tr.Receive(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "late", string(data))
}

func TestRegister(t *testing.T) {
	r := transport.NewRegistry()
	require.NoError(t, Register(r))

	tr, err := r.Create(Kind, json.RawMessage(`{"capacity":1,"echo":true}`), transport.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, Kind, tr.Name())

	_, err = r.Create(Kind, json.RawMessage(`{"capacity":-1}`), transport.Dependencies{})
	assert.Error(t, err)
}
