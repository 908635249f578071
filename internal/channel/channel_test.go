package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffered_SendReceive(t *testing.T) {
	ch := NewBuffered[int](2)

	require.NoError(t, ch.Send(context.Background(), 1))
	require.NoError(t, ch.TrySend(2))
	assert.Equal(t, 2, ch.Len())
	assert.ErrorIs(t, ch.TrySend(3), ErrFull)

	assert.Equal(t, 1, <-ch.Receive())
	assert.Equal(t, 2, <-ch.Receive())
}

func TestBuffered_SendHonoursContext(t *testing.T) {
	ch := NewBuffered[int](1)
	require.NoError(t, ch.TrySend(1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, ch.Send(ctx, 2), context.DeadlineExceeded)
}

func TestUnbuffered_Rendezvous(t *testing.T) {
	ch := NewUnbuffered[string]()
	assert.ErrorIs(t, ch.TrySend("nobody listening"), ErrFull)

	go func() {
		_ = ch.Send(context.Background(), "hello")
	}()

	select {
	case v := <-ch.Receive():
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("value not received")
	}
	assert.Zero(t, ch.Len())
}

func TestNew(t *testing.T) {
	var ch Channel[int] = New[int](4)
	assert.NotNil(t, ch)
}

func TestBuffered_NegativeSizeIsRendezvous(t *testing.T) {
	ch := NewBuffered[int](-3)
	assert.ErrorIs(t, ch.TrySend(1), ErrFull)
	assert.Zero(t, ch.Len())
}
