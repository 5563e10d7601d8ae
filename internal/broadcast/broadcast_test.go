package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReachesEverySubscriber(t *testing.T) {
	s := NewSender[string](4)
	a := s.Subscribe()
	b := s.Subscribe()

	require.Equal(t, 2, s.Send("hello"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, r := range []*Receiver[string]{a, b} {
		v, err := r.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, "hello", v)
	}
}

func TestSubscriberOnlySeesLaterValues(t *testing.T) {
	s := NewSender[int](4)
	assert.Equal(t, 0, s.Send(1))

	r := s.Subscribe()
	s.Send(2)
	v, err := r.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = r.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestSlowReceiverIsToldItLagged(t *testing.T) {
	s := NewSender[int](2)
	slow := s.Subscribe()
	fast := s.Subscribe()

	for i := 1; i <= 5; i++ {
		s.Send(i)
		if i <= 2 {
			v, err := fast.TryRecv()
			require.NoError(t, err)
			assert.Equal(t, i, v)
		}
	}

	_, err := slow.TryRecv()
	var lagged *LaggedError
	require.True(t, errors.As(err, &lagged))
	assert.Equal(t, uint64(3), lagged.Skipped)

	v, err := slow.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 4, v)
	v, err = slow.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	// the fast receiver lagged too once it stopped reading
	_, err = fast.TryRecv()
	require.True(t, errors.As(err, &lagged))
	assert.Equal(t, uint64(1), lagged.Skipped)
}

func TestRecvBlocksUntilSend(t *testing.T) {
	s := NewSender[int](1)
	r := s.Subscribe()

	got := make(chan int, 1)
	go func() {
		v, err := r.Recv(context.Background())
		if err == nil {
			got <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	s.Send(9)

	select {
	case v := <-got:
		assert.Equal(t, 9, v)
	case <-time.After(time.Second):
		t.Fatal("recv did not wake up")
	}
}

func TestRecvHonoursContext(t *testing.T) {
	s := NewSender[int](1)
	r := s.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseDrainsThenReportsClosed(t *testing.T) {
	s := NewSender[int](4)
	r := s.Subscribe()
	s.Send(1)
	s.Close()

	v, err := r.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = r.Recv(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	assert.Equal(t, 0, s.Send(2))
	_, err = s.Subscribe().TryRecv()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReceiverCloseUnsubscribes(t *testing.T) {
	s := NewSender[int](4)
	r := s.Subscribe()
	other := s.Subscribe()
	require.Equal(t, 2, s.ReceiverCount())

	s.Send(1)
	r.Close()
	assert.Equal(t, 1, s.ReceiverCount())
	assert.Equal(t, 0, r.Len())

	_, err := r.TryRecv()
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 1, other.Len())
}
