package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueuePreservesOrder(t *testing.T) {
	q := NewQueue[int]()
	for i := 0; i < 100; i++ {
		require.True(t, q.Publish(i))
	}
	require.Equal(t, 100, q.Len())

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		got, err := q.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, i, got)
	}
	require.Zero(t, q.Len())
}

func TestQueueNextWaitsForPublish(t *testing.T) {
	q := NewQueue[string]()
	done := make(chan string, 1)
	go func() {
		v, err := q.Next(context.Background())
		if err == nil {
			done <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Publish("hello")

	select {
	case v := <-done:
		require.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Publish")
	}
}

func TestQueueNextHonoursContext(t *testing.T) {
	q := NewQueue[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Next(ctx)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestQueueCloseDrainsThenFails(t *testing.T) {
	q := NewQueue[int]()
	q.Publish(1)
	q.Close()
	require.False(t, q.Publish(2))

	ctx := context.Background()
	v, err := q.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	_, err = q.Next(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue[int]()
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				q.Publish(i)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 400, q.Len())
}
