package workqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitDrainRunsAllTasks(t *testing.T) {
	q := New(4)
	defer q.Close()
	q.Grow(3)

	var n atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Put(context.Background(), func() { n.Add(1) }))
	}

	var mu sync.Mutex
	var last [2]int
	err := q.WaitDrain(context.Background(), func(done, total int) {
		mu.Lock()
		last = [2]int{done, total}
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, int32(10), n.Load())
	assert.Equal(t, 0, q.Unfinished())
	assert.Equal(t, [2]int{10, 10}, last)
}

func TestWaitDrainCancelled(t *testing.T) {
	q := New(1)
	defer q.Close()
	q.Grow(1)

	release := make(chan struct{})
	require.NoError(t, q.Put(context.Background(), func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.WaitDrain(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, q.Unfinished())

	close(release)
	q.Join()
	assert.Equal(t, 0, q.Unfinished())
}

func TestPutWithoutWorkersBlocksWhenFull(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Put(context.Background(), func() {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Put(ctx, func() {}), context.DeadlineExceeded)
	assert.Equal(t, 1, q.Unfinished())

	q.Grow(1)
	q.Join()
	q.Close()
	assert.ErrorIs(t, q.Put(context.Background(), func() {}), ErrClosed)
}

func TestPanicHandler(t *testing.T) {
	var got atomic.Value
	q := New(1, WithPanicHandler(func(r any) { got.Store(r) }))
	defer q.Close()
	q.Grow(1)

	require.NoError(t, q.Put(context.Background(), func() { panic("boom") }))
	q.Join()
	assert.Equal(t, "boom", got.Load())
}

func TestGrowRespectsMax(t *testing.T) {
	q := New(1, WithMaxWorkers(2))
	defer q.Close()

	assert.Equal(t, 1, q.Grow(1))
	assert.Equal(t, 1, q.Grow(5))
	assert.Equal(t, 0, q.Grow(1))
	assert.Equal(t, 2, q.Workers())
}
