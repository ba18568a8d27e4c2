package performance

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func BenchmarkWorkerPool(b *testing.B) {
	pool := NewWorkerPool(4)
	pool.Start()
	defer pool.Stop()

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		done := make(chan struct{})
		pool.Submit(ctx, func() { close(done) })
		<-done
	}
}

func TestWorkerPoolRunsEveryTask(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Start()

	var counter int64
	for i := 0; i < 100; i++ {
		require.True(t, pool.Submit(context.Background(), func() {
			atomic.AddInt64(&counter, 1)
		}))
	}

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for tasks to complete")
	}

	assert.Equal(t, int64(100), atomic.LoadInt64(&counter))
	stats := pool.Stats()
	assert.Equal(t, uint64(100), stats.TasksTotal)
	assert.Equal(t, uint64(100), stats.TasksDone)
	assert.False(t, stats.Running)
}

func TestWorkerPoolRejectsAfterStop(t *testing.T) {
	pool := NewWorkerPool(1)
	assert.False(t, pool.Submit(context.Background(), func() {}))

	pool.Start()
	pool.Stop()
	pool.Stop()
	assert.False(t, pool.Submit(context.Background(), func() {}))
}

func TestWorkerPoolSubmitHonoursContext(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start()

	release := make(chan struct{})
	ctx := context.Background()
	// One running task plus a full queue.
	require.True(t, pool.Submit(ctx, func() { <-release }))
	for i := 0; i < cap(pool.taskQueue); i++ {
		require.True(t, pool.Submit(ctx, func() {}))
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, pool.Submit(cancelled, func() {}))

	close(release)
	pool.Stop()
}

func TestBatchProcessor(t *testing.T) {
	var batches [][]int

	processor := NewBatchProcessor(5, func(items []int) error {
		batch := make([]int, len(items))
		copy(batch, items)
		batches = append(batches, batch)
		return nil
	})

	for i := 0; i < 12; i++ {
		require.NoError(t, processor.Add(i))
	}
	require.NoError(t, processor.Flush())
	require.NoError(t, processor.Flush())

	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 5)
	assert.Len(t, batches[1], 5)
	assert.Equal(t, []int{10, 11}, batches[2])
}
