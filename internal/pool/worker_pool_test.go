package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitWait_RunsTask(t *testing.T) {
	p := NewGoroutinePool(DefaultGoroutinePoolConfig())
	defer p.Close()

	var ran atomic.Bool
	err := p.SubmitWait(context.Background(), func(context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran.Load())
}

func TestSubmitWait_PropagatesTaskError(t *testing.T) {
	p := NewGoroutinePool(DefaultGoroutinePoolConfig())
	defer p.Close()

	want := errors.New("task failed")
	err := p.SubmitWait(context.Background(), func(context.Context) error {
		return want
	})
	assert.ErrorIs(t, err, want)
}

func TestSubmitWait_CancelUnwindsTask(t *testing.T) {
	p := NewGoroutinePool(DefaultGoroutinePoolConfig())
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	err := p.SubmitWait(ctx, func(taskCtx context.Context) error {
		close(started)
		<-taskCtx.Done()
		return taskCtx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubmitWait_WaitsForRunningTaskOnCancel(t *testing.T) {
	p := NewGoroutinePool(DefaultGoroutinePoolConfig())
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	// The task ignores cancellation for a moment; SubmitWait must not return
	// until it finishes, so shared state written by the task is safe to read.
	var finished atomic.Bool
	err := p.SubmitWait(ctx, func(taskCtx context.Context) error {
		close(started)
		<-taskCtx.Done()
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return taskCtx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, finished.Load(), "caller released before the task returned")
}

func TestSubmitWait_SkipsTaskCancelledWhileQueued(t *testing.T) {
	config := GoroutinePoolConfig{MaxWorkers: 1, QueueSize: 4, IdleTimeout: time.Minute}
	p := NewGoroutinePool(config)
	defer p.Close()

	block := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
		<-block
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- p.SubmitWait(ctx, func(context.Context) error {
			ran.Store(true)
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	close(block)

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran.Load(), "a task cancelled in the queue must not run")
}

func TestSubmitWait_RecoversPanic(t *testing.T) {
	var caught atomic.Bool
	config := DefaultGoroutinePoolConfig()
	config.PanicHandler = func(any) { caught.Store(true) }
	p := NewGoroutinePool(config)
	defer p.Close()

	err := p.SubmitWait(context.Background(), func(context.Context) error {
		panic("boom")
	})
	require.Error(t, err)
	assert.True(t, caught.Load())

	// The pool keeps working after a panic.
	err = p.SubmitWait(context.Background(), func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestPool_ClosedRejectsWork(t *testing.T) {
	p := NewGoroutinePool(DefaultGoroutinePoolConfig())
	p.Close()

	err := p.SubmitWait(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.ErrorIs(t, p.Submit(context.Background(), func(context.Context) error { return nil }), ErrPoolClosed)

	p.Close() // second close is a no-op
}

func TestPool_BoundsWorkers(t *testing.T) {
	config := GoroutinePoolConfig{MaxWorkers: 2, QueueSize: 16, IdleTimeout: time.Minute}
	p := NewGoroutinePool(config)
	defer p.Close()

	block := make(chan struct{})
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
			<-block
			return nil
		}))
	}

	time.Sleep(50 * time.Millisecond)
	stats := p.Stats()
	assert.LessOrEqual(t, stats.Workers, 2)
	assert.Equal(t, int64(4), stats.Submitted)
	close(block)
}
