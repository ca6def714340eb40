package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task represents a unit of work.
type Task func(ctx context.Context) error

// GoroutinePool 有界协程池
// GoroutinePool runs tasks on a bounded set of workers. Workers spawn on
// demand up to the configured maximum and exit after the idle timeout.
type GoroutinePool struct {
	maxWorkers  int
	taskQueue   chan taskWrapper
	workerCount atomic.Int32
	activeCount atomic.Int32
	closed      atomic.Bool
	wg          sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64

	idleTimeout  time.Duration
	panicHandler func(any)
}

type taskWrapper struct {
	task   Task
	ctx    context.Context
	result chan error
}

// GoroutinePoolConfig configures the pool.
type GoroutinePoolConfig struct {
	MaxWorkers   int           `json:"max_workers" yaml:"max_workers"`
	QueueSize    int           `json:"queue_size" yaml:"queue_size"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	PanicHandler func(any)     `json:"-" yaml:"-"`
}

// DefaultGoroutinePoolConfig returns sensible defaults.
func DefaultGoroutinePoolConfig() GoroutinePoolConfig {
	return GoroutinePoolConfig{
		MaxWorkers:  64,
		QueueSize:   256,
		IdleTimeout: 60 * time.Second,
	}
}

// NewGoroutinePool creates a new goroutine pool.
func NewGoroutinePool(config GoroutinePoolConfig) *GoroutinePool {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 1
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 60 * time.Second
	}
	return &GoroutinePool{
		maxWorkers:   config.MaxWorkers,
		taskQueue:    make(chan taskWrapper, config.QueueSize),
		idleTimeout:  config.IdleTimeout,
		panicHandler: config.PanicHandler,
	}
}

// Submit enqueues a task without waiting for its result.
func (p *GoroutinePool) Submit(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.submitted.Add(1)

	wrapper := taskWrapper{task: task, ctx: ctx, result: make(chan error, 1)}
	select {
	case p.taskQueue <- wrapper:
		p.ensureWorker()
		return nil
	default:
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

// SubmitWait enqueues a task and waits for it to finish. Context cancellation
// only short-circuits while the task is still queued; once a worker picked it
// up the call blocks until the task returns, so the caller may touch shared
// state after SubmitWait without further synchronization. The task observes
// the same context and should unwind promptly when it is cancelled.
func (p *GoroutinePool) SubmitWait(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.submitted.Add(1)

	wrapper := taskWrapper{task: task, ctx: ctx, result: make(chan error, 1)}
	select {
	case p.taskQueue <- wrapper:
		p.ensureWorker()
	case <-ctx.Done():
		p.rejected.Add(1)
		return ctx.Err()
	}

	return <-wrapper.result
}

func (p *GoroutinePool) ensureWorker() {
	for {
		current := p.workerCount.Load()
		if current >= int32(p.maxWorkers) {
			return
		}
		if p.workerCount.CompareAndSwap(current, current+1) {
			p.wg.Add(1)
			go p.worker()
			return
		}
	}
}

func (p *GoroutinePool) worker() {
	defer p.wg.Done()
	defer p.workerCount.Add(-1)

	timer := time.NewTimer(p.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case wrapper, ok := <-p.taskQueue:
			if !ok {
				return
			}

			p.activeCount.Add(1)
			err := p.run(wrapper)
			p.activeCount.Add(-1)

			wrapper.result <- err
			close(wrapper.result)

			if err != nil {
				p.failed.Add(1)
			} else {
				p.completed.Add(1)
			}
			timer.Reset(p.idleTimeout)

		case <-timer.C:
			// Keep one worker alive for latency; the rest retire when idle.
			if p.workerCount.Load() > 1 {
				return
			}
			timer.Reset(p.idleTimeout)
		}
	}
}

func (p *GoroutinePool) run(wrapper taskWrapper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if p.panicHandler != nil {
				p.panicHandler(r)
			}
			err = errors.New("task panicked")
		}
	}()
	// Tasks cancelled while still queued are skipped outright.
	if err := wrapper.ctx.Err(); err != nil {
		return err
	}
	return wrapper.task(wrapper.ctx)
}

// Close drains the queue and waits for all workers to finish.
func (p *GoroutinePool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.taskQueue)
	p.wg.Wait()
}

// Stats returns a snapshot of pool counters.
func (p *GoroutinePool) Stats() Stats {
	return Stats{
		Workers:   int(p.workerCount.Load()),
		Active:    int(p.activeCount.Load()),
		Queued:    len(p.taskQueue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// Stats contains pool counters.
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}
