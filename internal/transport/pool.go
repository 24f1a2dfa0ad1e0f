package transport

import (
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Task is one unit of dispatcher work.
type Task func()

// PoolStats is a snapshot of worker activity.
type PoolStats struct {
	Workers  int   `json:"workers"`
	Queued   int   `json:"queued"`
	Executed int64 `json:"executed"`
	Panicked int64 `json:"panicked"`
}

// Pool runs tasks on a fixed set of workers fed from an unbounded FIFO
// queue. A panicking task is logged and the worker keeps going. Stop
// drains the queue before returning.
type Pool struct {
	logger  zerolog.Logger
	workers int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Task
	stopped bool
	wg      sync.WaitGroup

	executed atomic.Int64
	panicked atomic.Int64
}

// NewPool starts workers goroutines; non-positive means one per CPU.
func NewPool(workers int, logger zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{logger: logger, workers: workers}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit queues a task. It reports false once the pool has stopped, in
// which case the task is dropped.
func (p *Pool) Submit(task Task) bool {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return false
	}
	p.queue = append(p.queue, task)
	p.mu.Unlock()

	p.cond.Signal()
	return true
}

// Stop wakes every worker, lets the queue drain, and joins the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()
}

func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	queued := len(p.queue)
	p.mu.Unlock()

	return PoolStats{
		Workers:  p.workers,
		Queued:   queued,
		Executed: p.executed.Load(),
		Panicked: p.panicked.Load(),
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker task panicked")
		}
	}()

	p.executed.Add(1)
	task()
}
