package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrStopped pool no longer accepts tasks
var ErrStopped = errors.New("worker pool stopped")

// Task unit of work; ID shows up in logs
type Task struct {
	ID string
	Fn func(context.Context) error
}

// Pool bounded set of goroutines draining a task queue
type Pool struct {
	name       string
	maxWorkers int
	queueSize  int
	taskQueue  chan queued
	logger     *zap.Logger
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopChan   chan struct{}
	// held shared while sending to taskQueue, exclusively by drain
	sendMu sync.RWMutex

	activeWorkers  int32
	totalTasks     uint64
	completedTasks uint64
	failedTasks    uint64
	rejectedTasks  uint64
}

type queued struct {
	task Task
	ctx  context.Context
	done func(error)
}

// Config pool settings
type Config struct {
	Name       string
	MaxWorkers int
	QueueSize  int
	Logger     *zap.Logger
}

// New starts MaxWorkers goroutines
func New(cfg Config) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	p := &Pool{
		name:       cfg.Name,
		maxWorkers: cfg.MaxWorkers,
		queueSize:  cfg.QueueSize,
		taskQueue:  make(chan queued, cfg.QueueSize),
		logger:     cfg.Logger,
		stopChan:   make(chan struct{}),
	}
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.logger.Info("worker pool started",
		zap.String("name", p.name),
		zap.Int("max_workers", p.maxWorkers),
		zap.Int("queue_size", p.queueSize))
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case q := <-p.taskQueue:
			p.execute(id, q)
		}
	}
}

func (p *Pool) execute(workerID int, q queued) {
	atomic.AddInt32(&p.activeWorkers, 1)
	defer atomic.AddInt32(&p.activeWorkers, -1)

	start := time.Now()
	var err error
	if cerr := q.ctx.Err(); cerr != nil {
		// caller gave up while the task sat in the queue
		err = cerr
	} else {
		err = p.safeExecute(q)
	}

	if err != nil {
		atomic.AddUint64(&p.failedTasks, 1)
		p.logger.Warn("task failed",
			zap.String("pool", p.name),
			zap.Int("worker_id", workerID),
			zap.String("task_id", q.task.ID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
	} else {
		atomic.AddUint64(&p.completedTasks, 1)
		p.logger.Debug("task completed",
			zap.String("pool", p.name),
			zap.Int("worker_id", workerID),
			zap.String("task_id", q.task.ID),
			zap.Duration("duration", time.Since(start)))
	}
	if q.done != nil {
		q.done(err)
	}
}

func (p *Pool) safeExecute(q queued) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			p.logger.Error("task panic recovered",
				zap.String("pool", p.name),
				zap.String("task_id", q.task.ID),
				zap.Any("panic", r))
		}
	}()
	return q.task.Fn(q.ctx)
}

// Submit blocks until the task is queued, ctx is done or the pool stops
func (p *Pool) Submit(ctx context.Context, task Task) error {
	return p.submit(ctx, queued{task: task, ctx: ctx})
}

func (p *Pool) submit(ctx context.Context, q queued) error {
	if ctx == nil {
		ctx = context.Background()
		q.ctx = ctx
	}
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	select {
	case <-p.stopChan:
		atomic.AddUint64(&p.rejectedTasks, 1)
		return fmt.Errorf("%s: %w", p.name, ErrStopped)
	default:
	}
	select {
	case <-p.stopChan:
		atomic.AddUint64(&p.rejectedTasks, 1)
		return fmt.Errorf("%s: %w", p.name, ErrStopped)
	case <-ctx.Done():
		atomic.AddUint64(&p.rejectedTasks, 1)
		return ctx.Err()
	case p.taskQueue <- q:
		atomic.AddUint64(&p.totalTasks, 1)
		return nil
	}
}

// TrySubmit queues without blocking; false when full or stopped
func (p *Pool) TrySubmit(ctx context.Context, task Task) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	select {
	case <-p.stopChan:
		atomic.AddUint64(&p.rejectedTasks, 1)
		return false
	default:
	}
	select {
	case p.taskQueue <- queued{task: task, ctx: ctx}:
		atomic.AddUint64(&p.totalTasks, 1)
		return true
	default:
		atomic.AddUint64(&p.rejectedTasks, 1)
		return false
	}
}

// RunAll runs tasks on the pool and waits for all of them. errs[i] belongs to tasks[i];
// tasks that could not be queued carry the submit error.
func (p *Pool) RunAll(ctx context.Context, tasks []Task) []error {
	errs := make([]error, len(tasks))
	var wg sync.WaitGroup
	for i, t := range tasks {
		i := i
		wg.Add(1)
		q := queued{task: t, ctx: ctx, done: func(err error) {
			errs[i] = err
			wg.Done()
		}}
		if err := p.submit(ctx, q); err != nil {
			errs[i] = err
			wg.Done()
		}
	}
	wg.Wait()
	return errs
}

// Stop closes the pool and waits up to timeout for running tasks.
// Tasks still queued are dropped.
func (p *Pool) Stop(timeout time.Duration) error {
	var err error
	p.stopOnce.Do(func() {
		close(p.stopChan)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			p.logger.Info("worker pool stopped", zap.String("name", p.name))
		case <-time.After(timeout):
			err = fmt.Errorf("worker pool %q stop timeout after %v", p.name, timeout)
		}
		p.drain()
	})
	return err
}

// drain fails whatever is left in the queue so RunAll callers are released.
// Sends in flight when stopChan closed finish before the queue is emptied.
func (p *Pool) drain() {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	for {
		select {
		case q := <-p.taskQueue:
			atomic.AddUint64(&p.rejectedTasks, 1)
			if q.done != nil {
				q.done(ErrStopped)
			}
		default:
			return
		}
	}
}

// Stats snapshot of pool counters
func (p *Pool) Stats() Stats {
	return Stats{
		Name:           p.name,
		MaxWorkers:     p.maxWorkers,
		ActiveWorkers:  int(atomic.LoadInt32(&p.activeWorkers)),
		QueueSize:      p.queueSize,
		QueuedTasks:    len(p.taskQueue),
		TotalTasks:     atomic.LoadUint64(&p.totalTasks),
		CompletedTasks: atomic.LoadUint64(&p.completedTasks),
		FailedTasks:    atomic.LoadUint64(&p.failedTasks),
		RejectedTasks:  atomic.LoadUint64(&p.rejectedTasks),
	}
}

// Stats pool counters
type Stats struct {
	Name           string `json:"name"`
	MaxWorkers     int    `json:"max_workers"`
	ActiveWorkers  int    `json:"active_workers"`
	QueueSize      int    `json:"queue_size"`
	QueuedTasks    int    `json:"queued_tasks"`
	TotalTasks     uint64 `json:"total_tasks"`
	CompletedTasks uint64 `json:"completed_tasks"`
	FailedTasks    uint64 `json:"failed_tasks"`
	RejectedTasks  uint64 `json:"rejected_tasks"`
}

// SuccessRate completed share of accepted tasks, in percent
func (s Stats) SuccessRate() float64 {
	if s.TotalTasks == 0 {
		return 100.0
	}
	return float64(s.CompletedTasks) / float64(s.TotalTasks) * 100.0
}
