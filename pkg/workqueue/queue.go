package workqueue

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("workqueue: queue closed")

// Queue 是一个有界任务队列, 由可增长的 worker 池消费
type Queue struct {
	tasks chan func()

	mu      sync.Mutex
	pending int
	total   int
	done    int
	workers int
	closed  bool
	// notify 在每个任务完成时关闭并替换
	notify chan struct{}

	// sendMu 保证 Close 不会与进行中的 Put 并发关闭 channel
	sendMu       sync.RWMutex
	maxWorkers   int
	wg           sync.WaitGroup
	closeOnce    sync.Once
	panicHandler func(any)
}

type Option func(*Queue)

// WithPanicHandler 允许用户自定义 panic 处理逻辑
func WithPanicHandler(handler func(any)) Option {
	return func(q *Queue) {
		q.panicHandler = handler
	}
}

// WithMaxWorkers caps the number of workers Grow may start.
func WithMaxWorkers(n int) Option {
	return func(q *Queue) {
		q.maxWorkers = n
	}
}

func New(capacity int, options ...Option) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	q := &Queue{
		tasks:  make(chan func(), capacity),
		notify: make(chan struct{}),
	}
	for _, option := range options {
		option(q)
	}
	return q
}

// Grow 启动 n 个新的 worker, 返回实际启动的数量
func (q *Queue) Grow(n int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	if q.maxWorkers > 0 && q.workers+n > q.maxWorkers {
		n = q.maxWorkers - q.workers
	}
	for i := 0; i < n; i++ {
		q.workers++
		q.wg.Go(q.work)
	}
	return max(n, 0)
}

func (q *Queue) Workers() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.workers
}

func (q *Queue) work() {
	for task := range q.tasks {
		q.exec(task)
	}
}

func (q *Queue) exec(task func()) {
	defer q.finish()
	if q.panicHandler != nil {
		// 捕获 panic
		defer func() {
			if r := recover(); r != nil {
				q.panicHandler(r)
			}
		}()
	}
	task()
}

func (q *Queue) finish() {
	q.mu.Lock()
	q.pending--
	q.done++
	close(q.notify)
	q.notify = make(chan struct{})
	q.mu.Unlock()
}

// Put enqueues task. It blocks while the queue is full.
func (q *Queue) Put(ctx context.Context, task func()) error {
	q.sendMu.RLock()
	defer q.sendMu.RUnlock()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.pending == 0 {
		q.total, q.done = 0, 0
	}
	q.pending++
	q.total++
	q.mu.Unlock()

	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		q.pending--
		q.total--
		q.mu.Unlock()
		return ctx.Err()
	}
}

// Unfinished returns the number of tasks enqueued but not yet done.
func (q *Queue) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// WaitDrain blocks until every task enqueued so far is done. progress, if
// set, is called once up front and after each completion with the counts
// of the current batch.
func (q *Queue) WaitDrain(ctx context.Context, progress func(done, total int)) error {
	for {
		q.mu.Lock()
		pending, done, total, ch := q.pending, q.done, q.total, q.notify
		q.mu.Unlock()

		if progress != nil {
			progress(done, total)
		}
		if pending == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Join blocks until the queue drains.
func (q *Queue) Join() {
	_ = q.WaitDrain(context.Background(), nil)
}

// Close stops accepting tasks and waits for the workers to finish what
// is already queued.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.sendMu.Lock()
		defer q.sendMu.Unlock()
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.tasks)
	})
	q.wg.Wait()
}
