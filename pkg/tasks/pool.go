package tasks

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Pool 是一个固定大小的工作池
// 两个 FIFO 队列：优先队列总是先于普通队列被取出
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	cond   *sync.Cond
	high   []queued
	low    []queued
	closed bool

	wg sync.WaitGroup
}

type queued struct {
	task   Task
	handle *Handle
}

// NewPool 启动 workers 个工作协程
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{ctx: ctx, cancel: cancel}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Dispatch 入队并立即返回
// 任务一旦派发就会运行到结束，调用方的 ctx 只影响入队本身
func (p *Pool) Dispatch(ctx context.Context, task Task) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := newHandle(task.ID())

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrDispatcherClosed
	}

	item := queued{task: task, handle: h}
	if task.WithPriority() {
		p.high = append(p.high, item)
	} else {
		p.low = append(p.low, item)
	}
	p.cond.Signal()
	return h, nil
}

// Close 停止接收新任务，等待已入队的任务全部执行完毕
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}

func (p *Pool) next() (queued, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.high) == 0 && len(p.low) == 0 {
		if p.closed {
			return queued{}, false
		}
		p.cond.Wait()
	}

	var item queued
	if len(p.high) > 0 {
		item, p.high = p.high[0], p.high[1:]
	} else {
		item, p.low = p.low[0], p.low[1:]
	}
	return item, true
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		item, ok := p.next()
		if !ok {
			return
		}
		out, err := p.run(item.task)
		item.handle.complete(out, err)
	}
}

// run 执行任务并捕获 panic，单个任务崩溃不能拖垮整个池
func (p *Pool) run(task Task) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			slog.Error("task panicked",
				slog.String("task_id", task.ID().String()),
				slog.Any("panic", r),
				slog.String("stack", stack),
			)
			out, err = nil, &PanicError{TaskID: task.ID(), Value: r, Stack: stack}
		}
	}()
	return task.Run(p.ctx)
}
