// Package tasks 是任务派发能力的最小抽象：派发一个任务得到句柄，之后统一等待。
package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrDispatcherClosed = errors.New("dispatcher is closed")

// Task 是一个可被并发执行的工作单元
type Task interface {
	ID() uuid.UUID
	// WithPriority 为 true 的任务优先于普通任务执行 (例如用户交互触发的识别)
	WithPriority() bool
	Run(ctx context.Context) (any, error)
}

// Dispatcher 接收任务并立即返回句柄，不等待任务完成
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) (*Handle, error)
}

// Handle 指向一个已派发的任务
type Handle struct {
	taskID uuid.UUID
	done   chan struct{}
	out    any
	err    error
}

func newHandle(id uuid.UUID) *Handle {
	return &Handle{taskID: id, done: make(chan struct{})}
}

// TaskID 返回任务 ID
func (h *Handle) TaskID() uuid.UUID { return h.taskID }

// Done 在任务结束后关闭
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait 等待任务结束；ctx 取消只会停止等待，不会取消任务本身
func (h *Handle) Wait(ctx context.Context) (any, error) {
	out, err, resolved := h.wait(ctx)
	if !resolved {
		return nil, ctx.Err()
	}
	return out, err
}

// wait 在任务已结束时总是返回结果，即使 ctx 同时已被取消
func (h *Handle) wait(ctx context.Context) (out any, err error, resolved bool) {
	select {
	case <-h.done:
		return h.out, h.err, true
	default:
	}
	select {
	case <-h.done:
		return h.out, h.err, true
	case <-ctx.Done():
		return nil, nil, false
	}
}

func (h *Handle) complete(out any, err error) {
	h.out = out
	h.err = err
	close(h.done)
}

// Result 是单个任务的结果
type Result struct {
	TaskID uuid.UUID
	Output any
	Err    error
}

// WaitAll 等待所有句柄，每个任务的结果独立返回
// 某个任务失败不会影响其他任务；ctx 取消且还有任务未结束时返回 ctx.Err()
// 已经全部结束的句柄即使 ctx 已取消也照常返回结果
func WaitAll(ctx context.Context, handles []*Handle) ([]Result, error) {
	results := make([]Result, 0, len(handles))
	for _, h := range handles {
		out, err, resolved := h.wait(ctx)
		if !resolved {
			return results, ctx.Err()
		}
		results = append(results, Result{TaskID: h.taskID, Output: out, Err: err})
	}
	return results, nil
}

// PanicError 包装任务执行中的 panic
type PanicError struct {
	TaskID uuid.UUID
	Value  any
	Stack  string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.TaskID, e.Value)
}
