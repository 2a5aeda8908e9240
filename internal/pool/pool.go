// Package pool provides a bounded-concurrency gate for expensive work.
// This package is internal and should not be imported by external projects.
package pool

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrPoolClosed 池已关闭错误。
var ErrPoolClosed = errors.New("pool is closed")

// Task represents a unit of work.
type Task func(ctx context.Context) error

// Pool 用加权信号量限制并发执行的任务数。
// 用于约束嵌入计算与步骤执行的系统级并发上限。
type Pool struct {
	sem    *semaphore.Weighted
	limit  int64
	closed atomic.Bool

	// Metrics
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	active    atomic.Int64
}

// New 创建并发上限为 limit 的池。limit ≤ 0 时取 1。
func New(limit int) *Pool {
	if limit <= 0 {
		limit = 1
	}
	return &Pool{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: int64(limit),
	}
}

// Do 获取一个并发配额后同步执行任务。
// 配额耗尽时阻塞等待，ctx 取消则放弃排队。
func (p *Pool) Do(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.submitted.Add(1)

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	p.active.Add(1)
	defer p.active.Add(-1)

	err := task(ctx)
	if err != nil {
		p.failed.Add(1)
	} else {
		p.completed.Add(1)
	}
	return err
}

// Close 拒绝后续提交；已在执行的任务不受影响。
func (p *Pool) Close() {
	p.closed.Store(true)
}

// Stats 返回池统计信息。
func (p *Pool) Stats() Stats {
	return Stats{
		Limit:     int(p.limit),
		Active:    int(p.active.Load()),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Stats contains pool statistics.
type Stats struct {
	Limit     int   `json:"limit"`
	Active    int   `json:"active"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
