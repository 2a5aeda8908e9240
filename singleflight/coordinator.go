package singleflight

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/BaSui01/replyflow/types"
)

// Fn 是被合并的计算体。传入的 ctx 与任一订阅者的生命周期解耦，
// 第一个订阅者取消后计算仍会完成并把结果交付给其余订阅者。
type Fn func(ctx context.Context) (*types.Result, error)

// call 表示一次正在飞行的计算。
type call struct {
	done chan struct{}

	val *types.Result
	err error

	subscribers atomic.Int64
}

// Coordinator 按指纹合并并发的相同计算：同一 key 的并发 Do 调用只
// 触发一次 fn 执行，所有调用者共享同一结果（含错误）。
//
// 与通用 singleflight 的差异：
//   - 计算在独立 goroutine 中以 context.WithoutCancel 运行，
//     订阅者退出不会中断在飞计算
//   - 失败的计算结果只交付给当前订阅者，条目随即移除，
//     之后的调用会重新触发计算
type Coordinator struct {
	mu     sync.Mutex
	calls  map[string]*call
	logger *zap.Logger

	// Metrics
	started atomic.Int64
	shared  atomic.Int64
}

// NewCoordinator 创建 Coordinator。
func NewCoordinator(logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		calls:  make(map[string]*call),
		logger: logger.With(zap.String("component", "singleflight")),
	}
}

// Do 执行或订阅 key 对应的计算。
// 返回的 shared 表示本次调用是否搭上了别人发起的计算。
// ctx 取消只影响当前调用者的等待，不影响计算本身。
func (c *Coordinator) Do(ctx context.Context, key string, fn Fn) (result *types.Result, shared bool, err error) {
	c.mu.Lock()
	if existing, ok := c.calls[key]; ok {
		existing.subscribers.Add(1)
		c.mu.Unlock()
		c.shared.Add(1)
		return c.wait(ctx, existing)
	}

	cl := &call{done: make(chan struct{})}
	cl.subscribers.Add(1)
	c.calls[key] = cl
	c.mu.Unlock()

	c.started.Add(1)
	c.logger.Debug("launching computation", zap.String("key", key))

	// 计算与发起者的 ctx 解耦：发起者取消后其余订阅者仍能拿到结果。
	go c.run(context.WithoutCancel(ctx), key, cl, fn)

	res, _, err := c.wait(ctx, cl)
	return res, false, err
}

func (c *Coordinator) run(ctx context.Context, key string, cl *call, fn Fn) {
	defer func() {
		if r := recover(); r != nil {
			cl.err = types.NewError(types.ErrInternalError, "panic during coordinated computation")
			c.logger.Error("computation panicked", zap.String("key", key), zap.Any("panic", r))
			c.finish(key, cl)
		}
	}()

	cl.val, cl.err = fn(ctx)
	c.finish(key, cl)
}

// finish 先从表中摘除条目再关闭 done，保证看到结果的订阅者都是
// 在计算开始前登记的；摘除之后到达的调用会重新计算。
func (c *Coordinator) finish(key string, cl *call) {
	c.mu.Lock()
	if c.calls[key] == cl {
		delete(c.calls, key)
	}
	c.mu.Unlock()
	close(cl.done)
}

func (c *Coordinator) wait(ctx context.Context, cl *call) (*types.Result, bool, error) {
	select {
	case <-cl.done:
		return cl.val, true, cl.err
	case <-ctx.Done():
		cl.subscribers.Add(-1)
		return nil, true, ctx.Err()
	}
}

// InFlight 报告 key 是否有正在进行的计算。
func (c *Coordinator) InFlight(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.calls[key]
	return ok
}

// Stats 返回协调器统计信息。
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	inFlight := len(c.calls)
	c.mu.Unlock()

	return Stats{
		InFlight: inFlight,
		Started:  c.started.Load(),
		Shared:   c.shared.Load(),
	}
}

// Stats contains coordinator statistics.
type Stats struct {
	InFlight int   `json:"in_flight"`
	Started  int64 `json:"started"`
	Shared   int64 `json:"shared"`
}
