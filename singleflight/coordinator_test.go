package singleflight

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/replyflow/types"
)

func completedResult(fp string) *types.Result {
	return &types.Result{Fingerprint: fp, Status: types.StatusCompleted}
}

func TestCoordinator_SingleCaller(t *testing.T) {
	c := NewCoordinator(zap.NewNop())

	res, shared, err := c.Do(context.Background(), "fp-1", func(ctx context.Context) (*types.Result, error) {
		return completedResult("fp-1"), nil
	})
	require.NoError(t, err)
	assert.False(t, shared)
	assert.Equal(t, "fp-1", res.Fingerprint)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Started)
	assert.Equal(t, int64(0), stats.Shared)
	assert.Equal(t, 0, stats.InFlight)
}

func TestCoordinator_ConcurrentCallersShareOneExecution(t *testing.T) {
	c := NewCoordinator(zap.NewNop())

	var invocations atomic.Int64
	gate := make(chan struct{})

	fn := func(ctx context.Context) (*types.Result, error) {
		invocations.Add(1)
		<-gate
		return completedResult("fp"), nil
	}

	const callers = 10
	results := make([]*types.Result, callers)
	sharedFlags := make([]bool, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], sharedFlags[i], errs[i] = c.Do(context.Background(), "fp", fn)
		}(i)
	}

	// 等全部订阅者挂到同一个 call 上再放行计算
	assert.Eventually(t, func() bool {
		return c.Stats().Shared == callers-1
	}, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int64(1), invocations.Load())

	sharedCount := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i], "all callers must receive the identical result")
		if sharedFlags[i] {
			sharedCount++
		}
	}
	assert.Equal(t, callers-1, sharedCount)
}

func TestCoordinator_FailurePropagatesToAllWaiters(t *testing.T) {
	c := NewCoordinator(zap.NewNop())

	boom := types.NewProviderError("openai", "upstream exploded")
	gate := make(chan struct{})

	fn := func(ctx context.Context) (*types.Result, error) {
		<-gate
		return nil, boom
	}

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = c.Do(context.Background(), "fp", fn)
		}(i)
	}

	assert.Eventually(t, func() bool {
		return c.InFlight("fp")
	}, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}
}

func TestCoordinator_FreshComputationAfterFailure(t *testing.T) {
	c := NewCoordinator(zap.NewNop())

	var invocations atomic.Int64
	fn := func(ctx context.Context) (*types.Result, error) {
		if invocations.Add(1) == 1 {
			return nil, types.NewProviderError("openai", "transient")
		}
		return completedResult("fp"), nil
	}

	_, _, err := c.Do(context.Background(), "fp", fn)
	require.Error(t, err)

	// 失败不被钉住：下一次调用重新计算
	res, shared, err := c.Do(context.Background(), "fp", fn)
	require.NoError(t, err)
	assert.False(t, shared)
	assert.Equal(t, types.StatusCompleted, res.Status)
	assert.Equal(t, int64(2), invocations.Load())
}

func TestCoordinator_SubscriberCancelDoesNotAbortComputation(t *testing.T) {
	c := NewCoordinator(zap.NewNop())

	started := make(chan struct{})
	gate := make(chan struct{})
	var sawCancel atomic.Bool

	fn := func(ctx context.Context) (*types.Result, error) {
		close(started)
		<-gate
		if ctx.Err() != nil {
			sawCancel.Store(true)
		}
		return completedResult("fp"), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, _, err := c.Do(ctx, "fp", fn)
		errCh <- err
	}()

	<-started
	cancel()

	require.ErrorIs(t, <-errCh, context.Canceled)

	// 计算仍在飞行，晚到的订阅者照常拿到结果
	type outcome struct {
		res *types.Result
		err error
	}
	resCh := make(chan outcome, 1)
	go func() {
		res, _, err := c.Do(context.Background(), "fp", fn)
		resCh <- outcome{res, err}
	}()

	// 等晚到的订阅者登记完毕再放行计算
	assert.Eventually(t, func() bool {
		return c.Stats().Shared == 1
	}, time.Second, time.Millisecond)
	close(gate)

	out := <-resCh
	require.NoError(t, out.err)
	assert.Equal(t, "fp", out.res.Fingerprint)
	assert.False(t, sawCancel.Load(), "computation context must be detached from subscribers")
}

func TestCoordinator_DistinctKeysRunIndependently(t *testing.T) {
	c := NewCoordinator(zap.NewNop())

	var invocations atomic.Int64
	fn := func(ctx context.Context) (*types.Result, error) {
		invocations.Add(1)
		return completedResult("x"), nil
	}

	keys := []string{"fp-a", "fp-b", "fp-c"}
	errs := make([]error, len(keys))

	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			_, _, errs[i] = c.Do(context.Background(), key, fn)
		}(i, key)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(3), invocations.Load())
}

func TestCoordinator_PanicBecomesInternalError(t *testing.T) {
	c := NewCoordinator(zap.NewNop())

	_, _, err := c.Do(context.Background(), "fp", func(ctx context.Context) (*types.Result, error) {
		panic("kaboom")
	})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInternalError))
	assert.False(t, c.InFlight("fp"))
}
