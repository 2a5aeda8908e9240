package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Do(t *testing.T) {
	p := New(2)

	err := p.Do(context.Background(), func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Submitted)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(0), stats.Failed)
}

func TestPool_DoError(t *testing.T) {
	p := New(1)

	boom := errors.New("boom")
	err := p.Do(context.Background(), func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), p.Stats().Failed)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	const limit = 3
	p := New(limit)

	var active, peak atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Do(context.Background(), func(ctx context.Context) error {
				n := active.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(limit))
	assert.Equal(t, int64(20), p.Stats().Submitted)
}

func TestPool_ContextCancelledWhileQueued(t *testing.T) {
	p := New(1)

	release := make(chan struct{})
	go func() {
		_ = p.Do(context.Background(), func(ctx context.Context) error {
			<-release
			return nil
		})
	}()

	// 等待占位任务拿到配额
	assert.Eventually(t, func() bool {
		return p.Stats().Active == 1
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := p.Do(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestPool_Closed(t *testing.T) {
	p := New(1)
	p.Close()

	err := p.Do(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestNew_MinimumLimit(t *testing.T) {
	p := New(0)
	assert.Equal(t, 1, p.Stats().Limit)
}
