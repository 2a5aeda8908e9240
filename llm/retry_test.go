package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/replyflow/types"
)

func fastPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   1,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestBackoffRetryer_SucceedsFirstTry(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(), zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffRetryer_RetriesTransientOnce(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(), zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls == 1 {
			return types.NewRateLimitError("openai")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestBackoffRetryer_ExhaustsRetries(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(), zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return types.NewRateLimitError("openai")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls) // 首次 + 1 次重试
	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
}

func TestBackoffRetryer_NonRetryableFailsFast(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(), zap.NewNop())

	tests := []struct {
		name string
		err  error
	}{
		{"timeout never retried", types.NewTimeoutError("deadline")},
		{"invalid request never retried", types.NewInvalidRequestError("bad")},
		{"plain error never retried", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := r.Do(context.Background(), func() error {
				calls++
				return tt.err
			})

			require.Error(t, err)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestBackoffRetryer_ContextCancelled(t *testing.T) {
	r := NewBackoffRetryer(&RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := r.Do(ctx, func() error {
		calls++
		return types.NewRateLimitError("openai")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
