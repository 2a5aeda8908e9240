package workflow

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/replyflow/llm"
	"github.com/BaSui01/replyflow/types"
)

// stubStep 直接实现 Step，绕过提示词渲染。
type stubStep struct {
	name     types.StepName
	required bool
	calls    atomic.Int64
	run      func(ctx context.Context, input *StepInput) (string, error)
}

func (s *stubStep) Name() types.StepName { return s.name }
func (s *stubStep) Required() bool       { return s.required }

func (s *stubStep) Run(ctx context.Context, input *StepInput) (string, error) {
	s.calls.Add(1)
	return s.run(ctx, input)
}

// fastRetryer 返回测试用的小延迟重试器。
func fastRetryer(t *testing.T) llm.Retryer {
	t.Helper()
	return llm.NewBackoffRetryer(&llm.RetryPolicy{
		MaxRetries:   1,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}, zap.NewNop())
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	return NewExecutor(fastRetryer(t), nil, zap.NewNop())
}

func TestExecutor_Success(t *testing.T) {
	e := newTestExecutor(t)

	step := &stubStep{
		name: types.StepThreadAnalysis,
		run: func(ctx context.Context, input *StepInput) (string, error) {
			return "analysis", nil
		},
	}

	sr := e.Run(context.Background(), step, &StepInput{Request: testRequest()}, time.Second)

	require.True(t, sr.OK())
	assert.Equal(t, "analysis", sr.Output)
	assert.Equal(t, types.StepThreadAnalysis, sr.StepName)
	assert.Empty(t, sr.Error)
	assert.Greater(t, sr.Duration, time.Duration(0))
}

func TestExecutor_NonRetryableFailureNotRetried(t *testing.T) {
	e := newTestExecutor(t)

	step := &stubStep{
		name: types.StepReplyGeneration,
		run: func(ctx context.Context, input *StepInput) (string, error) {
			return "", types.NewProviderError("fake", "bad prompt")
		},
	}

	sr := e.Run(context.Background(), step, &StepInput{Request: testRequest()}, time.Second)

	assert.Equal(t, types.StepFailed, sr.Status)
	assert.Contains(t, sr.Error, "bad prompt")
	assert.Equal(t, int64(1), step.calls.Load())
}

func TestExecutor_RetryableFailureRetriedOnce(t *testing.T) {
	e := newTestExecutor(t)

	step := &stubStep{
		name: types.StepReplyGeneration,
		run: func(ctx context.Context, input *StepInput) (string, error) {
			return "", types.NewRateLimitError("fake")
		},
	}

	sr := e.Run(context.Background(), step, &StepInput{Request: testRequest()}, time.Second)

	assert.Equal(t, types.StepFailed, sr.Status)
	assert.Equal(t, int64(2), step.calls.Load(), "transient failure gets exactly one retry")
}

func TestExecutor_RetrySucceedsSecondAttempt(t *testing.T) {
	e := newTestExecutor(t)

	step := &stubStep{name: types.StepReplyGeneration}
	step.run = func(ctx context.Context, input *StepInput) (string, error) {
		if step.calls.Load() == 1 {
			return "", types.NewRateLimitError("fake")
		}
		return "recovered", nil
	}

	sr := e.Run(context.Background(), step, &StepInput{Request: testRequest()}, time.Second)

	require.True(t, sr.OK())
	assert.Equal(t, "recovered", sr.Output)
	assert.Equal(t, int64(2), step.calls.Load())
}

func TestExecutor_TimeoutNeverRetried(t *testing.T) {
	e := newTestExecutor(t)

	step := &stubStep{
		name: types.StepProfileEnrichment,
		run: func(ctx context.Context, input *StepInput) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}

	sr := e.Run(context.Background(), step, &StepInput{Request: testRequest()}, 20*time.Millisecond)

	assert.Equal(t, types.StepTimedOut, sr.Status)
	assert.Contains(t, sr.Error, "timed out")
	assert.Equal(t, int64(1), step.calls.Load(), "timeouts must not be retried")
}

func TestExecutor_ProviderTimeoutErrorMapsToTimedOut(t *testing.T) {
	e := newTestExecutor(t)

	step := &stubStep{
		name: types.StepReplyGeneration,
		run: func(ctx context.Context, input *StepInput) (string, error) {
			return "", types.NewTimeoutError("provider deadline hit")
		},
	}

	sr := e.Run(context.Background(), step, &StepInput{Request: testRequest()}, time.Second)

	assert.Equal(t, types.StepTimedOut, sr.Status)
	assert.Equal(t, int64(1), step.calls.Load())
}
