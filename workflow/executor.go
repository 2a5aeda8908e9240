package workflow

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/replyflow/internal/metrics"
	"github.com/BaSui01/replyflow/llm"
	"github.com/BaSui01/replyflow/types"
)

// maxStepTimeout 是单步超时的上限。
const maxStepTimeout = 300 * time.Second

// defaultStepTimeout 是未配置时的单步超时。
const defaultStepTimeout = 60 * time.Second

// Executor 运行单个步骤并把结果物化为 StepResult。
//
// 失败语义：
//   - 超时 → StepTimedOut，绝不重试（重试只会拖长尾延迟）
//   - 瞬态错误（限流、上游 5xx）→ 按退避策略重试一次，仍失败则 StepFailed
//   - 其余错误 → StepFailed
//
// Run 永不返回 error：失败以数据形式进入聚合。
type Executor struct {
	retryer llm.Retryer
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewExecutor 创建步骤执行器。
func NewExecutor(retryer llm.Retryer, collector *metrics.Collector, logger *zap.Logger) *Executor {
	if retryer == nil {
		retryer = llm.NewBackoffRetryer(llm.DefaultRetryPolicy(), logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		retryer: retryer,
		metrics: collector,
		logger:  logger.With(zap.String("component", "step_executor")),
	}
}

// Run 在给定超时内执行步骤。
func (e *Executor) Run(ctx context.Context, step Step, input *StepInput, timeout time.Duration) *types.StepResult {
	if timeout <= 0 || timeout > maxStepTimeout {
		timeout = defaultStepTimeout
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	var output string
	err := e.retryer.Do(stepCtx, func() error {
		var runErr error
		output, runErr = step.Run(stepCtx, input)
		return runErr
	})

	result := &types.StepResult{
		StepName: step.Name(),
		Duration: time.Since(start),
	}

	switch {
	case err == nil:
		result.Status = types.StepCompleted
		result.Output = output
	case isTimeout(stepCtx, err):
		result.Status = types.StepTimedOut
		result.Error = "step timed out after " + timeout.String()
	default:
		result.Status = types.StepFailed
		result.Error = err.Error()
	}

	e.metrics.StepDuration(string(step.Name()), string(result.Status), result.Duration.Seconds())

	if result.OK() {
		e.logger.Debug("step settled",
			zap.String("step", string(step.Name())),
			zap.Duration("duration", result.Duration),
		)
	} else {
		e.logger.Warn("step settled without success",
			zap.String("step", string(step.Name())),
			zap.String("status", string(result.Status)),
			zap.String("error", result.Error),
			zap.Duration("duration", result.Duration),
		)
	}

	return result
}

// isTimeout 判断失败是否由步骤超时引起。
// 上游把 context 超时映射为 types.ErrTimeout，此处两种形态都要识别。
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || types.IsErrorCode(err, types.ErrTimeout)
}
