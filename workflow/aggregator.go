package workflow

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/replyflow/internal/pool"
	"github.com/BaSui01/replyflow/types"
)

// AggregatorConfig 聚合器的执行参数。
type AggregatorConfig struct {
	// StepTimeouts 按步骤名的超时，缺省步骤用 DefaultStepTimeout。
	StepTimeouts map[types.StepName]time.Duration `yaml:"step_timeouts" json:"step_timeouts"`

	// DefaultStepTimeout 单步默认超时。
	DefaultStepTimeout time.Duration `yaml:"default_step_timeout" json:"default_step_timeout"`

	// OverallTimeout 整次工作流的超时，覆盖两级执行。
	OverallTimeout time.Duration `yaml:"overall_timeout" json:"overall_timeout"`
}

// DefaultAggregatorConfig 返回默认执行参数。
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		DefaultStepTimeout: 60 * time.Second,
		OverallTimeout:     5 * time.Minute,
	}
}

func (c AggregatorConfig) timeoutFor(name types.StepName) time.Duration {
	if d, ok := c.StepTimeouts[name]; ok && d > 0 {
		return d
	}
	if c.DefaultStepTimeout > 0 {
		return c.DefaultStepTimeout
	}
	return defaultStepTimeout
}

// Aggregator 以两级结构执行步骤并合并结果：
//
//	级 0：profile_enrichment、thread_analysis —— 并发执行，互不取消，
//	      并发量受全局步骤池约束；
//	级 1：reply_generation —— 等级 0 全部结算后执行，消费可用的上游输出，
//	      缺失的上游静默容忍。
//
// 单个步骤的失败绝不取消兄弟步骤；整体状态按必需步骤规则合并。
type Aggregator struct {
	executor *Executor
	stepPool *pool.Pool
	broker   *ProgressBroker
	config   AggregatorConfig
	logger   *zap.Logger
}

// NewAggregator 创建聚合器。stepPool 约束全局并发步骤数，broker 可为 nil。
func NewAggregator(executor *Executor, stepPool *pool.Pool, broker *ProgressBroker, config AggregatorConfig, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		executor: executor,
		stepPool: stepPool,
		broker:   broker,
		config:   config,
		logger:   logger.With(zap.String("component", "aggregator")),
	}
}

// Run 执行启用的步骤并返回合并结果。失败以 Result 状态表达，
// 仅在上下文耗尽等执行器之外的问题时也同样物化为步骤结果。
func (a *Aggregator) Run(ctx context.Context, fingerprint string, req *types.Request, steps []Step) *types.Result {
	if a.config.OverallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.OverallTimeout)
		defer cancel()
	}

	start := time.Now()

	var level0, level1 []Step
	required := make(map[types.StepName]bool, len(steps))
	for _, s := range steps {
		required[s.Name()] = s.Required()
		if s.Name() == types.StepReplyGeneration {
			level1 = append(level1, s)
		} else {
			level0 = append(level0, s)
		}
		a.publish(fingerprint, s.Name(), StateQueued, "")
	}

	results := make(map[types.StepName]*types.StepResult, len(steps))
	var mu sync.Mutex

	// 级 0 并发扇出
	var wg sync.WaitGroup
	for _, step := range level0 {
		wg.Add(1)
		go func(step Step) {
			defer wg.Done()
			sr := a.runOne(ctx, fingerprint, step, &StepInput{Request: req})
			mu.Lock()
			results[step.Name()] = sr
			mu.Unlock()
		}(step)
	}
	wg.Wait()

	// 级 1 消费已结算的上游输出
	upstream := make(map[types.StepName]string, len(results))
	for name, sr := range results {
		if sr.OK() {
			upstream[name] = sr.Output
		}
	}
	for _, step := range level1 {
		results[step.Name()] = a.runOne(ctx, fingerprint, step, &StepInput{Request: req, Upstream: upstream})
	}

	result := &types.Result{
		Fingerprint: fingerprint,
		Status:      types.MergeStatus(results, required),
		Steps:       results,
		StartedAt:   start,
		Duration:    time.Since(start),
	}

	a.logger.Info("workflow settled",
		zap.String("fingerprint", fingerprint),
		zap.String("status", string(result.Status)),
		zap.Int("steps", len(results)),
		zap.Duration("duration", result.Duration),
	)

	return result
}

// runOne 通过全局步骤池执行单个步骤并广播状态变迁。
func (a *Aggregator) runOne(ctx context.Context, fingerprint string, step Step, input *StepInput) *types.StepResult {
	var sr *types.StepResult

	err := a.stepPool.Do(ctx, func(ctx context.Context) error {
		a.publish(fingerprint, step.Name(), StateRunning, "")
		sr = a.executor.Run(ctx, step, input, a.config.timeoutFor(step.Name()))
		return nil
	})
	if err != nil {
		// 池排队阶段就被掐断（整体超时/取消/池关闭）
		sr = &types.StepResult{
			StepName: step.Name(),
			Status:   types.StepTimedOut,
			Error:    "step abandoned before execution: " + err.Error(),
		}
	}

	a.publish(fingerprint, step.Name(), StateSettled, sr.Status)
	return sr
}

func (a *Aggregator) publish(fingerprint string, step types.StepName, state StepState, status types.StepStatus) {
	if a.broker == nil {
		return
	}
	a.broker.Publish(ProgressEvent{
		Fingerprint: fingerprint,
		Step:        step,
		State:       state,
		Status:      status,
	})
}
