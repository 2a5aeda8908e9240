package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/replyflow/cache"
	"github.com/BaSui01/replyflow/fingerprint"
	"github.com/BaSui01/replyflow/internal/metrics"
	"github.com/BaSui01/replyflow/internal/pool"
	"github.com/BaSui01/replyflow/llm"
	"github.com/BaSui01/replyflow/singleflight"
	"github.com/BaSui01/replyflow/types"
)

// ExecutionSink 接收已结算的运行记录（执行历史的写入口）。
type ExecutionSink interface {
	AppendExecution(ctx context.Context, fingerprint string, result *types.Result, sharedFlight bool) error
}

// EngineConfig 引擎级参数。
type EngineConfig struct {
	// SimilarityThreshold 语义命中的最低余弦相似度。
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`

	// TTL 各缓存类别的存活时间。
	TTL cache.TTLConfig `yaml:"ttl" json:"ttl"`

	// EmbedTimeout 嵌入计算的超时。
	EmbedTimeout time.Duration `yaml:"embed_timeout" json:"embed_timeout"`

	// DuplicateWindow 重复提交检测的时间窗。
	DuplicateWindow time.Duration `yaml:"duplicate_window" json:"duplicate_window"`
}

// DefaultEngineConfig 返回默认引擎参数。
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SimilarityThreshold: 0.85,
		TTL:                 cache.DefaultTTLConfig(),
		EmbedTimeout:        10 * time.Second,
		DuplicateWindow:     DefaultDuplicateWindow,
	}
}

// EngineOptions 组装引擎的依赖。Provider、Store、Aggregator 必填，
// 其余缺省时按默认值补齐；Embedder 为 nil 时语义查找整体关闭。
type EngineOptions struct {
	Provider    llm.Provider
	Embedder    llm.Embedder
	Store       cache.Store
	EmbedPool   *pool.Pool
	Coordinator *singleflight.Coordinator
	Aggregator  *Aggregator
	Guard       *DuplicateRunGuard
	Broker      *ProgressBroker
	History     ExecutionSink
	Metrics     *metrics.Collector
	Config      EngineConfig
	Logger      *zap.Logger
}

// Engine 是回复工作流的提交入口，负责缓存判定、并发合并与结果落盘。
type Engine struct {
	provider    llm.Provider
	embedder    llm.Embedder
	store       cache.Store
	embedPool   *pool.Pool
	coordinator *singleflight.Coordinator
	aggregator  *Aggregator
	guard       *DuplicateRunGuard
	broker      *ProgressBroker
	history     ExecutionSink
	metrics     *metrics.Collector
	config      EngineConfig
	logger      *zap.Logger
}

// NewEngine 创建引擎。
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Provider == nil {
		return nil, errors.New("engine requires a completion provider")
	}
	if opts.Store == nil {
		return nil, errors.New("engine requires a cache store")
	}
	if opts.Aggregator == nil {
		return nil, errors.New("engine requires an aggregator")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := opts.Config
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = DefaultEngineConfig().SimilarityThreshold
	}
	if cfg.TTL.For(cache.CategoryWorkflowResult) <= 0 {
		cfg.TTL = cache.DefaultTTLConfig()
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = DefaultEngineConfig().EmbedTimeout
	}

	coordinator := opts.Coordinator
	if coordinator == nil {
		coordinator = singleflight.NewCoordinator(logger)
	}
	guard := opts.Guard
	if guard == nil {
		guard = NewDuplicateRunGuard(cfg.DuplicateWindow, logger)
	}
	broker := opts.Broker
	if broker == nil {
		broker = NewProgressBroker(logger)
	}
	embedPool := opts.EmbedPool
	if embedPool == nil {
		embedPool = pool.New(8)
	}

	return &Engine{
		provider:    opts.Provider,
		embedder:    opts.Embedder,
		store:       opts.Store,
		embedPool:   embedPool,
		coordinator: coordinator,
		aggregator:  opts.Aggregator,
		guard:       guard,
		broker:      broker,
		history:     opts.History,
		metrics:     opts.Metrics,
		config:      cfg,
		logger:      logger.With(zap.String("component", "engine")),
	}, nil
}

// Submit 处理一次回复请求：
// 校验 → 指纹 → 精确缓存 → 语义缓存 → 合并执行 → 落盘。
//
// 必需步骤失败返回 STEP_FAILED 错误且不产生缓存条目；
// 同一指纹的并发提交合并为一次执行，共享同一结果。
func (e *Engine) Submit(ctx context.Context, req *types.Request) (*types.Result, error) {
	e.metrics.SubmitStarted()
	defer e.metrics.SubmitFinished()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	fp, err := fingerprint.Build(req)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With(zap.String("fingerprint", fp))

	// 精确查找
	if entry, err := e.store.GetExact(ctx, fp, cache.CategoryWorkflowResult); err == nil {
		e.metrics.CacheHit(string(cache.CategoryWorkflowResult), "exact")
		logger.Debug("exact cache hit")
		return entry.Payload, nil
	} else if !cache.IsCacheMiss(err) {
		logger.Warn("exact cache lookup failed, treating as miss", zap.Error(err))
	}

	// 语义查找。嵌入失败只降级为跳过语义路径，绝不失败整个提交。
	embedding := e.embed(ctx, req, logger)
	if embedding != nil {
		if entry, err := e.store.GetSemantic(ctx, embedding, cache.CategoryWorkflowResult, e.config.SimilarityThreshold); err == nil {
			e.metrics.CacheHit(string(cache.CategoryWorkflowResult), "semantic")
			logger.Debug("semantic cache hit", zap.String("matched_fingerprint", entry.Fingerprint))
			return entry.Payload, nil
		} else if !cache.IsCacheMiss(err) {
			logger.Warn("semantic cache lookup failed, treating as miss", zap.Error(err))
		}
	}

	e.metrics.CacheMiss(string(cache.CategoryWorkflowResult))

	// 缓存未命中：合并执行。落盘在计算体内完成，保证恰好一次。
	result, shared, err := e.coordinator.Do(ctx, fp, func(runCtx context.Context) (*types.Result, error) {
		steps := BuildSteps(e.provider, req.Steps)
		res := e.aggregator.Run(runCtx, fp, req, steps)

		if res.Failed() {
			return nil, stepFailedError(res)
		}

		e.persist(runCtx, fp, embedding, res)
		return res, nil
	})

	if shared {
		e.metrics.FlightShared()
		logger.Debug("joined in-flight computation")
	} else {
		e.metrics.FlightStarted()
	}

	if err != nil {
		return nil, err
	}
	return result, nil
}

// embed 通过受限池计算请求嵌入；嵌入器缺失或失败时返回 nil。
func (e *Engine) embed(ctx context.Context, req *types.Request, logger *zap.Logger) []float64 {
	if e.embedder == nil {
		return nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, e.config.EmbedTimeout)
	defer cancel()

	var vec []float64
	err := e.embedPool.Do(embedCtx, func(ctx context.Context) error {
		var embedErr error
		vec, embedErr = e.embedder.EmbedQuery(ctx, req.Text())
		return embedErr
	})
	if err != nil {
		e.metrics.EmbedFailure()
		logger.Warn("embedding failed, degrading to exact-only lookup", zap.Error(err))
		return nil
	}
	return vec
}

// persist 将成功结果写入缓存、执行历史与重复提交守卫。
// 写入失败只记录日志：结果已经产生，不应因落盘问题丢给调用方一个错误。
func (e *Engine) persist(ctx context.Context, fp string, embedding []float64, res *types.Result) {
	entry := &cache.Entry{
		Fingerprint: fp,
		Embedding:   embedding,
		Category:    cache.CategoryWorkflowResult,
		Payload:     res,
		CreatedAt:   time.Now(),
		TTL:         e.config.TTL.For(cache.CategoryWorkflowResult),
	}
	if err := e.store.Put(ctx, entry); err != nil {
		e.logger.Error("failed to cache workflow result", zap.String("fingerprint", fp), zap.Error(err))
	}

	if e.history != nil {
		if err := e.history.AppendExecution(ctx, fp, res, false); err != nil {
			e.logger.Error("failed to append execution history", zap.String("fingerprint", fp), zap.Error(err))
		}
	}

	e.guard.Record(fp, time.Now())
}

// RecentRun 报告同一请求在重复提交时间窗内最近一次完成的时刻。
func (e *Engine) RecentRun(req *types.Request) (time.Time, bool, error) {
	fp, err := fingerprint.Build(req)
	if err != nil {
		return time.Time{}, false, err
	}
	at, ok := e.guard.Recent(fp)
	return at, ok, nil
}

// Subscribe 订阅某个指纹的步骤进度事件。
func (e *Engine) Subscribe(fp string) (<-chan ProgressEvent, func()) {
	return e.broker.Subscribe(fp)
}

// Stats 返回引擎各组件的运行统计。
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Singleflight:  e.coordinator.Stats(),
		EmbedPool:     e.embedPool.Stats(),
		GuardEntries:  e.guard.Len(),
		DroppedEvents: e.broker.Dropped(),
	}
}

// EngineStats 汇总引擎统计信息。
type EngineStats struct {
	Singleflight  singleflight.Stats `json:"singleflight"`
	EmbedPool     pool.Stats         `json:"embed_pool"`
	GuardEntries  int                `json:"guard_entries"`
	DroppedEvents int64              `json:"dropped_events"`
}

// stepFailedError 把必需步骤的失败物化为结构化错误。
func stepFailedError(res *types.Result) error {
	if sr, ok := res.Step(types.StepReplyGeneration); ok && !sr.OK() {
		return types.NewError(types.ErrStepFailed,
			fmt.Sprintf("required step %s settled as %s: %s", sr.StepName, sr.Status, sr.Error))
	}
	return types.NewError(types.ErrStepFailed, "required step failed")
}
