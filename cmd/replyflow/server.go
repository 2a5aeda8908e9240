package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/replyflow/cache"
	"github.com/BaSui01/replyflow/config"
	"github.com/BaSui01/replyflow/internal/history"
	"github.com/BaSui01/replyflow/internal/metrics"
	"github.com/BaSui01/replyflow/internal/pool"
	"github.com/BaSui01/replyflow/llm"
	"github.com/BaSui01/replyflow/semantic"
	"github.com/BaSui01/replyflow/types"
	"github.com/BaSui01/replyflow/workflow"
)

// Server 是 ReplyFlow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	engine   *workflow.Engine
	store    cache.Store
	history  *history.Store
	registry *prometheus.Registry

	httpServer *http.Server
}

// NewServer 组装全部组件并创建服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 缓存后端：配置了 Redis 地址则用 Redis，否则用内存
	index := semantic.NewIndex(logger)
	var store cache.Store
	if cfg.Redis.Addr != "" {
		client, err := cache.DialRedis(cache.RedisStoreConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect redis cache backend: %w", err)
		}
		store = cache.NewRedisStore(client, cfg.Redis.KeyPrefix, index, logger)
		logger.Info("Cache backend: redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		store = cache.NewMemoryStore(cache.MemoryStoreConfig{
			CleanupInterval: cfg.Cache.CleanupInterval,
		}, index, logger)
		logger.Info("Cache backend: memory")
	}

	provider := llm.NewOpenAIProvider(llm.OpenAIConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: float32(cfg.LLM.Temperature),
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		RPS:         cfg.LLM.RPS,
		Burst:       cfg.LLM.Burst,
	})

	var embedder llm.Embedder
	if cfg.Embedding.Enabled {
		embedder = llm.NewOpenAIEmbedder(llm.EmbedderConfig{
			BaseURL:    cfg.LLM.BaseURL,
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    cfg.Embedding.Timeout,
			RPS:        cfg.LLM.RPS,
			Burst:      cfg.LLM.Burst,
		})
	}

	// 执行历史（可选）
	var historyStore *history.Store
	if cfg.Database.Path != "" {
		db, err := gorm.Open(sqlite.Open(cfg.Database.Path), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
		historyStore, err = history.NewStore(db, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Execution history enabled", zap.String("path", cfg.Database.Path))
	}

	retryer := llm.NewBackoffRetryer(llm.DefaultRetryPolicy(), logger)
	executor := workflow.NewExecutor(retryer, collector, logger)
	broker := workflow.NewProgressBroker(logger)
	aggregator := workflow.NewAggregator(
		executor,
		pool.New(cfg.Workflow.MaxConcurrentSteps),
		broker,
		workflow.AggregatorConfig{
			DefaultStepTimeout: cfg.Workflow.DefaultStepTimeout,
			OverallTimeout:     cfg.Workflow.OverallTimeout,
		},
		logger,
	)

	opts := workflow.EngineOptions{
		Provider:   provider,
		Embedder:   embedder,
		Store:      store,
		EmbedPool:  pool.New(cfg.Embedding.PoolSize),
		Aggregator: aggregator,
		Broker:     broker,
		Metrics:    collector,
		Config: workflow.EngineConfig{
			SimilarityThreshold: cfg.Cache.SimilarityThreshold,
			TTL: cache.TTLConfig{
				WorkflowResult: cfg.Cache.WorkflowResultTTL,
				ProfileLookup:  cfg.Cache.ProfileLookupTTL,
				FAQAnswer:      cfg.Cache.FAQAnswerTTL,
			},
			EmbedTimeout:    cfg.Embedding.Timeout,
			DuplicateWindow: cfg.Workflow.DuplicateWindow,
		},
		Logger: logger,
	}
	if historyStore != nil {
		opts.History = historyStore
	}

	engine, err := workflow.NewEngine(opts)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:      cfg,
		logger:   logger,
		engine:   engine,
		store:    store,
		history:  historyStore,
		registry: registry,
	}, nil
}

// Start 启动 HTTP 服务器（非阻塞）
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/replies", s.handleSubmit)
	mux.HandleFunc("POST /v1/replies/recent", s.handleRecent)
	mux.HandleFunc("GET /v1/replies/history", s.handleHistory)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /ws/progress", s.handleProgress)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP shutdown was not clean", zap.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("Cache store close failed", zap.Error(err))
	}
}

// handleSubmit 提交一次回复工作流
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req types.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, types.NewInvalidRequestError("malformed JSON body"))
		return
	}

	result, err := s.engine.Submit(r.Context(), &req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleRecent 查询同一请求在重复提交时间窗内的最近一次完成
func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	var req types.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, types.NewInvalidRequestError("malformed JSON body"))
		return
	}

	at, ok, err := s.engine.RecentRun(&req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	resp := map[string]any{"recent": ok}
	if ok {
		resp["completed_at"] = at
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHistory 返回最近的运行记录
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, errors.New("execution history is not enabled"))
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	var (
		records []history.ExecutionRecord
		err     error
	)
	if fp := r.URL.Query().Get("fingerprint"); fp != "" {
		records, err = s.history.RecentByFingerprint(r.Context(), fp, time.Now().Add(-24*time.Hour))
	} else {
		records, err = s.history.Recent(r.Context(), limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleStats 返回引擎运行统计
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

// handleProgress 通过 WebSocket 推送某个指纹的步骤进度
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	fp := r.URL.Query().Get("fingerprint")
	if fp == "" {
		writeError(w, http.StatusBadRequest, types.NewInvalidRequestError("fingerprint query parameter is required"))
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	events, cancel := s.engine.Subscribe(fp)
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				s.logger.Debug("websocket write failed, dropping subscriber", zap.Error(err))
				return
			}
		}
	}
}

// handleHealth 健康检查
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}

// statusForError 把结构化错误映射为 HTTP 状态码
func statusForError(err error) int {
	switch types.GetErrorCode(err) {
	case types.ErrInvalidRequest:
		return http.StatusBadRequest
	case types.ErrRateLimited:
		return http.StatusTooManyRequests
	case types.ErrTimeout:
		return http.StatusGatewayTimeout
	case types.ErrStepFailed, types.ErrProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	var structured *types.Error
	if errors.As(err, &structured) {
		writeJSON(w, status, map[string]any{"error": structured})
		return
	}
	writeJSON(w, status, map[string]any{"error": map[string]string{"message": err.Error()}})
}
