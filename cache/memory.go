package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/replyflow/semantic"
)

// MemoryStore 是基于内存的缓存实现：map + 惰性 TTL + 后台清理。
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry // key: category + ":" + fingerprint
	index   *semantic.Index
	logger  *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

// MemoryStoreConfig 配置内存缓存。
type MemoryStoreConfig struct {
	// CleanupInterval 后台清理过期条目的间隔；0 表示不启动清理协程。
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

// NewMemoryStore 创建内存缓存。
func NewMemoryStore(cfg MemoryStoreConfig, index *semantic.Index, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if index == nil {
		index = semantic.NewIndex(logger)
	}

	s := &MemoryStore{
		entries: make(map[string]*Entry),
		index:   index,
		logger:  logger.With(zap.String("component", "memory_cache")),
		stopCh:  make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 {
		go s.cleanupLoop(cfg.CleanupInterval)
	}

	return s
}

func cacheKey(category Category, fingerprint string) string {
	return string(category) + ":" + fingerprint
}

// GetExact 实现 Store.GetExact。
func (s *MemoryStore) GetExact(ctx context.Context, fingerprint string, category Category) (*Entry, error) {
	key := cacheKey(category, fingerprint)

	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrCacheMiss
	}

	// TTL 在读取时判定：过期视为不存在并顺手删除
	if entry.Expired(time.Now()) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		s.index.Remove(string(category), fingerprint)
		return nil, ErrCacheMiss
	}

	return entry, nil
}

// GetSemantic 实现 Store.GetSemantic。
func (s *MemoryStore) GetSemantic(ctx context.Context, embedding []float64, category Category, threshold float64) (*Entry, error) {
	match, ok := s.index.Nearest(string(category), embedding, threshold)
	if !ok {
		return nil, ErrCacheMiss
	}

	entry, err := s.GetExact(ctx, match.Fingerprint, category)
	if err != nil {
		// 索引与存储短暂不一致：条目刚过期，清理索引后按未命中处理
		s.index.Remove(string(category), match.Fingerprint)
		return nil, ErrCacheMiss
	}

	s.logger.Debug("semantic cache hit",
		zap.String("category", string(category)),
		zap.String("fingerprint", match.Fingerprint),
		zap.Float64("similarity", match.Similarity),
	)

	return entry, nil
}

// Put 实现 Store.Put。
func (s *MemoryStore) Put(ctx context.Context, entry *Entry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[cacheKey(entry.Category, entry.Fingerprint)] = entry
	s.mu.Unlock()

	if len(entry.Embedding) > 0 {
		s.index.Add(string(entry.Category), entry.Fingerprint, entry.Embedding, entry.CreatedAt, entry.TTL)
	}

	return nil
}

// Delete 实现 Store.Delete。
func (s *MemoryStore) Delete(ctx context.Context, fingerprint string, category Category) error {
	s.mu.Lock()
	delete(s.entries, cacheKey(category, fingerprint))
	s.mu.Unlock()

	s.index.Remove(string(category), fingerprint)
	return nil
}

// Close 停止后台清理。
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}

// Len 返回未过期条目数（测试与统计用）。
func (s *MemoryStore) Len() int {
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.entries {
		if !e.Expired(now) {
			count++
		}
	}
	return count
}

// cleanupLoop 定期清理过期条目。
func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	now := time.Now()

	s.mu.Lock()
	expired := make([]*Entry, 0)
	for key, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, key)
			expired = append(expired, e)
		}
	}
	remaining := len(s.entries)
	s.mu.Unlock()

	for _, e := range expired {
		s.index.Remove(string(e.Category), e.Fingerprint)
	}

	if len(expired) > 0 {
		s.logger.Debug("cleaned up expired cache entries",
			zap.Int("expired", len(expired)),
			zap.Int("remaining", remaining),
		)
	}
}
