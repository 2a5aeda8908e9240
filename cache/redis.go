package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/replyflow/semantic"
)

// RedisStore 是基于 Redis 的缓存实现：条目以 JSON 存储并使用原生 TTL。
// 向量索引保持进程内（语义查找先查索引，再回 Redis 取条目；
// Redis 条目先过期时，索引在下次查找时被修正）。
type RedisStore struct {
	redis  *redis.Client
	prefix string
	index  *semantic.Index
	logger *zap.Logger
}

// RedisStoreConfig 配置 Redis 缓存。
type RedisStoreConfig struct {
	Addr         string `yaml:"addr" json:"addr"`
	Password     string `yaml:"password" json:"password"`
	DB           int    `yaml:"db" json:"db"`
	MaxRetries   int    `yaml:"max_retries" json:"max_retries"`
	PoolSize     int    `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns" json:"min_idle_conns"`
	// KeyPrefix Redis 键前缀。
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// DefaultRedisStoreConfig 返回默认 Redis 配置。
func DefaultRedisStoreConfig() RedisStoreConfig {
	return RedisStoreConfig{
		Addr:         "localhost:6379",
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "replyflow:cache:",
	}
}

// NewRedisStore 从已建立的客户端创建 Redis 缓存。
func NewRedisStore(rdb *redis.Client, prefix string, index *semantic.Index, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "replyflow:cache:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if index == nil {
		index = semantic.NewIndex(logger)
	}

	return &RedisStore{
		redis:  rdb,
		prefix: prefix,
		index:  index,
		logger: logger.With(zap.String("component", "redis_cache")),
	}
}

// DialRedis 建立 Redis 连接并做一次连通性检查。
func DialRedis(cfg RedisStoreConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func (s *RedisStore) redisKey(category Category, fingerprint string) string {
	return s.prefix + string(category) + ":" + fingerprint
}

// GetExact 实现 Store.GetExact。
func (s *RedisStore) GetExact(ctx context.Context, fingerprint string, category Category) (*Entry, error) {
	data, err := s.redis.Get(ctx, s.redisKey(category, fingerprint)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		s.logger.Error("cache get failed",
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)
		return nil, fmt.Errorf("cache get failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	// Redis 原生 TTL 已处理过期；双重校验防止时钟偏差
	if entry.Expired(time.Now()) {
		return nil, ErrCacheMiss
	}

	return &entry, nil
}

// GetSemantic 实现 Store.GetSemantic。
func (s *RedisStore) GetSemantic(ctx context.Context, embedding []float64, category Category, threshold float64) (*Entry, error) {
	match, ok := s.index.Nearest(string(category), embedding, threshold)
	if !ok {
		return nil, ErrCacheMiss
	}

	entry, err := s.GetExact(ctx, match.Fingerprint, category)
	if err != nil {
		if IsCacheMiss(err) {
			s.index.Remove(string(category), match.Fingerprint)
		}
		return nil, err
	}

	s.logger.Debug("semantic cache hit",
		zap.String("category", string(category)),
		zap.String("fingerprint", match.Fingerprint),
		zap.Float64("similarity", match.Similarity),
	)

	return entry, nil
}

// Put 实现 Store.Put。
func (s *RedisStore) Put(ctx context.Context, entry *Entry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	key := s.redisKey(entry.Category, entry.Fingerprint)
	if err := s.redis.Set(ctx, key, data, entry.TTL).Err(); err != nil {
		s.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}

	if len(entry.Embedding) > 0 {
		s.index.Add(string(entry.Category), entry.Fingerprint, entry.Embedding, entry.CreatedAt, entry.TTL)
	}

	return nil
}

// Delete 实现 Store.Delete。
func (s *RedisStore) Delete(ctx context.Context, fingerprint string, category Category) error {
	if err := s.redis.Del(ctx, s.redisKey(category, fingerprint)).Err(); err != nil {
		return fmt.Errorf("cache delete failed: %w", err)
	}
	s.index.Remove(string(category), fingerprint)
	return nil
}

// Close 关闭 Redis 连接。
func (s *RedisStore) Close() error {
	return s.redis.Close()
}
