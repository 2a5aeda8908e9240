package cache

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/replyflow/types"
)

// ErrCacheMiss 缓存未命中错误。
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss 判断是否为缓存未命中错误。
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Category 是缓存条目的命名空间，每个类别有独立的默认 TTL。
type Category string

const (
	CategoryWorkflowResult Category = "workflow_result"
	CategoryProfileLookup  Category = "profile_lookup"
	CategoryFAQAnswer      Category = "faq_answer"
)

// TTLConfig 各类别的 TTL 配置。
type TTLConfig struct {
	WorkflowResult time.Duration `yaml:"workflow_result" json:"workflow_result"`
	ProfileLookup  time.Duration `yaml:"profile_lookup" json:"profile_lookup"`
	FAQAnswer      time.Duration `yaml:"faq_answer" json:"faq_answer"`
}

// DefaultTTLConfig 返回默认 TTL：工作流结果 1 小时，档案 24 小时，FAQ 7 天。
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		WorkflowResult: time.Hour,
		ProfileLookup:  24 * time.Hour,
		FAQAnswer:      7 * 24 * time.Hour,
	}
}

// For 返回类别的默认 TTL。
func (c TTLConfig) For(cat Category) time.Duration {
	switch cat {
	case CategoryProfileLookup:
		return c.ProfileLookup
	case CategoryFAQAnswer:
		return c.FAQAnswer
	default:
		return c.WorkflowResult
	}
}

// Entry 是一条缓存记录。成功计算后创建，TTL 内可被多次读取，
// 过期后视为不存在（惰性清除）。
type Entry struct {
	Fingerprint string        `json:"fingerprint"`
	Embedding   []float64     `json:"embedding,omitempty"`
	Category    Category      `json:"category"`
	Payload     *types.Result `json:"payload"`
	CreatedAt   time.Time     `json:"created_at"`
	TTL         time.Duration `json:"ttl"`
}

// Expired reports whether the entry has outlived its TTL.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.CreatedAt.Add(e.TTL))
}

// Store 是带 TTL 的缓存存储，同时维护精确键与语义两个索引。
//
// 并发约定：不同指纹的读写互不阻塞；同一指纹的 Put 为幂等覆盖写
// （实践中由 singleflight 保证同一指纹同时只有一个写入者）。
type Store interface {
	// GetExact 按指纹精确查找；过期或不存在返回 ErrCacheMiss。
	GetExact(ctx context.Context, fingerprint string, category Category) (*Entry, error)

	// GetSemantic 委托向量索引做最近邻查找，
	// 返回相似度 ≥ threshold 的最近条目；无匹配返回 ErrCacheMiss。
	GetSemantic(ctx context.Context, embedding []float64, category Category, threshold float64) (*Entry, error)

	// Put 写入一条记录（last write wins）。失败结果不可缓存。
	Put(ctx context.Context, entry *Entry) error

	// Delete 删除一条记录。
	Delete(ctx context.Context, fingerprint string, category Category) error

	// Close 释放后台资源。
	Close() error
}

// validateEntry 拒绝不可缓存的条目：失败结果永不入缓存，
// 保证后续调用获得全新计算而不是冻结的失败。
func validateEntry(entry *Entry) error {
	if entry == nil || entry.Payload == nil {
		return errors.New("cache entry payload is required")
	}
	if entry.Fingerprint == "" {
		return errors.New("cache entry fingerprint is required")
	}
	if entry.Payload.Status == types.StatusFailed {
		return errors.New("failed results are not cacheable")
	}
	if entry.TTL <= 0 {
		return errors.New("cache entry ttl must be positive")
	}
	return nil
}
