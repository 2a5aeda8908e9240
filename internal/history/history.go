// Package history persists an append-only log of settled workflow runs.
// This package is internal and should not be imported by external projects.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/replyflow/types"
)

// ExecutionRecord 是一次已结算运行的持久化记录。只追加，不更新。
type ExecutionRecord struct {
	ID           string        `gorm:"primaryKey;size:36" json:"id"`
	Fingerprint  string        `gorm:"size:64;index" json:"fingerprint"`
	Status       string        `gorm:"size:16" json:"status"`
	StepsJSON    string        `gorm:"type:text" json:"-"`
	SharedFlight bool          `json:"shared_flight"`
	Duration     time.Duration `json:"duration"`
	CreatedAt    time.Time     `gorm:"index" json:"created_at"`
}

// TableName 指定表名。
func (ExecutionRecord) TableName() string {
	return "execution_records"
}

// Steps 反序列化记录中的步骤结果。
func (r *ExecutionRecord) Steps() (map[types.StepName]*types.StepResult, error) {
	if r.StepsJSON == "" {
		return nil, nil
	}
	var steps map[types.StepName]*types.StepResult
	if err := json.Unmarshal([]byte(r.StepsJSON), &steps); err != nil {
		return nil, fmt.Errorf("failed to decode step results: %w", err)
	}
	return steps, nil
}

// Store 基于 gorm 的执行历史存储。
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore 创建历史存储并迁移表结构。
func NewStore(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&ExecutionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate execution history schema: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "history")),
	}, nil
}

// AppendExecution 追加一条运行记录。实现 workflow.ExecutionSink。
func (s *Store) AppendExecution(ctx context.Context, fingerprint string, result *types.Result, sharedFlight bool) error {
	if result == nil {
		return fmt.Errorf("execution result is required")
	}

	stepsJSON, err := json.Marshal(result.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode step results: %w", err)
	}

	record := &ExecutionRecord{
		ID:           uuid.NewString(),
		Fingerprint:  fingerprint,
		Status:       string(result.Status),
		StepsJSON:    string(stepsJSON),
		SharedFlight: sharedFlight,
		Duration:     result.Duration,
		CreatedAt:    time.Now(),
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to append execution record: %w", err)
	}

	s.logger.Debug("execution recorded",
		zap.String("id", record.ID),
		zap.String("fingerprint", fingerprint),
		zap.String("status", record.Status),
	)
	return nil
}

// RecentByFingerprint 返回指纹自 since 以来的运行记录，新的在前。
func (s *Store) RecentByFingerprint(ctx context.Context, fingerprint string, since time.Time) ([]ExecutionRecord, error) {
	var records []ExecutionRecord
	err := s.db.WithContext(ctx).
		Where("fingerprint = ? AND created_at >= ?", fingerprint, since).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query execution history: %w", err)
	}
	return records, nil
}

// Recent 返回最近的 limit 条运行记录，新的在前。
func (s *Store) Recent(ctx context.Context, limit int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []ExecutionRecord
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query execution history: %w", err)
	}
	return records, nil
}
