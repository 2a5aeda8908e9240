package workflow

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultDuplicateWindow 是重复提交检测的默认时间窗。
const DefaultDuplicateWindow = 10 * time.Minute

// DuplicateRunGuard 记录最近完成的运行，供调用方在重新执行前
// 发现时间窗内的等价运行并复用其结果。
//
// 只是提示机制：窗口过期后记录被惰性清除，不影响正确性。
type DuplicateRunGuard struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]time.Time
	logger  *zap.Logger
}

// NewDuplicateRunGuard 创建时间窗为 window 的守卫；window ≤ 0 时用默认值。
func NewDuplicateRunGuard(window time.Duration, logger *zap.Logger) *DuplicateRunGuard {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DuplicateRunGuard{
		window:  window,
		entries: make(map[string]time.Time),
		logger:  logger.With(zap.String("component", "duplicate_guard")),
	}
}

// Record 登记一次完成的运行。
func (g *DuplicateRunGuard) Record(fingerprint string, completedAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entries[fingerprint] = completedAt
	g.pruneLocked(time.Now())
}

// Recent 返回指纹在时间窗内最近一次完成的时刻。
func (g *DuplicateRunGuard) Recent(fingerprint string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	at, ok := g.entries[fingerprint]
	if !ok {
		return time.Time{}, false
	}
	if time.Since(at) > g.window {
		delete(g.entries, fingerprint)
		return time.Time{}, false
	}
	return at, true
}

// Len 返回当前登记的指纹数。
func (g *DuplicateRunGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

func (g *DuplicateRunGuard) pruneLocked(now time.Time) {
	for fp, at := range g.entries {
		if now.Sub(at) > g.window {
			delete(g.entries, fp)
		}
	}
}
