package workflow

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/replyflow/types"
)

// StepState 表示步骤在生命周期中的位置。
type StepState string

const (
	StateQueued  StepState = "queued"
	StateRunning StepState = "running"
	StateSettled StepState = "settled"
)

// ProgressEvent 是一次步骤状态变迁。Status 仅在 settled 时有值。
type ProgressEvent struct {
	Fingerprint string           `json:"fingerprint"`
	Step        types.StepName   `json:"step"`
	State       StepState        `json:"state"`
	Status      types.StepStatus `json:"status,omitempty"`
	At          time.Time        `json:"at"`
}

// subscriberBuffer 是每个订阅通道的缓冲大小。
// 满时丢弃事件而不是阻塞执行路径。
const subscriberBuffer = 16

// ProgressBroker 按指纹分发进度事件。投递是尽力而为的：
// 消费慢的订阅者会丢事件，执行路径永不因订阅者阻塞。
type ProgressBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[chan ProgressEvent]struct{}
	logger *zap.Logger

	dropped atomic.Int64
}

// NewProgressBroker 创建进度分发器。
func NewProgressBroker(logger *zap.Logger) *ProgressBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressBroker{
		subs:   make(map[string]map[chan ProgressEvent]struct{}),
		logger: logger.With(zap.String("component", "progress_broker")),
	}
}

// Subscribe 订阅一个指纹的进度事件，返回事件通道与取消函数。
// 取消函数幂等，调用后通道关闭。
func (b *ProgressBroker) Subscribe(fingerprint string) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, subscriberBuffer)

	b.mu.Lock()
	set, ok := b.subs[fingerprint]
	if !ok {
		set = make(map[chan ProgressEvent]struct{})
		b.subs[fingerprint] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.subs[fingerprint]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(b.subs, fingerprint)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish 向指纹的所有订阅者投递事件，通道满则丢弃。
func (b *ProgressBroker) Publish(event ProgressEvent) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[event.Fingerprint] {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
			b.logger.Debug("progress event dropped",
				zap.String("fingerprint", event.Fingerprint),
				zap.String("step", string(event.Step)),
			)
		}
	}
}

// Subscribers 返回指纹当前的订阅者数量。
func (b *ProgressBroker) Subscribers(fingerprint string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[fingerprint])
}

// Dropped 返回因订阅者消费慢而被丢弃的事件总数。
func (b *ProgressBroker) Dropped() int64 {
	return b.dropped.Load()
}
