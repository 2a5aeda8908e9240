package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/replyflow/types"
)

func TestProgressBroker_PublishDelivery(t *testing.T) {
	b := NewProgressBroker(zap.NewNop())

	ch, cancel := b.Subscribe("fp-1")
	defer cancel()

	b.Publish(ProgressEvent{Fingerprint: "fp-1", Step: types.StepReplyGeneration, State: StateRunning})

	select {
	case ev := <-ch:
		assert.Equal(t, types.StepReplyGeneration, ev.Step)
		assert.Equal(t, StateRunning, ev.State)
		assert.False(t, ev.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected a progress event")
	}
}

func TestProgressBroker_FingerprintIsolation(t *testing.T) {
	b := NewProgressBroker(zap.NewNop())

	ch, cancel := b.Subscribe("fp-a")
	defer cancel()

	b.Publish(ProgressEvent{Fingerprint: "fp-b", Step: types.StepThreadAnalysis, State: StateQueued})

	select {
	case <-ch:
		t.Fatal("event for another fingerprint must not be delivered")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestProgressBroker_SlowSubscriberDropsEvents(t *testing.T) {
	b := NewProgressBroker(zap.NewNop())

	_, cancel := b.Subscribe("fp")
	defer cancel()

	// 无人消费，塞满缓冲后继续发布不得阻塞
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+5; i++ {
			b.Publish(ProgressEvent{Fingerprint: "fp", Step: types.StepReplyGeneration, State: StateRunning})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish must never block on a slow subscriber")
	}
	assert.GreaterOrEqual(t, b.Dropped(), int64(5))
}

func TestProgressBroker_CancelIdempotent(t *testing.T) {
	b := NewProgressBroker(zap.NewNop())

	ch, cancel := b.Subscribe("fp")
	require.Equal(t, 1, b.Subscribers("fp"))

	cancel()
	cancel()

	assert.Equal(t, 0, b.Subscribers("fp"))

	_, open := <-ch
	assert.False(t, open, "channel must be closed after cancel")
}
