package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestDuplicateRunGuard_RecentWithinWindow(t *testing.T) {
	g := NewDuplicateRunGuard(time.Minute, zap.NewNop())

	completed := time.Now()
	g.Record("fp-1", completed)

	at, ok := g.Recent("fp-1")
	assert.True(t, ok)
	assert.Equal(t, completed, at)

	_, ok = g.Recent("fp-unknown")
	assert.False(t, ok)
}

func TestDuplicateRunGuard_ExpiredOutsideWindow(t *testing.T) {
	g := NewDuplicateRunGuard(10*time.Millisecond, zap.NewNop())

	g.Record("fp", time.Now())
	time.Sleep(20 * time.Millisecond)

	_, ok := g.Recent("fp")
	assert.False(t, ok)
	assert.Equal(t, 0, g.Len())
}

func TestDuplicateRunGuard_RecordPrunesStaleEntries(t *testing.T) {
	g := NewDuplicateRunGuard(10*time.Millisecond, zap.NewNop())

	g.Record("fp-old", time.Now())
	time.Sleep(20 * time.Millisecond)
	g.Record("fp-new", time.Now())

	assert.Equal(t, 1, g.Len())
}

func TestNewDuplicateRunGuard_DefaultWindow(t *testing.T) {
	g := NewDuplicateRunGuard(0, zap.NewNop())
	assert.Equal(t, DefaultDuplicateWindow, g.window)
}
