package history

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/replyflow/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s, err := NewStore(db, zap.NewNop())
	require.NoError(t, err)
	return s
}

func settledResult(fp string, status types.OverallStatus) *types.Result {
	return &types.Result{
		Fingerprint: fp,
		Status:      status,
		Steps: map[types.StepName]*types.StepResult{
			types.StepReplyGeneration: {
				StepName: types.StepReplyGeneration,
				Status:   types.StepCompleted,
				Output:   "a reply",
			},
		},
		Duration: 1200 * time.Millisecond,
	}
}

func TestStore_AppendAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendExecution(ctx, "fp-1", settledResult("fp-1", types.StatusCompleted), false))
	require.NoError(t, s.AppendExecution(ctx, "fp-1", settledResult("fp-1", types.StatusPartial), true))
	require.NoError(t, s.AppendExecution(ctx, "fp-2", settledResult("fp-2", types.StatusCompleted), false))

	records, err := s.RecentByFingerprint(ctx, "fp-1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 2)

	for _, r := range records {
		assert.Equal(t, "fp-1", r.Fingerprint)
		assert.NotEmpty(t, r.ID)
	}
}

func TestStore_StepsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendExecution(ctx, "fp", settledResult("fp", types.StatusCompleted), false))

	records, err := s.RecentByFingerprint(ctx, "fp", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)

	steps, err := records[0].Steps()
	require.NoError(t, err)
	require.Contains(t, steps, types.StepReplyGeneration)
	assert.Equal(t, "a reply", steps[types.StepReplyGeneration].Output)
}

func TestStore_RecentByFingerprint_WindowFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendExecution(ctx, "fp", settledResult("fp", types.StatusCompleted), false))

	// since 在写入之后：窗口外
	records, err := s.RecentByFingerprint(ctx, "fp", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_Recent_Limit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendExecution(ctx, "fp", settledResult("fp", types.StatusCompleted), false))
	}

	records, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestStore_AppendRejectsNilResult(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.AppendExecution(context.Background(), "fp", nil, false))
}
