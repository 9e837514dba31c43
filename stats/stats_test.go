package stats

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRowCountDefaultsWhenUnknown(t *testing.T) {
	s := openTestStore(t)
	n, err := s.RowCount(context.Background(), "widgets")
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultRowCount), n)
}

func TestAdjustAccumulates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "widgets", 0))
	require.NoError(t, s.Adjust(ctx, "widgets", 3))
	require.NoError(t, s.Adjust(ctx, "widgets", -1))

	n, err := s.RowCount(ctx, "widgets")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestAdjustNeverGoesNegative(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "widgets", 0))
	require.NoError(t, s.Adjust(ctx, "widgets", -5))

	n, err := s.RowCount(ctx, "widgets")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestAllReturnsEveryTrackedTable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "widgets", 5))
	require.NoError(t, s.Set(ctx, "gadgets", 2))

	snap, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"widgets": 5, "gadgets": 2}, snap.RowCounts)
}

func TestForgetRemovesRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "widgets", 5))
	require.NoError(t, s.Forget(ctx, "widgets"))

	n, err := s.RowCount(ctx, "widgets")
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultRowCount), n, "forgetting a table reverts it to the unknown default")
}
