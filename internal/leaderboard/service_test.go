package leaderboard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whiskermap/go-catmap-backend/internal/core"
)

func newTestService(t *testing.T) (*miniredis.Miniredis, *Service, *Store) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cache, err := NewCache("redis://"+mr.Addr(), 30*time.Second, zap.NewNop())
	require.NoError(t, err)

	store := newTestStore()
	return mr, NewService(store, cache, 100), store
}

func TestTopN_BoundsChecked(t *testing.T) {
	_, svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.TopN(ctx, "u33d", 0)
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = svc.TopN(ctx, "u33d", 101)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestTopN_CacheAside(t *testing.T) {
	mr, svc, store := newTestService(t)
	ctx := context.Background()

	_, err := store.IncrementScore(ctx, "userA", "u33d")
	require.NoError(t, err)

	entries, err := svc.TopN(ctx, "u33d", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, mr.Exists("leaderboard:top:u33d"))

	// a write bypassing the service would be invisible until TTL or
	// invalidation; the cached list is served as-is
	_, err = store.IncrementScore(ctx, "userB", "u33d")
	require.NoError(t, err)
	entries, err = svc.TopN(ctx, "u33d", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestIncrementScore_InvalidatesCache(t *testing.T) {
	mr, svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.IncrementScore(ctx, "userA", "u33d")
	require.NoError(t, err)

	entries, err := svc.TopN(ctx, "u33d", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, mr.Exists("leaderboard:top:u33d"))

	_, err = svc.IncrementScore(ctx, "userB", "u33d")
	require.NoError(t, err)
	assert.False(t, mr.Exists("leaderboard:top:u33d"))

	entries, err = svc.TopN(ctx, "u33d", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestTopN_NilCacheIsSafe(t *testing.T) {
	store := newTestStore()
	svc := NewService(store, nil, 100)
	ctx := context.Background()

	_, err := store.IncrementScore(ctx, "userA", "u33d")
	require.NoError(t, err)

	entries, err := svc.TopN(ctx, "u33d", 5)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
