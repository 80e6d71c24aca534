package leaderboard

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whiskermap/go-catmap-backend/internal/aws/awstest"
	"github.com/whiskermap/go-catmap-backend/internal/core"
)

func newTestStore() *Store {
	fake := awstest.NewFakeDynamo()
	fake.CreateTable("leaderboard", "user_id", "scope")
	fake.CreateIndex("leaderboard", rankIndex, "scope", "rank_key")
	return NewStore(fake, "leaderboard")
}

func TestRankKey_OrdersDescendingByCountThenUserID(t *testing.T) {
	// higher count sorts first (smaller inverted prefix)
	assert.Less(t, RankKey(5, "userA"), RankKey(3, "userC"))
	// equal counts order by userId ascending
	assert.Less(t, RankKey(5, "userA"), RankKey(5, "userB"))
}

func TestIncrementScore_CountAndRankKeyStayConsistent(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	n, err := store.IncrementScore(ctx, "user-1", "u33d")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.IncrementScore(ctx, "user-1", "u33d")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stat, err := store.Get(ctx, "user-1", "u33d")
	require.NoError(t, err)
	assert.Equal(t, 2, stat.Count)
	assert.Equal(t, RankKey(2, "user-1"), stat.RankKey)
}

func TestIncrementScore_ScopesAreIndependent(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.IncrementScore(ctx, "user-1", "u33d")
	require.NoError(t, err)
	n, err := store.IncrementScore(ctx, "user-1", "9q8y")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIncrementScore_ConcurrentIncrementsAllLand(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.IncrementScore(ctx, "user-1", "u33d")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stat, err := store.Get(ctx, "user-1", "u33d")
	require.NoError(t, err)
	assert.Equal(t, n, stat.Count)
	assert.Equal(t, RankKey(n, "user-1"), stat.RankKey)
}

func TestTopN_OrderAndTieBreak(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	award := func(user string, times int) {
		for i := 0; i < times; i++ {
			_, err := store.IncrementScore(ctx, user, "u33d")
			require.NoError(t, err)
		}
	}
	award("userB", 5)
	award("userA", 5)
	award("userC", 3)

	entries, err := store.TopN(ctx, "u33d", 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, Entry{UserID: "userA", Count: 5}, entries[0])
	assert.Equal(t, Entry{UserID: "userB", Count: 5}, entries[1])
	assert.Equal(t, Entry{UserID: "userC", Count: 3}, entries[2])
}

func TestSetScore_RebuildsRankKey(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.SetScore(ctx, "user-1", "u33d", 42))
	stat, err := store.Get(ctx, "user-1", "u33d")
	require.NoError(t, err)
	assert.Equal(t, 42, stat.Count)
	assert.Equal(t, RankKey(42, "user-1"), stat.RankKey)
}

func TestScopeForGeohash(t *testing.T) {
	assert.Equal(t, "u33d", ScopeForGeohash("u33dc0cp"))
	assert.Equal(t, "u3", ScopeForGeohash("u3"))
}

func TestIncrementScore_CapacityInvariant(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.SetScore(ctx, "user-1", "u33d", maxCount))
	_, err := store.IncrementScore(ctx, "user-1", "u33d")
	assert.ErrorIs(t, err, core.ErrValidation)
}
