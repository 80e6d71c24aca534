package tokens

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whiskermap/go-catmap-backend/internal/aws/awstest"
	"github.com/whiskermap/go-catmap-backend/internal/core"
)

func newTestStore() *Store {
	fake := awstest.NewFakeDynamo()
	fake.CreateTable("tokens", "token", "")
	return NewStore(fake, "tokens")
}

func TestIssueAndRedeem(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	tok, err := store.Issue(ctx, TreatScope("cat-1"), time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	require.NoError(t, store.Redeem(ctx, tok, TreatScope("cat-1")))
}

func TestIssue_TokensAreUnique(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	a, err := store.Issue(ctx, "s", time.Minute)
	require.NoError(t, err)
	b, err := store.Issue(ctx, "s", time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRedeem_SecondAttemptFails(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	tok, err := store.Issue(ctx, TreatScope("cat-1"), time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.Redeem(ctx, tok, TreatScope("cat-1")))
	assert.ErrorIs(t, store.Redeem(ctx, tok, TreatScope("cat-1")), core.ErrTokenAlreadyUsed)
}

func TestRedeem_Expired(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.nowFunc = func() time.Time { return issued }
	tok, err := store.Issue(ctx, TreatScope("cat-1"), 30*time.Second)
	require.NoError(t, err)

	store.nowFunc = func() time.Time { return issued.Add(31 * time.Second) }
	assert.ErrorIs(t, store.Redeem(ctx, tok, TreatScope("cat-1")), core.ErrTokenExpired)
}

func TestRedeem_ExpiryWinsOverConsumption(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.nowFunc = func() time.Time { return issued }
	tok, err := store.Issue(ctx, "s", 30*time.Second)
	require.NoError(t, err)
	require.NoError(t, store.Redeem(ctx, tok, "s"))

	store.nowFunc = func() time.Time { return issued.Add(time.Minute) }
	assert.ErrorIs(t, store.Redeem(ctx, tok, "s"), core.ErrTokenExpired)
}

func TestRedeem_UnknownTokenAndScopeMismatch(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	assert.ErrorIs(t, store.Redeem(ctx, "never-issued", "s"), core.ErrTokenNotFound)

	tok, err := store.Issue(ctx, TreatScope("cat-1"), time.Minute)
	require.NoError(t, err)
	// token bound to cat-1 cannot authorize an action on cat-2
	assert.ErrorIs(t, store.Redeem(ctx, tok, TreatScope("cat-2")), core.ErrTokenNotFound)
	// and the mismatch did not consume it
	require.NoError(t, store.Redeem(ctx, tok, TreatScope("cat-1")))
}

func TestRedeem_ConcurrentAttempts_OneWinner(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	tok, err := store.Issue(ctx, "s", time.Minute)
	require.NoError(t, err)

	const n = 16
	var wins, used int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := store.Redeem(ctx, tok, "s"); {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case assert.ErrorIs(t, err, core.ErrTokenAlreadyUsed):
				atomic.AddInt32(&used, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(n-1), used)
}
