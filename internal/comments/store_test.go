package comments

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whiskermap/go-catmap-backend/internal/aws/awstest"
	"github.com/whiskermap/go-catmap-backend/internal/core"
)

func newTestStore() (*awstest.FakeDynamo, *Store) {
	fake := awstest.NewFakeDynamo()
	fake.CreateTable("comments", "cat_id", "comment_id")
	return fake, NewStore(fake, "comments", 500)
}

func TestPost_StoresTrimmedComment(t *testing.T) {
	_, store := newTestStore()

	c, err := store.Post(context.Background(), "cat-1", "visitor-1", "  what a fluffy tail  ")
	require.NoError(t, err)
	assert.Equal(t, "what a fluffy tail", c.Body)
	assert.Equal(t, "cat-1", c.CatID)
	assert.NotEmpty(t, c.CommentID)

	page, next, err := store.ListByCat(context.Background(), "cat-1", "", 10, false)
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, page, 1)
	assert.Equal(t, "what a fluffy tail", page[0].Body)
	assert.Equal(t, "visitor-1", page[0].VisitorID)
}

func TestPost_RejectsEmptyAndOversizedBody(t *testing.T) {
	_, store := newTestStore()
	ctx := context.Background()

	_, err := store.Post(ctx, "cat-1", "visitor-1", "   ")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = store.Post(ctx, "cat-1", "visitor-1", strings.Repeat("x", 501))
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = store.Post(ctx, "cat-1", "visitor-1", strings.Repeat("x", 500))
	assert.NoError(t, err)
}

func TestListByCat_NewestFirstByDefault(t *testing.T) {
	_, store := newTestStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		tick := base.Add(time.Duration(i) * time.Second)
		store.nowFunc = func() time.Time { return tick }
		_, err := store.Post(ctx, "cat-1", "visitor-1", fmt.Sprintf("comment %d", i))
		require.NoError(t, err)
	}

	page, _, err := store.ListByCat(ctx, "cat-1", "", 10, false)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "comment 2", page[0].Body)
	assert.Equal(t, "comment 0", page[2].Body)

	oldest, _, err := store.ListByCat(ctx, "cat-1", "", 10, true)
	require.NoError(t, err)
	assert.Equal(t, "comment 0", oldest[0].Body)
}

func TestListByCat_OrdersAcrossSubSecondTimestamps(t *testing.T) {
	_, store := newTestStore()
	ctx := context.Background()

	// whole-second and fractional timestamps within the same second must
	// still list chronologically
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, tick := range []time.Time{base, base.Add(500 * time.Millisecond), base.Add(time.Second)} {
		now := tick
		store.nowFunc = func() time.Time { return now }
		_, err := store.Post(ctx, "cat-1", "visitor-1", fmt.Sprintf("comment %d", i))
		require.NoError(t, err)
	}

	oldest, _, err := store.ListByCat(ctx, "cat-1", "", 10, true)
	require.NoError(t, err)
	require.Len(t, oldest, 3)
	assert.Equal(t, "comment 0", oldest[0].Body)
	assert.Equal(t, "comment 1", oldest[1].Body)
	assert.Equal(t, "comment 2", oldest[2].Body)
}

func TestListByCat_PaginatesWithCursor(t *testing.T) {
	_, store := newTestStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		tick := base.Add(time.Duration(i) * time.Second)
		store.nowFunc = func() time.Time { return tick }
		_, err := store.Post(ctx, "cat-1", "visitor-1", fmt.Sprintf("comment %d", i))
		require.NoError(t, err)
	}

	var seen []string
	cursor := ""
	for {
		page, next, err := store.ListByCat(ctx, "cat-1", cursor, 2, false)
		require.NoError(t, err)
		for _, c := range page {
			seen = append(seen, c.Body)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	assert.Equal(t, []string{"comment 4", "comment 3", "comment 2", "comment 1", "comment 0"}, seen)
}

func TestListByCat_RejectsMalformedCursor(t *testing.T) {
	_, store := newTestStore()

	_, _, err := store.ListByCat(context.Background(), "cat-1", "not base64!!", 10, false)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestRemove_DeletesComment(t *testing.T) {
	_, store := newTestStore()
	ctx := context.Background()

	c, err := store.Post(ctx, "cat-1", "visitor-1", "rude remark")
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, "cat-1", c.CommentID))

	page, _, err := store.ListByCat(ctx, "cat-1", "", 10, false)
	require.NoError(t, err)
	assert.Empty(t, page)

	// removing again is a no-op
	assert.NoError(t, store.Remove(ctx, "cat-1", c.CommentID))
}
