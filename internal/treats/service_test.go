package treats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whiskermap/go-catmap-backend/internal/aws"
	"github.com/whiskermap/go-catmap-backend/internal/aws/awstest"
	"github.com/whiskermap/go-catmap-backend/internal/cats"
	"github.com/whiskermap/go-catmap-backend/internal/core"
	"github.com/whiskermap/go-catmap-backend/internal/leaderboard"
	"github.com/whiskermap/go-catmap-backend/internal/reconcile"
	"github.com/whiskermap/go-catmap-backend/internal/tokens"
)

type fixture struct {
	dynamo      *awstest.FakeDynamo
	sqs         *awstest.FakeSQS
	svc         *Service
	cats        *cats.Store
	tokens      *tokens.Store
	leaderboard *leaderboard.Store
}

func newFixture(t *testing.T) *fixture {
	fake := awstest.NewFakeDynamo()
	fake.CreateTable("cats", "cat_id", "")
	fake.CreateTable("treats", "cat_id", "visitor_id")
	fake.CreateIndex("treats", visitorIndex, "visitor_id", "cat_id")
	fake.CreateTable("tokens", "token", "")
	fake.CreateTable("leaderboard", "user_id", "scope")
	fake.CreateIndex("leaderboard", "rank-index", "scope", "rank_key")

	fakeSQS := &awstest.FakeSQS{}
	catStore := cats.NewStore(fake, "cats")
	tokenStore := tokens.NewStore(fake, "tokens")
	lbStore := leaderboard.NewStore(fake, "leaderboard")
	lb := leaderboard.NewService(lbStore, nil, 100)
	pub := aws.NewPublisher(fakeSQS, "https://sqs.test/reconcile")

	svc := NewService(NewStore(fake, "treats"), catStore, tokenStore, lb, pub, nil, zap.NewNop())
	return &fixture{dynamo: fake, sqs: fakeSQS, svc: svc, cats: catStore, tokens: tokenStore, leaderboard: lbStore}
}

func (f *fixture) approvedCat(t *testing.T) *cats.Cat {
	cat, err := f.cats.Submit(context.Background(), cats.Submission{Lat: 52.52, Lon: 13.405})
	require.NoError(t, err)
	_, err = f.cats.Moderate(context.Background(), cat.CatID, cats.DecisionApprove)
	require.NoError(t, err)
	return cat
}

func (f *fixture) issueToken(t *testing.T, catID string) string {
	tok, err := f.tokens.Issue(context.Background(), tokens.TreatScope(catID), time.Minute)
	require.NoError(t, err)
	return tok
}

func TestGiveTreat_AwardedThenAlreadyGiven(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.approvedCat(t)

	res, err := f.svc.GiveTreat(ctx, cat.CatID, "visitor-1", f.issueToken(t, cat.CatID))
	require.NoError(t, err)
	assert.Equal(t, ResultAwarded, res)

	// second treat with a fresh valid token: AlreadyGiven, no counter bump
	res, err = f.svc.GiveTreat(ctx, cat.CatID, "visitor-1", f.issueToken(t, cat.CatID))
	require.NoError(t, err)
	assert.Equal(t, ResultAlreadyGiven, res)

	got, err := f.cats.Get(ctx, cat.CatID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TreatCount)

	scope := leaderboard.ScopeForGeohash(cat.Geohash)
	stat, err := f.leaderboard.Get(ctx, "visitor-1", scope)
	require.NoError(t, err)
	require.NotNil(t, stat)
	assert.Equal(t, 1, stat.Count)
}

func TestGiveTreat_TokenGatesTheFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.approvedCat(t)

	// unknown token: nothing recorded
	_, err := f.svc.GiveTreat(ctx, cat.CatID, "visitor-1", "bogus")
	assert.ErrorIs(t, err, core.ErrTokenNotFound)

	// replayed token: consumed by the first call
	tok := f.issueToken(t, cat.CatID)
	_, err = f.svc.GiveTreat(ctx, cat.CatID, "visitor-1", tok)
	require.NoError(t, err)
	_, err = f.svc.GiveTreat(ctx, cat.CatID, "visitor-2", tok)
	assert.ErrorIs(t, err, core.ErrTokenAlreadyUsed)

	// only the first, valid call left a treat behind
	n, err := NewStore(f.dynamo, "treats").CountByCat(ctx, cat.CatID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGiveTreat_UnknownCat(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GiveTreat(context.Background(), "missing", "visitor-1", "tok")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestGiveTreat_ConcurrentPairs_ExactlyOneAward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.approvedCat(t)

	const n = 8
	toks := make([]string, n)
	for i := range toks {
		toks[i] = f.issueToken(t, cat.CatID)
	}

	results := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			res, err := f.svc.GiveTreat(ctx, cat.CatID, "visitor-1", tok)
			assert.NoError(t, err)
			results <- res
		}(toks[i])
	}
	wg.Wait()
	close(results)

	awarded := 0
	for res := range results {
		if res == ResultAwarded {
			awarded++
		}
	}
	assert.Equal(t, 1, awarded)

	got, err := f.cats.Get(ctx, cat.CatID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TreatCount)
}

func TestGiveTreat_CounterFailureEnqueuesReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.approvedCat(t)
	tok := f.issueToken(t, cat.CatID)

	// fail the treat_count bump on the cats table; every other call runs
	f.dynamo.Hook = func(op, table string) error {
		if op == "UpdateItem" && table == "cats" {
			return errors.New("transient backend failure")
		}
		return nil
	}

	res, err := f.svc.GiveTreat(ctx, cat.CatID, "visitor-1", tok)
	require.NoError(t, err)
	// the ledger write is durable, so the caller still sees Awarded
	assert.Equal(t, ResultAwarded, res)

	bodies := f.sqs.Bodies()
	require.NotEmpty(t, bodies)
	var msg reconcile.Message
	require.NoError(t, json.Unmarshal([]byte(bodies[0]), &msg))
	assert.Equal(t, reconcile.KindCatCounters, msg.Kind)
	assert.Equal(t, cat.CatID, msg.CatID)
}
