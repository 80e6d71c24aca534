package treats

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/whiskermap/go-catmap-backend/internal/aws"
	"github.com/whiskermap/go-catmap-backend/internal/cats"
	"github.com/whiskermap/go-catmap-backend/internal/core"
	"github.com/whiskermap/go-catmap-backend/internal/leaderboard"
	"github.com/whiskermap/go-catmap-backend/internal/reconcile"
	"github.com/whiskermap/go-catmap-backend/internal/tokens"
)

// GiveTreat outcomes.
const (
	ResultAwarded      = "AWARDED"
	ResultAlreadyGiven = "ALREADY_GIVEN"
)

// Service orchestrates the treat flow: token redemption, the conditional
// ledger write, then the derived counter updates.
type Service struct {
	treats      *Store
	cats        *cats.Store
	tokens      *tokens.Store
	leaderboard *leaderboard.Service
	publisher   *aws.Publisher
	metrics     *aws.Metrics
	log         *zap.Logger
}

// NewService wires the treat flow.
func NewService(treats *Store, catStore *cats.Store, tokenStore *tokens.Store, lb *leaderboard.Service, publisher *aws.Publisher, metrics *aws.Metrics, log *zap.Logger) *Service {
	return &Service{
		treats:      treats,
		cats:        catStore,
		tokens:      tokenStore,
		leaderboard: lb,
		publisher:   publisher,
		metrics:     metrics,
		log:         log,
	}
}

// GiveTreat awards at most one treat per (cat, visitor) pair.
//
// The token is redeemed before anything else: an invalid, expired or
// replayed token aborts the flow with nothing recorded. The conditional
// create of the Treat is the uniqueness-defining write; once it lands the
// treat is final, and the counter updates that follow are best-effort —
// a failure there enqueues a reconcile recount instead of rolling back.
func (s *Service) GiveTreat(ctx context.Context, catID, visitorID, token string) (string, error) {
	cat, err := s.cats.Get(ctx, catID)
	if err != nil {
		return "", err
	}
	if cat == nil {
		return "", fmt.Errorf("cat %s: %w", catID, core.ErrNotFound)
	}

	if err := s.tokens.Redeem(ctx, token, tokens.TreatScope(catID)); err != nil {
		return "", err
	}
	s.metrics.Count(ctx, aws.MetricTokensRedeemed, "")

	scope := leaderboard.ScopeForGeohash(cat.Geohash)
	created, err := s.treats.Create(ctx, catID, visitorID, scope)
	if err != nil {
		return "", err
	}
	if !created {
		// the redeemed token is spent; that is the cost of replaying a
		// treat the visitor already gave
		return ResultAlreadyGiven, nil
	}

	if err := s.cats.IncrementTreatCount(ctx, catID); err != nil {
		s.log.Warn("treat counter increment failed, enqueueing reconcile",
			zap.String("cat_id", catID), zap.Error(err))
		s.enqueueReconcile(ctx, reconcile.Message{Kind: reconcile.KindCatCounters, CatID: catID})
	}
	if _, err := s.leaderboard.IncrementScore(ctx, visitorID, scope); err != nil {
		s.log.Warn("leaderboard increment failed, enqueueing reconcile",
			zap.String("visitor_id", visitorID), zap.String("scope", scope), zap.Error(err))
		s.enqueueReconcile(ctx, reconcile.Message{Kind: reconcile.KindUserStat, UserID: visitorID, Scope: scope})
	}

	s.metrics.Count(ctx, aws.MetricTreatsAwarded, scope)
	return ResultAwarded, nil
}

func (s *Service) enqueueReconcile(ctx context.Context, msg reconcile.Message) {
	if s.publisher == nil {
		return
	}
	body, _ := json.Marshal(msg)
	attrs := map[string]string{"kind": msg.Kind}
	if err := s.publisher.SendReconcileMessage(ctx, string(body), attrs); err != nil {
		s.log.Error("enqueue reconcile failed", zap.String("kind", msg.Kind), zap.Error(err))
	}
}
