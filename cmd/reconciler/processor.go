package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/whiskermap/go-catmap-backend/internal/aws"
	"github.com/whiskermap/go-catmap-backend/internal/cats"
	"github.com/whiskermap/go-catmap-backend/internal/config"
	"github.com/whiskermap/go-catmap-backend/internal/core"
	"github.com/whiskermap/go-catmap-backend/internal/leaderboard"
	"github.com/whiskermap/go-catmap-backend/internal/reconcile"
	"github.com/whiskermap/go-catmap-backend/internal/treats"
	"github.com/whiskermap/go-catmap-backend/internal/visits"
)

// Processor consumes reconcile messages and rebuilds derived counters
// from the ledgers. The ledgers are the source of truth, so a recount is
// always safe to repeat: processing the same message twice converges on
// the same values.
type Processor struct {
	cats        *cats.Store
	visits      *visits.Store
	treats      *treats.Store
	leaderboard *leaderboard.Store
	log         *zap.Logger
}

// NewProcessor creates a reconciler with its stores wired to the given
// DynamoDB client.
func NewProcessor(dynamo aws.DynamoDBAPI, cfg *config.Config, log *zap.Logger) *Processor {
	return &Processor{
		cats:        cats.NewStore(dynamo, cfg.CatsTable),
		visits:      visits.NewStore(dynamo, cfg.VisitsTable),
		treats:      treats.NewStore(dynamo, cfg.TreatsTable),
		leaderboard: leaderboard.NewStore(dynamo, cfg.LeaderboardTable),
		log:         log,
	}
}

// Handle receives an SQS batch event and processes each message.
// Transient storage failures fail the batch so the runtime redelivers it;
// anything else (malformed body, unknown kind, vanished cat) would fail
// identically on every redelivery, so those messages are logged and
// dropped.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		err := p.processMessage(ctx, rec)
		if err == nil {
			continue
		}
		if core.Retryable(err) {
			p.log.Warn("reconcile hit transient storage failure",
				zap.String("message_id", rec.MessageId), zap.Error(err))
			return err
		}
		p.log.Error("reconcile dropped message",
			zap.String("message_id", rec.MessageId), zap.Error(err))
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg reconcile.Message
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	switch msg.Kind {
	case reconcile.KindCatCounters:
		return p.reconcileCatCounters(ctx, msg.CatID)
	case reconcile.KindUserStat:
		return p.reconcileUserStat(ctx, msg.UserID, msg.Scope)
	default:
		return fmt.Errorf("unknown message kind %q", msg.Kind)
	}
}

// reconcileCatCounters recounts a cat's visit and treat ledgers and
// overwrites the denormalized counters on the cat item.
func (p *Processor) reconcileCatCounters(ctx context.Context, catID string) error {
	if catID == "" {
		return fmt.Errorf("cat_counters message missing cat_id")
	}

	treatCount, err := p.treats.CountByCat(ctx, catID)
	if err != nil {
		return fmt.Errorf("recount treats for %s: %w", catID, err)
	}
	visitCount, err := p.visits.CountByCat(ctx, catID)
	if err != nil {
		return fmt.Errorf("recount visits for %s: %w", catID, err)
	}

	if err := p.cats.SetCounters(ctx, catID, treatCount, visitCount); err != nil {
		return fmt.Errorf("rewrite counters for %s: %w", catID, err)
	}

	p.log.Info("cat counters reconciled",
		zap.String("cat_id", catID),
		zap.Int("treat_count", treatCount),
		zap.Int("visit_count", visitCount))
	return nil
}

// reconcileUserStat recounts a user's treats in one scope from the treat
// ledger and rewrites the leaderboard entry, rank key included.
func (p *Processor) reconcileUserStat(ctx context.Context, userID, scope string) error {
	if userID == "" || scope == "" {
		return fmt.Errorf("user_stat message missing user_id or scope")
	}

	count, err := p.treats.CountByVisitorScope(ctx, userID, scope)
	if err != nil {
		return fmt.Errorf("recount treats for user %s in %s: %w", userID, scope, err)
	}

	if err := p.leaderboard.SetScore(ctx, userID, scope, count); err != nil {
		return fmt.Errorf("rewrite user stat for %s in %s: %w", userID, scope, err)
	}

	p.log.Info("user stat reconciled",
		zap.String("user_id", userID),
		zap.String("scope", scope),
		zap.Int("count", count))
	return nil
}
