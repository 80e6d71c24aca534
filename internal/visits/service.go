package visits

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/whiskermap/go-catmap-backend/internal/aws"
	"github.com/whiskermap/go-catmap-backend/internal/cats"
	"github.com/whiskermap/go-catmap-backend/internal/core"
	"github.com/whiskermap/go-catmap-backend/internal/reconcile"
)

// Service orchestrates visit recording: ledger write first, derived
// counter after.
type Service struct {
	visits    *Store
	cats      *cats.Store
	publisher *aws.Publisher
	metrics   *aws.Metrics
	log       *zap.Logger
}

// NewService wires the visit recording flow.
func NewService(visits *Store, catStore *cats.Store, publisher *aws.Publisher, metrics *aws.Metrics, log *zap.Logger) *Service {
	return &Service{visits: visits, cats: catStore, publisher: publisher, metrics: metrics, log: log}
}

// RecordVisit records at most one visit per (identity, cat) pair.
// Returns created=false without error on a duplicate, so retries are
// harmless. Exactly one visitCount increment happens per unique pair: the
// increment only runs on the winning conditional create, and a failed
// increment is handed to the reconciler rather than retried inline.
func (s *Service) RecordVisit(ctx context.Context, identity, catID string) (bool, error) {
	cat, err := s.cats.Get(ctx, catID)
	if err != nil {
		return false, err
	}
	if cat == nil {
		return false, fmt.Errorf("cat %s: %w", catID, core.ErrNotFound)
	}

	created, err := s.visits.Create(ctx, identity, catID)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	if err := s.cats.IncrementVisitCount(ctx, catID); err != nil {
		// visit is durable; counter catches up via reconciliation
		s.log.Warn("visit counter increment failed, enqueueing reconcile",
			zap.String("cat_id", catID), zap.Error(err))
		s.enqueueReconcile(ctx, catID)
	}
	s.metrics.Count(ctx, aws.MetricVisitsRecorded, "")
	return true, nil
}

func (s *Service) enqueueReconcile(ctx context.Context, catID string) {
	if s.publisher == nil {
		return
	}
	body, _ := json.Marshal(reconcile.Message{Kind: reconcile.KindCatCounters, CatID: catID})
	if err := s.publisher.SendReconcileMessage(ctx, string(body), map[string]string{"cat_id": catID}); err != nil {
		s.log.Error("enqueue reconcile failed", zap.String("cat_id", catID), zap.Error(err))
	}
}
