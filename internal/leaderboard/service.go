package leaderboard

import (
	"context"
	"fmt"

	"github.com/whiskermap/go-catmap-backend/internal/core"
)

// Service combines the rank store with the read cache.
type Service struct {
	store *Store
	cache *Cache
	maxN  int
}

// NewService wires the leaderboard read/write paths.
func NewService(store *Store, cache *Cache, maxN int) *Service {
	return &Service{store: store, cache: cache, maxN: maxN}
}

// IncrementScore bumps a user's count in a scope and drops the scope's
// cached top list.
func (s *Service) IncrementScore(ctx context.Context, userID, scope string) (int, error) {
	newCount, err := s.store.IncrementScore(ctx, userID, scope)
	if err != nil {
		return 0, err
	}
	s.cache.Invalidate(ctx, scope)
	return newCount, nil
}

// TopN returns the scope's top n users. Requests within the cached window
// are served cache-aside; larger ones go straight to the rank index.
func (s *Service) TopN(ctx context.Context, scope string, n int) ([]Entry, error) {
	if n < 1 || n > s.maxN {
		return nil, fmt.Errorf("%w: n must be between 1 and %d", core.ErrValidation, s.maxN)
	}
	if n > cacheSize {
		return s.store.TopN(ctx, scope, n)
	}

	if entries, ok := s.cache.GetTop(ctx, scope); ok {
		if len(entries) > n {
			entries = entries[:n]
		}
		return entries, nil
	}

	entries, err := s.store.TopN(ctx, scope, cacheSize)
	if err != nil {
		return nil, err
	}
	s.cache.SetTop(ctx, scope, entries)
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}
