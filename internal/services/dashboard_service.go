package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"poupa/internal/cache"
	"poupa/internal/core"
	applog "poupa/internal/log"
	"poupa/internal/ports"

	"golang.org/x/sync/singleflight"
)

// Dashboard is a summary together with the range it covers. Range is nil
// for all-time summaries.
type Dashboard struct {
	core.DashboardSummary
	Range *core.DateRange `json:"range,omitempty"`
}

// DashboardService loads a user's transactions and summarizes them.
// Transaction lists are cached per user, range and write generation, and
// concurrent loads of the same list are coalesced.
type DashboardService struct {
	store ports.TransactionReader
	cache cache.Cache[[]core.Transaction]
	gens  cache.Generations
	group singleflight.Group
}

// NewDashboardService creates the service. A nil cache disables caching; a
// nil gens uses in-memory generations.
func NewDashboardService(store ports.TransactionReader, c cache.Cache[[]core.Transaction], gens cache.Generations) *DashboardService {
	if gens == nil {
		gens = cache.NewMemoryGenerations()
	}
	return &DashboardService{store: store, cache: c, gens: gens}
}

func (s *DashboardService) Summary(ctx context.Context, userID string, rng core.DateRange) (Dashboard, error) {
	if strings.TrimSpace(userID) == "" {
		return Dashboard{}, core.ErrMissingUser
	}

	txs, err := s.transactions(ctx, userID, rng)
	if err != nil {
		return Dashboard{}, err
	}

	dash := Dashboard{DashboardSummary: core.Summarize(txs)}
	if !rng.IsZero() {
		r := rng
		dash.Range = &r
	}

	slog.DebugContext(ctx, "Dashboard summarized",
		applog.FieldUserID, userID,
		applog.FieldRange, rng.String(),
		"transactions", len(txs))
	return dash, nil
}

// Invalidate makes every cached list of userID unreachable.
func (s *DashboardService) Invalidate(ctx context.Context, userID string) {
	s.gens.Bump(ctx, userID)
}

func (s *DashboardService) transactions(ctx context.Context, userID string, rng core.DateRange) ([]core.Transaction, error) {
	gen := s.gens.Current(ctx, userID)
	key := fmt.Sprintf("%s:%d:%s", userID, gen, rng.String())
	cacheable := s.cache != nil && gen >= 0

	if cacheable {
		if txs, ok := s.cache.Get(ctx, key); ok {
			return txs, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		txs, err := s.store.List(ctx, userID, rng)
		if err != nil {
			return nil, err
		}
		if cacheable {
			s.cache.Set(ctx, key, txs)
		}
		return txs, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStorageUnavailable, err)
	}
	return v.([]core.Transaction), nil
}
