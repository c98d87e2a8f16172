// Package simulator dry-runs a route against current reserves using the
// adapters' side-effect-free quote capability. Results feed the engine's
// pre-flight profitability check; the profit guard re-validates against real
// execution, so a stale simulation can only cause an early abort, never a
// bad commit.
package simulator

import (
	"context"
	"math/big"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbx/flashloan"
	"github.com/michaelpento.lv/arbx/ledger"
	"github.com/michaelpento.lv/arbx/registry"
	"github.com/michaelpento.lv/arbx/types"
)

const defaultCacheSize = 1024

// Simulator quotes full routes.
type Simulator struct {
	registry *registry.AdapterRegistry
	cache    *lru.Cache
	logger   *zap.Logger
}

// New creates a simulator with a bounded quote cache.
func New(reg *registry.AdapterRegistry, logger *zap.Logger) (*Simulator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New(defaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &Simulator{registry: reg, cache: cache, logger: logger}, nil
}

// SimulateRoute chains QuoteOut through the steps and returns the final
// output amount. Chained steps receive the prior quoted output.
func (s *Simulator) SimulateRoute(ctx context.Context, view ledger.View, steps []types.SwapStep) (*big.Int, error) {
	var prev *big.Int
	for i := range steps {
		step := steps[i]
		if step.Chained() {
			if i == 0 {
				return nil, types.ErrInvalidAmount
			}
			step.AmountIn = prev
		}
		adapter, err := s.registry.Lookup(step.RouterID)
		if err != nil {
			return nil, err
		}
		out, err := adapter.QuoteOut(ctx, view, step)
		if err != nil {
			return nil, err
		}
		prev = out
	}
	return prev, nil
}

// EstimateProfit quotes the route and returns the expected net profit of the
// request once principal and premium are repaid. Results are cached per
// request identity; entries are advisory and revalidated at execution time.
func (s *Simulator) EstimateProfit(ctx context.Context, view ledger.View, req types.ArbitrageRequest, lender flashloan.Lender) (*big.Int, error) {
	key := flashloan.OperationID(req)
	if cached, ok := s.cache.Get(key); ok {
		return new(big.Int).Set(cached.(*big.Int)), nil
	}

	out, err := s.SimulateRoute(ctx, view, req.Steps)
	if err != nil {
		return nil, err
	}
	profit := new(big.Int).Sub(out, req.Amount)
	profit.Sub(profit, lender.Premium(req.Asset, req.Amount))

	s.cache.Add(key, new(big.Int).Set(profit))
	s.logger.Debug("route simulated",
		zap.Uint64("op_id", key),
		zap.String("expected_profit", profit.String()),
	)
	return profit, nil
}

// Invalidate clears cached quotes, e.g. after reserve-moving events.
func (s *Simulator) Invalidate() {
	s.cache.Purge()
}
