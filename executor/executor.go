// Package executor drives an ordered swap chain through registered exchange
// adapters. The chain has no partial-commit end state: every hop either
// lands in the caller's transaction or the whole chain fails.
package executor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbx/ledger"
	"github.com/michaelpento.lv/arbx/registry"
	"github.com/michaelpento.lv/arbx/types"
)

// Executor resolves routers through the registry and executes routes.
type Executor struct {
	registry *registry.AdapterRegistry
	logger   *zap.Logger
	now      func() time.Time
}

// New creates an executor over the given registry.
func New(reg *registry.AdapterRegistry, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{registry: reg, logger: logger, now: time.Now}
}

// ExecuteRoute runs the steps in order on behalf of trader, inside txn.
// A chained step (AmountIn zero) takes the output actually received from the
// previous hop, not a caller-supplied prediction. Any adapter failure or
// under-delivery aborts the whole chain.
func (e *Executor) ExecuteRoute(ctx context.Context, txn *ledger.Txn, steps []types.SwapStep, trader common.Address) ([]types.SwapRecord, error) {
	records := make([]types.SwapRecord, 0, len(steps))
	var prevOut *big.Int
	var prevTokenOut common.Address

	for i := range steps {
		step := steps[i]

		// Stale-time bound is checked before any side effect of the hop.
		if step.Expired(e.now()) {
			return nil, types.ErrDeadlineExceeded
		}

		if step.Chained() {
			if i == 0 {
				return nil, types.ErrInvalidAmount
			}
			if step.TokenIn != prevTokenOut {
				return nil, types.ErrInvalidArbPath
			}
			step.AmountIn = new(big.Int).Set(prevOut)
		}

		adapter, err := e.registry.Lookup(step.RouterID)
		if err != nil {
			return nil, err
		}

		out, err := adapter.Swap(ctx, txn, step, trader)
		if err != nil {
			return nil, fmt.Errorf("step %d via %s: %w", i, step.RouterID, err)
		}
		if step.MinAmountOut != nil && step.MinAmountOut.Sign() > 0 && out.Cmp(step.MinAmountOut) < 0 {
			return nil, fmt.Errorf("step %d via %s: %w", i, step.RouterID, types.ErrSlippageExceeded)
		}

		records = append(records, types.SwapRecord{
			RouterID:  step.RouterID,
			TokenIn:   step.TokenIn,
			TokenOut:  step.TokenOut,
			AmountIn:  new(big.Int).Set(step.AmountIn),
			AmountOut: new(big.Int).Set(out),
		})
		prevOut = out
		prevTokenOut = step.TokenOut

		e.logger.Debug("route step executed",
			zap.Int("step", i),
			zap.String("router", step.RouterID),
			zap.String("amount_in", step.AmountIn.String()),
			zap.String("amount_out", out.String()),
		)
	}

	return records, nil
}
