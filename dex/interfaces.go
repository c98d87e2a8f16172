// Package dex defines the uniform adapter capability over one external
// exchange. Adapter internals are opaque to the rest of the engine; the
// executor only sees swap and quote calls.
package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/arbx/ledger"
	"github.com/michaelpento.lv/arbx/types"
)

// Adapter wraps a single exchange integration.
type Adapter interface {
	// Name returns the exchange name.
	Name() string

	// Swap executes one hop inside the given transaction, moving
	// step.AmountIn of step.TokenIn from trader into the exchange and the
	// resulting output back. Returns the amount actually delivered.
	Swap(ctx context.Context, txn *ledger.Txn, step types.SwapStep, trader common.Address) (*big.Int, error)

	// QuoteOut returns the output amount the swap would deliver. Side-effect
	// free.
	QuoteOut(ctx context.Context, view ledger.View, step types.SwapStep) (*big.Int, error)

	// QuoteIn returns the input amount required for step.MinAmountOut of
	// output. Side-effect free.
	QuoteIn(ctx context.Context, view ledger.View, step types.SwapStep) (*big.Int, error)

	// GetReserves returns the exchange's reserves for a token pair.
	GetReserves(view ledger.View, tokenA, tokenB common.Address) (*big.Int, *big.Int, error)
}
