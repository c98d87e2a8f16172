// Package amm implements a constant-product exchange adapter whose reserves
// live on the ledger under the pool's own account. Because swaps are plain
// ledger transfers, discarding the enclosing transaction restores pool
// reserves along with every other balance.
package amm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbx/ledger"
	"github.com/michaelpento.lv/arbx/types"
)

const feeDenominator = 10000

// Pool is an x*y=k pool over an arbitrary token set. A single pool account
// may hold reserves for several pairs; each pair trades independently
// against its two reserve balances.
type Pool struct {
	name    string
	account common.Address
	logger  *zap.Logger
}

// NewPool creates an adapter trading against the reserves held by account.
func NewPool(name string, account common.Address, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{name: name, account: account, logger: logger}
}

// Name returns the exchange name.
func (p *Pool) Name() string { return p.name }

// Account returns the pool's ledger account.
func (p *Pool) Account() common.Address { return p.account }

// Swap moves step.AmountIn from trader into the pool and delivers the
// constant-product output back, in the same transaction.
func (p *Pool) Swap(ctx context.Context, txn *ledger.Txn, step types.SwapStep, trader common.Address) (*big.Int, error) {
	amountOut, err := p.QuoteOut(ctx, txn, step)
	if err != nil {
		return nil, err
	}

	if err := txn.Transfer(step.TokenIn, trader, p.account, step.AmountIn); err != nil {
		return nil, err
	}
	if err := txn.Transfer(step.TokenOut, p.account, trader, amountOut); err != nil {
		return nil, err
	}

	p.logger.Debug("swap executed",
		zap.String("pool", p.name),
		zap.String("token_in", step.TokenIn.Hex()),
		zap.String("token_out", step.TokenOut.Hex()),
		zap.String("amount_in", step.AmountIn.String()),
		zap.String("amount_out", amountOut.String()),
	)
	return amountOut, nil
}

// QuoteOut computes the output for step.AmountIn at current reserves.
func (p *Pool) QuoteOut(_ context.Context, view ledger.View, step types.SwapStep) (*big.Int, error) {
	if step.AmountIn == nil || step.AmountIn.Sign() <= 0 {
		return nil, types.ErrInvalidAmount
	}
	reserveIn, reserveOut, err := p.GetReserves(view, step.TokenIn, step.TokenOut)
	if err != nil {
		return nil, err
	}
	out := getAmountOut(step.AmountIn, reserveIn, reserveOut, step.FeeBps)
	if out.Sign() <= 0 || out.Cmp(reserveOut) >= 0 {
		return nil, types.ErrInsufficientLiquidity
	}
	return out, nil
}

// QuoteIn computes the input required to receive step.MinAmountOut.
func (p *Pool) QuoteIn(_ context.Context, view ledger.View, step types.SwapStep) (*big.Int, error) {
	if step.MinAmountOut == nil || step.MinAmountOut.Sign() <= 0 {
		return nil, types.ErrInvalidAmount
	}
	reserveIn, reserveOut, err := p.GetReserves(view, step.TokenIn, step.TokenOut)
	if err != nil {
		return nil, err
	}
	if step.MinAmountOut.Cmp(reserveOut) >= 0 {
		return nil, types.ErrInsufficientLiquidity
	}
	return getAmountIn(step.MinAmountOut, reserveIn, reserveOut, step.FeeBps), nil
}

// GetReserves returns the pool's balances of both tokens.
func (p *Pool) GetReserves(view ledger.View, tokenA, tokenB common.Address) (*big.Int, *big.Int, error) {
	if tokenA == tokenB {
		return nil, nil, types.ErrInvalidArbPath
	}
	reserveA := view.Balance(tokenA, p.account)
	reserveB := view.Balance(tokenB, p.account)
	if reserveA.Sign() <= 0 || reserveB.Sign() <= 0 {
		return nil, nil, types.ErrInsufficientLiquidity
	}
	return reserveA, reserveB, nil
}

// getAmountOut is the constant-product output formula with the fee taken
// from the input side.
func getAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint16) *big.Int {
	if amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return big.NewInt(0)
	}
	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(feeDenominator-int64(feeBps)))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(
		new(big.Int).Mul(reserveIn, big.NewInt(feeDenominator)),
		amountInWithFee,
	)
	return new(big.Int).Div(numerator, denominator)
}

// getAmountIn is the inverse formula, rounded up.
func getAmountIn(amountOut, reserveIn, reserveOut *big.Int, feeBps uint16) *big.Int {
	if amountOut.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(
		new(big.Int).Mul(reserveIn, amountOut),
		big.NewInt(feeDenominator),
	)
	denominator := new(big.Int).Mul(
		new(big.Int).Sub(reserveOut, amountOut),
		big.NewInt(feeDenominator-int64(feeBps)),
	)
	return new(big.Int).Add(new(big.Int).Div(numerator, denominator), big.NewInt(1))
}
