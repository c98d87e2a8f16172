package flashloan

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbx/gas"
	"github.com/michaelpento.lv/arbx/ledger"
	"github.com/michaelpento.lv/arbx/types"
)

const bpsDenominator = 10000

// GuardConfig tunes the profit guard.
type GuardConfig struct {
	// MinProfitBps is a percentage floor on (final - repayment) relative to
	// the borrowed amount. Zero disables the percentage check.
	MinProfitBps uint16
	// MaxGasPrice is the fee-price ceiling. Nil disables the check.
	MaxGasPrice *big.Int
}

// ProfitGuard validates the net result of a completed route against the
// absolute profit floor, the optional percentage floor and the gas ceiling.
// Checks run in that order so callers get the most specific failure.
type ProfitGuard struct {
	cfg    GuardConfig
	oracle *gas.Oracle
	logger *zap.Logger
}

// NewProfitGuard creates a guard reading the fee-price signal from oracle.
func NewProfitGuard(cfg GuardConfig, oracle *gas.Oracle, logger *zap.Logger) *ProfitGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfitGuard{cfg: cfg, oracle: oracle, logger: logger}
}

// Check computes the profit of holder's final asset balance over the
// required repayment and enforces the invariants. Returns the profit on
// success.
func (g *ProfitGuard) Check(view ledger.View, asset, holder common.Address, borrowed, premium, minProfit *big.Int) (*big.Int, error) {
	finalBalance := view.Balance(asset, holder)
	required := new(big.Int).Add(borrowed, premium)
	profit := new(big.Int).Sub(finalBalance, required)

	if minProfit == nil {
		minProfit = big.NewInt(0)
	}
	if profit.Sign() < 0 || profit.Cmp(minProfit) < 0 {
		g.logger.Debug("profit below floor",
			zap.String("final", finalBalance.String()),
			zap.String("required", required.String()),
			zap.String("min_profit", minProfit.String()),
		)
		return nil, types.ErrInsufficientProfit
	}

	if g.cfg.MinProfitBps > 0 {
		scaled := new(big.Int).Mul(profit, big.NewInt(bpsDenominator))
		scaled.Div(scaled, borrowed)
		if scaled.Cmp(big.NewInt(int64(g.cfg.MinProfitBps))) < 0 {
			return nil, types.ErrInsufficientProfit
		}
	}

	if g.cfg.MaxGasPrice != nil && g.oracle != nil {
		if g.oracle.GasPrice().Cmp(g.cfg.MaxGasPrice) > 0 {
			return nil, types.ErrGasPriceTooHigh
		}
	}

	return profit, nil
}
