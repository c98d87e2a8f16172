// Package types holds the shared data model for arbitrage execution.
package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MaxSteps bounds the number of hops in a single route.
const MaxSteps = 10

// MaxBatchSize bounds the number of operations in one batch submission.
const MaxBatchSize = 10

// SwapStep is one hop of a swap chain. An AmountIn of zero means "use the
// output actually received from the previous step", which is only legal for
// steps after the first.
type SwapStep struct {
	RouterID     string
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Path         []common.Address
	FeeBps       uint16
	Deadline     int64 // unix seconds, 0 = no deadline
}

// Chained reports whether the step takes its input from the prior hop.
func (s *SwapStep) Chained() bool {
	return s.AmountIn == nil || s.AmountIn.Sign() == 0
}

// Expired reports whether the step's deadline has passed at the given time.
func (s *SwapStep) Expired(now time.Time) bool {
	return s.Deadline != 0 && now.Unix() > s.Deadline
}

// ArbitrageRequest describes one borrow-swap-repay operation.
type ArbitrageRequest struct {
	Asset     common.Address
	Amount    *big.Int
	Steps     []SwapStep
	MinProfit *big.Int
}

// Validate checks the request shape: amount positive, route length within
// [2, MaxSteps], the first hop pinned to an explicit input, the chain closing
// the loop back to the borrowed asset, and the route not being a degenerate
// no-op path.
func (r *ArbitrageRequest) Validate() error {
	if r.Amount == nil || r.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if len(r.Steps) < 2 || len(r.Steps) > MaxSteps {
		return ErrInvalidRoutesLength
	}
	if r.Steps[0].TokenIn != r.Asset || r.Steps[len(r.Steps)-1].TokenOut != r.Asset {
		return ErrInvalidArbPath
	}
	if r.Steps[0].Chained() {
		return ErrInvalidAmount
	}
	degenerate := true
	for i := range r.Steps {
		if r.Steps[i].TokenIn != r.Steps[i].TokenOut {
			degenerate = false
			break
		}
	}
	if degenerate {
		return ErrInvalidArbPath
	}
	return nil
}

// LoanCallbackContext is handed to the receiver of a flash loan for the
// duration of the single lender callback, and discarded when it returns.
type LoanCallbackContext struct {
	Assets    []common.Address
	Amounts   []*big.Int
	Premiums  []*big.Int
	Initiator common.Address
	Params    []byte
}

// Validate enforces the parallel-slice invariant.
func (c *LoanCallbackContext) Validate() error {
	if len(c.Assets) == 0 || len(c.Assets) != len(c.Amounts) || len(c.Assets) != len(c.Premiums) {
		return ErrInvalidCallback
	}
	return nil
}

// SwapRecord is the per-hop execution record produced by the route executor.
type SwapRecord struct {
	RouterID  string
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
}

// StrategyStats accumulates per-strategy execution results.
type StrategyStats struct {
	Executions  uint64
	Failures    uint64
	TotalProfit *big.Int
	LastRun     time.Time
}

// StrategyConfig is the persistent configuration of one registered strategy.
type StrategyConfig struct {
	ID             string
	Handler        common.Address
	Active         bool
	MinProfit      *big.Int
	MaxSlippageBps uint16
	GasCeiling     *big.Int
	Cooldown       time.Duration
	Stats          StrategyStats
}

// TokenRiskProfile tracks per-token exposure against a configured ceiling.
type TokenRiskProfile struct {
	Token           common.Address
	MaxExposure     *big.Int
	CurrentExposure *big.Int
	VolatilityScore uint32
	Blacklisted     bool
	LastUpdate      time.Time
}

// RiskParams are the engine-wide risk limits.
type RiskParams struct {
	MaxExposurePerToken    *big.Int
	MaxExposurePerStrategy *big.Int
	MaxGasPrice            *big.Int
	MinProfitThreshold     *big.Int
	MaxSlippageBps         uint16
	EmergencyStopLoss      *big.Int
}

// EngineState is the lifecycle state of the strategy engine.
type EngineState int

const (
	EngineActive EngineState = iota
	EnginePaused
)

func (s EngineState) String() string {
	switch s {
	case EngineActive:
		return "active"
	case EnginePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// ArbitrageResult describes one settled operation.
type ArbitrageResult struct {
	OperationID uint64
	Asset       common.Address
	Borrowed    *big.Int
	Premium     *big.Int
	Profit      *big.Int
	Records     []SwapRecord
}
