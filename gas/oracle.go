// Package gas tracks the current fee-price signal used by the profit guard's
// gas ceiling check.
package gas

import (
	"math/big"
	"sync"

	"go.uber.org/zap"
)

// Oracle holds the latest observed gas price. Feeds push updates; the guard
// reads the current value at validation time.
type Oracle struct {
	mu          sync.RWMutex
	gasPrice    *big.Int
	priorityFee *big.Int
	logger      *zap.Logger
}

// NewOracle creates an oracle seeded with an initial price.
func NewOracle(initial *big.Int, logger *zap.Logger) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if initial == nil {
		initial = big.NewInt(0)
	}
	return &Oracle{
		gasPrice:    new(big.Int).Set(initial),
		priorityFee: big.NewInt(0),
		logger:      logger,
	}
}

// Update replaces the tracked base price and priority fee.
func (o *Oracle) Update(gasPrice, priorityFee *big.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gasPrice != nil {
		o.gasPrice = new(big.Int).Set(gasPrice)
	}
	if priorityFee != nil {
		o.priorityFee = new(big.Int).Set(priorityFee)
	}
	o.logger.Debug("gas price updated", zap.String("gas_price", o.gasPrice.String()))
}

// GasPrice returns the current total price signal (base plus priority).
func (o *Oracle) GasPrice() *big.Int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return new(big.Int).Add(o.gasPrice, o.priorityFee)
}

// EstimateCost estimates the fee spend for a gas limit at the current price.
func (o *Oracle) EstimateCost(gasLimit uint64) *big.Int {
	return new(big.Int).Mul(o.GasPrice(), new(big.Int).SetUint64(gasLimit))
}

// EstimateArbitrageGas estimates gas for a route by hop count. Covers the
// base transaction cost plus storage reads, token transfers and swap
// execution per hop.
func EstimateArbitrageGas(numHops int) uint64 {
	baseCost := uint64(21000)
	costPerHop := uint64(152000)
	return baseCost + costPerHop*uint64(numHops)
}
