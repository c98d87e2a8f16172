package types

import "errors"

// Validation and registry errors are raised before any external call; the
// remainder abort the enclosing operation with its staged state discarded.
var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidRoutesLength   = errors.New("route count outside allowed range")
	ErrInvalidArbPath        = errors.New("route does not close back to borrowed asset")
	ErrInvalidCallback       = errors.New("malformed loan callback context")
	ErrTokenNotWhitelisted   = errors.New("token not whitelisted")
	ErrTokenBlacklisted      = errors.New("token blacklisted")
	ErrRouterNotFound        = errors.New("router not found")
	ErrInsufficientProfit    = errors.New("insufficient profit")
	ErrSlippageExceeded      = errors.New("slippage tolerance exceeded")
	ErrGasPriceTooHigh       = errors.New("gas price above ceiling")
	ErrExposureLimitExceeded = errors.New("exposure limit exceeded")
	ErrAlreadyExists         = errors.New("already exists")
	ErrInvalidImplementation = errors.New("invalid implementation handle")
	ErrStrategyNotFound      = errors.New("strategy not found")
	ErrStrategyInactive      = errors.New("strategy not active")
	ErrCooldownActive        = errors.New("strategy cooldown active")
	ErrEmergencyStopped      = errors.New("emergency stop active")
	ErrNotStopped            = errors.New("engine is not stopped")
	ErrReentrancy            = errors.New("reentrant call detected")
	ErrUnauthorized          = errors.New("caller lacks required role")
	ErrEmptyBatch            = errors.New("empty operations array")
	ErrTooManyOperations     = errors.New("too many operations in batch")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrDeadlineExceeded      = errors.New("swap deadline exceeded")
	ErrRepaymentFailed       = errors.New("loan repayment failed")
	ErrRateLimited           = errors.New("admission rate limit exceeded")
)
