// Package risk tracks per-token exposure against configured ceilings and
// holds the engine-wide risk parameters. All state here is process-wide and
// mutated only by role-gated calls; per-operation exposure is recorded only
// after an operation settles, so failed operations leave it untouched.
package risk

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbx/access"
	"github.com/michaelpento.lv/arbx/types"
)

// Registry is the risk-state store.
type Registry struct {
	mu       sync.RWMutex
	params   types.RiskParams
	profiles map[common.Address]*types.TokenRiskProfile
	auth     *access.Controller
	logger   *zap.Logger
	now      func() time.Time
}

// NewRegistry creates a registry with the given global parameters.
func NewRegistry(params types.RiskParams, auth *access.Controller, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		params:   params,
		profiles: make(map[common.Address]*types.TokenRiskProfile),
		auth:     auth,
		logger:   logger,
		now:      time.Now,
	}
}

// Params returns a copy of the global risk parameters.
func (r *Registry) Params() types.RiskParams {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.params
}

// UpdateParams replaces the global risk parameters. Strategist only.
func (r *Registry) UpdateParams(caller common.Address, params types.RiskParams) error {
	if err := r.auth.Require(caller, access.RoleStrategist); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.params = params
	r.logger.Info("risk params updated", zap.String("caller", caller.Hex()))
	return nil
}

// UpdateProfile sets the risk profile for a token. Strategist only.
func (r *Registry) UpdateProfile(caller common.Address, profile types.TokenRiskProfile) error {
	if err := r.auth.Require(caller, access.RoleStrategist); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.profiles[profile.Token]
	if ok && profile.CurrentExposure == nil {
		profile.CurrentExposure = existing.CurrentExposure
	}
	if profile.CurrentExposure == nil {
		profile.CurrentExposure = big.NewInt(0)
	}
	profile.LastUpdate = r.now()
	r.profiles[profile.Token] = &profile
	return nil
}

// Profile returns a copy of the token's profile.
func (r *Registry) Profile(token common.Address) (types.TokenRiskProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[token]
	if !ok {
		return types.TokenRiskProfile{}, false
	}
	return *p, true
}

// SetBlacklisted flips a token's blacklist flag. Strategist only.
func (r *Registry) SetBlacklisted(caller, token common.Address, blacklisted bool) error {
	if err := r.auth.Require(caller, access.RoleStrategist); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[token]
	if !ok {
		p = &types.TokenRiskProfile{Token: token, CurrentExposure: big.NewInt(0)}
		r.profiles[token] = p
	}
	p.Blacklisted = blacklisted
	p.LastUpdate = r.now()
	return nil
}

// CheckExposure validates that taking amount of token stays inside the
// exposure ceiling and that the token is not blacklisted. The ceiling is the
// token profile's, falling back to the global per-token limit.
func (r *Registry) CheckExposure(token common.Address, amount *big.Int) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	current := big.NewInt(0)
	max := r.params.MaxExposurePerToken
	if p, ok := r.profiles[token]; ok {
		if p.Blacklisted {
			return types.ErrTokenBlacklisted
		}
		if p.CurrentExposure != nil {
			current = p.CurrentExposure
		}
		if p.MaxExposure != nil {
			max = p.MaxExposure
		}
	}
	if max == nil || max.Sign() == 0 {
		return nil // no ceiling configured
	}
	if new(big.Int).Add(current, amount).Cmp(max) > 0 {
		return types.ErrExposureLimitExceeded
	}
	return nil
}

// RecordExposure adds amount to the token's running exposure. Called only
// for settled operations, keeping CurrentExposure <= MaxExposure.
func (r *Registry) RecordExposure(token common.Address, amount *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[token]
	if !ok {
		p = &types.TokenRiskProfile{Token: token, CurrentExposure: big.NewInt(0)}
		r.profiles[token] = p
	}
	p.CurrentExposure = new(big.Int).Add(p.CurrentExposure, amount)
	p.LastUpdate = r.now()
}

// ReleaseExposure reduces the token's running exposure once closed-out
// positions are reconciled, clamping at zero. Strategist only.
func (r *Registry) ReleaseExposure(caller, token common.Address, amount *big.Int) error {
	if err := r.auth.Require(caller, access.RoleStrategist); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[token]
	if !ok {
		return nil
	}
	p.CurrentExposure = new(big.Int).Sub(p.CurrentExposure, amount)
	if p.CurrentExposure.Sign() < 0 {
		p.CurrentExposure = big.NewInt(0)
	}
	p.LastUpdate = r.now()
	return nil
}
