// Package registry maintains the admin-controlled router table and token
// whitelist. Lookups fail closed: a removed router or token aborts the
// enclosing operation before any external call.
package registry

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbx/access"
	"github.com/michaelpento.lv/arbx/dex"
	"github.com/michaelpento.lv/arbx/types"
)

// AdapterRegistry maps router identifiers to exchange adapters and governs
// which assets may be borrowed or traded.
type AdapterRegistry struct {
	mu        sync.RWMutex
	routers   map[string]dex.Adapter
	whitelist map[common.Address]struct{}
	auth      *access.Controller
	logger    *zap.Logger
}

// NewAdapterRegistry creates an empty registry gated by auth.
func NewAdapterRegistry(auth *access.Controller, logger *zap.Logger) *AdapterRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdapterRegistry{
		routers:   make(map[string]dex.Adapter),
		whitelist: make(map[common.Address]struct{}),
		auth:      auth,
		logger:    logger,
	}
}

// RegisterRouter binds id to an adapter. Admin only.
func (r *AdapterRegistry) RegisterRouter(caller common.Address, id string, adapter dex.Adapter) error {
	if err := r.auth.Require(caller, access.RoleAdmin); err != nil {
		return err
	}
	if id == "" || adapter == nil {
		return types.ErrInvalidImplementation
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.routers[id]; ok {
		return types.ErrAlreadyExists
	}
	r.routers[id] = adapter
	r.logger.Info("router registered", zap.String("router", id), zap.String("adapter", adapter.Name()))
	return nil
}

// UnregisterRouter removes the mapping; later lookups fail closed. Admin only.
func (r *AdapterRegistry) UnregisterRouter(caller common.Address, id string) error {
	if err := r.auth.Require(caller, access.RoleAdmin); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.routers[id]; !ok {
		return types.ErrRouterNotFound
	}
	delete(r.routers, id)
	r.logger.Info("router unregistered", zap.String("router", id))
	return nil
}

// Lookup resolves a router id.
func (r *AdapterRegistry) Lookup(id string) (dex.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.routers[id]
	if !ok {
		return nil, types.ErrRouterNotFound
	}
	return adapter, nil
}

// WhitelistToken allows the token to be borrowed and traded. Admin only.
func (r *AdapterRegistry) WhitelistToken(caller, token common.Address) error {
	if err := r.auth.Require(caller, access.RoleAdmin); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.whitelist[token] = struct{}{}
	r.logger.Info("token whitelisted", zap.String("token", token.Hex()))
	return nil
}

// RemoveToken drops the token from the whitelist. Admin only.
func (r *AdapterRegistry) RemoveToken(caller, token common.Address) error {
	if err := r.auth.Require(caller, access.RoleAdmin); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.whitelist, token)
	r.logger.Info("token removed from whitelist", zap.String("token", token.Hex()))
	return nil
}

// IsWhitelisted reports whether the token may be used.
func (r *AdapterRegistry) IsWhitelisted(token common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.whitelist[token]
	return ok
}

// RequireWhitelisted returns ErrTokenNotWhitelisted for unknown tokens.
func (r *AdapterRegistry) RequireWhitelisted(token common.Address) error {
	if !r.IsWhitelisted(token) {
		return types.ErrTokenNotWhitelisted
	}
	return nil
}

// ValidateRoute checks that every router in the route is registered and
// every touched token is whitelisted, before anything executes.
func (r *AdapterRegistry) ValidateRoute(steps []types.SwapStep) error {
	for i := range steps {
		if _, err := r.Lookup(steps[i].RouterID); err != nil {
			return err
		}
		if err := r.RequireWhitelisted(steps[i].TokenIn); err != nil {
			return err
		}
		if err := r.RequireWhitelisted(steps[i].TokenOut); err != nil {
			return err
		}
	}
	return nil
}
