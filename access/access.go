// Package access implements role-based authorization as an explicit
// capability lookup: subject address to granted role set, consulted at the
// start of every mutating operation.
package access

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/arbx/types"
)

// Role is one capability in the engine's role model.
type Role uint8

const (
	// RoleOperator may submit arbitrage operations and batches.
	RoleOperator Role = iota
	// RoleStrategist may register strategies and update risk state.
	RoleStrategist
	// RoleEmergency may pause and resume the engine.
	RoleEmergency
	// RoleAdmin manages role grants and the adapter registry.
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleOperator:
		return "operator"
	case RoleStrategist:
		return "strategist"
	case RoleEmergency:
		return "emergency"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Controller maps subjects to granted roles.
type Controller struct {
	mu     sync.RWMutex
	grants map[common.Address]map[Role]struct{}
}

// NewController creates a controller with admin holding every role, so the
// deployer can bootstrap the rest of the role set.
func NewController(admin common.Address) *Controller {
	c := &Controller{grants: make(map[common.Address]map[Role]struct{})}
	for _, r := range []Role{RoleOperator, RoleStrategist, RoleEmergency, RoleAdmin} {
		c.grant(admin, r)
	}
	return c
}

// Grant gives subject the role. Caller must hold RoleAdmin.
func (c *Controller) Grant(caller, subject common.Address, role Role) error {
	if err := c.Require(caller, RoleAdmin); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grant(subject, role)
	return nil
}

// Revoke removes the role from subject. Caller must hold RoleAdmin.
func (c *Controller) Revoke(caller, subject common.Address, role Role) error {
	if err := c.Require(caller, RoleAdmin); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if roles, ok := c.grants[subject]; ok {
		delete(roles, role)
	}
	return nil
}

// Has reports whether subject holds the role.
func (c *Controller) Has(subject common.Address, role Role) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	roles, ok := c.grants[subject]
	if !ok {
		return false
	}
	_, ok = roles[role]
	return ok
}

// Require returns ErrUnauthorized unless subject holds the role.
func (c *Controller) Require(subject common.Address, role Role) error {
	if !c.Has(subject, role) {
		return types.ErrUnauthorized
	}
	return nil
}

func (c *Controller) grant(subject common.Address, role Role) {
	roles, ok := c.grants[subject]
	if !ok {
		roles = make(map[Role]struct{})
		c.grants[subject] = roles
	}
	roles[role] = struct{}{}
}
