package access

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/arbx/types"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	operator = common.HexToAddress("0x000000000000000000000000000000000000000e")
	outsider = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

func TestBootstrapAdminHoldsAllRoles(t *testing.T) {
	c := NewController(admin)
	for _, r := range []Role{RoleOperator, RoleStrategist, RoleEmergency, RoleAdmin} {
		assert.True(t, c.Has(admin, r), r.String())
	}
}

func TestGrantRevoke(t *testing.T) {
	c := NewController(admin)

	require.NoError(t, c.Grant(admin, operator, RoleOperator))
	assert.True(t, c.Has(operator, RoleOperator))
	assert.False(t, c.Has(operator, RoleStrategist))

	require.NoError(t, c.Revoke(admin, operator, RoleOperator))
	assert.False(t, c.Has(operator, RoleOperator))
}

func TestNonAdminCannotManageRoles(t *testing.T) {
	c := NewController(admin)
	require.ErrorIs(t, c.Grant(outsider, outsider, RoleAdmin), types.ErrUnauthorized)
	require.ErrorIs(t, c.Revoke(outsider, admin, RoleAdmin), types.ErrUnauthorized)
}

func TestRequire(t *testing.T) {
	c := NewController(admin)
	require.NoError(t, c.Require(admin, RoleEmergency))
	require.ErrorIs(t, c.Require(outsider, RoleOperator), types.ErrUnauthorized)
}
