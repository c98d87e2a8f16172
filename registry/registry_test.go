package registry

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/arbx/access"
	"github.com/michaelpento.lv/arbx/ledger"
	"github.com/michaelpento.lv/arbx/types"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	outsider = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	tokenA   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

type stubAdapter struct{ name string }

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) Swap(context.Context, *ledger.Txn, types.SwapStep, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (s *stubAdapter) QuoteOut(context.Context, ledger.View, types.SwapStep) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (s *stubAdapter) QuoteIn(context.Context, ledger.View, types.SwapStep) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (s *stubAdapter) GetReserves(ledger.View, common.Address, common.Address) (*big.Int, *big.Int, error) {
	return big.NewInt(0), big.NewInt(0), nil
}

func newRegistry(t *testing.T) *AdapterRegistry {
	t.Helper()
	return NewAdapterRegistry(access.NewController(admin), zaptest.NewLogger(t))
}

func TestRouterLifecycle(t *testing.T) {
	r := newRegistry(t)
	adapter := &stubAdapter{name: "uni"}

	require.NoError(t, r.RegisterRouter(admin, "uni", adapter))

	got, err := r.Lookup("uni")
	require.NoError(t, err)
	assert.Equal(t, adapter, got)

	// Duplicate id fails.
	require.ErrorIs(t, r.RegisterRouter(admin, "uni", adapter), types.ErrAlreadyExists)

	// Removal fails closed on later lookups.
	require.NoError(t, r.UnregisterRouter(admin, "uni"))
	_, err = r.Lookup("uni")
	require.ErrorIs(t, err, types.ErrRouterNotFound)

	require.ErrorIs(t, r.UnregisterRouter(admin, "uni"), types.ErrRouterNotFound)
}

func TestRouterAdminOnly(t *testing.T) {
	r := newRegistry(t)
	require.ErrorIs(t, r.RegisterRouter(outsider, "uni", &stubAdapter{}), types.ErrUnauthorized)
	require.ErrorIs(t, r.UnregisterRouter(outsider, "uni"), types.ErrUnauthorized)
	require.ErrorIs(t, r.WhitelistToken(outsider, tokenA), types.ErrUnauthorized)
}

func TestRegisterRejectsNilAdapter(t *testing.T) {
	r := newRegistry(t)
	require.ErrorIs(t, r.RegisterRouter(admin, "uni", nil), types.ErrInvalidImplementation)
	require.ErrorIs(t, r.RegisterRouter(admin, "", &stubAdapter{}), types.ErrInvalidImplementation)
}

func TestTokenWhitelist(t *testing.T) {
	r := newRegistry(t)

	assert.False(t, r.IsWhitelisted(tokenA))
	require.ErrorIs(t, r.RequireWhitelisted(tokenA), types.ErrTokenNotWhitelisted)

	require.NoError(t, r.WhitelistToken(admin, tokenA))
	assert.True(t, r.IsWhitelisted(tokenA))
	require.NoError(t, r.RequireWhitelisted(tokenA))

	require.NoError(t, r.RemoveToken(admin, tokenA))
	require.ErrorIs(t, r.RequireWhitelisted(tokenA), types.ErrTokenNotWhitelisted)
}

func TestValidateRoute(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.RegisterRouter(admin, "uni", &stubAdapter{name: "uni"}))
	require.NoError(t, r.WhitelistToken(admin, tokenA))

	steps := []types.SwapStep{
		{RouterID: "uni", TokenIn: tokenA, TokenOut: tokenB, AmountIn: big.NewInt(1)},
	}
	// tokenB not whitelisted.
	require.ErrorIs(t, r.ValidateRoute(steps), types.ErrTokenNotWhitelisted)

	require.NoError(t, r.WhitelistToken(admin, tokenB))
	require.NoError(t, r.ValidateRoute(steps))

	steps[0].RouterID = "ghost"
	require.ErrorIs(t, r.ValidateRoute(steps), types.ErrRouterNotFound)
}
