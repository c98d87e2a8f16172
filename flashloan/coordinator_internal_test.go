package flashloan

import (
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/michaelpento.lv/arbx/types"
)

func opRequest() types.ArbitrageRequest {
	tokenX := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenY := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	return types.ArbitrageRequest{
		Asset:  tokenX,
		Amount: big.NewInt(1_000_000),
		Steps: []types.SwapStep{
			{RouterID: "pool-x", TokenIn: tokenX, TokenOut: tokenY, AmountIn: big.NewInt(1_000_000), FeeBps: 30},
			{RouterID: "pool-y", TokenIn: tokenY, TokenOut: tokenX, MinAmountOut: big.NewInt(1)},
		},
	}
}

func TestOperationIDCoversEconomicFields(t *testing.T) {
	base := OperationID(opRequest())

	tests := []struct {
		name   string
		mutate func(*types.ArbitrageRequest)
	}{
		{"fee", func(r *types.ArbitrageRequest) { r.Steps[0].FeeBps = 100 }},
		{"amount in", func(r *types.ArbitrageRequest) { r.Steps[0].AmountIn = big.NewInt(500_000) }},
		{"min amount out", func(r *types.ArbitrageRequest) { r.Steps[1].MinAmountOut = big.NewInt(2) }},
		{"path", func(r *types.ArbitrageRequest) {
			r.Steps[0].Path = []common.Address{common.HexToAddress("0x00000000000000000000000000000000000000cc")}
		}},
		{"router", func(r *types.ArbitrageRequest) { r.Steps[1].RouterID = "pool-z" }},
		{"borrow amount", func(r *types.ArbitrageRequest) { r.Amount = big.NewInt(2_000_000) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := opRequest()
			tt.mutate(&req)
			assert.NotEqual(t, base, OperationID(req))
		})
	}
}

func TestOperationIDStable(t *testing.T) {
	assert.Equal(t, OperationID(opRequest()), OperationID(opRequest()))
}

func TestProfitFloat(t *testing.T) {
	// Values past uint64 must grow, not wrap back to the remainder.
	big64 := new(big.Int).Lsh(big.NewInt(1), 64)
	over := new(big.Int).Add(big64, big.NewInt(5))
	assert.Greater(t, profitFloat(over), 1e19)

	huge := new(big.Int).Lsh(big.NewInt(1), 1100)
	assert.Equal(t, math.MaxFloat64, profitFloat(huge))

	assert.Equal(t, float64(12345), profitFloat(big.NewInt(12345)))
}
