package cmd

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbx/config"
	"github.com/michaelpento.lv/arbx/dex/amm"
	"github.com/michaelpento.lv/arbx/gas"
	"github.com/michaelpento.lv/arbx/types"
	"github.com/michaelpento.lv/arbx/utils"
)

// demoCmd seeds two constant-product pools with skewed prices and executes a
// two-hop arbitrage end to end against in-memory liquidity.
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a two-hop arbitrage against seeded in-memory pools",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()

		cfg := config.DefaultConfig()
		cfg.AdminAccount = "0x00000000000000000000000000000000000000ad"
		s, err := buildStack(cfg, log)
		if err != nil {
			return err
		}

		var (
			tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
			tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
			poolX  = common.HexToAddress("0x0000000000000000000000000000000000000d01")
			poolY  = common.HexToAddress("0x0000000000000000000000000000000000000d02")
		)

		// Pool X prices B at 100 A; pool Y at 105 A. The spread is the edge.
		one := big.NewInt(1e18)
		s.store.Mint(tokenA, poolX, new(big.Int).Mul(big.NewInt(100_000), one))
		s.store.Mint(tokenB, poolX, new(big.Int).Mul(big.NewInt(1_000), one))
		s.store.Mint(tokenA, poolY, new(big.Int).Mul(big.NewInt(105_000), one))
		s.store.Mint(tokenB, poolY, new(big.Int).Mul(big.NewInt(1_000), one))
		s.store.Mint(tokenA, s.vault.Account(), new(big.Int).Mul(big.NewInt(1_000_000), one))

		adapterX := amm.NewPool("pool-x", poolX, log)
		adapterY := amm.NewPool("pool-y", poolY, log)
		if err := s.registry.RegisterRouter(s.admin, "pool-x", adapterX); err != nil {
			return err
		}
		if err := s.registry.RegisterRouter(s.admin, "pool-y", adapterY); err != nil {
			return err
		}
		for _, token := range []common.Address{tokenA, tokenB} {
			if err := s.registry.WhitelistToken(s.admin, token); err != nil {
				return err
			}
		}

		req := types.ArbitrageRequest{
			Asset:  tokenA,
			Amount: new(big.Int).Mul(big.NewInt(10), one),
			Steps: []types.SwapStep{
				{RouterID: "pool-x", TokenIn: tokenA, TokenOut: tokenB, AmountIn: new(big.Int).Mul(big.NewInt(10), one)},
				{RouterID: "pool-y", TokenIn: tokenB, TokenOut: tokenA},
			},
			MinProfit: big.NewInt(1),
		}

		res, err := s.engine.ExecuteArbitrage(cmd.Context(), s.admin, req)
		if err != nil {
			return err
		}

		gasUnits := gas.EstimateArbitrageGas(len(req.Steps))
		log.Info("arbitrage settled",
			zap.Uint64("op_id", res.OperationID),
			zap.String("borrowed", res.Borrowed.String()),
			zap.String("premium", res.Premium.String()),
			zap.String("profit", res.Profit.String()),
			zap.Uint64("est_gas", gasUnits),
			zap.String("est_gas_cost", s.oracle.EstimateCost(gasUnits).String()),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}
