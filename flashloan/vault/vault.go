// Package vault implements an in-memory flash-loan lender over the ledger.
// The vault transfers principal to the receiver, invokes the single
// callback, then reclaims principal plus premium in the same transaction;
// any failure propagates so the whole loan is undone with the operation.
package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbx/flashloan"
	"github.com/michaelpento.lv/arbx/ledger"
	"github.com/michaelpento.lv/arbx/types"
)

const bpsDenominator = 10000

// DefaultPremiumBps is the standard flash-loan premium, 0.09%.
const DefaultPremiumBps = 9

// Vault is a pool of lendable liquidity held under its own ledger account.
type Vault struct {
	name       string
	account    common.Address
	premiumBps uint16
	logger     *zap.Logger
}

// New creates a vault lending the balances held by account.
func New(name string, account common.Address, premiumBps uint16, logger *zap.Logger) *Vault {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Vault{name: name, account: account, premiumBps: premiumBps, logger: logger}
}

func (v *Vault) String() string { return v.name }

// Account returns the vault's ledger account.
func (v *Vault) Account() common.Address { return v.account }

// Premium returns the fee owed on top of the borrowed principal.
func (v *Vault) Premium(_ common.Address, amount *big.Int) *big.Int {
	p := new(big.Int).Mul(amount, big.NewInt(int64(v.premiumBps)))
	return p.Div(p, big.NewInt(bpsDenominator))
}

// Liquidity returns the lendable balance of asset.
func (v *Vault) Liquidity(view ledger.View, asset common.Address) *big.Int {
	return view.Balance(asset, v.account)
}

// RequestLoan issues the loan inside txn: transfer principal out, invoke the
// receiver callback, reclaim principal plus premium. Every failure returns
// an error with nothing rolled back here; the transaction owner discards.
func (v *Vault) RequestLoan(ctx context.Context, txn *ledger.Txn, receiver flashloan.Receiver, assets []common.Address, amounts []*big.Int, params []byte) error {
	if len(assets) == 0 || len(assets) != len(amounts) {
		return types.ErrInvalidCallback
	}

	premiums := make([]*big.Int, len(assets))
	for i := range assets {
		if amounts[i] == nil || amounts[i].Sign() <= 0 {
			return types.ErrInvalidAmount
		}
		if v.Liquidity(txn, assets[i]).Cmp(amounts[i]) < 0 {
			return types.ErrInsufficientLiquidity
		}
		premiums[i] = v.Premium(assets[i], amounts[i])
	}

	for i := range assets {
		if err := txn.Transfer(assets[i], v.account, receiver.Account(), amounts[i]); err != nil {
			return fmt.Errorf("loan disbursement: %w", err)
		}
	}

	cb := types.LoanCallbackContext{
		Assets:    assets,
		Amounts:   amounts,
		Premiums:  premiums,
		Initiator: receiver.Account(),
		Params:    params,
	}
	if err := receiver.OnLoanReceived(ctx, txn, cb); err != nil {
		return err
	}

	for i := range assets {
		repayment := new(big.Int).Add(amounts[i], premiums[i])
		if err := txn.Transfer(assets[i], receiver.Account(), v.account, repayment); err != nil {
			v.logger.Warn("repayment shortfall",
				zap.String("vault", v.name),
				zap.String("asset", assets[i].Hex()),
				zap.String("required", repayment.String()),
			)
			return fmt.Errorf("%w: %s", types.ErrRepaymentFailed, assets[i].Hex())
		}
	}

	v.logger.Debug("loan cycle complete",
		zap.String("vault", v.name),
		zap.Int("assets", len(assets)),
	)
	return nil
}
