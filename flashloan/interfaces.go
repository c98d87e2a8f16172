// Package flashloan coordinates atomic borrow-execute-repay operations. The
// coordinator borrows from a Lender, receives the single callback, drives the
// route chain, enforces the profit invariants and commits only when the loan
// plus premium has been left for the lender to reclaim.
package flashloan

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/arbx/ledger"
	"github.com/michaelpento.lv/arbx/types"
)

// Receiver is the party a lender hands borrowed funds to. OnLoanReceived is
// invoked exactly once per loan; by the time it returns nil the receiver must
// have left amount+premium of each asset available for the lender to reclaim.
type Receiver interface {
	Account() common.Address
	OnLoanReceived(ctx context.Context, txn *ledger.Txn, cb types.LoanCallbackContext) error
}

// Lender issues flash loans. RequestLoan transfers the requested amounts to
// the receiver inside txn, invokes the callback, and reclaims principal plus
// premium before returning. An error from any stage propagates so the caller
// can discard the transaction, undoing the loan itself.
type Lender interface {
	RequestLoan(ctx context.Context, txn *ledger.Txn, receiver Receiver, assets []common.Address, amounts []*big.Int, params []byte) error
	Premium(asset common.Address, amount *big.Int) *big.Int
	Liquidity(view ledger.View, asset common.Address) *big.Int
	String() string
}
