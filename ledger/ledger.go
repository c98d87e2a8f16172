// Package ledger provides the token balance store that arbitrage operations
// execute against. All mutation happens inside an overlay transaction; an
// operation's transfers become visible to the base ledger only on Commit, so
// discarding the transaction restores every participating balance exactly.
package ledger

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/arbx/types"
)

// View is a read-only balance lookup. Quote paths receive a View so they are
// side-effect-free by construction.
type View interface {
	Balance(token, account common.Address) *big.Int
}

// Store is a View that can open an overlay transaction.
type Store interface {
	View
	Begin() *Txn
}

// Ledger is the durable balance store: token -> account -> balance.
type Ledger struct {
	mu       sync.RWMutex
	balances map[common.Address]map[common.Address]*big.Int
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Balance returns a copy of the committed balance, zero if absent.
func (l *Ledger) Balance(token, account common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if accounts, ok := l.balances[token]; ok {
		if bal, ok := accounts[account]; ok {
			return new(big.Int).Set(bal)
		}
	}
	return new(big.Int)
}

// Mint credits an account directly on the base ledger. Used to seed vault
// liquidity and pool reserves.
func (l *Ledger) Mint(token, account common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.set(token, account, new(big.Int).Add(l.get(token, account), amount))
}

// Begin opens a top-level transaction over the ledger.
func (l *Ledger) Begin() *Txn {
	return &Txn{
		root:   l,
		staged: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (l *Ledger) get(token, account common.Address) *big.Int {
	if accounts, ok := l.balances[token]; ok {
		if bal, ok := accounts[account]; ok {
			return bal
		}
	}
	return new(big.Int)
}

func (l *Ledger) set(token, account common.Address, bal *big.Int) {
	accounts, ok := l.balances[token]
	if !ok {
		accounts = make(map[common.Address]*big.Int)
		l.balances[token] = accounts
	}
	accounts[account] = bal
}

// Txn is an overlay transaction. Reads fall through to the parent overlay (or
// the base ledger); writes stay staged until Commit. Transactions nest:
// committing a child folds its staged writes into the parent, so a whole
// batch can be discarded as one unit.
type Txn struct {
	root   *Ledger
	parent *Txn
	staged map[common.Address]map[common.Address]*big.Int
	closed bool
}

// Balance returns the staged balance, falling back through parent overlays to
// the base ledger.
func (t *Txn) Balance(token, account common.Address) *big.Int {
	if accounts, ok := t.staged[token]; ok {
		if bal, ok := accounts[account]; ok {
			return new(big.Int).Set(bal)
		}
	}
	if t.parent != nil {
		return t.parent.Balance(token, account)
	}
	return t.root.Balance(token, account)
}

// Begin opens a nested transaction on top of this one.
func (t *Txn) Begin() *Txn {
	return &Txn{
		root:   t.root,
		parent: t,
		staged: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Transfer moves amount of token between accounts inside the overlay. The
// sender's staged balance must cover the amount.
func (t *Txn) Transfer(token, from, to common.Address, amount *big.Int) error {
	if t.closed {
		return types.ErrInvalidAmount
	}
	if amount == nil || amount.Sign() <= 0 {
		return types.ErrInvalidAmount
	}
	fromBal := t.Balance(token, from)
	if fromBal.Cmp(amount) < 0 {
		return types.ErrInsufficientBalance
	}
	t.stage(token, from, fromBal.Sub(fromBal, amount))
	t.stage(token, to, new(big.Int).Add(t.Balance(token, to), amount))
	return nil
}

// Commit folds the staged writes into the parent overlay, or into the base
// ledger for a top-level transaction. The transaction is unusable afterwards.
func (t *Txn) Commit() {
	if t.closed {
		return
	}
	t.closed = true

	if t.parent != nil {
		for token, accounts := range t.staged {
			for account, bal := range accounts {
				t.parent.stage(token, account, bal)
			}
		}
		return
	}

	t.root.mu.Lock()
	defer t.root.mu.Unlock()
	for token, accounts := range t.staged {
		for account, bal := range accounts {
			t.root.set(token, account, bal)
		}
	}
}

// Discard drops every staged write. Safe to call after Commit; the first
// close wins.
func (t *Txn) Discard() {
	t.closed = true
	t.staged = nil
}

func (t *Txn) stage(token, account common.Address, bal *big.Int) {
	accounts, ok := t.staged[token]
	if !ok {
		accounts = make(map[common.Address]*big.Int)
		t.staged[token] = accounts
	}
	accounts[account] = bal
}
