// Package ledger implements the per-vintage fungible token ledger: supply
// and balance accounting, allowance-based pull transfers, and the
// per-vintage deposit cap. Amounts are 256-bit integers at the vintage's
// decimal scale.
package ledger

import (
	"sync"

	"github.com/holiman/uint256"

	"github.com/creditledger-xyz/go-creditledger/cerrors"
	"github.com/creditledger-xyz/go-creditledger/vintage"
)

// Balance is one persisted account balance, for snapshots.
type Balance struct {
	Vintage vintage.Ref
	Account string
	Amount  *uint256.Int
}

// Approval is one persisted allowance, for snapshots. Allowances outlive a
// process restart the same way balances do, or a granted approval would
// silently vanish before the spender pulls it.
type Approval struct {
	Vintage vintage.Ref
	Owner   string
	Spender string
	Amount  *uint256.Int
}

// Ledger tracks fungible supply and balances per vintage.
type Ledger struct {
	mu         sync.Mutex
	vintages   vintage.Registry
	supplies   map[vintage.Ref]*uint256.Int
	balances   map[vintage.Ref]map[string]*uint256.Int
	allowances map[vintage.Ref]map[string]map[string]*uint256.Int // owner -> spender -> amount
}

// New creates an empty ledger backed by the given vintage lookup.
func New(vintages vintage.Registry) *Ledger {
	return &Ledger{
		vintages:   vintages,
		supplies:   make(map[vintage.Ref]*uint256.Int),
		balances:   make(map[vintage.Ref]map[string]*uint256.Int),
		allowances: make(map[vintage.Ref]map[string]map[string]*uint256.Int),
	}
}

// Mint creates amount base units for to, subject to the vintage's deposit
// cap.
func (l *Ledger) Mint(ref vintage.Ref, to string, amount *uint256.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	info, err := l.vintages.Get(ref)
	if err != nil {
		return err
	}
	supply := l.supply(ref)
	next := new(uint256.Int).Add(supply, amount)
	if next.Lt(supply) {
		return cerrors.Capacityf("vintage %q: supply overflow", ref)
	}
	if info.TotalCap > 0 {
		cap256 := new(uint256.Int).Mul(uint256.NewInt(info.TotalCap), info.Scale())
		if next.Gt(cap256) {
			return cerrors.Capacityf("vintage %q: deposit cap %d units exceeded", ref, info.TotalCap)
		}
	}
	supply.Set(next)
	l.credit(ref, to, amount)
	return nil
}

// Burn destroys amount base units held by from.
func (l *Ledger) Burn(ref vintage.Ref, from string, amount *uint256.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(ref, from, amount); err != nil {
		return err
	}
	l.supply(ref).Sub(l.supply(ref), amount)
	return nil
}

// Transfer moves amount base units from one account to another.
func (l *Ledger) Transfer(ref vintage.Ref, from, to string, amount *uint256.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(ref, from, amount); err != nil {
		return err
	}
	l.credit(ref, to, amount)
	return nil
}

// Approve sets spender's allowance over owner's balance.
func (l *Ledger) Approve(ref vintage.Ref, owner, spender string, amount *uint256.Int) error {
	if amount == nil {
		return cerrors.Validationf("nil amount")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setAllowance(ref, owner, spender, amount)
	return nil
}

// Allowance returns spender's remaining allowance over owner's balance.
func (l *Ledger) Allowance(ref vintage.Ref, owner, spender string) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.allowances[ref][owner][spender]; ok {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int)
}

// TransferFrom moves amount base units from owner to to, consuming
// spender's allowance.
func (l *Ledger) TransferFrom(ref vintage.Ref, spender, owner, to string, amount *uint256.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	allowance, ok := l.allowances[ref][owner][spender]
	if !ok || allowance.Lt(amount) {
		return cerrors.Validationf("allowance of %q over %q too low", spender, owner)
	}
	if err := l.debit(ref, owner, amount); err != nil {
		return err
	}
	allowance.Sub(allowance, amount)
	l.credit(ref, to, amount)
	return nil
}

// BalanceOf returns who's balance for the vintage.
func (l *Ledger) BalanceOf(ref vintage.Ref, who string) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[ref][who]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

// Supply returns the outstanding supply for the vintage.
func (l *Ledger) Supply(ref vintage.Ref) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(l.supply(ref))
}

// Balances returns all non-zero balances, for persistence.
func (l *Ledger) Balances() []Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Balance
	for ref, accounts := range l.balances {
		for account, amount := range accounts {
			if amount.IsZero() {
				continue
			}
			out = append(out, Balance{Vintage: ref, Account: account, Amount: new(uint256.Int).Set(amount)})
		}
	}
	return out
}

// Approvals returns all non-zero allowances, for persistence.
func (l *Ledger) Approvals() []Approval {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Approval
	for ref, owners := range l.allowances {
		for owner, spenders := range owners {
			for spender, amount := range spenders {
				if amount.IsZero() {
					continue
				}
				out = append(out, Approval{
					Vintage: ref,
					Owner:   owner,
					Spender: spender,
					Amount:  new(uint256.Int).Set(amount),
				})
			}
		}
	}
	return out
}

// Restore replaces the ledger's balances and allowances with previously
// persisted ones and recomputes per-vintage supply.
func (l *Ledger) Restore(balances []Balance, approvals []Approval) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.supplies = make(map[vintage.Ref]*uint256.Int)
	l.balances = make(map[vintage.Ref]map[string]*uint256.Int)
	l.allowances = make(map[vintage.Ref]map[string]map[string]*uint256.Int)
	for _, b := range balances {
		l.credit(b.Vintage, b.Account, b.Amount)
		l.supply(b.Vintage).Add(l.supply(b.Vintage), b.Amount)
	}
	for _, a := range approvals {
		l.setAllowance(a.Vintage, a.Owner, a.Spender, a.Amount)
	}
}

func (l *Ledger) setAllowance(ref vintage.Ref, owner, spender string, amount *uint256.Int) {
	owners, ok := l.allowances[ref]
	if !ok {
		owners = make(map[string]map[string]*uint256.Int)
		l.allowances[ref] = owners
	}
	spenders, ok := owners[owner]
	if !ok {
		spenders = make(map[string]*uint256.Int)
		owners[owner] = spenders
	}
	spenders[spender] = new(uint256.Int).Set(amount)
}

func (l *Ledger) supply(ref vintage.Ref) *uint256.Int {
	s, ok := l.supplies[ref]
	if !ok {
		s = new(uint256.Int)
		l.supplies[ref] = s
	}
	return s
}

func (l *Ledger) credit(ref vintage.Ref, who string, amount *uint256.Int) {
	accounts, ok := l.balances[ref]
	if !ok {
		accounts = make(map[string]*uint256.Int)
		l.balances[ref] = accounts
	}
	b, ok := accounts[who]
	if !ok {
		b = new(uint256.Int)
		accounts[who] = b
	}
	b.Add(b, amount)
}

func (l *Ledger) debit(ref vintage.Ref, who string, amount *uint256.Int) error {
	b, ok := l.balances[ref][who]
	if !ok || b.Lt(amount) {
		return cerrors.Validationf("balance of %q too low", who)
	}
	b.Sub(b, amount)
	return nil
}

func checkAmount(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return cerrors.Validationf("zero amount")
	}
	return nil
}
