package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

var (
	ErrInvalidAmount       = errors.New("token: amount must be positive")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrSupplyUnderflow     = errors.New("token: burn exceeds holder supply")
)

// Minter mints utility tokens to a beneficiary. Implementations must fail
// loudly on invalid amounts rather than silently no-op.
type Minter interface {
	Mint(beneficiary [20]byte, amount *big.Int) error
}

// Burner destroys utility tokens held by an account.
type Burner interface {
	Burn(holder [20]byte, amount *big.Int) error
}

// Transferrer moves token value between accounts. The gateways use it for
// escrow, bounty and penalty bookkeeping.
type Transferrer interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}

// Ledger is an in-memory token accounting reference implementation satisfying
// Minter, Burner and Transferrer. Production deployments substitute the real
// token bridge; the protocol core only depends on the interfaces above.
type Ledger struct {
	mu       sync.Mutex
	symbol   string
	balances map[[20]byte]*big.Int
	supply   *big.Int
}

// NewLedger creates an empty ledger for the given token symbol.
func NewLedger(symbol string) *Ledger {
	return &Ledger{
		symbol:   symbol,
		balances: make(map[[20]byte]*big.Int),
		supply:   big.NewInt(0),
	}
}

// Symbol returns the token symbol the ledger accounts for.
func (l *Ledger) Symbol() string { return l.symbol }

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (l *Ledger) balance(account [20]byte) *big.Int {
	if bal, ok := l.balances[account]; ok {
		return bal
	}
	bal := big.NewInt(0)
	l.balances[account] = bal
	return bal
}

// Mint credits amount to beneficiary and grows total supply.
func (l *Ledger) Mint(beneficiary [20]byte, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return fmt.Errorf("%w: mint", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balance(beneficiary)
	bal.Add(bal, amount)
	l.supply.Add(l.supply, amount)
	return nil
}

// Burn debits amount from holder and shrinks total supply.
func (l *Ledger) Burn(holder [20]byte, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return fmt.Errorf("%w: burn", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balance(holder)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: holder has %s, burning %s %s", ErrSupplyUnderflow, bal, amount, l.symbol)
	}
	bal.Sub(bal, amount)
	l.supply.Sub(l.supply, amount)
	return nil
}

// Transfer moves amount between accounts.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return fmt.Errorf("%w: transfer", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	src := l.balance(from)
	if src.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, sending %s %s", ErrInsufficientBalance, hex20(from), src, amount, l.symbol)
	}
	dst := l.balance(to)
	src.Sub(src, amount)
	dst.Add(dst, amount)
	return nil
}

// BalanceOf returns the account balance.
func (l *Ledger) BalanceOf(account [20]byte) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance(account))
}

// TotalSupply returns the outstanding supply.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.supply)
}

func hex20(addr [20]byte) string {
	return fmt.Sprintf("%x", addr[:4])
}
