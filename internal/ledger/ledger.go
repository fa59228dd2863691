// Package ledger holds the in-memory credit balance that generation jobs spend from.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

// Static errors for ledger operations.
var (
	// ErrInvalidAmount is returned when a deposit amount is missing, malformed or not positive.
	ErrInvalidAmount = errors.New("ledger: invalid amount")
	// ErrInsufficientCredits is returned when a debit would drive the balance negative.
	ErrInsufficientCredits = errors.New("ledger: insufficient credits")
	// ErrUnknownPreset is returned when a preset name is not recognised.
	ErrUnknownPreset = errors.New("ledger: unknown preset")
)

// UnlimitedSymbol is shown in place of the balance once the unlimited plan is active.
const UnlimitedSymbol = "∞"

// UltraCredits is the one-time deposit made when the unlimited plan is activated (10^66).
var UltraCredits = new(big.Int).Exp(big.NewInt(10), big.NewInt(66), nil)

// Preset is a named fixed deposit.
type Preset struct {
	Name   string
	Label  string
	Amount *big.Int
}

var presets = []Preset{
	{Name: "thousand", Label: "+1 Thousand", Amount: big.NewInt(1_000)},
	{Name: "million", Label: "+1 Million", Amount: big.NewInt(1_000_000)},
	{Name: "billion", Label: "+1 Billion", Amount: big.NewInt(1_000_000_000)},
	{Name: "trillion", Label: "+1 Trillion", Amount: big.NewInt(1_000_000_000_000)},
}

// Presets returns the available preset deposits in ascending order.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	for i, p := range presets {
		out[i] = Preset{Name: p.Name, Label: p.Label, Amount: new(big.Int).Set(p.Amount)}
	}
	return out
}

// Snapshot is a point-in-time copy of the ledger state.
type Snapshot struct {
	Balance   *big.Int
	Unlimited bool
}

// Display renders the balance for presentation.
func (s Snapshot) Display() string {
	if s.Unlimited {
		return UnlimitedSymbol
	}
	return humanize.BigComma(s.Balance)
}

// Ledger owns a non-negative balance and the one-way unlimited flag.
// It is safe for concurrent use.
type Ledger struct {
	mu        sync.Mutex
	balance   *big.Int
	unlimited bool
}

// New creates a ledger with the given opening balance. A nil or negative
// opening balance is treated as zero.
func New(opening *big.Int) *Ledger {
	b := new(big.Int)
	if opening != nil && opening.Sign() > 0 {
		b.Set(opening)
	}
	return &Ledger{balance: b}
}

// Deposit adds a positive amount to the balance.
func (l *Ledger) Deposit(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: Amount must be a positive number.", ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance.Add(l.balance, amount)
	return nil
}

// DepositString parses a base-10 integer and deposits it.
// The returned amount is the value that was added.
func (l *Ledger) DepositString(s string) (*big.Int, error) {
	amount, err := ParseAmount(s)
	if err != nil {
		return nil, err
	}
	if err := l.Deposit(amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// DepositPreset deposits the amount of the named preset.
func (l *Ledger) DepositPreset(name string) (*big.Int, error) {
	for _, p := range presets {
		if p.Name == name {
			amount := new(big.Int).Set(p.Amount)
			if err := l.Deposit(amount); err != nil {
				return nil, err
			}
			return amount, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}

// CanAfford reports whether cost can be paid. Always true in unlimited mode.
func (l *Ledger) CanAfford(cost *big.Int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canAfford(cost)
}

func (l *Ledger) canAfford(cost *big.Int) bool {
	if l.unlimited || cost == nil {
		return true
	}
	return l.balance.Cmp(cost) >= 0
}

// Debit subtracts cost from the balance. It is a no-op in unlimited mode.
// Callers are expected to check CanAfford first; if the balance cannot cover
// the cost it is left untouched and ErrInsufficientCredits is returned.
func (l *Ledger) Debit(cost *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.unlimited || cost == nil || cost.Sign() <= 0 {
		return nil
	}
	if !l.canAfford(cost) {
		return ErrInsufficientCredits
	}
	l.balance.Sub(l.balance, cost)
	return nil
}

// ActivateUnlimited switches the ledger into unlimited mode and deposits
// UltraCredits for display. Only the first call has an effect; it reports
// whether this call performed the activation.
func (l *Ledger) ActivateUnlimited() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.unlimited {
		return false
	}
	l.unlimited = true
	l.balance.Add(l.balance, UltraCredits)
	return true
}

// Unlimited reports whether the unlimited plan is active.
func (l *Ledger) Unlimited() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unlimited
}

// Balance returns a copy of the current balance.
func (l *Ledger) Balance() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance)
}

// Snapshot returns a copy of the ledger state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		Balance:   new(big.Int).Set(l.balance),
		Unlimited: l.unlimited,
	}
}

// ParseAmount parses a user-supplied deposit amount. The wrapped messages
// are suitable for showing to the user.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: Please enter an amount.", ErrInvalidAmount)
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: Invalid number format. Please enter a valid integer.", ErrInvalidAmount)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: Amount must be a positive number.", ErrInvalidAmount)
	}
	return amount, nil
}

// UserMessage extracts the user-facing part of a ledger error.
func UserMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{ErrInvalidAmount, ErrUnknownPreset, ErrInsufficientCredits} {
		prefix := sentinel.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}
