// Package core holds the ledger domain model: debtors, transactions, exact
// money arithmetic and the derived analytics over a ledger snapshot.
package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an exact monetary value carried as integer cents. Amounts cross
// the wire as decimal strings ("85.50") and never touch binary floats, so
// sums over a transaction history reproduce stored balances exactly.
type Money struct {
	Cents int64
}

// maxMoney bounds the magnitude a decimal may have before shifting into
// cents. Beyond it IntPart wraps int64 silently.
var maxMoney = decimal.New(1, 16)

// Decimal returns the exact decimal representation of the value.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the value with two decimal places, e.g. "85.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }
func (m Money) Neg() Money        { return Money{Cents: -m.Cents} }

// IsPositive reports whether the value is strictly greater than zero.
func (m Money) IsPositive() bool { return m.Cents > 0 }

// MarshalJSON renders the value as a decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts both a JSON number and a decimal string, rounding
// half-up on the third decimal place. Signed values are preserved here;
// amount non-negativity is a validation concern, not a decoding one
// (balances are legitimately negative). Magnitudes beyond the cents range
// are rejected rather than wrapped.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ErrInvalidAmount
	}
	if d.Abs().GreaterThan(maxMoney) {
		return fmt.Errorf("%w: amount out of range", ErrInvalidAmount)
	}
	m.Cents = d.Round(2).Shift(2).IntPart()
	return nil
}
