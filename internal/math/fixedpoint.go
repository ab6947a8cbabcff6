// internal/math/fixedpoint.go
package math

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits every stored balance keeps.
const Precision int32 = 4

// MaxDigits bounds an accepted amount: at most this many significant digits,
// integer digits and fractional digits.
const MaxDigits = 28

var maxCoefficient = new(big.Int).Exp(big.NewInt(10), big.NewInt(MaxDigits), nil)

// WithinBounds reports whether amount fits MaxDigits. It only inspects the
// exponent and coefficient, so huge exponents are rejected without being
// expanded.
func WithinBounds(amount decimal.Decimal) bool {
	exp := amount.Exponent()
	if exp < -MaxDigits || exp > MaxDigits {
		return false
	}
	coef := amount.Coefficient()
	coef.Abs(coef)
	if coef.Cmp(maxCoefficient) >= 0 {
		return false
	}
	digits := int32(len(coef.String()))
	return exp <= 0 || digits+exp <= MaxDigits
}

// Truncate drops every digit past Precision without rounding.
// The result never has a larger magnitude than the input: 123.45678 becomes
// 123.4567 and -1.00005 becomes -1.0000.
func Truncate(amount decimal.Decimal) decimal.Decimal {
	return amount.Truncate(Precision)
}

// Balances is implemented by anything holding the available/held/total triple.
type Balances interface {
	BalanceFields() (available, held, total *decimal.Decimal)
}

// MutateBalance adds the three deltas to the matching fields and truncates
// each field afterwards. Deltas are applied by plain addition, so the order in
// which they are listed is irrelevant.
func MutateBalance(b Balances, availableDelta, heldDelta, totalDelta decimal.Decimal) {
	available, held, total := b.BalanceFields()

	*available = Truncate(available.Add(availableDelta))
	*held = Truncate(held.Add(heldDelta))
	*total = Truncate(total.Add(totalDelta))
}

// IsPositive reports whether amount is strictly greater than zero once it has
// been brought down to store precision.
func IsPositive(amount decimal.Decimal) bool {
	return Truncate(amount).IsPositive()
}
