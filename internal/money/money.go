// Package money enforces the fixed-point rules every monetary and quantity
// value must satisfy before touching storage: a maximum fractional precision
// and a minimum meaningful quantity.
package money

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
)

// DefaultPrecision is the maximum number of fractional digits carried by any
// stored value.
const DefaultPrecision = 8

// DefaultEpsilon is the default dust threshold: quantities below it are not
// fillable and never persisted as a pending remainder.
var DefaultEpsilon = decimal.New(1, -DefaultPrecision) // 0.00000001

// Rules bundles the configured precision and dust threshold.
type Rules struct {
	precision int32
	epsilon   decimal.Decimal
}

// NewRules builds Rules from a digit count and epsilon. Zero values fall back
// to the defaults.
func NewRules(precision int32, epsilon decimal.Decimal) Rules {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	if epsilon.IsZero() {
		epsilon = decimal.New(1, -precision)
	}
	return Rules{precision: precision, epsilon: epsilon}
}

// Default returns Rules with 8 fractional digits and a 1e-8 epsilon.
func Default() Rules {
	return NewRules(DefaultPrecision, DefaultEpsilon)
}

// Check validates that d carries no more than the configured number of
// fractional digits. Exceeding the precision indicates an upstream bug, not
// a retryable condition, so it fails with ErrInvalidValue.
func (r Rules) Check(d decimal.Decimal) error {
	if !d.Equal(d.Truncate(r.precision)) {
		return fmt.Errorf("%w: %s exceeds %d fractional digits", domain.ErrInvalidValue, d.String(), r.precision)
	}
	return nil
}

// Truncate drops fractional digits beyond the configured precision. It is
// used on derived values (products of already-validated inputs); externally
// supplied values go through Check or FromFloat instead so precision
// violations fail loudly.
func (r Rules) Truncate(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(r.precision)
}

// FromFloat converts an externally supplied float into a validated decimal.
// NaN and infinities fail with ErrInvalidValue, as do values carrying more
// than the configured fractional digits.
func (r Rules) FromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, fmt.Errorf("%w: non-finite input", domain.ErrInvalidValue)
	}
	d := decimal.NewFromFloat(f)
	if err := r.Check(d); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}

// Parse converts an externally supplied string into a validated decimal.
func (r Rules) Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", domain.ErrInvalidValue, s)
	}
	if err := r.Check(d); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}

// MeetsMinNotional reports whether price x quantity, truncated, reaches the
// minimum trade size.
func (r Rules) MeetsMinNotional(price, qty, min decimal.Decimal) bool {
	return !r.Truncate(price.Mul(qty)).LessThan(min)
}

// IsDust reports whether a quantity is below the minimum fillable threshold.
// A fill loop terminates when the remaining quantity is dust, and dust is
// never persisted as a further pending amount.
func (r Rules) IsDust(q decimal.Decimal) bool {
	return q.LessThan(r.epsilon)
}

// Epsilon returns the configured dust threshold.
func (r Rules) Epsilon() decimal.Decimal {
	return r.epsilon
}
