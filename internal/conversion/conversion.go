package conversion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNonPositiveRate = errors.New("conversion rate must be positive")
	ErrNegativeAmount  = errors.New("amount must not be negative")
)

// Converter turns base-currency prices into the secondary display currency
// with a rate fixed at construction.
type Converter struct {
	rate     decimal.Decimal
	currency string
}

func New(rate decimal.Decimal, currency string) (Converter, error) {
	if !rate.IsPositive() {
		return Converter{}, fmt.Errorf("%w: %s", ErrNonPositiveRate, rate)
	}
	return Converter{rate: rate, currency: strings.ToUpper(strings.TrimSpace(currency))}, nil
}

// ToSecondary returns base * rate.
func (c Converter) ToSecondary(base decimal.Decimal) (decimal.Decimal, error) {
	if base.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrNegativeAmount, base)
	}
	return base.Mul(c.rate), nil
}

func (c Converter) Rate() decimal.Decimal { return c.rate }

// Currency is the secondary currency code, e.g. IRT.
func (c Converter) Currency() string { return c.currency }
