package shared

import (
	"errors"
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is the cooperative's bookkeeping currency
const DefaultCurrency = money.IDR

var ErrInvalidAmount = errors.New("amount must be a non-negative decimal with at most the currency's fraction digits")

// CurrencyFraction returns the number of minor-unit digits for the currency code,
// defaulting to 2 for codes go-money does not know.
func CurrencyFraction(currency string) int32 {
	if c := money.GetCurrency(currency); c != nil {
		return int32(c.Fraction)
	}
	return 2
}

// ParseMinor converts a decimal string such as "100000.50" into integer minor units.
// Values with more digits than the currency allows are rejected rather than rounded.
func ParseMinor(value string, currency string) (int64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	shifted := d.Shift(CurrencyFraction(currency))
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	return shifted.IntPart(), nil
}

// FormatMinor renders minor units as a fixed-point decimal string, e.g. 10000050 -> "100000.50"
func FormatMinor(minor int64, currency string) string {
	fraction := CurrencyFraction(currency)
	return decimal.New(minor, -fraction).StringFixed(fraction)
}

// Display renders minor units with the currency's symbol and separators, e.g. "Rp100.000,00"
func Display(minor int64, currency string) string {
	return money.New(minor, currency).Display()
}
