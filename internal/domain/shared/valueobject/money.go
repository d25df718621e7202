package valueobject

import (
	"errors"
	"fmt"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	TRY Currency = "TRY" // Turkish Lira (default)
	USD Currency = "USD" // US Dollar
	EUR Currency = "EUR" // Euro
	GBP Currency = "GBP" // British Pound
)

// DefaultCurrency is the default currency for the system
const DefaultCurrency = TRY

// Money is a value object representing a monetary amount in minor currency
// units (e.g. kuruş, cents). Integer arithmetic avoids floating-point
// rounding in ledger math. It is immutable - all operations return new
// Money instances.
type Money struct {
	minor    int64
	currency Currency
}

// NewMoney creates a new Money with the specified minor-unit amount and currency
func NewMoney(minor int64, currency Currency) (Money, error) {
	if currency == "" {
		return Money{}, errors.New("currency cannot be empty")
	}
	return Money{
		minor:    minor,
		currency: currency,
	}, nil
}

// MustMoney creates Money and panics on invalid input; for constants and tests
func MustMoney(minor int64, currency Currency) Money {
	m, err := NewMoney(minor, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns zero Money in the given currency
func Zero(currency Currency) Money {
	return Money{minor: 0, currency: currency}
}

// Minor returns the amount in minor units
func (m Money) Minor() int64 {
	return m.minor
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.minor == 0
}

// IsNegative returns true if the amount is negative
func (m Money) IsNegative() bool {
	return m.minor < 0
}

// IsPositive returns true if the amount is greater than zero
func (m Money) IsPositive() bool {
	return m.minor > 0
}

// Add returns the sum of two Money values; currencies must match
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.currency, other.currency)
	}
	return Money{minor: m.minor + other.minor, currency: m.currency}, nil
}

// Sub returns the difference of two Money values; currencies must match
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.currency, other.currency)
	}
	return Money{minor: m.minor - other.minor, currency: m.currency}, nil
}

// Neg returns the negated amount
func (m Money) Neg() Money {
	return Money{minor: -m.minor, currency: m.currency}
}

// LessThan reports whether m < other, ignoring currency
func (m Money) LessThan(other Money) bool {
	return m.minor < other.minor
}

// GreaterThan reports whether m > other, ignoring currency
func (m Money) GreaterThan(other Money) bool {
	return m.minor > other.minor
}

// Equals reports whether amount and currency both match
func (m Money) Equals(other Money) bool {
	return m.minor == other.minor && m.currency == other.currency
}

// String returns a human-readable representation, e.g. "1250 TRY"
func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.minor, m.currency)
}
