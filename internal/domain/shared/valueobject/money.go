package valueobject

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	ZAR Currency = "ZAR" // South African Rand (default)
	USD Currency = "USD" // US Dollar
	EUR Currency = "EUR" // Euro
	GBP Currency = "GBP" // British Pound
)

// DefaultCurrency is the default currency for the system
const DefaultCurrency = ZAR

// Money is a value object representing monetary amounts.
// It is immutable - all operations return new Money instances.
// Amounts are held at full decimal precision; Round2 applies the
// 2-decimal round-half-away-from-zero policy used for all posted values.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates a new Money with the specified amount and currency
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if currency == "" {
		return Money{}, errors.New("currency cannot be empty")
	}
	return Money{
		amount:   amount,
		currency: currency,
	}, nil
}

// NewMoneyFromString creates Money from a string representation
func NewMoneyFromString(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string: %w", err)
	}
	return NewMoney(d, currency)
}

// NewMoneyZAR creates Money in ZAR (South African Rand)
func NewMoneyZAR(amount decimal.Decimal) Money {
	return Money{amount: amount, currency: ZAR}
}

// NewMoneyZARFromFloat creates Money in ZAR from float64
func NewMoneyZARFromFloat(amount float64) Money {
	return Money{amount: decimal.NewFromFloat(amount), currency: ZAR}
}

// NewMoneyZARFromString creates Money in ZAR from string
func NewMoneyZARFromString(amount string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string: %w", err)
	}
	return Money{amount: d, currency: ZAR}, nil
}

// Zero returns a zero-value Money in the specified currency
func Zero(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// ZeroZAR returns a zero-value Money in ZAR
func ZeroZAR() Money {
	return Zero(ZAR)
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// Add returns the sum of two Money values; currencies must match
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Sub returns the difference of two Money values; currencies must match
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// Mul returns the Money multiplied by a decimal factor
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(factor), currency: m.currency}
}

// Div returns the Money divided by a decimal divisor
func (m Money) Div(divisor decimal.Decimal) (Money, error) {
	if divisor.IsZero() {
		return Money{}, errors.New("division by zero")
	}
	return Money{amount: m.amount.Div(divisor), currency: m.currency}, nil
}

// Neg returns the negated amount
func (m Money) Neg() Money {
	return Money{amount: m.amount.Neg(), currency: m.currency}
}

// Round2 rounds to 2 decimal places, half away from zero
func (m Money) Round2() Money {
	return Money{amount: m.amount.Round(2), currency: m.currency}
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsNegative returns true if the amount is negative
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// IsPositive returns true if the amount is positive
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// Equal returns true if both amount and currency match
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// LessThan compares amounts; currencies must match or the result is false
func (m Money) LessThan(other Money) bool {
	return m.currency == other.currency && m.amount.LessThan(other.amount)
}

// GreaterThan compares amounts; currencies must match or the result is false
func (m Money) GreaterThan(other Money) bool {
	return m.currency == other.currency && m.amount.GreaterThan(other.amount)
}

// String returns a human-readable representation, e.g. "115.00 ZAR"
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(2), m.currency)
}

// moneyJSON is the serialized form of Money
type moneyJSON struct {
	Amount   string   `json:"amount"`
	Currency Currency `json:"currency"`
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{
		Amount:   m.amount.String(),
		Currency: m.currency,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var mj moneyJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return err
	}
	d, err := decimal.NewFromString(mj.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	m.amount = d
	m.currency = mj.Currency
	return nil
}

// Value implements driver.Valuer for database persistence (amount only)
func (m Money) Value() (driver.Value, error) {
	return m.amount.String(), nil
}

// Scan implements sql.Scanner for database retrieval
func (m *Money) Scan(value interface{}) error {
	if value == nil {
		m.amount = decimal.Zero
		m.currency = DefaultCurrency
		return nil
	}
	var d decimal.Decimal
	if err := d.Scan(value); err != nil {
		return err
	}
	m.amount = d
	m.currency = DefaultCurrency
	return nil
}
