package decimal

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrOverflow      = errors.New("amount overflow")
	ErrUnderflow     = errors.New("amount underflow")
)

// maxAmount is 2^256 - 1, the largest value an Amount can hold.
var maxAmount = decimal.NewFromBigInt(
	new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)), 0,
)

// Amount represents an unsigned, 256-bit wide token amount.
// The zero value is a valid amount of zero.
type Amount struct {
	value decimal.Decimal
}

// Zero is the zero amount
var Zero = Amount{}

// Max returns the largest representable amount
func Max() Amount {
	return Amount{value: maxAmount}
}

// maxDigits is the length of maxAmount in base 10
const maxDigits = 78

// NewAmount parses a plain base-10 integer string. Signs, fractions and
// exponents are rejected before the value is expanded.
func NewAmount(s string) (Amount, error) {
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if len(s) > maxDigits {
		return Amount{}, fmt.Errorf("%w: exceeds 256 bits", ErrInvalidAmount)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Amount{}, fmt.Errorf("%w: %q is not a base-10 integer", ErrInvalidAmount, s)
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.GreaterThan(maxAmount) {
		return Amount{}, fmt.Errorf("%w: exceeds 256 bits", ErrInvalidAmount)
	}
	return Amount{value: d}, nil
}

// NewAmountFromUint64 creates an Amount from uint64
func NewAmountFromUint64(u uint64) Amount {
	return Amount{value: decimal.NewFromBigInt(new(big.Int).SetUint64(u), 0)}
}

// Add returns a + other, failing instead of wrapping past 2^256 - 1
func (a Amount) Add(other Amount) (Amount, error) {
	sum := a.value.Add(other.value)
	if sum.GreaterThan(maxAmount) {
		return Amount{}, ErrOverflow
	}
	return Amount{value: sum}, nil
}

// Sub returns a - other, failing instead of going below zero
func (a Amount) Sub(other Amount) (Amount, error) {
	if a.value.LessThan(other.value) {
		return Amount{}, ErrUnderflow
	}
	return Amount{value: a.value.Sub(other.value)}, nil
}

// Cmp compares two amounts
func (a Amount) Cmp(other Amount) int {
	return a.value.Cmp(other.value)
}

// Equal reports whether both amounts hold the same value
func (a Amount) Equal(other Amount) bool {
	return a.value.Equal(other.value)
}

func (a Amount) LessThan(other Amount) bool {
	return a.value.LessThan(other.value)
}

func (a Amount) GreaterThan(other Amount) bool {
	return a.value.GreaterThan(other.value)
}

// IsZero checks if amount is zero
func (a Amount) IsZero() bool {
	return a.value.IsZero()
}

// String returns the base-10 representation without exponent
func (a Amount) String() string {
	return a.value.BigInt().String()
}

// BigInt returns a copy of the value as *big.Int
func (a Amount) BigInt() *big.Int {
	return a.value.BigInt()
}

// MarshalJSON encodes the amount as a quoted decimal string
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts both quoted strings and bare JSON numbers
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}
	parsed, err := NewAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer, amounts are stored as text
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner
func (a *Amount) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case int64:
		if v < 0 {
			return fmt.Errorf("%w: %d is negative", ErrInvalidAmount, v)
		}
		*a = NewAmountFromUint64(uint64(v))
		return nil
	case nil:
		*a = Zero
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Amount", src)
	}
	parsed, err := NewAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
