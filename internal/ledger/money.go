package ledger

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in cents. Totals are summed as integers so they
// round-trip exactly through exports and storage.
type Money int64

// MaxAmount is the largest amount a single value may hold, R$ 10 billion.
// Summing millions of such values still fits in an int64.
const MaxAmount Money = 1_000_000_000_000

const (
	// maxAmountText bounds the text handed to the decimal parser.
	maxAmountText = 64
	maxExponent   = 15
)

var (
	hundred    = decimal.NewFromInt(100)
	maxDecimal = decimal.New(int64(MaxAmount), -2)
)

// FromDecimal converts a decimal amount to cents, rounding half away from
// zero. The sign is dropped and anything above MaxAmount is zero.
func FromDecimal(d decimal.Decimal) Money {
	d = d.Abs()
	switch {
	case d.IsZero():
		return 0
	case d.Exponent() > maxExponent:
		return 0
	case d.NumDigits()+int(d.Exponent()) < -2:
		// Below a tenth of a cent; checked before any rescaling so a huge
		// negative exponent is never expanded.
		return 0
	case d.GreaterThan(maxDecimal):
		return 0
	}
	return Money(d.Mul(hundred).Round(0).IntPart())
}

// parseDecimal reads a plain or exponent decimal, refusing text long enough
// to make the arithmetic expensive.
func parseDecimal(s string) (decimal.Decimal, bool) {
	if s == "" || len(s) > maxAmountText {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseMoney reads an amount typed by a person. It accepts "75.5", "75,50",
// "1.234,56" and "R$ 1.234,56". Only digits and separators count, so a
// minus sign is ignored. Anything it cannot read, or above MaxAmount, is zero.
func ParseMoney(s string) Money {
	var sb strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			sb.WriteRune(r)
		}
	}
	clean := sb.String()

	switch {
	case strings.Contains(clean, ","):
		// Brazilian notation: dots group thousands, the comma is the decimal mark.
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.Replace(clean, ",", ".", 1)
	case strings.Count(clean, ".") > 1:
		clean = strings.ReplaceAll(clean, ".", "")
	}

	d, ok := parseDecimal(clean)
	if !ok {
		return 0
	}
	return FromDecimal(d)
}

// MarshalJSON writes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a number, a string or null. Like ParseMoney it drops
// the sign, and unreadable or out of range values decode as zero instead of
// failing the whole document.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*m = 0
		return nil
	}
	if data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			*m = 0
			return nil
		}
		*m = ParseMoney(s)
		return nil
	}
	d, ok := parseDecimal(string(data))
	if !ok {
		*m = 0
		return nil
	}
	*m = FromDecimal(d)
	return nil
}
