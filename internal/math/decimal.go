package math

import (
	"regexp"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// MaxFractionDigits caps the fractional digits kept by ParseDecimalString.
const MaxFractionDigits = 18

var decimalPattern = regexp.MustCompile(`^[+-]?[0-9]*\.?[0-9]+$`)

// Decimal is a human number split into its digit strings.
type Decimal struct {
	Negative bool
	Whole    string
	Fraction string
}

// ParseDecimalString splits s into whole and fractional digits.
// The fraction is truncated to MaxFractionDigits. ok is false for anything
// that is not an optionally signed decimal number.
func ParseDecimalString(s string) (Decimal, bool) {
	if !decimalPattern.MatchString(s) {
		return Decimal{}, false
	}

	var d Decimal
	switch s[0] {
	case '-':
		d.Negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	whole, fraction, _ := strings.Cut(s, ".")
	if len(fraction) > MaxFractionDigits {
		fraction = fraction[:MaxFractionDigits]
	}
	d.Whole = whole
	d.Fraction = fraction
	return d, true
}

// FractionDigits returns the number of fractional digits kept.
func (d Decimal) FractionDigits() int {
	return len(d.Fraction)
}

// Scaled returns whole||fraction as an integer, i.e. |d| * 10^FractionDigits.
func (d Decimal) Scaled() (*uint256.Int, error) {
	digits := strings.TrimLeft(d.Whole+d.Fraction, "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, outOfRange("scaled")
	}
	return v, nil
}

// String renders the canonical form: "-.50" becomes "-0.50".
func (d Decimal) String() string {
	var b strings.Builder
	if d.Negative {
		b.WriteByte('-')
	}
	if d.Whole == "" {
		b.WriteByte('0')
	} else {
		b.WriteString(d.Whole)
	}
	if d.Fraction != "" {
		b.WriteByte('.')
		b.WriteString(d.Fraction)
	}
	return b.String()
}

// ParseHuman validates s with ParseDecimalString and returns it as an exact decimal.
func ParseHuman(s string) (decimal.Decimal, bool) {
	d, ok := ParseDecimalString(s)
	if !ok {
		return decimal.Decimal{}, false
	}
	v, err := decimal.NewFromString(d.String())
	if err != nil {
		return decimal.Decimal{}, false
	}
	return v, true
}

// ToUnits converts a human amount into token base units, truncating toward zero.
// ok is false for malformed or negative input.
func ToUnits(s string, decimals uint8) (*uint256.Int, bool, error) {
	v, ok := ParseHuman(s)
	if !ok || v.IsNegative() {
		return nil, false, nil
	}
	units, err := DecimalToUnits(v, decimals)
	if err != nil {
		return nil, true, err
	}
	return units, true, nil
}

// DecimalToUnits scales a non-negative decimal by 10^decimals and truncates.
func DecimalToUnits(v decimal.Decimal, decimals uint8) (*uint256.Int, error) {
	if v.IsNegative() {
		return nil, outOfRange("units")
	}
	units, overflow := uint256.FromBig(v.Shift(int32(decimals)).Truncate(0).BigInt())
	if overflow {
		return nil, outOfRange("units")
	}
	return units, nil
}

// FormatUnits renders base units as a human decimal string.
func FormatUnits(v *uint256.Int, decimals uint8) string {
	return decimal.NewFromBigInt(v.ToBig(), -int32(decimals)).String()
}
