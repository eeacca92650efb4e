package math

import (
	"github.com/holiman/uint256"
)

// PriceToX96 converts a human integer price (quote per base) into the pool's X96 price of raw
// quote units per raw base unit: price * 2^96 / 10^(baseDecimals-quoteDecimals).
// When the quote token has more decimals the exponent is negative and the scale multiplies.
func PriceToX96(price *uint256.Int, baseDecimals, quoteDecimals uint8) (*uint256.Int, error) {
	return scaleToX96(price, int(baseDecimals)-int(quoteDecimals))
}

// PriceFromX96 is the truncating inverse of PriceToX96.
func PriceFromX96(priceX96 *uint256.Int, baseDecimals, quoteDecimals uint8) (*uint256.Int, error) {
	exp := int(baseDecimals) - int(quoteDecimals)
	if exp >= 0 {
		scale, err := Pow10(uint(exp))
		if err != nil {
			return nil, err
		}
		return MulDiv(priceX96, scale, Q96)
	}

	scale, err := Pow10(uint(-exp))
	if err != nil {
		return nil, err
	}
	denominator, err := MulInt(Q96, scale)
	if err != nil {
		return nil, err
	}
	return Quo(priceX96, denominator)
}

// PriceStringToX96 converts a human decimal price string to X96 without floating point.
// ok is false when s is not a well-formed non-negative number.
func PriceStringToX96(s string, baseDecimals, quoteDecimals uint8) (*uint256.Int, bool, error) {
	d, ok := ParseDecimalString(s)
	if !ok || d.Negative {
		return nil, false, nil
	}

	digits, err := d.Scaled()
	if err != nil {
		return nil, true, err
	}

	v, err := scaleToX96(digits, int(baseDecimals)-int(quoteDecimals)+d.FractionDigits())
	if err != nil {
		return nil, true, err
	}
	return v, true, nil
}

// scaleToX96 returns v * 2^96 / 10^exp, multiplying when exp is negative.
func scaleToX96(v *uint256.Int, exp int) (*uint256.Int, error) {
	if exp >= 0 {
		scale, err := Pow10(uint(exp))
		if err != nil {
			return nil, err
		}
		return MulDiv(v, Q96, scale)
	}

	scale, err := Pow10(uint(-exp))
	if err != nil {
		return nil, err
	}
	x96, err := MulInt(v, Q96)
	if err != nil {
		return nil, err
	}
	return MulInt(x96, scale)
}
