package state

import (
	fp "MarginlyLedger/internal/math"

	"github.com/holiman/uint256"
)

// Coeffs is one snapshot of the pool's accrual and deleverage coefficients, all X96.
// Coefficients change with every interest accrual, so a Coeffs must never outlive
// the block it was read at.
type Coeffs struct {
	BaseCollateralCoeff  *uint256.Int
	QuoteCollateralCoeff *uint256.Int
	BaseDebtCoeff        *uint256.Int
	QuoteDebtCoeff       *uint256.Int
	BaseDelevCoeff       *uint256.Int
	QuoteDelevCoeff      *uint256.Int
}

// UnitCoeffs returns coefficients that map discounted amounts 1:1 to real amounts
// with no deleverage applied.
func UnitCoeffs() Coeffs {
	return Coeffs{
		BaseCollateralCoeff:  fp.FromInt(1),
		QuoteCollateralCoeff: fp.FromInt(1),
		BaseDebtCoeff:        fp.FromInt(1),
		QuoteDebtCoeff:       fp.FromInt(1),
		BaseDelevCoeff:       new(uint256.Int),
		QuoteDelevCoeff:      new(uint256.Int),
	}
}

// Complete reports whether every coefficient is set.
func (c Coeffs) Complete() bool {
	return c.BaseCollateralCoeff != nil && c.QuoteCollateralCoeff != nil &&
		c.BaseDebtCoeff != nil && c.QuoteDebtCoeff != nil &&
		c.BaseDelevCoeff != nil && c.QuoteDelevCoeff != nil
}

// CalcRealBaseCollateral returns baseCollateralCoeff*db - baseDelevCoeff*dq.
func CalcRealBaseCollateral(baseCollateralCoeff, baseDelevCoeff, discountedBaseCollateral, discountedQuoteDebt *uint256.Int) (*uint256.Int, error) {
	return mulSub(baseCollateralCoeff, discountedBaseCollateral, baseDelevCoeff, discountedQuoteDebt)
}

// CalcRealQuoteCollateral returns quoteCollateralCoeff*dq - quoteDelevCoeff*db.
func CalcRealQuoteCollateral(quoteCollateralCoeff, quoteDelevCoeff, discountedQuoteCollateral, discountedBaseDebt *uint256.Int) (*uint256.Int, error) {
	return mulSub(quoteCollateralCoeff, discountedQuoteCollateral, quoteDelevCoeff, discountedBaseDebt)
}

// CalcRealBaseDebt returns baseDebtCoeff*db.
func CalcRealBaseDebt(baseDebtCoeff, discountedBaseDebt *uint256.Int) (*uint256.Int, error) {
	return fp.Mul(discountedBaseDebt, baseDebtCoeff)
}

// CalcRealQuoteDebt returns quoteDebtCoeff*dq.
func CalcRealQuoteDebt(quoteDebtCoeff, discountedQuoteDebt *uint256.Int) (*uint256.Int, error) {
	return fp.Mul(discountedQuoteDebt, quoteDebtCoeff)
}

func mulSub(coeff, amount, delevCoeff, delevAmount *uint256.Int) (*uint256.Int, error) {
	gross, err := fp.Mul(amount, coeff)
	if err != nil {
		return nil, err
	}
	delev, err := fp.Mul(delevAmount, delevCoeff)
	if err != nil {
		return nil, err
	}
	return fp.Sub(gross, delev)
}
