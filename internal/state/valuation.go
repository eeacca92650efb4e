package state

import (
	fp "MarginlyLedger/internal/math"

	"github.com/holiman/uint256"
)

// CalcLongLeverage returns c / (c - realQuoteDebt) where c = realBaseCollateral*price.
// A zero or negative denominator means the position is already past safe leverage.
func CalcLongLeverage(realBaseCollateral, realQuoteDebt, basePriceX96 *uint256.Int) (*uint256.Int, error) {
	collateralInQuote, err := fp.Mul(realBaseCollateral, basePriceX96)
	if err != nil {
		return nil, err
	}
	net, err := fp.Sub(collateralInQuote, realQuoteDebt)
	if err != nil {
		return nil, err
	}
	return fp.Quo(collateralInQuote, net)
}

// CalcShortLeverage returns realQuoteCollateral / (realQuoteCollateral - realBaseDebt*price).
func CalcShortLeverage(realQuoteCollateral, realBaseDebt, basePriceX96 *uint256.Int) (*uint256.Int, error) {
	debtInQuote, err := fp.Mul(realBaseDebt, basePriceX96)
	if err != nil {
		return nil, err
	}
	net, err := fp.Sub(realQuoteCollateral, debtInQuote)
	if err != nil {
		return nil, err
	}
	return fp.Quo(realQuoteCollateral, net)
}

// CalcLongLiquidationPriceX96 returns maxLeverage*debt / ((maxLeverage-1)*collateral) in X96.
func CalcLongLiquidationPriceX96(realBaseCollateral, realQuoteDebt *uint256.Int, maxLeverage uint64) (*uint256.Int, error) {
	lev, levMinusOne, err := leverageFactors(maxLeverage)
	if err != nil {
		return nil, err
	}
	numerator, err := fp.MulInt(lev, realQuoteDebt)
	if err != nil {
		return nil, err
	}
	denominator, err := fp.MulInt(levMinusOne, realBaseCollateral)
	if err != nil {
		return nil, err
	}
	return fp.Div(numerator, denominator)
}

// CalcShortLiquidationPriceX96 returns (maxLeverage-1)*collateral / (maxLeverage*debt) in X96.
func CalcShortLiquidationPriceX96(realQuoteCollateral, realBaseDebt *uint256.Int, maxLeverage uint64) (*uint256.Int, error) {
	lev, levMinusOne, err := leverageFactors(maxLeverage)
	if err != nil {
		return nil, err
	}
	numerator, err := fp.MulInt(levMinusOne, realQuoteCollateral)
	if err != nil {
		return nil, err
	}
	denominator, err := fp.MulInt(lev, realBaseDebt)
	if err != nil {
		return nil, err
	}
	return fp.Div(numerator, denominator)
}

// leverageFactors returns maxLeverage and maxLeverage-1; zero maxLeverage underflows.
func leverageFactors(maxLeverage uint64) (*uint256.Int, *uint256.Int, error) {
	lev := uint256.NewInt(maxLeverage)
	levMinusOne, err := fp.Sub(lev, uint256.NewInt(1))
	if err != nil {
		return nil, nil, err
	}
	return lev, levMinusOne, nil
}
