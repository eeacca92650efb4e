package state

import (
	fp "MarginlyLedger/internal/math"

	"github.com/holiman/uint256"
)

// BaseWithdrawAvailable is the base amount that can leave the position while
// keeping leverage at or below maxLeverage.
//
//	Lend:  base
//	Long:  base - quote*maxLeverage*2^96/price/(maxLeverage-1)
//	other: 0
func (p *Position) BaseWithdrawAvailable(basePriceX96 *uint256.Int, maxLeverage uint64) (*uint256.Int, error) {
	switch p.positionType {
	case PositionTypeLend:
		return p.BaseAmount(), nil
	case PositionTypeLong:
		lev, levMinusOne, err := leverageFactors(maxLeverage)
		if err != nil {
			return nil, err
		}
		locked, err := fp.MulInt(p.quoteAmount, lev)
		if err != nil {
			return nil, err
		}
		if locked, err = fp.Div(locked, basePriceX96); err != nil {
			return nil, err
		}
		if locked, err = fp.Quo(locked, levMinusOne); err != nil {
			return nil, err
		}
		return fp.Sub(p.baseAmount, locked)
	default:
		return new(uint256.Int), nil
	}
}

// QuoteWithdrawAvailable mirrors BaseWithdrawAvailable for the quote side.
//
//	Lend:  quote
//	Short: quote - base*maxLeverage*price/2^96/(maxLeverage-1)
//	other: 0
func (p *Position) QuoteWithdrawAvailable(basePriceX96 *uint256.Int, maxLeverage uint64) (*uint256.Int, error) {
	switch p.positionType {
	case PositionTypeLend:
		return p.QuoteAmount(), nil
	case PositionTypeShort:
		lev, levMinusOne, err := leverageFactors(maxLeverage)
		if err != nil {
			return nil, err
		}
		locked, err := fp.MulInt(p.baseAmount, lev)
		if err != nil {
			return nil, err
		}
		if locked, err = fp.Mul(locked, basePriceX96); err != nil {
			return nil, err
		}
		if locked, err = fp.Quo(locked, levMinusOne); err != nil {
			return nil, err
		}
		return fp.Sub(p.quoteAmount, locked)
	default:
		return new(uint256.Int), nil
	}
}
