package state

import (
	"errors"
	"fmt"

	fp "MarginlyLedger/internal/math"

	"github.com/holiman/uint256"
)

// PositionType mirrors the pool's on-chain position type (uint8 on the wire).
type PositionType uint8

const (
	PositionTypeUninitialized PositionType = iota
	PositionTypeLend
	PositionTypeShort
	PositionTypeLong
)

var (
	// ErrUnknownPositionType is returned for a type tag outside 0..3.
	ErrUnknownPositionType = errors.New("unknown position type")

	// ErrIncompleteCoeffs is returned when an open position is built from
	// coefficients with a nil field.
	ErrIncompleteCoeffs = errors.New("incomplete coefficients")
)

func (t PositionType) String() string {
	switch t {
	case PositionTypeUninitialized:
		return "Uninitialized"
	case PositionTypeLend:
		return "Lend"
	case PositionTypeShort:
		return "Short"
	case PositionTypeLong:
		return "Long"
	default:
		return "Unknown"
	}
}

// Valid reports whether t is one of the four pool position types.
func (t PositionType) Valid() bool {
	return t <= PositionTypeLong
}

// ParsePositionType accepts the names returned by String, case-sensitive.
func ParsePositionType(s string) (PositionType, bool) {
	for t := PositionTypeUninitialized; t <= PositionTypeLong; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

// Position is an immutable valuation of one pool position.
// BaseAmount and QuoteAmount are real token amounts in base units, derived once
// from the coefficients the position was built with.
type Position struct {
	positionType          PositionType
	heapPosition          uint32
	discountedBaseAmount  *uint256.Int
	discountedQuoteAmount *uint256.Int
	baseAmount            *uint256.Int
	quoteAmount           *uint256.Int
}

// NewPosition values the discounted balances read from positions(address) with coeffs.
// Lend:  base = bcc*db,           quote = qcc*dq
// Short: base = bcc*db - bdc*dq,  quote = qdc*dq
// Long:  base = bdc*db,           quote = qcc*dq - qdlc*db
func NewPosition(coeffs Coeffs, positionType PositionType, heapPosition uint32, discountedBase, discountedQuote *uint256.Int) (*Position, error) {
	if !positionType.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPositionType, positionType)
	}
	if discountedBase == nil {
		discountedBase = new(uint256.Int)
	}
	if discountedQuote == nil {
		discountedQuote = new(uint256.Int)
	}

	p := &Position{
		positionType:          positionType,
		heapPosition:          heapPosition,
		discountedBaseAmount:  new(uint256.Int).Set(discountedBase),
		discountedQuoteAmount: new(uint256.Int).Set(discountedQuote),
	}

	if positionType != PositionTypeUninitialized && !coeffs.Complete() {
		return nil, fmt.Errorf("%w: %s", ErrIncompleteCoeffs, positionType)
	}

	var err error
	switch positionType {
	case PositionTypeLend:
		if p.baseAmount, err = fp.Mul(discountedBase, coeffs.BaseCollateralCoeff); err != nil {
			return nil, fmt.Errorf("lend base: %w", err)
		}
		if p.quoteAmount, err = fp.Mul(discountedQuote, coeffs.QuoteCollateralCoeff); err != nil {
			return nil, fmt.Errorf("lend quote: %w", err)
		}
	case PositionTypeShort:
		if p.baseAmount, err = CalcRealBaseCollateral(coeffs.BaseCollateralCoeff, coeffs.BaseDelevCoeff, discountedBase, discountedQuote); err != nil {
			return nil, fmt.Errorf("short base: %w", err)
		}
		if p.quoteAmount, err = CalcRealQuoteDebt(coeffs.QuoteDebtCoeff, discountedQuote); err != nil {
			return nil, fmt.Errorf("short quote: %w", err)
		}
	case PositionTypeLong:
		if p.baseAmount, err = CalcRealBaseDebt(coeffs.BaseDebtCoeff, discountedBase); err != nil {
			return nil, fmt.Errorf("long base: %w", err)
		}
		if p.quoteAmount, err = CalcRealQuoteCollateral(coeffs.QuoteCollateralCoeff, coeffs.QuoteDelevCoeff, discountedQuote, discountedBase); err != nil {
			return nil, fmt.Errorf("long quote: %w", err)
		}
	default:
		p.baseAmount = new(uint256.Int)
		p.quoteAmount = new(uint256.Int)
	}

	return p, nil
}

func (p *Position) Type() PositionType   { return p.positionType }
func (p *Position) HeapPosition() uint32 { return p.heapPosition }

// BaseAmount returns a copy of the real base amount.
func (p *Position) BaseAmount() *uint256.Int { return new(uint256.Int).Set(p.baseAmount) }

// QuoteAmount returns a copy of the real quote amount.
func (p *Position) QuoteAmount() *uint256.Int { return new(uint256.Int).Set(p.quoteAmount) }

func (p *Position) DiscountedBaseAmount() *uint256.Int {
	return new(uint256.Int).Set(p.discountedBaseAmount)
}

func (p *Position) DiscountedQuoteAmount() *uint256.Int {
	return new(uint256.Int).Set(p.discountedQuoteAmount)
}

// IsEmpty returns true for uninitialized positions.
func (p *Position) IsEmpty() bool {
	return p.positionType == PositionTypeUninitialized
}

// Leverage returns the position leverage at priceX96 as a truncated integer multiple.
// ok is false for uninitialized positions.
func (p *Position) Leverage(priceX96 *uint256.Int) (*uint256.Int, bool, error) {
	switch p.positionType {
	case PositionTypeLend:
		return uint256.NewInt(1), true, nil
	case PositionTypeLong:
		v, err := CalcLongLeverage(p.baseAmount, p.quoteAmount, priceX96)
		return v, err == nil, err
	case PositionTypeShort:
		v, err := CalcShortLeverage(p.quoteAmount, p.baseAmount, priceX96)
		return v, err == nil, err
	default:
		return nil, false, nil
	}
}

// LiquidationPriceX96 returns the price at which leverage reaches maxLeverage.
// ok is false for lend and uninitialized positions.
func (p *Position) LiquidationPriceX96(maxLeverage uint64) (*uint256.Int, bool, error) {
	switch p.positionType {
	case PositionTypeLong:
		v, err := CalcLongLiquidationPriceX96(p.baseAmount, p.quoteAmount, maxLeverage)
		return v, err == nil, err
	case PositionTypeShort:
		v, err := CalcShortLiquidationPriceX96(p.quoteAmount, p.baseAmount, maxLeverage)
		return v, err == nil, err
	default:
		return nil, false, nil
	}
}
