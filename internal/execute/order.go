package execute

import (
	"MarginlyLedger/internal/action"
	fp "MarginlyLedger/internal/math"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Direction is the side of a leveraged position.
type Direction uint8

const (
	DirectionLong Direction = iota
	DirectionShort
)

func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "long"
	case DirectionShort:
		return "short"
	default:
		return "unknown"
	}
}

// ParseDirection accepts "long" and "short".
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "long":
		return DirectionLong, true
	case "short":
		return DirectionShort, true
	default:
		return 0, false
	}
}

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// LeveragedOrder opens a position from a single deposit. Human amounts are
// decimal strings. A long deposits base; a short deposits quote.
type LeveragedOrder struct {
	Direction       Direction
	Deposit         string
	Leverage        string
	BasePrice       string
	SlippagePercent string
	BaseDecimals    uint8
	QuoteDecimals   uint8
	NativeETH       bool
	Route           action.Route
}

// CloseOrder closes a position of the given direction.
type CloseOrder struct {
	Direction       Direction
	BasePrice       string
	SlippagePercent string
	BaseDecimals    uint8
	QuoteDecimals   uint8
	NativeETH       bool
	Route           action.Route
}

// LeveragedPlan is the integer form of a LeveragedOrder.
type LeveragedPlan struct {
	Action        action.Action
	DepositAmount *uint256.Int
	TradeAmount   *uint256.Int
	LimitPriceX96 *uint256.Int
	LimitPrice    decimal.Decimal
}

// PlanLeveraged derives trade size and worst acceptable price for o.
// ok is false when any human input is malformed or out of range.
//
//	long:  size = deposit*(L-1)          limit = price*(100+p)/100
//	short: size = deposit*(L-1)/price    limit = price*(100-p)/100
func (e *Encoder) PlanLeveraged(o LeveragedOrder) (LeveragedPlan, bool, error) {
	deposit, ok := fp.ParseHuman(o.Deposit)
	if !ok || !deposit.IsPositive() {
		return LeveragedPlan{}, false, nil
	}
	leverage, ok := fp.ParseHuman(o.Leverage)
	if !ok || leverage.LessThan(one) {
		return LeveragedPlan{}, false, nil
	}
	price, slippage, ok := parsePriceAndSlippage(o.BasePrice, o.SlippagePercent)
	if !ok {
		return LeveragedPlan{}, false, nil
	}

	var (
		depositDecimals uint8
		size            decimal.Decimal
		limit           decimal.Decimal
	)
	exposure := deposit.Mul(leverage.Sub(one))

	switch o.Direction {
	case DirectionLong:
		depositDecimals = o.BaseDecimals
		size = exposure
		limit = adverse(price, slippage, true)
	case DirectionShort:
		depositDecimals = o.QuoteDecimals
		size, _ = exposure.QuoRem(price, int32(o.BaseDecimals))
		limit = adverse(price, slippage, false)
	default:
		return LeveragedPlan{}, false, nil
	}

	depositUnits, err := fp.DecimalToUnits(deposit, depositDecimals)
	if err != nil {
		return LeveragedPlan{}, true, err
	}
	sizeUnits, err := fp.DecimalToUnits(size, o.BaseDecimals)
	if err != nil {
		return LeveragedPlan{}, true, err
	}
	limitX96, ok, err := fp.PriceStringToX96(limit.String(), o.BaseDecimals, o.QuoteDecimals)
	if err != nil || !ok {
		return LeveragedPlan{}, ok, err
	}

	plan := LeveragedPlan{
		DepositAmount: depositUnits,
		TradeAmount:   sizeUnits,
		LimitPriceX96: limitX96,
		LimitPrice:    limit,
	}
	if o.Direction == DirectionLong {
		plan.Action = &action.DepositBaseAndLong{
			DepositAmount: depositUnits,
			LongAmount:    sizeUnits,
			LimitPriceX96: limitX96,
			Route:         o.Route,
			NativeETH:     o.NativeETH,
		}
	} else {
		plan.Action = &action.DepositQuoteAndShort{
			DepositAmount: depositUnits,
			ShortAmount:   sizeUnits,
			LimitPriceX96: limitX96,
			Route:         o.Route,
			NativeETH:     o.NativeETH,
		}
	}
	return plan, true, nil
}

// OpenLeveraged plans o and encodes it as deposit-and-long or deposit-and-short.
func (e *Encoder) OpenLeveraged(o LeveragedOrder) (Params, bool, error) {
	plan, ok, err := e.PlanLeveraged(o)
	if err != nil || !ok {
		return Params{}, ok, err
	}
	params, err := e.Encode(plan.Action)
	if err != nil {
		return Params{}, true, err
	}
	return params, true, nil
}

// CloseLeveraged encodes a close with the limit moved against the position:
// down when closing a long, up when closing a short.
func (e *Encoder) CloseLeveraged(o CloseOrder) (Params, bool, error) {
	price, slippage, ok := parsePriceAndSlippage(o.BasePrice, o.SlippagePercent)
	if !ok {
		return Params{}, false, nil
	}

	var limit decimal.Decimal
	switch o.Direction {
	case DirectionLong:
		limit = adverse(price, slippage, false)
	case DirectionShort:
		limit = adverse(price, slippage, true)
	default:
		return Params{}, false, nil
	}

	limitX96, ok, err := fp.PriceStringToX96(limit.String(), o.BaseDecimals, o.QuoteDecimals)
	if err != nil || !ok {
		return Params{}, ok, err
	}
	params, err := e.Encode(&action.ClosePosition{
		LimitPriceX96: limitX96,
		Route:         o.Route,
		NativeETH:     o.NativeETH,
	})
	if err != nil {
		return Params{}, true, err
	}
	return params, true, nil
}

func parsePriceAndSlippage(priceStr, slippageStr string) (decimal.Decimal, decimal.Decimal, bool) {
	price, ok := fp.ParseHuman(priceStr)
	if !ok || !price.IsPositive() {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	slippage, ok := fp.ParseHuman(slippageStr)
	if !ok || slippage.IsNegative() || slippage.GreaterThanOrEqual(hundred) {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	return price, slippage, true
}

// adverse moves price by p percent, up or down. Exact: /100 is a decimal shift.
func adverse(price, p decimal.Decimal, up bool) decimal.Decimal {
	factor := hundred.Sub(p)
	if up {
		factor = hundred.Add(p)
	}
	return price.Mul(factor).Shift(-2)
}
