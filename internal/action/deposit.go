package action

import "github.com/holiman/uint256"

// DepositBase deposits base tokens. NativeETH attaches the amount as call value.
type DepositBase struct {
	Amount    *uint256.Int
	NativeETH bool
}

func (*DepositBase) CallType() CallType { return CallTypeDepositBase }
func (*DepositBase) Kind() string       { return KindDepositBase }
func (*DepositBase) isAction()          {}

// DepositQuote deposits quote tokens.
type DepositQuote struct {
	Amount    *uint256.Int
	NativeETH bool
}

func (*DepositQuote) CallType() CallType { return CallTypeDepositQuote }
func (*DepositQuote) Kind() string       { return KindDepositQuote }
func (*DepositQuote) isAction()          {}

// DepositBaseAndLong deposits base and opens a long of LongAmount in one call.
type DepositBaseAndLong struct {
	DepositAmount *uint256.Int
	LongAmount    *uint256.Int
	LimitPriceX96 *uint256.Int
	Route         Route
	NativeETH     bool
}

func (*DepositBaseAndLong) CallType() CallType { return CallTypeDepositBase }
func (*DepositBaseAndLong) Kind() string       { return KindDepositBaseAndLong }
func (*DepositBaseAndLong) isAction()          {}

// DepositQuoteAndShort deposits quote and opens a short of ShortAmount in one call.
type DepositQuoteAndShort struct {
	DepositAmount *uint256.Int
	ShortAmount   *uint256.Int
	LimitPriceX96 *uint256.Int
	Route         Route
	NativeETH     bool
}

func (*DepositQuoteAndShort) CallType() CallType { return CallTypeDepositQuote }
func (*DepositQuoteAndShort) Kind() string       { return KindDepositQuoteAndShort }
func (*DepositQuoteAndShort) isAction()          {}
