package action

import "github.com/holiman/uint256"

// Long opens or increases a long of Amount base units.
type Long struct {
	Amount        *uint256.Int
	LimitPriceX96 *uint256.Int
	Route         Route
}

func (*Long) CallType() CallType { return CallTypeLong }
func (*Long) Kind() string       { return KindLong }
func (*Long) isAction()          {}

// Short opens or increases a short of Amount base units.
type Short struct {
	Amount        *uint256.Int
	LimitPriceX96 *uint256.Int
	Route         Route
}

func (*Short) CallType() CallType { return CallTypeShort }
func (*Short) Kind() string       { return KindShort }
func (*Short) isAction()          {}

// ClosePosition closes the caller's position at no worse than LimitPriceX96.
type ClosePosition struct {
	LimitPriceX96 *uint256.Int
	Route         Route
	NativeETH     bool
}

func (*ClosePosition) CallType() CallType { return CallTypeClosePosition }
func (*ClosePosition) Kind() string       { return KindClosePosition }
func (*ClosePosition) isAction()          {}
