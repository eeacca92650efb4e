// Package action defines the closed set of user actions the Marginly pool accepts.
//
// Each variant carries exactly the fields its encoding needs; the mapping to the
// seven execute arguments lives in package execute.
package action

import (
	"github.com/holiman/uint256"
)

// Action is a user intent against one pool. The set of implementations is closed.
type Action interface {
	// CallType returns the execute call type the action encodes to.
	CallType() CallType

	// Kind returns the stable action name used on the wire and in metrics.
	Kind() string

	isAction()
}

// Route is the optional swap calldata passed through to the pool's router.
// The zero Route selects the pool's default venue.
type Route struct {
	calldata *uint256.Int
}

// DefaultRoute lets the pool pick its default swap venue.
func DefaultRoute() Route { return Route{} }

// RouteVia routes the swap with explicit calldata.
func RouteVia(calldata *uint256.Int) Route {
	if calldata == nil {
		return Route{}
	}
	return Route{calldata: new(uint256.Int).Set(calldata)}
}

// Calldata returns the explicit calldata, or ok=false for the default route.
func (r Route) Calldata() (*uint256.Int, bool) {
	if r.calldata == nil {
		return nil, false
	}
	return new(uint256.Int).Set(r.calldata), true
}

// IsDefault reports whether the route was left unset.
func (r Route) IsDefault() bool {
	return r.calldata == nil
}

// Kinds lists every action kind name.
var Kinds = []string{
	KindDepositBase,
	KindDepositQuote,
	KindDepositBaseAndLong,
	KindDepositQuoteAndShort,
	KindWithdrawBase,
	KindWithdrawQuote,
	KindLong,
	KindShort,
	KindClosePosition,
	KindReinit,
	KindReceivePosition,
	KindEmergencyWithdraw,
}

const (
	KindDepositBase          = "deposit_base"
	KindDepositQuote         = "deposit_quote"
	KindDepositBaseAndLong   = "deposit_base_and_long"
	KindDepositQuoteAndShort = "deposit_quote_and_short"
	KindWithdrawBase         = "withdraw_base"
	KindWithdrawQuote        = "withdraw_quote"
	KindLong                 = "long"
	KindShort                = "short"
	KindClosePosition        = "close_position"
	KindReinit               = "reinit"
	KindReceivePosition      = "receive_position"
	KindEmergencyWithdraw    = "emergency_withdraw"
)
