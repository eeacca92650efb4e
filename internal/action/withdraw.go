package action

import "github.com/holiman/uint256"

// WithdrawBase withdraws base tokens. All withdraws the whole balance and
// ignores Amount. NativeETH unwraps to the native asset.
type WithdrawBase struct {
	Amount    *uint256.Int
	All       bool
	NativeETH bool
}

func (*WithdrawBase) CallType() CallType { return CallTypeWithdrawBase }
func (*WithdrawBase) Kind() string       { return KindWithdrawBase }
func (*WithdrawBase) isAction()          {}

// WithdrawQuote withdraws quote tokens.
type WithdrawQuote struct {
	Amount    *uint256.Int
	All       bool
	NativeETH bool
}

func (*WithdrawQuote) CallType() CallType { return CallTypeWithdrawQuote }
func (*WithdrawQuote) Kind() string       { return KindWithdrawQuote }
func (*WithdrawQuote) isAction()          {}

// EmergencyWithdraw withdraws the caller's share after the pool entered emergency mode.
type EmergencyWithdraw struct {
	NativeETH bool
}

func (*EmergencyWithdraw) CallType() CallType { return CallTypeEmergencyWithdraw }
func (*EmergencyWithdraw) Kind() string       { return KindEmergencyWithdraw }
func (*EmergencyWithdraw) isAction()          {}
