package action

// CallType is the first argument of the pool's execute method (uint8 on the wire).
type CallType uint8

const (
	CallTypeDepositBase CallType = iota
	CallTypeDepositQuote
	CallTypeWithdrawBase
	CallTypeWithdrawQuote
	CallTypeShort
	CallTypeLong
	CallTypeClosePosition
	CallTypeReinit
	CallTypeReceivePosition
	CallTypeEmergencyWithdraw
)

// CallTypeCount is the number of call types the pool accepts.
const CallTypeCount = 10

func (ct CallType) String() string {
	switch ct {
	case CallTypeDepositBase:
		return "DepositBase"
	case CallTypeDepositQuote:
		return "DepositQuote"
	case CallTypeWithdrawBase:
		return "WithdrawBase"
	case CallTypeWithdrawQuote:
		return "WithdrawQuote"
	case CallTypeShort:
		return "Short"
	case CallTypeLong:
		return "Long"
	case CallTypeClosePosition:
		return "ClosePosition"
	case CallTypeReinit:
		return "Reinit"
	case CallTypeReceivePosition:
		return "ReceivePosition"
	case CallTypeEmergencyWithdraw:
		return "EmergencyWithdraw"
	default:
		return "Unknown"
	}
}

// Valid reports whether ct is accepted by the pool.
func (ct CallType) Valid() bool {
	return ct < CallTypeCount
}
