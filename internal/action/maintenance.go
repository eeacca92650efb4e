package action

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Reinit accrues interest. SyncBalances also resyncs the pool's internal
// balances with its actual token holdings.
type Reinit struct {
	SyncBalances bool
}

func (*Reinit) CallType() CallType { return CallTypeReinit }
func (*Reinit) Kind() string       { return KindReinit }
func (*Reinit) isAction()          {}

// ReceivePosition takes over the liquidatable position of Position, funding it
// with the two deposit amounts.
type ReceivePosition struct {
	Position     common.Address
	DepositBase  *uint256.Int
	DepositQuote *uint256.Int
}

func (*ReceivePosition) CallType() CallType { return CallTypeReceivePosition }
func (*ReceivePosition) Kind() string       { return KindReceivePosition }
func (*ReceivePosition) isAction()          {}
