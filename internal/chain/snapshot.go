package chain

import (
	"MarginlyLedger/internal/calldata"
	"MarginlyLedger/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Pool modes as returned by mode().
const (
	ModeRegular uint8 = iota
	ModeShortEmergency
	ModeLongEmergency
)

// PoolSnapshot is one consistent read of pool and position state.
type PoolSnapshot struct {
	Pool  common.Address
	User  common.Address
	Block uint64

	Coeffs       state.Coeffs
	BasePriceX96 *uint256.Int
	MaxLeverage  uint8
	Mode         uint8

	BaseToken     common.Address
	QuoteToken    common.Address
	BaseDecimals  uint8
	QuoteDecimals uint8

	RawPosition calldata.RawPosition
}

// Emergency reports whether only emergency withdrawals remain possible.
func (s *PoolSnapshot) Emergency() bool {
	return s.Mode != ModeRegular
}

// Position values the raw position with the snapshot's coefficients.
func (s *PoolSnapshot) Position() (*state.Position, error) {
	return state.NewPosition(
		s.Coeffs,
		state.PositionType(s.RawPosition.Type),
		s.RawPosition.HeapPosition,
		s.RawPosition.DiscountedBaseAmount,
		s.RawPosition.DiscountedQuoteAmount,
	)
}
