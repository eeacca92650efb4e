// Package execute maps actions to the argument tuple of the pool's execute method.
package execute

import (
	"MarginlyLedger/internal/action"
	fp "MarginlyLedger/internal/math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DefaultMethodName is the pool's single dispatch entry point.
const DefaultMethodName = "execute"

// Config holds the constants injected into the encoder.
type Config struct {
	MethodName string

	// DefaultSwapCalldata is substituted when an action leaves its route unset.
	DefaultSwapCalldata *uint256.Int

	// WithdrawAllAmount is the amount the pool reads as "entire balance".
	WithdrawAllAmount *uint256.Int
}

// DefaultConfig returns the constants of the deployed Marginly pools.
func DefaultConfig() Config {
	return Config{
		MethodName:          DefaultMethodName,
		DefaultSwapCalldata: new(uint256.Int),
		WithdrawAllAmount:   new(uint256.Int).Set(fp.MaxUint256),
	}
}

// Args is the fixed execute argument tuple:
// (uint8, uint256, uint256, uint256, bool, address, uint256).
type Args struct {
	CallType               action.CallType
	Amount1                *uint256.Int
	Amount2                *uint256.Int
	LimitPriceX96          *uint256.Int
	Flag                   bool
	ReceivePositionAddress common.Address
	SwapCalldata           *uint256.Int
}

// Params is everything a submitter needs to call the pool.
type Params struct {
	MethodName string
	Args       Args

	// Value is the native asset attached to the call.
	Value *uint256.Int
}
