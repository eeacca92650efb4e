package calldata

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Pool view methods read by the chain reader.
const (
	MethodBaseCollateralCoeff  = "baseCollateralCoeff"
	MethodQuoteCollateralCoeff = "quoteCollateralCoeff"
	MethodBaseDebtCoeff        = "baseDebtCoeff"
	MethodQuoteDebtCoeff       = "quoteDebtCoeff"
	MethodBaseDelevCoeff       = "baseDelevCoeff"
	MethodQuoteDelevCoeff      = "quoteDelevCoeff"
	MethodGetBasePrice         = "getBasePrice"
	MethodParams               = "params"
	MethodPositions            = "positions"
	MethodBaseToken            = "baseToken"
	MethodQuoteToken           = "quoteToken"
	MethodMode                 = "mode"
	MethodDecimals             = "decimals"
)

// RawPosition is the positions(address) tuple.
type RawPosition struct {
	Type                  uint8
	HeapPosition          uint32
	DiscountedBaseAmount  *uint256.Int
	DiscountedQuoteAmount *uint256.Int
}

// PackPool packs a call to a pool view method.
func (c *Codec) PackPool(method string, args ...any) ([]byte, error) {
	data, err := c.pool.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

// PackDecimals packs an ERC-20 decimals() call.
func (c *Codec) PackDecimals() ([]byte, error) {
	data, err := c.erc20.Pack(MethodDecimals)
	if err != nil {
		return nil, fmt.Errorf("pack decimals: %w", err)
	}
	return data, nil
}

// UnpackUint256 unpacks a single uint256 (or FixedPoint tuple) result, as
// returned by the coefficient getters and getBasePrice.
func (c *Codec) UnpackUint256(method string, data []byte) (*uint256.Int, error) {
	values, err := c.unpack(c.pool, method, data, 1)
	if err != nil {
		return nil, err
	}
	switch v := values[0].(type) {
	case *big.Int:
		return bigArg(v)
	default:
		fixed, ok := abi.ConvertType(v, new(struct{ Inner *big.Int })).(*struct{ Inner *big.Int })
		if !ok || fixed.Inner == nil {
			return nil, fmt.Errorf("unpack %s: unexpected %T", method, v)
		}
		return bigArg(fixed.Inner)
	}
}

// UnpackMaxLeverage reads the first field of params().
func (c *Codec) UnpackMaxLeverage(data []byte) (uint8, error) {
	values, err := c.unpack(c.pool, MethodParams, data, 1)
	if err != nil {
		return 0, err
	}
	lev, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unpack params: maxLeverage is %T", values[0])
	}
	return lev, nil
}

// UnpackPosition reads the positions(address) tuple.
func (c *Codec) UnpackPosition(data []byte) (RawPosition, error) {
	values, err := c.unpack(c.pool, MethodPositions, data, 4)
	if err != nil {
		return RawPosition{}, err
	}

	var (
		p  RawPosition
		ok bool
	)
	if p.Type, ok = values[0].(uint8); !ok {
		return RawPosition{}, fmt.Errorf("unpack positions: type is %T", values[0])
	}
	if p.HeapPosition, ok = values[1].(uint32); !ok {
		return RawPosition{}, fmt.Errorf("unpack positions: heapPosition is %T", values[1])
	}
	if p.DiscountedBaseAmount, err = bigArg(values[2]); err != nil {
		return RawPosition{}, err
	}
	if p.DiscountedQuoteAmount, err = bigArg(values[3]); err != nil {
		return RawPosition{}, err
	}
	return p, nil
}

// UnpackAddress reads an address result such as baseToken().
func (c *Codec) UnpackAddress(method string, data []byte) (common.Address, error) {
	values, err := c.unpack(c.pool, method, data, 1)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unpack %s: got %T", method, values[0])
	}
	return addr, nil
}

// UnpackMode reads mode(); non-zero means the pool left regular operation.
func (c *Codec) UnpackMode(data []byte) (uint8, error) {
	values, err := c.unpack(c.pool, MethodMode, data, 1)
	if err != nil {
		return 0, err
	}
	mode, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unpack mode: got %T", values[0])
	}
	return mode, nil
}

// UnpackDecimals reads an ERC-20 decimals() result.
func (c *Codec) UnpackDecimals(data []byte) (uint8, error) {
	values, err := c.unpack(c.erc20, MethodDecimals, data, 1)
	if err != nil {
		return 0, err
	}
	dec, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unpack decimals: got %T", values[0])
	}
	return dec, nil
}

func (c *Codec) unpack(contract abi.ABI, method string, data []byte, want int) ([]any, error) {
	values, err := contract.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) < want {
		return nil, fmt.Errorf("unpack %s: got %d values, want %d", method, len(values), want)
	}
	return values, nil
}
