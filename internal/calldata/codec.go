// Package calldata serializes execute arguments and pool view calls with the
// pool's ABI.
package calldata

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"math/big"

	"MarginlyLedger/internal/action"
	"MarginlyLedger/internal/execute"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

//go:embed abi/marginly_pool.json
var poolABIJSON []byte

//go:embed abi/erc20.json
var erc20ABIJSON []byte

// ExecuteSignature is the canonical signature of the pool's dispatch method.
const ExecuteSignature = "execute(uint8,uint256,uint256,uint256,bool,address,uint256)"

var (
	ErrSelectorMismatch = errors.New("selector mismatch")
	ErrShortCalldata    = errors.New("calldata too short")
)

// Codec is immutable after construction and safe for concurrent use.
type Codec struct {
	pool     abi.ABI
	erc20    abi.ABI
	method   abi.Method
	selector [4]byte
}

func NewCodec() (*Codec, error) {
	pool, err := abi.JSON(bytes.NewReader(poolABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	erc20, err := abi.JSON(bytes.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	method, ok := pool.Methods[execute.DefaultMethodName]
	if !ok {
		return nil, fmt.Errorf("pool abi has no %s method", execute.DefaultMethodName)
	}
	if method.Sig != ExecuteSignature {
		return nil, fmt.Errorf("%w: abi signature %s", ErrSelectorMismatch, method.Sig)
	}

	c := &Codec{pool: pool, erc20: erc20, method: method}
	copy(c.selector[:], method.ID)
	if want := Selector(ExecuteSignature); c.selector != want {
		return nil, fmt.Errorf("%w: abi %x, keccak %x", ErrSelectorMismatch, c.selector, want)
	}
	return c, nil
}

// Selector returns the first four bytes of keccak256(signature).
func Selector(signature string) [4]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	var sel [4]byte
	copy(sel[:], h.Sum(nil))
	return sel
}

// ExecuteSelector returns the selector prepended to every encoded call.
func (c *Codec) ExecuteSelector() [4]byte {
	return c.selector
}

// Encode serializes args as selector || abi.encode(uint8,uint256,uint256,uint256,bool,address,uint256).
func (c *Codec) Encode(args execute.Args) ([]byte, error) {
	if !args.CallType.Valid() {
		return nil, fmt.Errorf("encode: invalid call type %d", args.CallType)
	}
	data, err := c.pool.Pack(execute.DefaultMethodName,
		uint8(args.CallType),
		toBig(args.Amount1),
		toBig(args.Amount2),
		toBig(args.LimitPriceX96),
		args.Flag,
		args.ReceivePositionAddress,
		toBig(args.SwapCalldata),
	)
	if err != nil {
		return nil, fmt.Errorf("pack execute: %w", err)
	}
	return data, nil
}

// EncodeParams encodes p.Args after checking p targets the execute method.
func (c *Codec) EncodeParams(p execute.Params) ([]byte, error) {
	if p.MethodName != c.method.Name {
		return nil, fmt.Errorf("encode: unsupported method %q", p.MethodName)
	}
	return c.Encode(p.Args)
}

// Decode is the inverse of Encode.
func (c *Codec) Decode(data []byte) (execute.Args, error) {
	if len(data) < 4 {
		return execute.Args{}, ErrShortCalldata
	}
	if !bytes.Equal(data[:4], c.selector[:]) {
		return execute.Args{}, fmt.Errorf("%w: got %x", ErrSelectorMismatch, data[:4])
	}

	values, err := c.method.Inputs.Unpack(data[4:])
	if err != nil {
		return execute.Args{}, fmt.Errorf("unpack execute: %w", err)
	}
	if len(values) != 7 {
		return execute.Args{}, fmt.Errorf("unpack execute: got %d values", len(values))
	}

	var args execute.Args
	callType, ok := values[0].(uint8)
	if !ok {
		return execute.Args{}, fmt.Errorf("unpack execute: call type is %T", values[0])
	}
	args.CallType = action.CallType(callType)
	if args.Amount1, err = bigArg(values[1]); err != nil {
		return execute.Args{}, err
	}
	if args.Amount2, err = bigArg(values[2]); err != nil {
		return execute.Args{}, err
	}
	if args.LimitPriceX96, err = bigArg(values[3]); err != nil {
		return execute.Args{}, err
	}
	if args.Flag, ok = values[4].(bool); !ok {
		return execute.Args{}, fmt.Errorf("unpack execute: flag is %T", values[4])
	}
	if args.ReceivePositionAddress, ok = values[5].(common.Address); !ok {
		return execute.Args{}, fmt.Errorf("unpack execute: address is %T", values[5])
	}
	if args.SwapCalldata, err = bigArg(values[6]); err != nil {
		return execute.Args{}, err
	}
	return args, nil
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

func bigArg(v any) (*uint256.Int, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack: expected *big.Int, got %T", v)
	}
	u, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("unpack: %s overflows uint256", b)
	}
	return u, nil
}
