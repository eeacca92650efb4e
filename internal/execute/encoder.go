package execute

import (
	"errors"
	"fmt"

	"MarginlyLedger/internal/action"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrMissingAmount = errors.New("missing amount")

	// ErrMissingLimitPrice is returned for trades without a worst acceptable price.
	ErrMissingLimitPrice = errors.New("missing limit price")
)

// Encoder is stateless and safe for concurrent use.
type Encoder struct {
	cfg Config
}

func NewEncoder(cfg Config) *Encoder {
	def := DefaultConfig()
	if cfg.MethodName == "" {
		cfg.MethodName = def.MethodName
	}
	if cfg.DefaultSwapCalldata == nil {
		cfg.DefaultSwapCalldata = def.DefaultSwapCalldata
	}
	if cfg.WithdrawAllAmount == nil {
		cfg.WithdrawAllAmount = def.WithdrawAllAmount
	}
	return &Encoder{cfg: cfg}
}

func (e *Encoder) Config() Config {
	return e.cfg
}

// Encode maps a to the execute argument tuple and attached value.
func (e *Encoder) Encode(a action.Action) (Params, error) {
	var (
		args  Args
		value = new(uint256.Int)
		err   error
	)
	if a == nil {
		return Params{}, fmt.Errorf("%w: nil", ErrUnknownAction)
	}

	switch a := a.(type) {
	case *action.DepositBase:
		if args, err = e.deposit(a.CallType(), a.Amount, nil, nil, false, action.DefaultRoute()); err != nil {
			return Params{}, err
		}
		value = nativeValue(a.NativeETH, a.Amount)

	case *action.DepositQuote:
		if args, err = e.deposit(a.CallType(), a.Amount, nil, nil, false, action.DefaultRoute()); err != nil {
			return Params{}, err
		}
		value = nativeValue(a.NativeETH, a.Amount)

	case *action.DepositBaseAndLong:
		if a.LongAmount == nil {
			return Params{}, fmt.Errorf("%s long: %w", a.Kind(), ErrMissingAmount)
		}
		if args, err = e.deposit(a.CallType(), a.DepositAmount, a.LongAmount, a.LimitPriceX96, false, a.Route); err != nil {
			return Params{}, err
		}
		value = nativeValue(a.NativeETH, a.DepositAmount)

	case *action.DepositQuoteAndShort:
		if a.ShortAmount == nil {
			return Params{}, fmt.Errorf("%s short: %w", a.Kind(), ErrMissingAmount)
		}
		if args, err = e.deposit(a.CallType(), a.DepositAmount, a.ShortAmount, a.LimitPriceX96, a.NativeETH, a.Route); err != nil {
			return Params{}, err
		}
		value = nativeValue(a.NativeETH, a.DepositAmount)

	case *action.WithdrawBase:
		if args, err = e.withdraw(a.CallType(), a.Amount, a.All, a.NativeETH); err != nil {
			return Params{}, err
		}

	case *action.WithdrawQuote:
		if args, err = e.withdraw(a.CallType(), a.Amount, a.All, a.NativeETH); err != nil {
			return Params{}, err
		}

	case *action.Long:
		if args, err = e.trade(a.CallType(), a.Amount, a.LimitPriceX96, a.Route); err != nil {
			return Params{}, err
		}

	case *action.Short:
		if args, err = e.trade(a.CallType(), a.Amount, a.LimitPriceX96, a.Route); err != nil {
			return Params{}, err
		}

	case *action.ClosePosition:
		if a.LimitPriceX96 == nil {
			return Params{}, fmt.Errorf("%s: %w", a.Kind(), ErrMissingLimitPrice)
		}
		args = e.args(a.CallType(), nil, nil, a.LimitPriceX96, a.NativeETH, common.Address{}, a.Route)

	case *action.Reinit:
		args = e.args(a.CallType(), nil, nil, nil, a.SyncBalances, common.Address{}, action.DefaultRoute())

	case *action.ReceivePosition:
		if a.DepositBase == nil && a.DepositQuote == nil {
			return Params{}, fmt.Errorf("%s: %w", a.Kind(), ErrMissingAmount)
		}
		args = e.args(a.CallType(), a.DepositBase, a.DepositQuote, nil, false, a.Position, action.DefaultRoute())

	case *action.EmergencyWithdraw:
		args = e.args(a.CallType(), nil, nil, nil, a.NativeETH, common.Address{}, action.DefaultRoute())

	default:
		return Params{}, fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}

	return Params{
		MethodName: e.cfg.MethodName,
		Args:       args,
		Value:      value,
	}, nil
}

func (e *Encoder) deposit(ct action.CallType, amount, tradeAmount, limit *uint256.Int, flag bool, route action.Route) (Args, error) {
	if amount == nil {
		return Args{}, fmt.Errorf("%s deposit: %w", ct, ErrMissingAmount)
	}
	if tradeAmount != nil && limit == nil {
		return Args{}, fmt.Errorf("%s trade: %w", ct, ErrMissingLimitPrice)
	}
	return e.args(ct, amount, tradeAmount, limit, flag, common.Address{}, route), nil
}

func (e *Encoder) withdraw(ct action.CallType, amount *uint256.Int, all, native bool) (Args, error) {
	if all {
		amount = e.cfg.WithdrawAllAmount
	}
	if amount == nil {
		return Args{}, fmt.Errorf("%s: %w", ct, ErrMissingAmount)
	}
	return e.args(ct, amount, nil, nil, native, common.Address{}, action.DefaultRoute()), nil
}

func (e *Encoder) trade(ct action.CallType, amount, limit *uint256.Int, route action.Route) (Args, error) {
	if amount == nil {
		return Args{}, fmt.Errorf("%s: %w", ct, ErrMissingAmount)
	}
	if limit == nil {
		return Args{}, fmt.Errorf("%s: %w", ct, ErrMissingLimitPrice)
	}
	return e.args(ct, amount, nil, limit, false, common.Address{}, route), nil
}

// args copies every amount and applies the default route. Nil amounts encode as zero.
func (e *Encoder) args(ct action.CallType, amount1, amount2, limit *uint256.Int, flag bool, receiver common.Address, route action.Route) Args {
	swap, ok := route.Calldata()
	if !ok {
		swap = new(uint256.Int).Set(e.cfg.DefaultSwapCalldata)
	}
	return Args{
		CallType:               ct,
		Amount1:                orZero(amount1),
		Amount2:                orZero(amount2),
		LimitPriceX96:          orZero(limit),
		Flag:                   flag,
		ReceivePositionAddress: receiver,
		SwapCalldata:           swap,
	}
}

func nativeValue(native bool, amount *uint256.Int) *uint256.Int {
	if !native {
		return new(uint256.Int)
	}
	return orZero(amount)
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
