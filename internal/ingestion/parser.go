package ingestion

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"MarginlyLedger/internal/action"
	"MarginlyLedger/internal/core"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/sugawarayuuta/sonnet"
)

// WithdrawAll is the amount literal that selects the withdraw-all sentinel.
const WithdrawAll = "all"

var (
	ErrUnknownKind     = errors.New("unknown action kind")
	ErrMalformedIntent = errors.New("malformed intent")
)

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. Amounts are decimal
// strings of token base units (or 0x-prefixed hex) so 256-bit values survive JSON.

type intentJSON struct {
	IntentID string       `json:"intent_id"`
	Pool     string       `json:"pool"`
	Sender   string       `json:"sender"`
	Action   string       `json:"action"`
	Params   ActionParams `json:"params"`
}

// ActionParams is the union of every action's fields; each kind reads only its own.
type ActionParams struct {
	Amount        string `json:"amount,omitempty"`
	TradeAmount   string `json:"trade_amount,omitempty"`
	LimitPriceX96 string `json:"limit_price_x96,omitempty"`
	SwapCalldata  string `json:"swap_calldata,omitempty"`
	NativeETH     bool   `json:"native_eth,omitempty"`
	SyncBalances  bool   `json:"sync_balances,omitempty"`
	Position      string `json:"position,omitempty"`
	DepositBase   string `json:"deposit_base,omitempty"`
	DepositQuote  string `json:"deposit_quote,omitempty"`
}

// ParseIntent converts a JSON intent into a core.Intent. Every failure wraps
// ErrMalformedIntent.
func ParseIntent(data []byte, receivedAt time.Time, source string) (core.Intent, error) {
	in, err := parseIntent(data, receivedAt, source, true)
	if err != nil {
		return core.Intent{}, fmt.Errorf("%w: %w", ErrMalformedIntent, err)
	}
	return in, nil
}

func parseIntent(data []byte, receivedAt time.Time, source string, requireID bool) (core.Intent, error) {
	var j intentJSON
	if err := sonnet.Unmarshal(data, &j); err != nil {
		return core.Intent{}, fmt.Errorf("parse intent: %w", err)
	}

	var id uuid.UUID
	if j.IntentID != "" || requireID {
		var err error
		if id, err = uuid.Parse(j.IntentID); err != nil {
			return core.Intent{}, fmt.Errorf("parse intent_id: %w", err)
		}
	}
	pool, err := parseAddress("pool", j.Pool, true)
	if err != nil {
		return core.Intent{}, err
	}
	sender, err := parseAddress("sender", j.Sender, false)
	if err != nil {
		return core.Intent{}, err
	}
	act, err := DecodeAction(j.Action, j.Params)
	if err != nil {
		return core.Intent{}, err
	}

	return core.Intent{
		ID:         id,
		Pool:       pool,
		Sender:     sender,
		Action:     act,
		ReceivedAt: receivedAt,
		Source:     source,
	}, nil
}

// DecodeAction builds the action named by kind from p. Missing amounts stay nil
// so the encoder reports them.
func DecodeAction(kind string, p ActionParams) (action.Action, error) {
	var (
		amt, trade, limit, swap *uint256.Int
		err                     error
	)
	if amt, err = ParseAmount("amount", p.Amount); err != nil && !isWithdraw(kind) {
		return nil, err
	}
	if trade, err = ParseAmount("trade_amount", p.TradeAmount); err != nil {
		return nil, err
	}
	if limit, err = ParseAmount("limit_price_x96", p.LimitPriceX96); err != nil {
		return nil, err
	}
	if swap, err = ParseAmount("swap_calldata", p.SwapCalldata); err != nil {
		return nil, err
	}
	route := action.RouteVia(swap)

	switch kind {
	case action.KindDepositBase:
		return &action.DepositBase{Amount: amt, NativeETH: p.NativeETH}, nil
	case action.KindDepositQuote:
		return &action.DepositQuote{Amount: amt, NativeETH: p.NativeETH}, nil
	case action.KindDepositBaseAndLong:
		return &action.DepositBaseAndLong{DepositAmount: amt, LongAmount: trade, LimitPriceX96: limit, Route: route, NativeETH: p.NativeETH}, nil
	case action.KindDepositQuoteAndShort:
		return &action.DepositQuoteAndShort{DepositAmount: amt, ShortAmount: trade, LimitPriceX96: limit, Route: route, NativeETH: p.NativeETH}, nil
	case action.KindWithdrawBase:
		amount, all, err := parseWithdrawAmount(p.Amount)
		if err != nil {
			return nil, err
		}
		return &action.WithdrawBase{Amount: amount, All: all, NativeETH: p.NativeETH}, nil
	case action.KindWithdrawQuote:
		amount, all, err := parseWithdrawAmount(p.Amount)
		if err != nil {
			return nil, err
		}
		return &action.WithdrawQuote{Amount: amount, All: all, NativeETH: p.NativeETH}, nil
	case action.KindLong:
		return &action.Long{Amount: amt, LimitPriceX96: limit, Route: route}, nil
	case action.KindShort:
		return &action.Short{Amount: amt, LimitPriceX96: limit, Route: route}, nil
	case action.KindClosePosition:
		return &action.ClosePosition{LimitPriceX96: limit, Route: route, NativeETH: p.NativeETH}, nil
	case action.KindReinit:
		return &action.Reinit{SyncBalances: p.SyncBalances}, nil
	case action.KindReceivePosition:
		position, err := parseAddress("position", p.Position, true)
		if err != nil {
			return nil, err
		}
		base, err := ParseAmount("deposit_base", p.DepositBase)
		if err != nil {
			return nil, err
		}
		quote, err := ParseAmount("deposit_quote", p.DepositQuote)
		if err != nil {
			return nil, err
		}
		return &action.ReceivePosition{Position: position, DepositBase: base, DepositQuote: quote}, nil
	case action.KindEmergencyWithdraw:
		return &action.EmergencyWithdraw{NativeETH: p.NativeETH}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func isWithdraw(kind string) bool {
	return kind == action.KindWithdrawBase || kind == action.KindWithdrawQuote
}

func parseWithdrawAmount(s string) (*uint256.Int, bool, error) {
	if strings.EqualFold(strings.TrimSpace(s), WithdrawAll) {
		return nil, true, nil
	}
	v, err := ParseAmount("amount", s)
	return v, false, err
}

// ParseAmount parses a decimal or 0x-prefixed hex amount. Empty input returns nil.
func ParseAmount(field, s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		// leading zeros are common in calldata, so go through big.Int
		b, ok := new(big.Int).SetString(s[2:], 16)
		if !ok || b.Sign() < 0 {
			return nil, fmt.Errorf("parse %s %q: invalid hex", field, s)
		}
		v, overflow := uint256.FromBig(b)
		if overflow {
			return nil, fmt.Errorf("parse %s %q: exceeds 256 bits", field, s)
		}
		return v, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse %s %q: %w", field, s, err)
	}
	return v, nil
}

func parseAddress(field, s string, required bool) (common.Address, error) {
	if s == "" && !required {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("parse %s: invalid address %q", field, s)
	}
	return common.HexToAddress(s), nil
}
