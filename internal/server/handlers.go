package server

import (
	"context"
	"fmt"

	"MarginlyLedger/internal/action"
	"MarginlyLedger/internal/calldata"
	"MarginlyLedger/internal/execute"
	"MarginlyLedger/internal/ingestion"
	"MarginlyLedger/internal/query"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sugawarayuuta/sonnet"
	"google.golang.org/protobuf/types/known/structpb"
)

// integrityBatchSize is how many log rows VerifyIntegrity hashes per query.
const integrityBatchSize = 1000

// DecimalsSource supplies the pool's token decimals when a request omits them.
type DecimalsSource interface {
	PoolDecimals(ctx context.Context) (uint8, uint8, error)
}

// HandlerDeps holds everything the RPC handlers call. Previews, Intents,
// Decimals and IntentLog may be nil; their methods then fail with Unimplemented.
type HandlerDeps struct {
	Encoder   *execute.Encoder
	Codec     *calldata.Codec
	Pool      common.Address
	Decimals  DecimalsSource
	Previews  *query.PreviewService
	Intents   *ingestion.GRPCIntentService
	IntentLog query.ChainVerifier
}

// Handlers implements MarginlyServiceServer.
type Handlers struct {
	deps HandlerDeps
}

func NewHandlers(deps HandlerDeps) *Handlers {
	return &Handlers{deps: deps}
}

var _ MarginlyServiceServer = (*Handlers)(nil)

// --- request / response shapes ---

type encodeRequest struct {
	Action string                 `json:"action"`
	Params ingestion.ActionParams `json:"params"`
}

type orderRequest struct {
	Direction       string `json:"direction"`
	Deposit         string `json:"deposit"`
	Leverage        string `json:"leverage"`
	BasePrice       string `json:"base_price"`
	SlippagePercent string `json:"slippage_percent"`
	BaseDecimals    *uint8 `json:"base_decimals,omitempty"`
	QuoteDecimals   *uint8 `json:"quote_decimals,omitempty"`
	NativeETH       bool   `json:"native_eth"`
	SwapCalldata    string `json:"swap_calldata,omitempty"`
}

type previewRequest struct {
	User   string `json:"user"`
	Cached bool   `json:"cached"`
}

type argsView struct {
	Amount1                string `json:"amount1"`
	Amount2                string `json:"amount2"`
	LimitPriceX96          string `json:"limit_price_x96"`
	Flag                   bool   `json:"flag"`
	ReceivePositionAddress string `json:"receive_position_address"`
	SwapCalldata           string `json:"swap_calldata"`
}

type encodeResponse struct {
	Method       string   `json:"method"`
	CallType     uint8    `json:"call_type"`
	CallTypeName string   `json:"call_type_name"`
	Args         argsView `json:"args"`
	Value        string   `json:"value"`
	Calldata     string   `json:"calldata"`
}

type orderResponse struct {
	encodeResponse
	DepositAmount string `json:"deposit_amount,omitempty"`
	TradeAmount   string `json:"trade_amount,omitempty"`
	LimitPrice    string `json:"limit_price,omitempty"`
}

// --- handlers ---

func (h *Handlers) EncodeAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req encodeRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if req.Action == "" {
		return nil, toStatus(fmt.Errorf("%w: action is required", errInvalidRequest))
	}
	act, err := ingestion.DecodeAction(req.Action, req.Params)
	if err != nil {
		return nil, toStatus(fmt.Errorf("%w: %w", errInvalidRequest, err))
	}
	params, err := h.deps.Encoder.Encode(act)
	if err != nil {
		return nil, toStatus(err)
	}
	resp, err := h.encodeResponse(params)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(resp)
}

func (h *Handlers) OpenLeveraged(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	o, err := h.order(ctx, in)
	if err != nil {
		return nil, toStatus(err)
	}
	plan, ok, err := h.deps.Encoder.PlanLeveraged(execute.LeveragedOrder{
		Direction:       o.direction,
		Deposit:         o.req.Deposit,
		Leverage:        o.req.Leverage,
		BasePrice:       o.req.BasePrice,
		SlippagePercent: o.req.SlippagePercent,
		BaseDecimals:    o.baseDecimals,
		QuoteDecimals:   o.quoteDecimals,
		NativeETH:       o.req.NativeETH,
		Route:           o.route,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	if !ok {
		return nil, toStatus(fmt.Errorf("%w: malformed deposit, leverage, price or slippage", errInvalidRequest))
	}
	params, err := h.deps.Encoder.Encode(plan.Action)
	if err != nil {
		return nil, toStatus(err)
	}
	enc, err := h.encodeResponse(params)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(orderResponse{
		encodeResponse: *enc,
		DepositAmount:  plan.DepositAmount.Dec(),
		TradeAmount:    plan.TradeAmount.Dec(),
		LimitPrice:     plan.LimitPrice.String(),
	})
}

func (h *Handlers) CloseLeveraged(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	o, err := h.order(ctx, in)
	if err != nil {
		return nil, toStatus(err)
	}
	params, ok, err := h.deps.Encoder.CloseLeveraged(execute.CloseOrder{
		Direction:       o.direction,
		BasePrice:       o.req.BasePrice,
		SlippagePercent: o.req.SlippagePercent,
		BaseDecimals:    o.baseDecimals,
		QuoteDecimals:   o.quoteDecimals,
		NativeETH:       o.req.NativeETH,
		Route:           o.route,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	if !ok {
		return nil, toStatus(fmt.Errorf("%w: malformed price or slippage", errInvalidRequest))
	}
	enc, err := h.encodeResponse(params)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(orderResponse{encodeResponse: *enc})
}

func (h *Handlers) PreviewPosition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if h.deps.Previews == nil {
		return nil, toStatus(fmt.Errorf("previews: %w", errNotConfigured))
	}
	var req previewRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if !common.IsHexAddress(req.User) {
		return nil, toStatus(fmt.Errorf("%w: invalid user address %q", errInvalidRequest, req.User))
	}
	user := common.HexToAddress(req.User)

	var (
		preview *query.PositionPreview
		err     error
	)
	if req.Cached {
		preview, err = h.deps.Previews.LastPreview(ctx, h.deps.Pool, user)
	} else {
		preview, err = h.deps.Previews.Preview(ctx, user)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(preview)
}

func (h *Handlers) SubmitIntent(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if h.deps.Intents == nil {
		return nil, toStatus(fmt.Errorf("intent submission: %w", errNotConfigured))
	}
	data, err := in.MarshalJSON()
	if err != nil {
		return nil, toStatus(fmt.Errorf("%w: %w", errInvalidRequest, err))
	}
	out, err := h.deps.Intents.SubmitJSON(ctx, data)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(ingestion.NewCalldataMessage(out))
}

func (h *Handlers) VerifyIntegrity(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if h.deps.IntentLog == nil {
		return nil, toStatus(fmt.Errorf("intent log: %w", errNotConfigured))
	}
	report, err := query.VerifyIntegrity(ctx, h.deps.IntentLog, integrityBatchSize)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(report)
}

// --- helpers ---

type resolvedOrder struct {
	req           orderRequest
	direction     execute.Direction
	route         action.Route
	baseDecimals  uint8
	quoteDecimals uint8
}

// order decodes an order request and resolves decimals, from the request or the pool.
func (h *Handlers) order(ctx context.Context, in *structpb.Struct) (resolvedOrder, error) {
	var o resolvedOrder
	if err := fromStruct(in, &o.req); err != nil {
		return o, err
	}
	dir, ok := execute.ParseDirection(o.req.Direction)
	if !ok {
		return o, fmt.Errorf("%w: direction must be long or short", errInvalidRequest)
	}
	swap, err := ingestion.ParseAmount("swap_calldata", o.req.SwapCalldata)
	if err != nil {
		return o, fmt.Errorf("%w: %w", errInvalidRequest, err)
	}
	o.direction = dir
	o.route = action.RouteVia(swap)

	if o.req.BaseDecimals != nil && o.req.QuoteDecimals != nil {
		o.baseDecimals, o.quoteDecimals = *o.req.BaseDecimals, *o.req.QuoteDecimals
		return o, nil
	}
	if h.deps.Decimals == nil {
		return o, fmt.Errorf("%w: base_decimals and quote_decimals are required", errInvalidRequest)
	}
	if o.baseDecimals, o.quoteDecimals, err = h.deps.Decimals.PoolDecimals(ctx); err != nil {
		return o, fmt.Errorf("pool decimals: %w", err)
	}
	return o, nil
}

func (h *Handlers) encodeResponse(p execute.Params) (*encodeResponse, error) {
	data, err := h.deps.Codec.EncodeParams(p)
	if err != nil {
		return nil, err
	}
	a := p.Args
	return &encodeResponse{
		Method:       p.MethodName,
		CallType:     uint8(a.CallType),
		CallTypeName: a.CallType.String(),
		Args: argsView{
			Amount1:                a.Amount1.Dec(),
			Amount2:                a.Amount2.Dec(),
			LimitPriceX96:          a.LimitPriceX96.Dec(),
			Flag:                   a.Flag,
			ReceivePositionAddress: a.ReceivePositionAddress.Hex(),
			SwapCalldata:           a.SwapCalldata.Dec(),
		},
		Value:    p.Value.Dec(),
		Calldata: hexutil.Encode(data),
	}, nil
}

// fromStruct decodes a Struct request into dst through its JSON form.
func fromStruct(in *structpb.Struct, dst any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	data, err := in.MarshalJSON()
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidRequest, err)
	}
	if err := sonnet.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %w", errInvalidRequest, err)
	}
	return nil
}

// toStruct converts a JSON-tagged response into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := sonnet.Marshal(v)
	if err != nil {
		return nil, toStatus(err)
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}
