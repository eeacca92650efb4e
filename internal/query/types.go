package query

// PositionPreview is a user's position valued at one block. Raw amounts are
// token base units and X96 prices are decimal strings of the Q64.96 value.
type PositionPreview struct {
	Pool         string `json:"pool"`
	User         string `json:"user"`
	Block        uint64 `json:"block"`
	PositionType string `json:"position_type"`
	HeapPosition uint32 `json:"heap_position"`

	BaseAmount       string `json:"base_amount"`
	QuoteAmount      string `json:"quote_amount"`
	BaseAmountHuman  string `json:"base_amount_human"`
	QuoteAmountHuman string `json:"quote_amount_human"`

	BasePriceX96 string `json:"base_price_x96"`
	BasePrice    string `json:"base_price"`

	// Leverage is nil for uninitialized positions and for positions beyond safe leverage.
	Leverage           *string `json:"leverage,omitempty"`
	MaxLeverage        uint8   `json:"max_leverage"`
	BeyondSafeLeverage bool    `json:"beyond_safe_leverage,omitempty"`

	// Liquidation prices exist only for long and short positions.
	LiquidationPriceX96 *string `json:"liquidation_price_x96,omitempty"`
	LiquidationPrice    *string `json:"liquidation_price,omitempty"`

	BaseWithdrawAvailable       string `json:"base_withdraw_available"`
	QuoteWithdrawAvailable      string `json:"quote_withdraw_available"`
	BaseWithdrawAvailableHuman  string `json:"base_withdraw_available_human"`
	QuoteWithdrawAvailableHuman string `json:"quote_withdraw_available_human"`

	Mode      uint8 `json:"mode"`
	Emergency bool  `json:"emergency"`
}

// IntegrityReport is the result of re-hashing the intent log.
type IntegrityReport struct {
	IsHealthy    bool   `json:"is_healthy"`
	LastSequence int64  `json:"last_sequence"`
	ChainTip     string `json:"chain_tip,omitempty"`
	Error        string `json:"error,omitempty"`
}
