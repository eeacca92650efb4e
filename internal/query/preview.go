package query

import (
	"context"
	"errors"
	"fmt"

	"MarginlyLedger/internal/chain"
	fp "MarginlyLedger/internal/math"
	"MarginlyLedger/internal/observability"
	"MarginlyLedger/internal/persistence"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sugawarayuuta/sonnet"
)

// humanPricePrecision is the number of fraction digits kept in human prices.
const humanPricePrecision = 18

// SnapshotSource reads pool and position state at the latest block.
type SnapshotSource interface {
	Snapshot(ctx context.Context, user common.Address) (*chain.PoolSnapshot, error)
}

// PreviewStore keeps served previews.
type PreviewStore interface {
	Save(ctx context.Context, row persistence.PreviewRow) error
	Latest(ctx context.Context, pool, user string) (persistence.PreviewRow, error)
}

// PreviewService values positions from live pool state. Nothing is cached:
// coefficients and price change every block.
type PreviewService struct {
	source  SnapshotSource
	store   PreviewStore
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewPreviewService creates a preview service. store and metrics may be nil.
func NewPreviewService(source SnapshotSource, store PreviewStore, metrics *observability.Metrics) *PreviewService {
	return &PreviewService{
		source:  source,
		store:   store,
		metrics: metrics,
		logger:  observability.NewLogger("preview"),
	}
}

// Preview reads the pool at the latest block and values user's position.
// A failed store write is logged; the preview is still returned.
func (s *PreviewService) Preview(ctx context.Context, user common.Address) (*PositionPreview, error) {
	snap, err := s.source.Snapshot(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	preview, err := BuildPreview(snap)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.PreviewsServed.WithLabelValues(preview.PositionType).Inc()
	}

	if s.store != nil {
		row, err := previewRow(snap, preview)
		if err == nil {
			err = s.store.Save(ctx, row)
		}
		if err != nil {
			s.logger.Warn().Err(err).
				Str("user", preview.User).
				Uint64("block", preview.Block).
				Msg("preview not stored")
		}
	}
	return preview, nil
}

// LastPreview returns the most recently stored preview for user.
func (s *PreviewService) LastPreview(ctx context.Context, pool, user common.Address) (*PositionPreview, error) {
	if s.store == nil {
		return nil, persistence.ErrPreviewNotFound
	}
	row, err := s.store.Latest(ctx, pool.Hex(), user.Hex())
	if err != nil {
		return nil, err
	}
	var p PositionPreview
	if err := sonnet.Unmarshal(row.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode stored preview: %w", err)
	}
	return &p, nil
}

// BuildPreview values the position in snap. A position whose net value is zero
// or negative at the current price is still previewed, with Leverage unset and
// BeyondSafeLeverage set. Other arithmetic failures are returned as fixed-point errors.
func BuildPreview(snap *chain.PoolSnapshot) (*PositionPreview, error) {
	pos, err := snap.Position()
	if err != nil {
		return nil, fmt.Errorf("value position: %w", err)
	}

	maxLev := uint64(snap.MaxLeverage)
	base, quote := pos.BaseAmount(), pos.QuoteAmount()

	p := &PositionPreview{
		Pool:             snap.Pool.Hex(),
		User:             snap.User.Hex(),
		Block:            snap.Block,
		PositionType:     pos.Type().String(),
		HeapPosition:     pos.HeapPosition(),
		BaseAmount:       base.Dec(),
		QuoteAmount:      quote.Dec(),
		BaseAmountHuman:  fp.FormatUnits(base, snap.BaseDecimals),
		QuoteAmountHuman: fp.FormatUnits(quote, snap.QuoteDecimals),
		BasePriceX96:     snap.BasePriceX96.Dec(),
		BasePrice:        HumanPrice(snap.BasePriceX96, snap.BaseDecimals, snap.QuoteDecimals),
		MaxLeverage:      snap.MaxLeverage,
		Mode:             snap.Mode,
		Emergency:        snap.Emergency(),
	}

	lev, ok, err := pos.Leverage(snap.BasePriceX96)
	switch {
	case errors.Is(err, fp.ErrDivisionByZero), errors.Is(err, fp.ErrNegative):
		p.BeyondSafeLeverage = true
	case err != nil:
		return nil, fmt.Errorf("leverage: %w", err)
	case ok:
		s := lev.Dec()
		p.Leverage = &s
	}

	liq, ok, err := pos.LiquidationPriceX96(maxLev)
	if err != nil {
		return nil, fmt.Errorf("liquidation price: %w", err)
	}
	if ok {
		x96 := liq.Dec()
		human := HumanPrice(liq, snap.BaseDecimals, snap.QuoteDecimals)
		p.LiquidationPriceX96 = &x96
		p.LiquidationPrice = &human
	}

	baseAvail, err := withdrawable(pos.BaseWithdrawAvailable(snap.BasePriceX96, maxLev))
	if err != nil {
		return nil, fmt.Errorf("base withdraw available: %w", err)
	}
	quoteAvail, err := withdrawable(pos.QuoteWithdrawAvailable(snap.BasePriceX96, maxLev))
	if err != nil {
		return nil, fmt.Errorf("quote withdraw available: %w", err)
	}
	p.BaseWithdrawAvailable = baseAvail.Dec()
	p.QuoteWithdrawAvailable = quoteAvail.Dec()
	p.BaseWithdrawAvailableHuman = fp.FormatUnits(baseAvail, snap.BaseDecimals)
	p.QuoteWithdrawAvailableHuman = fp.FormatUnits(quoteAvail, snap.QuoteDecimals)

	return p, nil
}

// withdrawable clamps an over-leveraged position's negative headroom to zero.
// Overflow is still an error.
func withdrawable(v *uint256.Int, err error) (*uint256.Int, error) {
	if errors.Is(err, fp.ErrNegative) {
		return new(uint256.Int), nil
	}
	return v, err
}

// HumanPrice renders an X96 price as quote per whole base token.
func HumanPrice(priceX96 *uint256.Int, baseDecimals, quoteDecimals uint8) string {
	scaled := decimal.NewFromBigInt(priceX96.ToBig(), int32(baseDecimals)-int32(quoteDecimals))
	return scaled.DivRound(decimal.NewFromBigInt(fp.Q96.ToBig(), 0), humanPricePrecision).String()
}

func previewRow(snap *chain.PoolSnapshot, p *PositionPreview) (persistence.PreviewRow, error) {
	payload, err := sonnet.Marshal(p)
	if err != nil {
		return persistence.PreviewRow{}, err
	}
	return persistence.PreviewRow{
		Pool:                p.Pool,
		User:                p.User,
		Block:               p.Block,
		PositionType:        snap.RawPosition.Type,
		BaseAmount:          p.BaseAmount,
		QuoteAmount:         p.QuoteAmount,
		BasePriceX96:        p.BasePriceX96,
		Leverage:            p.Leverage,
		LiquidationPriceX96: p.LiquidationPriceX96,
		Payload:             payload,
	}, nil
}
