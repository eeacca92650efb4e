package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrPreviewNotFound = errors.New("preview not found")

// PreviewStore keeps the position previews served to users, one per block.
type PreviewStore struct {
	db *sql.DB
}

// PreviewRow represents a row in intents.position_previews. Amounts are
// NUMERIC(78,0) decimal strings; Payload is the full preview as JSON.
type PreviewRow struct {
	Pool                string
	User                string
	Block               uint64
	PositionType        uint8
	BaseAmount          string
	QuoteAmount         string
	BasePriceX96        string
	Leverage            *string
	LiquidationPriceX96 *string
	Payload             []byte
	CreatedAt           time.Time
}

func NewPreviewStore(db *sql.DB) *PreviewStore {
	return &PreviewStore{db: db}
}

// Save stores a preview. A second preview for the same block is ignored.
func (s *PreviewStore) Save(ctx context.Context, r PreviewRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO intents.position_previews
			(pool, user_address, block_number, position_type, base_amount, quote_amount,
			 base_price_x96, leverage, liquidation_price_x96, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (pool, user_address, block_number) DO NOTHING
	`, r.Pool, r.User, int64(r.Block), int16(r.PositionType), r.BaseAmount, r.QuoteAmount,
		r.BasePriceX96, r.Leverage, r.LiquidationPriceX96, string(r.Payload))
	if err != nil {
		return fmt.Errorf("save preview: %w", err)
	}
	return nil
}

// Latest returns the preview at the highest block for (pool, user).
func (s *PreviewStore) Latest(ctx context.Context, pool, user string) (PreviewRow, error) {
	var (
		r        PreviewRow
		block    int64
		posType  int16
		lev, liq sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT pool, user_address, block_number, position_type, base_amount::TEXT,
		       quote_amount::TEXT, base_price_x96::TEXT, leverage::TEXT,
		       liquidation_price_x96::TEXT, payload, created_at
		FROM intents.position_previews
		WHERE pool = $1 AND user_address = $2
		ORDER BY block_number DESC
		LIMIT 1
	`, pool, user).Scan(
		&r.Pool, &r.User, &block, &posType, &r.BaseAmount,
		&r.QuoteAmount, &r.BasePriceX96, &lev,
		&liq, &r.Payload, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return PreviewRow{}, ErrPreviewNotFound
	}
	if err != nil {
		return PreviewRow{}, fmt.Errorf("load preview: %w", err)
	}

	r.Block = uint64(block)
	r.PositionType = uint8(posType)
	if lev.Valid {
		r.Leverage = &lev.String
	}
	if liq.Valid {
		r.LiquidationPriceX96 = &liq.String
	}
	return r, nil
}
