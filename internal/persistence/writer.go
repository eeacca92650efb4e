package persistence

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"MarginlyLedger/internal/core"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/lib/pq"
	"github.com/sugawarayuuta/sonnet"
)

// ErrIntentConflict means an intent id is already in the log with a different
// chain hash. Storing the batch would leave a gap in the hash chain.
var ErrIntentConflict = errors.New("intent already logged with a different chain hash")

// IntentWriter writes encoded intents to intents.encoded using multi-row INSERT.
type IntentWriter struct {
	db *sql.DB
}

// IntentRow represents a row in intents.encoded
type IntentRow struct {
	IntentID   uuid.UUID
	Sequence   int64
	Pool       string
	Sender     string
	Action     string
	CallType   uint8
	Method     string
	Args       []byte // JSON, amounts as decimal strings
	Value      string // NUMERIC(78,0) as decimal
	Calldata   []byte
	ChainHash  []byte
	PrevHash   []byte
	Source     string
	ReceivedAt *time.Time
	EncodedAt  time.Time
}

const intentColumns = 15

// argsJSON is the stored form of execute.Args.
type argsJSON struct {
	CallType               uint8  `json:"call_type"`
	Amount1                string `json:"amount1"`
	Amount2                string `json:"amount2"`
	LimitPriceX96          string `json:"limit_price_x96"`
	Flag                   bool   `json:"flag"`
	ReceivePositionAddress string `json:"receive_position_address"`
	SwapCalldata           string `json:"swap_calldata"`
}

// NewIntentRow flattens an engine output into its table row.
func NewIntentRow(out core.EncodedIntent) (IntentRow, error) {
	a := out.Params.Args
	args, err := sonnet.Marshal(argsJSON{
		CallType:               uint8(a.CallType),
		Amount1:                decString(a.Amount1),
		Amount2:                decString(a.Amount2),
		LimitPriceX96:          decString(a.LimitPriceX96),
		Flag:                   a.Flag,
		ReceivePositionAddress: a.ReceivePositionAddress.Hex(),
		SwapCalldata:           decString(a.SwapCalldata),
	})
	if err != nil {
		return IntentRow{}, fmt.Errorf("marshal args: %w", err)
	}

	kind := ""
	if out.Intent.Action != nil {
		kind = out.Intent.Action.Kind()
	}
	var received *time.Time
	if !out.Intent.ReceivedAt.IsZero() {
		t := out.Intent.ReceivedAt
		received = &t
	}

	return IntentRow{
		IntentID:   out.Intent.ID,
		Sequence:   out.Sequence,
		Pool:       out.Intent.Pool.Hex(),
		Sender:     out.Intent.Sender.Hex(),
		Action:     kind,
		CallType:   uint8(out.CallType),
		Method:     out.Params.MethodName,
		Args:       args,
		Value:      decString(out.Params.Value),
		Calldata:   out.Calldata,
		ChainHash:  out.ChainHash[:],
		PrevHash:   out.PrevHash[:],
		Source:     out.Intent.Source,
		ReceivedAt: received,
		EncodedAt:  out.EncodedAt,
	}, nil
}

func NewIntentWriter(db *sql.DB) *IntentWriter {
	return &IntentWriter{db: db}
}

// WriteBatch writes rows in one transaction. A row whose id is already stored
// with the same chain hash is a replay and is skipped; any other skipped row
// rolls the batch back with ErrIntentConflict.
func (w *IntentWriter) WriteBatch(ctx context.Context, rows []IntentRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	query, args := buildIntentInsert(rows)
	inserted, err := queryIDs(ctx, tx, query, args...)
	if err != nil {
		return fmt.Errorf("insert intents: %w", err)
	}

	skipped := skippedRows(rows, inserted)
	if len(skipped) > 0 {
		if err := checkReplays(ctx, tx, skipped); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func queryIDs(ctx context.Context, tx *sql.Tx, query string, args ...any) (map[uuid.UUID]bool, error) {
	rs, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	ids := make(map[uuid.UUID]bool)
	for rs.Next() {
		var id uuid.UUID
		if err := rs.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rs.Err()
}

// checkReplays compares skipped rows with what the log already holds.
func checkReplays(ctx context.Context, tx *sql.Tx, skipped []IntentRow) error {
	ids := make([]string, len(skipped))
	for i, r := range skipped {
		ids[i] = r.IntentID.String()
	}
	rs, err := tx.QueryContext(ctx,
		`SELECT intent_id, chain_hash FROM intents.encoded WHERE intent_id = ANY($1::uuid[])`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("read logged intents: %w", err)
	}
	defer rs.Close()

	stored := make(map[uuid.UUID][]byte, len(skipped))
	for rs.Next() {
		var id uuid.UUID
		var hash []byte
		if err := rs.Scan(&id, &hash); err != nil {
			return fmt.Errorf("read logged intents: %w", err)
		}
		stored[id] = hash
	}
	if err := rs.Err(); err != nil {
		return fmt.Errorf("read logged intents: %w", err)
	}
	return compareReplays(skipped, stored)
}

func skippedRows(rows []IntentRow, inserted map[uuid.UUID]bool) []IntentRow {
	var skipped []IntentRow
	for _, r := range rows {
		if !inserted[r.IntentID] {
			skipped = append(skipped, r)
		}
	}
	return skipped
}

func compareReplays(skipped []IntentRow, stored map[uuid.UUID][]byte) error {
	for _, r := range skipped {
		hash, ok := stored[r.IntentID]
		if !ok {
			return fmt.Errorf("intent %s (sequence %d) was not stored", r.IntentID, r.Sequence)
		}
		if !bytes.Equal(hash, r.ChainHash) {
			return fmt.Errorf("%w: %s (sequence %d)", ErrIntentConflict, r.IntentID, r.Sequence)
		}
	}
	return nil
}

func buildIntentInsert(rows []IntentRow) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT INTO intents.encoded
		(intent_id, sequence, pool, sender, action, call_type, method, args, value,
		 calldata, chain_hash, prev_hash, source, received_at, encoded_at)
		VALUES `)

	args := make([]any, 0, len(rows)*intentColumns)
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c := 0; c < intentColumns; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*intentColumns+c+1)
		}
		b.WriteString(")")

		args = append(args,
			r.IntentID, r.Sequence, r.Pool, r.Sender, r.Action, int16(r.CallType), r.Method,
			string(r.Args), r.Value, r.Calldata, r.ChainHash, r.PrevHash, r.Source,
			r.ReceivedAt, r.EncodedAt,
		)
	}
	b.WriteString(" ON CONFLICT (intent_id) DO NOTHING RETURNING intent_id")
	return b.String(), args
}

func decString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
