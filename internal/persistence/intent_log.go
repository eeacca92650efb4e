package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"MarginlyLedger/internal/core"

	"github.com/google/uuid"
)

var ErrChainBroken = errors.New("intent chain broken")

// IntentLog reads intents.encoded back for recovery and audit.
type IntentLog struct {
	db *sql.DB
}

// LogHead is where the engine resumes after a restart.
type LogHead struct {
	Sequence int64
	ChainTip *[32]byte // nil for an empty log
}

// StoredIntent is the hash-relevant part of an intents.encoded row.
type StoredIntent struct {
	IntentID  uuid.UUID
	Sequence  int64
	Calldata  []byte
	ChainHash []byte
	PrevHash  []byte
}

func NewIntentLog(db *sql.DB) *IntentLog {
	return &IntentLog{db: db}
}

// Head returns the highest sequence and its chain hash.
func (l *IntentLog) Head(ctx context.Context) (LogHead, error) {
	var (
		seq  int64
		hash []byte
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT sequence, chain_hash FROM intents.encoded
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&seq, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return LogHead{}, nil // empty log, cold start
	}
	if err != nil {
		return LogHead{}, fmt.Errorf("load head: %w", err)
	}
	if len(hash) != 32 {
		return LogHead{}, fmt.Errorf("%w: sequence %d has %d-byte hash", ErrChainBroken, seq, len(hash))
	}

	var tip [32]byte
	copy(tip[:], hash)
	return LogHead{Sequence: seq, ChainTip: &tip}, nil
}

// RecentIntentIDs returns up to limit of the most recently encoded ids, for LRU warming.
func (l *IntentLog) RecentIntentIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT intent_id FROM intents.encoded
		ORDER BY sequence DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadFrom loads up to limit intents with sequence >= fromSequence in order.
func (l *IntentLog) LoadFrom(ctx context.Context, fromSequence int64, limit int) ([]StoredIntent, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT intent_id, sequence, calldata, chain_hash, prev_hash
		FROM intents.encoded
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredIntent
	for rows.Next() {
		var s StoredIntent
		if err := rows.Scan(&s.IntentID, &s.Sequence, &s.Calldata, &s.ChainHash, &s.PrevHash); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// VerifyChain re-hashes the whole log from genesis and returns the verified tip.
func (l *IntentLog) VerifyChain(ctx context.Context, batchSize int) (LogHead, error) {
	prev := core.GenesisHash()
	head := LogHead{}
	next := int64(1)

	for {
		rows, err := l.LoadFrom(ctx, next, batchSize)
		if err != nil {
			return LogHead{}, err
		}
		if len(rows) == 0 {
			return head, nil
		}
		if prev, err = VerifyRows(prev, next, rows); err != nil {
			return LogHead{}, err
		}
		last := rows[len(rows)-1].Sequence
		tip := prev
		head = LogHead{Sequence: last, ChainTip: &tip}
		next = last + 1
	}
}

// VerifyRows checks that rows continue the chain ending in prev, starting at
// sequence first with no gaps. It returns the new tip.
func VerifyRows(prev [32]byte, first int64, rows []StoredIntent) ([32]byte, error) {
	want := first
	for _, r := range rows {
		if r.Sequence != want {
			return prev, fmt.Errorf("%w: expected sequence %d, got %d", ErrChainBroken, want, r.Sequence)
		}
		if string(r.PrevHash) != string(prev[:]) {
			return prev, fmt.Errorf("%w: prev hash mismatch at %d", ErrChainBroken, r.Sequence)
		}
		hash := core.ChainHash(prev, r.Sequence, r.IntentID, r.Calldata)
		if string(r.ChainHash) != string(hash[:]) {
			return prev, fmt.Errorf("%w: chain hash mismatch at %d", ErrChainBroken, r.Sequence)
		}
		prev = hash
		want++
	}
	return prev, nil
}
