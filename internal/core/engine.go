package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"MarginlyLedger/internal/action"
	"MarginlyLedger/internal/calldata"
	"MarginlyLedger/internal/execute"
	fp "MarginlyLedger/internal/math"
	"MarginlyLedger/internal/observability"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var (
	ErrDuplicateIntent = errors.New("duplicate intent")
	ErrInvalidIntent   = errors.New("invalid intent")
)

// Intent is one request to act on a pool on behalf of Sender.
type Intent struct {
	ID         uuid.UUID
	Pool       common.Address
	Sender     common.Address
	Action     action.Action
	ReceivedAt time.Time
	Source     string
}

// EncodedIntent is the engine output: the execute call a sender's wallet submits to Pool.
type EncodedIntent struct {
	Sequence  int64
	Intent    Intent
	CallType  action.CallType
	Params    execute.Params
	Calldata  []byte
	ChainHash [32]byte
	PrevHash  [32]byte
	EncodedAt time.Time
}

// IntentEngine turns intents into execute calldata, one at a time and in arrival order.
type IntentEngine struct {
	mu          sync.Mutex
	sequence    int64
	hasher      *IntentHasher
	encoder     *execute.Encoder
	codec       *calldata.Codec
	idempotency *IdempotencyChecker
	metrics     *observability.Metrics
	now         func() time.Time

	persistChan chan<- EncodedIntent
	publishChan chan<- EncodedIntent
}

// EngineConfig carries the recovered position of the intent log.
type EngineConfig struct {
	StartSequence int64
	ChainTip      *[32]byte
	LRUCapacity   int
	DBChecker     DBIdempotencyChecker
	Metrics       *observability.Metrics
	Clock         func() time.Time
}

func NewIntentEngine(
	encoder *execute.Encoder,
	codec *calldata.Codec,
	persistChan, publishChan chan<- EncodedIntent,
	cfg EngineConfig,
) *IntentEngine {
	if cfg.LRUCapacity <= 0 {
		cfg.LRUCapacity = 1_000_000
	}
	hasher := NewIntentHasher()
	if cfg.ChainTip != nil {
		hasher = ResumeIntentHasher(*cfg.ChainTip)
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &IntentEngine{
		sequence:    cfg.StartSequence,
		hasher:      hasher,
		encoder:     encoder,
		codec:       codec,
		idempotency: NewIdempotencyChecker(cfg.LRUCapacity, cfg.DBChecker, cfg.Metrics),
		metrics:     cfg.Metrics,
		now:         now,
		persistChan: persistChan,
		publishChan: publishChan,
	}
}

// Process is the main processing pipeline. Concurrent callers are serialized so
// sequence numbers and the hash chain follow acceptance order.
func (e *IntentEngine) Process(ctx context.Context, in Intent) (EncodedIntent, error) {
	start := time.Now()
	kind := "unknown"
	if in.Action != nil {
		kind = in.Action.Kind()
	}

	// Step 1: Shape validation
	if err := validateIntent(in); err != nil {
		e.reject(kind, "invalid")
		return EncodedIntent{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Step 2: Idempotency check (two-tier)
	dup, err := e.idempotency.IsDuplicate(ctx, in.ID)
	if err != nil {
		e.reject(kind, "dedup_unavailable")
		return EncodedIntent{}, fmt.Errorf("intent %s: %w", in.ID, err)
	}
	if dup {
		e.reject(kind, "duplicate")
		return EncodedIntent{}, fmt.Errorf("%w: %s", ErrDuplicateIntent, in.ID)
	}

	// Step 3: Action -> execute arguments
	params, err := e.encoder.Encode(in.Action)
	if err != nil {
		e.reject(kind, rejectReason(err))
		return EncodedIntent{}, fmt.Errorf("encode %s: %w", kind, err)
	}

	// Step 4: Arguments -> calldata
	data, err := e.codec.EncodeParams(params)
	if err != nil {
		e.reject(kind, "codec")
		return EncodedIntent{}, fmt.Errorf("calldata %s: %w", kind, err)
	}

	// Step 5: Chain into the intent log
	seq := e.sequence + 1
	prev := e.hasher.Tip()
	out := EncodedIntent{
		Sequence:  seq,
		Intent:    in,
		CallType:  params.Args.CallType,
		Params:    params,
		Calldata:  data,
		ChainHash: ChainHash(prev, seq, in.ID, data),
		PrevHash:  prev,
		EncodedAt: e.now(),
	}

	// Step 6: Emit. Persistence blocks (backpressure); nothing is acknowledged
	// before the log accepts it.
	if err := e.emitPersist(ctx, out); err != nil {
		return EncodedIntent{}, err
	}

	// Publication drops on full; the persisted log is authoritative.
	if e.publishChan != nil {
		select {
		case e.publishChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}

	// Step 7: Commit
	e.sequence = seq
	e.hasher.Advance(out.ChainHash)
	e.idempotency.MarkProcessed(in.ID)

	if e.metrics != nil {
		e.metrics.IntentsEncoded.WithLabelValues(out.CallType.String()).Inc()
		e.metrics.EncodeDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if !in.ReceivedAt.IsZero() {
			e.metrics.IngestToEncode.WithLabelValues(sourceLabel(in.Source)).Observe(time.Since(in.ReceivedAt).Seconds())
		}
	}

	return out, nil
}

func (e *IntentEngine) emitPersist(ctx context.Context, out EncodedIntent) error {
	if e.persistChan == nil {
		return nil
	}
	select {
	case e.persistChan <- out:
		return nil
	default:
	}

	if e.metrics != nil {
		e.metrics.PersistBackpressure.Inc()
	}
	select {
	case e.persistChan <- out:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("persist intent %s: %w", out.Intent.ID, ctx.Err())
	}
}

// Sequence returns the sequence of the last accepted intent.
func (e *IntentEngine) Sequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// ChainTip returns the hash of the last accepted intent.
func (e *IntentEngine) ChainTip() [32]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasher.Tip()
}

// WarmLRU preloads recently persisted intent ids.
func (e *IntentEngine) WarmLRU(ids []uuid.UUID) {
	e.idempotency.Warm(ids)
}

func (e *IntentEngine) Idempotency() *IdempotencyChecker {
	return e.idempotency
}

func (e *IntentEngine) reject(kind, reason string) {
	if e.metrics != nil {
		e.metrics.IntentsRejected.WithLabelValues(kind, reason).Inc()
	}
}

func validateIntent(in Intent) error {
	switch {
	case in.ID == uuid.Nil:
		return fmt.Errorf("%w: missing id", ErrInvalidIntent)
	case in.Pool == (common.Address{}):
		return fmt.Errorf("%w: missing pool", ErrInvalidIntent)
	case in.Action == nil:
		return fmt.Errorf("%w: %w", ErrInvalidIntent, execute.ErrUnknownAction)
	}
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, execute.ErrUnknownAction):
		return "unknown_action"
	case errors.Is(err, execute.ErrMissingAmount):
		return "missing_amount"
	case errors.Is(err, execute.ErrMissingLimitPrice):
		return "missing_limit_price"
	case errors.Is(err, fp.ErrOutOfRange), errors.Is(err, fp.ErrDivisionByZero):
		return "arithmetic"
	default:
		return "invalid"
	}
}

func sourceLabel(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
