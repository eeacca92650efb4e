package ingestion

import (
	"context"
	"fmt"
	"time"

	"MarginlyLedger/internal/core"

	"github.com/google/uuid"
)

// Processor is the engine entry point shared by every ingest surface.
type Processor interface {
	Process(ctx context.Context, in core.Intent) (core.EncodedIntent, error)
}

// GRPCIntentService submits single intents from the RPC surface and returns
// the encoded result synchronously. High-throughput producers use NATS.
type GRPCIntentService struct {
	processor Processor
	now       func() time.Time
}

func NewGRPCIntentService(processor Processor) *GRPCIntentService {
	return &GRPCIntentService{processor: processor, now: time.Now}
}

// SubmitJSON parses a wire-format intent and processes it. Unlike NATS
// payloads, intent_id may be omitted.
func (s *GRPCIntentService) SubmitJSON(ctx context.Context, data []byte) (core.EncodedIntent, error) {
	in, err := parseIntent(data, s.now(), SourceGRPC, false)
	if err != nil {
		return core.EncodedIntent{}, fmt.Errorf("%w: %w", ErrMalformedIntent, err)
	}
	return s.Submit(ctx, in)
}

// Submit processes an already-built intent. A nil ID is replaced with a fresh
// one, so callers that do not track ids lose replay protection.
func (s *GRPCIntentService) Submit(ctx context.Context, in core.Intent) (core.EncodedIntent, error) {
	if in.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return core.EncodedIntent{}, fmt.Errorf("intent id: %w", err)
		}
		in.ID = id
	}
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = s.now()
	}
	if in.Source == "" {
		in.Source = SourceGRPC
	}
	return s.processor.Process(ctx, in)
}
