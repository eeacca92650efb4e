package ingestion

import (
	"context"
	"errors"

	"MarginlyLedger/internal/core"
	"MarginlyLedger/internal/observability"

	"github.com/rs/zerolog"
)

const (
	SourceNATS = "nats"
	SourceGRPC = "grpc"
)

// IntentPump drains raw NATS messages into the engine.
//
// Messages are acked only after the engine accepted them (or rejected them for
// good). Malformed and unencodable intents are terminated so JetStream never
// redelivers them; cancellation naks so another instance picks them up.
type IntentPump struct {
	rawChan   <-chan RawIntent
	processor Processor
	logger    zerolog.Logger
}

func NewIntentPump(rawChan <-chan RawIntent, processor Processor) *IntentPump {
	return &IntentPump{
		rawChan:   rawChan,
		processor: processor,
		logger:    observability.NewLogger("intent-pump"),
	}
}

// Run processes messages until ctx is cancelled or rawChan is closed.
func (p *IntentPump) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-p.rawChan:
			if !ok {
				return nil
			}
			p.handle(ctx, raw)
		}
	}
}

func (p *IntentPump) handle(ctx context.Context, raw RawIntent) {
	in, err := ParseIntent(raw.Data, raw.ReceivedAt, SourceNATS)
	if err != nil {
		p.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("malformed intent")
		raw.TermFunc()
		return
	}

	out, err := p.processor.Process(ctx, in)
	switch {
	case err == nil:
		raw.AckFunc()
		p.logger.Debug().
			Str("intent_id", in.ID.String()).
			Int64("sequence", out.Sequence).
			Str("call_type", out.CallType.String()).
			Msg("intent encoded")
	case errors.Is(err, core.ErrDuplicateIntent):
		// already encoded once; redelivery after a crash lands here
		raw.AckFunc()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		raw.NakFunc()
	case errors.Is(err, core.ErrDedupUnavailable):
		p.logger.Warn().Err(err).Str("intent_id", in.ID.String()).Msg("dedup lookup failed, redelivering")
		raw.NakFunc()
	default:
		p.logger.Warn().Err(err).Str("intent_id", in.ID.String()).Msg("intent rejected")
		raw.TermFunc()
	}
}
