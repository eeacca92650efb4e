package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"MarginlyLedger/internal/core"
	"MarginlyLedger/internal/observability"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/sugawarayuuta/sonnet"
)

const (
	CalldataStream        = "MARGINLY_CALLDATA"
	CalldataSubjectPrefix = "marginly.calldata"
)

// Publisher is the subset of jetstream.JetStream the outbound side needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// OutboundPublisher publishes encoded intents for wallets and relayers.
// Subjects follow the pattern: marginly.calldata.{call_type}
type OutboundPublisher struct {
	js        Publisher
	inputChan <-chan core.EncodedIntent
	logger    zerolog.Logger
}

// CalldataMessage is the outbound payload: everything needed to sign and send
// the pool transaction.
type CalldataMessage struct {
	IntentID  string    `json:"intent_id"`
	Sequence  int64     `json:"sequence"`
	Pool      string    `json:"pool"`
	Sender    string    `json:"sender"`
	Action    string    `json:"action"`
	CallType  string    `json:"call_type"`
	Method    string    `json:"method"`
	Calldata  string    `json:"calldata"`
	Value     string    `json:"value"`
	ChainHash string    `json:"chain_hash"`
	EncodedAt time.Time `json:"encoded_at"`
}

func NewOutboundPublisher(js Publisher, inputChan <-chan core.EncodedIntent) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    observability.NewLogger("outbound-publisher"),
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			if err := op.publish(ctx, out); err != nil {
				// Non-fatal: consumers can read the intents table directly
				op.logger.Warn().Err(err).Int64("sequence", out.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, out core.EncodedIntent) error {
	data, err := sonnet.Marshal(NewCalldataMessage(out))
	if err != nil {
		return fmt.Errorf("marshal calldata message: %w", err)
	}

	// Msg ID lets JetStream drop republished intents inside its dedup window
	_, err = op.js.Publish(ctx, CalldataSubject(out), data, jetstream.WithMsgID(out.Intent.ID.String()))
	return err
}

// CalldataSubject returns marginly.calldata.<call_type> in snake case.
func CalldataSubject(out core.EncodedIntent) string {
	return CalldataSubjectPrefix + "." + snake(out.CallType.String())
}

func NewCalldataMessage(out core.EncodedIntent) CalldataMessage {
	value := "0"
	if out.Params.Value != nil {
		value = out.Params.Value.Dec()
	}
	return CalldataMessage{
		IntentID:  out.Intent.ID.String(),
		Sequence:  out.Sequence,
		Pool:      out.Intent.Pool.Hex(),
		Sender:    out.Intent.Sender.Hex(),
		Action:    out.Intent.Action.Kind(),
		CallType:  out.CallType.String(),
		Method:    out.Params.MethodName,
		Calldata:  hexutil.Encode(out.Calldata),
		Value:     value,
		ChainHash: hexutil.Encode(out.ChainHash[:]),
		EncodedAt: out.EncodedAt,
	}
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
