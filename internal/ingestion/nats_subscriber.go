package ingestion

import (
	"context"
	"fmt"
	"time"

	"MarginlyLedger/internal/observability"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	IntentStream   = "MARGINLY_INTENTS"
	IntentSubjects = "marginly.intents.>"
	IntentConsumer = "marginly-encoder"
)

// NATSSubscriber consumes intents from JetStream and hands them to the pump.
// NATS is the high-throughput surface; gRPC submission is for single intents.
type NATSSubscriber struct {
	js        jetstream.JetStream
	rawChan   chan<- RawIntent
	consumers []jetstream.ConsumeContext
	logger    zerolog.Logger
}

// RawIntent is an undecoded message plus its acknowledgement hooks.
type RawIntent struct {
	Subject    string
	Data       []byte
	ReceivedAt time.Time
	AckFunc    func() // processed or deliberately skipped
	NakFunc    func() // retry later
	TermFunc   func() // never redeliver (malformed)
}

// SubscriberConfig names the stream and durable consumer to read from.
type SubscriberConfig struct {
	Stream       string
	Subject      string
	ConsumerName string
	AckWait      time.Duration
	MaxDeliver   int
}

func DefaultSubscriberConfig() SubscriberConfig {
	return SubscriberConfig{
		Stream:       IntentStream,
		Subject:      IntentSubjects,
		ConsumerName: IntentConsumer,
		AckWait:      30 * time.Second,
		MaxDeliver:   5,
	}
}

func NewNATSSubscriber(js jetstream.JetStream, rawChan chan<- RawIntent) *NATSSubscriber {
	return &NATSSubscriber{
		js:      js,
		rawChan: rawChan,
		logger:  observability.NewLogger("nats-subscriber"),
	}
}

// Subscribe creates the durable consumer with explicit ACK.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, cfg SubscriberConfig) error {
	consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.Stream, jetstream.ConsumerConfig{
		Durable:       cfg.ConsumerName,
		FilterSubject: cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		raw := RawIntent{
			Subject:    msg.Subject(),
			Data:       msg.Data(),
			ReceivedAt: time.Now(),
			AckFunc:    func() { msg.Ack() },
			NakFunc:    func() { msg.Nak() },
			TermFunc:   func() { msg.Term() },
		}

		select {
		case ns.rawChan <- raw:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
	}

	ns.consumers = append(ns.consumers, consumeCtx)
	ns.logger.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.logger.Info().Msg("subscribers stopped")
}

// EnsureStreams creates the inbound and outbound streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      IntentStream,
			Subjects:  []string{IntentSubjects},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      CalldataStream,
			Subjects:  []string{CalldataSubjectPrefix + ".>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("marginly-ledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
