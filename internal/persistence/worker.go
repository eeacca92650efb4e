package persistence

import (
	"context"
	"errors"
	"time"

	"MarginlyLedger/internal/core"
	"MarginlyLedger/internal/observability"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/rs/zerolog"
)

// BatchWriter persists one batch atomically.
type BatchWriter interface {
	WriteBatch(ctx context.Context, rows []IntentRow) error
}

// PersistenceWorker drains the persist channel and batch-writes to Postgres.
// The engine sends to the persist channel with BLOCKING sends, so if this
// worker falls behind the engine stalls and no intent is lost.
type PersistenceWorker struct {
	writer       BatchWriter
	inputChan    <-chan core.EncodedIntent
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger
	retry        retrypolicy.RetryPolicy[any]
}

func NewPersistenceWorker(
	writer BatchWriter,
	inputChan <-chan core.EncodedIntent,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *PersistenceWorker {
	if batchSize <= 0 {
		batchSize = 1
	}
	pw := &PersistenceWorker{
		writer:       writer,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		logger:       observability.NewLogger("persistence"),
	}
	// The worker never drops a batch: it retries until the write succeeds or
	// the context is cancelled. A chain conflict is never retried.
	pw.retry = retrypolicy.NewBuilder[any]().
		WithBackoff(100*time.Millisecond, 30*time.Second).
		WithMaxRetries(-1).
		AbortOnErrors(ErrIntentConflict).
		OnRetry(func(e failsafe.ExecutionEvent[any]) {
			if pw.metrics != nil {
				pw.metrics.PersistErrors.WithLabelValues("retry").Inc()
			}
			pw.logger.Warn().Err(e.LastError()).Int("attempt", e.Attempts()).Msg("persistence retry")
		}).
		Build()
	return pw
}

// Run batches incoming intents and flushes either when the batch is full or
// the flush timeout expires. Blocks until ctx is cancelled or the channel closes.
// On cancellation everything already buffered in the channel is written before
// Run returns. An ErrIntentConflict stops the worker.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	batch := make([]IntentRow, 0, pw.batchSize)

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown: take what the engine already handed over, then flush
			batch = pw.drain(batch)
			if len(batch) > 0 {
				if err := pw.flush(context.Background(), batch); err != nil {
					pw.logger.Error().Err(err).Int("rows", len(batch)).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case out, ok := <-pw.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := pw.flush(context.Background(), batch); err != nil {
						pw.logger.Error().Err(err).Int("rows", len(batch)).Msg("final flush failed")
						return err
					}
				}
				return nil
			}

			batch = pw.appendRow(batch, out)

			if len(batch) >= pw.batchSize {
				if err := pw.flushWithRetry(ctx, batch); err != nil {
					pw.logger.Error().Err(err).Msg("batch flush failed")
					if errors.Is(err, ErrIntentConflict) {
						return err
					}
				}
				batch = batch[:0]
				resetTimer(timer, pw.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				if err := pw.flushWithRetry(ctx, batch); err != nil {
					pw.logger.Error().Err(err).Msg("timeout flush failed")
					if errors.Is(err, ErrIntentConflict) {
						return err
					}
				}
				batch = batch[:0]
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

func (pw *PersistenceWorker) appendRow(batch []IntentRow, out core.EncodedIntent) []IntentRow {
	row, err := NewIntentRow(out)
	if err != nil {
		// only reachable with a corrupt engine output
		pw.logger.Error().Err(err).Int64("sequence", out.Sequence).Msg("unpersistable intent")
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("marshal").Inc()
		}
		return batch
	}
	return append(batch, row)
}

// drain moves everything currently buffered in the input channel into batch
// without blocking.
func (pw *PersistenceWorker) drain(batch []IntentRow) []IntentRow {
	for {
		select {
		case out, ok := <-pw.inputChan:
			if !ok {
				return batch
			}
			batch = pw.appendRow(batch, out)
		default:
			return batch
		}
	}
}

func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, rows []IntentRow) error {
	err := failsafe.With[any](pw.retry).WithContext(ctx).Run(func() error {
		return pw.flush(ctx, rows)
	})
	if err != nil && ctx.Err() != nil && !errors.Is(err, ErrIntentConflict) {
		// Shutdown interrupted the retries; one last attempt so the batch is not lost.
		return pw.flush(context.Background(), rows)
	}
	return err
}

func (pw *PersistenceWorker) flush(ctx context.Context, rows []IntentRow) error {
	start := time.Now()

	if err := pw.writer.WriteBatch(ctx, rows); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("write_intents").Inc()
		}
		return err
	}

	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(rows)))
		pw.metrics.PersistIntentsWritten.Add(float64(len(rows)))
		pw.metrics.SetChannelMetrics("persist", len(pw.inputChan), cap(pw.inputChan))
	}
	return nil
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
