// Package chain reads Marginly pool view state pinned to a single block.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"MarginlyLedger/internal/calldata"
	"MarginlyLedger/internal/observability"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Caller is the subset of *ethclient.Client the reader needs.
type Caller interface {
	BlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ReaderConfig tunes RPC resilience.
type ReaderConfig struct {
	MaxRetries   int
	BackoffMin   time.Duration
	BackoffMax   time.Duration
	CallTimeout  time.Duration
	MaxInFlight  int
	BreakerDelay time.Duration
}

func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		MaxRetries:   3,
		BackoffMin:   100 * time.Millisecond,
		BackoffMax:   2 * time.Second,
		CallTimeout:  5 * time.Second,
		MaxInFlight:  4,
		BreakerDelay: 10 * time.Second,
	}
}

// PoolReader reads one pool. Token decimals are immutable and cached; every
// other value is re-read per snapshot.
type PoolReader struct {
	caller  Caller
	pool    common.Address
	codec   *calldata.Codec
	cfg     ReaderConfig
	metrics *observability.Metrics
	logger  zerolog.Logger

	blockExec failsafe.Executor[uint64]
	callExec  failsafe.Executor[[]byte]

	decimalsMu sync.RWMutex
	decimals   map[common.Address]uint8
}

func NewPoolReader(
	caller Caller,
	pool common.Address,
	codec *calldata.Codec,
	cfg ReaderConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PoolReader {
	r := &PoolReader{
		caller:   caller,
		pool:     pool,
		codec:    codec,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
		decimals: make(map[common.Address]uint8),
	}
	r.blockExec = failsafe.With[uint64](retryPolicy[uint64](r), breaker[uint64](cfg))
	r.callExec = failsafe.With[[]byte](retryPolicy[[]byte](r), breaker[[]byte](cfg))
	return r
}

func retryPolicy[R any](r *PoolReader) retrypolicy.RetryPolicy[R] {
	return retrypolicy.NewBuilder[R]().
		HandleIf(func(_ R, err error) bool {
			return isTransient(err)
		}).
		WithBackoff(r.cfg.BackoffMin, r.cfg.BackoffMax).
		WithMaxRetries(r.cfg.MaxRetries).
		OnRetry(func(e failsafe.ExecutionEvent[R]) {
			if r.metrics != nil {
				r.metrics.RPCRetries.Inc()
			}
			r.logger.Warn().
				Err(e.LastError()).
				Int("attempt", e.Attempts()).
				Msg("retrying pool read")
		}).
		Build()
}

func breaker[R any](cfg ReaderConfig) circuitbreaker.CircuitBreaker[R] {
	return circuitbreaker.NewBuilder[R]().
		HandleIf(func(_ R, err error) bool {
			return isTransient(err)
		}).
		WithFailureThresholdRatio(5, 10).
		WithDelay(cfg.BreakerDelay).
		Build()
}

// isTransient reports whether err is worth retrying. Reverts and caller
// cancellation are final.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !strings.Contains(err.Error(), "execution reverted")
}

func (r *PoolReader) Pool() common.Address {
	return r.pool
}

// BlockNumber returns the latest block.
func (r *PoolReader) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := r.blockExec.WithContext(ctx).Get(func() (uint64, error) {
		return r.caller.BlockNumber(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("block number: %w", err)
	}
	return n, nil
}

// Snapshot reads every value needed to value user's position at a single block.
func (r *PoolReader) Snapshot(ctx context.Context, user common.Address) (*PoolSnapshot, error) {
	block, err := r.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	return r.SnapshotAt(ctx, user, block)
}

// SnapshotAt is Snapshot pinned to an explicit block.
func (r *PoolReader) SnapshotAt(ctx context.Context, user common.Address, block uint64) (*PoolSnapshot, error) {
	snap := &PoolSnapshot{Pool: r.pool, User: user, Block: block}
	at := new(big.Int).SetUint64(block)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxInFlight)

	coeffs := []struct {
		method string
		dst    **uint256.Int
	}{
		{calldata.MethodBaseCollateralCoeff, &snap.Coeffs.BaseCollateralCoeff},
		{calldata.MethodQuoteCollateralCoeff, &snap.Coeffs.QuoteCollateralCoeff},
		{calldata.MethodBaseDebtCoeff, &snap.Coeffs.BaseDebtCoeff},
		{calldata.MethodQuoteDebtCoeff, &snap.Coeffs.QuoteDebtCoeff},
		{calldata.MethodBaseDelevCoeff, &snap.Coeffs.BaseDelevCoeff},
		{calldata.MethodQuoteDelevCoeff, &snap.Coeffs.QuoteDelevCoeff},
		{calldata.MethodGetBasePrice, &snap.BasePriceX96},
	}
	for _, c := range coeffs {
		g.Go(func() error {
			out, err := r.poolCall(gctx, c.method, at)
			if err != nil {
				return err
			}
			v, err := r.codec.UnpackUint256(c.method, out)
			if err != nil {
				return err
			}
			*c.dst = v
			return nil
		})
	}

	g.Go(func() error {
		out, err := r.poolCall(gctx, calldata.MethodParams, at)
		if err != nil {
			return err
		}
		snap.MaxLeverage, err = r.codec.UnpackMaxLeverage(out)
		return err
	})
	g.Go(func() error {
		out, err := r.poolCall(gctx, calldata.MethodMode, at)
		if err != nil {
			return err
		}
		snap.Mode, err = r.codec.UnpackMode(out)
		return err
	})
	g.Go(func() error {
		out, err := r.poolCall(gctx, calldata.MethodPositions, at, user)
		if err != nil {
			return err
		}
		snap.RawPosition, err = r.codec.UnpackPosition(out)
		return err
	})
	g.Go(func() error {
		token, dec, err := r.token(gctx, calldata.MethodBaseToken, at)
		snap.BaseToken, snap.BaseDecimals = token, dec
		return err
	})
	g.Go(func() error {
		token, dec, err := r.token(gctx, calldata.MethodQuoteToken, at)
		snap.QuoteToken, snap.QuoteDecimals = token, dec
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("snapshot %s at block %d: %w", r.pool.Hex(), block, err)
	}

	if r.metrics != nil {
		r.metrics.SnapshotBlock.Set(float64(block))
	}
	r.logger.Debug().
		Str("user", user.Hex()).
		Uint64("block", block).
		Uint8("position_type", snap.RawPosition.Type).
		Msg("pool snapshot read")
	return snap, nil
}

func (r *PoolReader) token(ctx context.Context, method string, at *big.Int) (common.Address, uint8, error) {
	out, err := r.poolCall(ctx, method, at)
	if err != nil {
		return common.Address{}, 0, err
	}
	token, err := r.codec.UnpackAddress(method, out)
	if err != nil {
		return common.Address{}, 0, err
	}
	dec, err := r.Decimals(ctx, token)
	return token, dec, err
}

// PoolDecimals returns the base and quote token decimals at the latest block.
func (r *PoolReader) PoolDecimals(ctx context.Context) (uint8, uint8, error) {
	_, base, err := r.token(ctx, calldata.MethodBaseToken, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("base token: %w", err)
	}
	_, quote, err := r.token(ctx, calldata.MethodQuoteToken, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("quote token: %w", err)
	}
	return base, quote, nil
}

// Decimals returns the ERC-20 decimals of token, read once per process.
func (r *PoolReader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	r.decimalsMu.RLock()
	dec, ok := r.decimals[token]
	r.decimalsMu.RUnlock()
	if ok {
		return dec, nil
	}

	data, err := r.codec.PackDecimals()
	if err != nil {
		return 0, err
	}
	out, err := r.call(ctx, token, calldata.MethodDecimals, data, nil)
	if err != nil {
		return 0, err
	}
	if dec, err = r.codec.UnpackDecimals(out); err != nil {
		return 0, err
	}

	r.decimalsMu.Lock()
	r.decimals[token] = dec
	r.decimalsMu.Unlock()
	return dec, nil
}

func (r *PoolReader) poolCall(ctx context.Context, method string, at *big.Int, args ...any) ([]byte, error) {
	data, err := r.codec.PackPool(method, args...)
	if err != nil {
		return nil, err
	}
	return r.call(ctx, r.pool, method, data, at)
}

func (r *PoolReader) call(ctx context.Context, to common.Address, method string, data []byte, at *big.Int) ([]byte, error) {
	start := time.Now()
	if r.metrics != nil {
		r.metrics.RPCCalls.WithLabelValues(method).Inc()
	}

	out, err := r.callExec.WithContext(ctx).Get(func() ([]byte, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()
		return r.caller.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: data}, at)
	})

	if r.metrics != nil {
		r.metrics.RPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if r.metrics != nil {
			r.metrics.RPCErrors.WithLabelValues(method).Inc()
		}
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return out, nil
}
