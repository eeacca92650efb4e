package query

import (
	"context"
	"errors"

	"MarginlyLedger/internal/persistence"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ChainVerifier re-hashes the intent log.
type ChainVerifier interface {
	VerifyChain(ctx context.Context, batchSize int) (persistence.LogHead, error)
}

// VerifyIntegrity walks the intent log from genesis. A broken chain is
// reported in the result; only read failures are returned as errors.
func VerifyIntegrity(ctx context.Context, log ChainVerifier, batchSize int) (*IntegrityReport, error) {
	head, err := log.VerifyChain(ctx, batchSize)
	if errors.Is(err, persistence.ErrChainBroken) {
		return &IntegrityReport{IsHealthy: false, Error: err.Error()}, nil
	}
	if err != nil {
		return nil, err
	}

	report := &IntegrityReport{IsHealthy: true, LastSequence: head.Sequence}
	if head.ChainTip != nil {
		report.ChainTip = hexutil.Encode(head.ChainTip[:])
	}
	return report, nil
}
