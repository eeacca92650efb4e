package query_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"MarginlyLedger/internal/calldata"
	"MarginlyLedger/internal/chain"
	fp "MarginlyLedger/internal/math"
	"MarginlyLedger/internal/observability"
	"MarginlyLedger/internal/persistence"
	"MarginlyLedger/internal/query"
	"MarginlyLedger/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var (
	testPool = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	testUser = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

func x96(num, den uint64) *uint256.Int {
	v := new(uint256.Int).Mul(fp.Q96, uint256.NewInt(num))
	return v.Div(v, uint256.NewInt(den))
}

func snapshot(posType state.PositionType, discountedBase, discountedQuote uint64, maxLev uint8) *chain.PoolSnapshot {
	return &chain.PoolSnapshot{
		Pool:          testPool,
		User:          testUser,
		Block:         100,
		Coeffs:        state.UnitCoeffs(),
		BasePriceX96:  x96(2, 1),
		MaxLeverage:   maxLev,
		BaseDecimals:  18,
		QuoteDecimals: 18,
		RawPosition: calldata.RawPosition{
			Type:                  uint8(posType),
			HeapPosition:          7,
			DiscountedBaseAmount:  uint256.NewInt(discountedBase),
			DiscountedQuoteAmount: uint256.NewInt(discountedQuote),
		},
	}
}

type fakeSource struct {
	snap *chain.PoolSnapshot
	err  error
}

func (f *fakeSource) Snapshot(_ context.Context, _ common.Address) (*chain.PoolSnapshot, error) {
	return f.snap, f.err
}

type fakeStore struct {
	saved   []persistence.PreviewRow
	saveErr error
}

func (f *fakeStore) Save(_ context.Context, row persistence.PreviewRow) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, row)
	return nil
}

func (f *fakeStore) Latest(_ context.Context, pool, user string) (persistence.PreviewRow, error) {
	for i := len(f.saved) - 1; i >= 0; i-- {
		if f.saved[i].Pool == pool && f.saved[i].User == user {
			return f.saved[i], nil
		}
	}
	return persistence.PreviewRow{}, persistence.ErrPreviewNotFound
}

// ============================================================================
// Test: BuildPreview
// ============================================================================

func TestBuildPreview_Long(t *testing.T) {
	p, err := query.BuildPreview(snapshot(state.PositionTypeLong, 1000, 1000, 20))
	if err != nil {
		t.Fatal(err)
	}

	if p.PositionType != "Long" || p.HeapPosition != 7 || p.Block != 100 {
		t.Errorf("header: got %s/%d/%d", p.PositionType, p.HeapPosition, p.Block)
	}
	if p.BaseAmount != "1000" || p.QuoteAmount != "1000" {
		t.Errorf("amounts: got %s/%s, want 1000/1000", p.BaseAmount, p.QuoteAmount)
	}
	if p.BaseAmountHuman != "0.000000000000001" {
		t.Errorf("human base: got %s", p.BaseAmountHuman)
	}
	if p.BasePrice != "2" {
		t.Errorf("base price: got %s, want 2", p.BasePrice)
	}
	if p.Leverage == nil || *p.Leverage != "2" {
		t.Errorf("leverage: got %v, want 2", p.Leverage)
	}
	if p.LiquidationPriceX96 == nil || p.LiquidationPrice == nil {
		t.Fatal("long position must have a liquidation price")
	}
	want, _ := state.CalcLongLiquidationPriceX96(uint256.NewInt(1000), uint256.NewInt(1000), 20)
	if *p.LiquidationPriceX96 != want.Dec() {
		t.Errorf("liquidation x96: got %s, want %s", *p.LiquidationPriceX96, want.Dec())
	}
	// 1000 - (1000*20/2)/19
	if p.BaseWithdrawAvailable != "474" || p.QuoteWithdrawAvailable != "0" {
		t.Errorf("withdraw available: got %s/%s, want 474/0", p.BaseWithdrawAvailable, p.QuoteWithdrawAvailable)
	}
	if p.Emergency {
		t.Error("regular mode reported as emergency")
	}
}

func TestBuildPreview_OverLeveragedClampsWithdraw(t *testing.T) {
	p, err := query.BuildPreview(snapshot(state.PositionTypeLong, 1000, 1500, 2))
	if err != nil {
		t.Fatal(err)
	}
	if *p.Leverage != "4" {
		t.Errorf("leverage: got %s, want 4", *p.Leverage)
	}
	if p.BaseWithdrawAvailable != "0" {
		t.Errorf("base withdraw: got %s, want 0", p.BaseWithdrawAvailable)
	}
	if *p.LiquidationPriceX96 != x96(3, 1).Dec() {
		t.Errorf("liquidation x96: got %s", *p.LiquidationPriceX96)
	}
	if *p.LiquidationPrice != "3" {
		t.Errorf("liquidation price: got %s, want 3", *p.LiquidationPrice)
	}
}

func TestBuildPreview_LendAndUninitialized(t *testing.T) {
	lend, err := query.BuildPreview(snapshot(state.PositionTypeLend, 50, 60, 20))
	if err != nil {
		t.Fatal(err)
	}
	if *lend.Leverage != "1" || lend.LiquidationPriceX96 != nil {
		t.Errorf("lend: got leverage %s liquidation %v", *lend.Leverage, lend.LiquidationPriceX96)
	}
	if lend.BaseWithdrawAvailable != "50" || lend.QuoteWithdrawAvailable != "60" {
		t.Errorf("lend withdraw: got %s/%s", lend.BaseWithdrawAvailable, lend.QuoteWithdrawAvailable)
	}

	empty, err := query.BuildPreview(snapshot(state.PositionTypeUninitialized, 0, 0, 20))
	if err != nil {
		t.Fatal(err)
	}
	if empty.Leverage != nil || empty.LiquidationPrice != nil || empty.PositionType != "Uninitialized" {
		t.Errorf("uninitialized: got %+v", empty)
	}
}

func TestBuildPreview_Emergency(t *testing.T) {
	snap := snapshot(state.PositionTypeLend, 1, 1, 20)
	snap.Mode = chain.ModeShortEmergency
	p, err := query.BuildPreview(snap)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Emergency || p.Mode != chain.ModeShortEmergency {
		t.Errorf("emergency: got %v mode %d", p.Emergency, p.Mode)
	}
}

func TestBuildPreview_BeyondSafeLeverage(t *testing.T) {
	tests := []struct {
		name     string
		db, dq   uint64
		quoteLim string
	}{
		// collateral*price equals debt: leverage divides by zero
		{"zero net value", 500, 1000, "0"},
		// collateral*price below debt: net value is negative
		{"negative net value", 400, 1000, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := query.BuildPreview(snapshot(state.PositionTypeLong, tt.db, tt.dq, 20))
			if err != nil {
				t.Fatalf("preview: %v", err)
			}
			if !p.BeyondSafeLeverage {
				t.Error("expected beyond safe leverage")
			}
			if p.Leverage != nil {
				t.Errorf("leverage: got %s, want unset", *p.Leverage)
			}
			if p.BaseWithdrawAvailable != "0" || p.QuoteWithdrawAvailable != tt.quoteLim {
				t.Errorf("withdraw available: got %s/%s, want 0/%s", p.BaseWithdrawAvailable, p.QuoteWithdrawAvailable, tt.quoteLim)
			}
			if p.BaseAmount != fmt.Sprint(tt.db) || p.LiquidationPriceX96 == nil {
				t.Errorf("balances: got base %s liquidation %v", p.BaseAmount, p.LiquidationPriceX96)
			}
		})
	}
}

func TestBuildPreview_OverflowIsError(t *testing.T) {
	snap := snapshot(state.PositionTypeLong, 0, 1, 20)
	snap.RawPosition.DiscountedBaseAmount = new(uint256.Int).Set(fp.MaxUint256)

	_, err := query.BuildPreview(snap)
	if !errors.Is(err, fp.ErrOutOfRange) {
		t.Fatalf("got %v, want ErrOutOfRange", err)
	}
	if errors.Is(err, fp.ErrNegative) {
		t.Error("overflow must not be reported as a negative result")
	}
}

func TestHumanPrice(t *testing.T) {
	tests := []struct {
		x96       *uint256.Int
		base, quo uint8
		want      string
	}{
		{x96(3, 2), 18, 18, "1.5"},
		{fp.Q96, 18, 6, "1000000000000"},
		{x96(1, 4), 6, 6, "0.25"},
	}
	for _, tt := range tests {
		if got := query.HumanPrice(tt.x96, tt.base, tt.quo); got != tt.want {
			t.Errorf("HumanPrice(%s, %d, %d): got %s, want %s", tt.x96.Dec(), tt.base, tt.quo, got, tt.want)
		}
	}
}

// ============================================================================
// Test: PreviewService
// ============================================================================

func TestPreviewService_StoresAndCounts(t *testing.T) {
	store := &fakeStore{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	svc := query.NewPreviewService(&fakeSource{snap: snapshot(state.PositionTypeShort, 100, 1000, 20)}, store, metrics)

	p, err := svc.Preview(context.Background(), testUser)
	if err != nil {
		t.Fatal(err)
	}
	if len(store.saved) != 1 {
		t.Fatalf("saved: got %d, want 1", len(store.saved))
	}
	row := store.saved[0]
	if row.PositionType != uint8(state.PositionTypeShort) || row.Block != 100 || row.BaseAmount != p.BaseAmount {
		t.Errorf("row: got %+v", row)
	}
	if got := testutil.ToFloat64(metrics.PreviewsServed.WithLabelValues("Short")); got != 1 {
		t.Errorf("previews served: got %v, want 1", got)
	}

	last, err := svc.LastPreview(context.Background(), testPool, testUser)
	if err != nil {
		t.Fatal(err)
	}
	if last.PositionType != "Short" || last.QuoteAmount != p.QuoteAmount {
		t.Errorf("last preview: got %+v", last)
	}
}

func TestPreviewService_StoreFailureStillServes(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("db down")}
	svc := query.NewPreviewService(&fakeSource{snap: snapshot(state.PositionTypeLend, 1, 1, 20)}, store, nil)

	if _, err := svc.Preview(context.Background(), testUser); err != nil {
		t.Fatalf("got %v, want nil", err)
	}
}

func TestPreviewService_SnapshotError(t *testing.T) {
	rpcErr := errors.New("rpc unavailable")
	svc := query.NewPreviewService(&fakeSource{err: rpcErr}, nil, nil)

	if _, err := svc.Preview(context.Background(), testUser); !errors.Is(err, rpcErr) {
		t.Fatalf("got %v, want wrapped rpc error", err)
	}
	if _, err := svc.LastPreview(context.Background(), testPool, testUser); !errors.Is(err, persistence.ErrPreviewNotFound) {
		t.Errorf("no store: got %v, want ErrPreviewNotFound", err)
	}
}

// ============================================================================
// Test: VerifyIntegrity
// ============================================================================

type fakeVerifier struct {
	head persistence.LogHead
	err  error
}

func (f *fakeVerifier) VerifyChain(context.Context, int) (persistence.LogHead, error) {
	return f.head, f.err
}

func TestVerifyIntegrity(t *testing.T) {
	tip := [32]byte{0xab}
	report, err := query.VerifyIntegrity(context.Background(), &fakeVerifier{
		head: persistence.LogHead{Sequence: 12, ChainTip: &tip},
	}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !report.IsHealthy || report.LastSequence != 12 || report.ChainTip[:4] != "0xab" {
		t.Errorf("healthy report: got %+v", report)
	}

	report, err = query.VerifyIntegrity(context.Background(), &fakeVerifier{
		err: fmt.Errorf("%w: chain hash mismatch at 3", persistence.ErrChainBroken),
	}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if report.IsHealthy || report.Error == "" {
		t.Errorf("broken report: got %+v", report)
	}

	if _, err := query.VerifyIntegrity(context.Background(), &fakeVerifier{err: errors.New("conn refused")}, 100); err == nil {
		t.Error("expected read error")
	}
}
