package state_test

import (
	"errors"
	"testing"

	fp "MarginlyLedger/internal/math"
	"MarginlyLedger/internal/state"

	"github.com/holiman/uint256"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

// Non-trivial coefficients: bcc=1, qcc=2, bdelev=1/4, qdelev=1/2, bdc=4, qdc=8.
func testCoeffs() state.Coeffs {
	return state.Coeffs{
		BaseCollateralCoeff:  fp.FromInt(1),
		QuoteCollateralCoeff: fp.FromInt(2),
		BaseDelevCoeff:       new(uint256.Int).Rsh(fp.Q96, 2),
		QuoteDelevCoeff:      new(uint256.Int).Rsh(fp.Q96, 1),
		BaseDebtCoeff:        fp.FromInt(4),
		QuoteDebtCoeff:       fp.FromInt(8),
	}
}

func mustPosition(t *testing.T, c state.Coeffs, pt state.PositionType, db, dq uint64) *state.Position {
	t.Helper()
	p, err := state.NewPosition(c, pt, 0, u(db), u(dq))
	if err != nil {
		t.Fatalf("new position: %v", err)
	}
	return p
}

// ============================================================================
// Test: Position construction
// ============================================================================

func TestNewPosition_RealAmounts(t *testing.T) {
	tests := []struct {
		name      string
		pt        state.PositionType
		wantBase  uint64
		wantQuote uint64
	}{
		// 12*1, 16*2
		{"lend", state.PositionTypeLend, 12, 32},
		// 12*1 - 16/4, 16*8
		{"short", state.PositionTypeShort, 8, 128},
		// 12*4, 16*2 - 12/2
		{"long", state.PositionTypeLong, 48, 26},
		{"uninitialized", state.PositionTypeUninitialized, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustPosition(t, testCoeffs(), tt.pt, 12, 16)
			if p.Type() != tt.pt {
				t.Errorf("type: got %v, want %v", p.Type(), tt.pt)
			}
			if p.BaseAmount().Uint64() != tt.wantBase {
				t.Errorf("base: got %s, want %d", p.BaseAmount().Dec(), tt.wantBase)
			}
			if p.QuoteAmount().Uint64() != tt.wantQuote {
				t.Errorf("quote: got %s, want %d", p.QuoteAmount().Dec(), tt.wantQuote)
			}
		})
	}
}

func TestNewPosition_DelevUnderflow(t *testing.T) {
	// 1*1 - 16/4 < 0
	_, err := state.NewPosition(testCoeffs(), state.PositionTypeShort, 0, u(1), u(16))
	if !errors.Is(err, fp.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestNewPosition_UnknownType(t *testing.T) {
	_, err := state.NewPosition(testCoeffs(), state.PositionType(4), 0, u(1), u(1))
	if !errors.Is(err, state.ErrUnknownPositionType) {
		t.Fatalf("expected ErrUnknownPositionType, got %v", err)
	}
}

func TestNewPosition_IncompleteCoeffs(t *testing.T) {
	c := testCoeffs()
	c.QuoteDelevCoeff = nil
	for _, pt := range []state.PositionType{state.PositionTypeLend, state.PositionTypeShort, state.PositionTypeLong} {
		if _, err := state.NewPosition(c, pt, 0, u(1), u(1)); !errors.Is(err, state.ErrIncompleteCoeffs) {
			t.Errorf("%s: expected ErrIncompleteCoeffs, got %v", pt, err)
		}
	}

	// Uninitialized positions never read the coefficients.
	if _, err := state.NewPosition(c, state.PositionTypeUninitialized, 0, u(0), u(0)); err != nil {
		t.Errorf("uninitialized: %v", err)
	}
}

func TestNewPosition_Immutable(t *testing.T) {
	db := u(6)
	p, err := state.NewPosition(state.UnitCoeffs(), state.PositionTypeLong, 7, db, u(3000))
	if err != nil {
		t.Fatal(err)
	}
	db.SetUint64(999)
	p.BaseAmount().SetUint64(0)

	if p.BaseAmount().Uint64() != 6 {
		t.Errorf("base mutated: got %s", p.BaseAmount().Dec())
	}
	if p.DiscountedBaseAmount().Uint64() != 6 {
		t.Errorf("discounted base mutated: got %s", p.DiscountedBaseAmount().Dec())
	}
	if p.HeapPosition() != 7 {
		t.Errorf("heap position: got %d, want 7", p.HeapPosition())
	}
}

func TestPositionType_String(t *testing.T) {
	for _, pt := range []state.PositionType{
		state.PositionTypeUninitialized, state.PositionTypeLend,
		state.PositionTypeShort, state.PositionTypeLong,
	} {
		back, ok := state.ParsePositionType(pt.String())
		if !ok || back != pt {
			t.Errorf("%v: parse got %v ok=%v", pt, back, ok)
		}
	}
	if state.PositionType(9).String() != "Unknown" {
		t.Errorf("got %q, want Unknown", state.PositionType(9).String())
	}
}

// ============================================================================
// Test: Leverage
// ============================================================================

func TestCalcLeverage(t *testing.T) {
	price := fp.FromInt(1000)

	long, err := state.CalcLongLeverage(u(6), u(3000), price)
	if err != nil {
		t.Fatal(err)
	}
	if long.Uint64() != 2 {
		t.Errorf("long: got %s, want 2", long.Dec())
	}

	short, err := state.CalcShortLeverage(u(6000), u(3), price)
	if err != nil {
		t.Fatal(err)
	}
	if short.Uint64() != 2 {
		t.Errorf("short: got %s, want 2", short.Dec())
	}
}

func TestPosition_Leverage(t *testing.T) {
	price := fp.FromInt(1000)

	tests := []struct {
		name   string
		pt     state.PositionType
		db, dq uint64
		want   uint64
		ok     bool
	}{
		{"uninitialized", state.PositionTypeUninitialized, 3, 6000, 0, false},
		{"lend", state.PositionTypeLend, 1, 1000, 1, true},
		{"long", state.PositionTypeLong, 6, 3000, 2, true},
		{"short", state.PositionTypeShort, 3, 6000, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustPosition(t, state.UnitCoeffs(), tt.pt, tt.db, tt.dq)
			got, ok, err := p.Leverage(price)
			if err != nil {
				t.Fatalf("leverage: %v", err)
			}
			if ok != tt.ok {
				t.Fatalf("ok: got %v, want %v", ok, tt.ok)
			}
			if ok && got.Uint64() != tt.want {
				t.Errorf("got %s, want %d", got.Dec(), tt.want)
			}
		})
	}
}

func TestPosition_Leverage_BeyondSafe(t *testing.T) {
	// collateral worth 3000 against 3000 debt
	p := mustPosition(t, state.UnitCoeffs(), state.PositionTypeLong, 3, 3000)
	_, ok, err := p.Leverage(fp.FromInt(1000))
	if ok {
		t.Fatal("expected no leverage value")
	}
	if !errors.Is(err, fp.ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}

	// debt exceeds collateral
	p = mustPosition(t, state.UnitCoeffs(), state.PositionTypeLong, 2, 3000)
	if _, _, err := p.Leverage(fp.FromInt(1000)); !errors.Is(err, fp.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

// ============================================================================
// Test: Liquidation price
// ============================================================================

func TestCalcLiquidationPriceX96(t *testing.T) {
	want := fp.FromInt(1000)

	long, err := state.CalcLongLiquidationPriceX96(u(6), u(3000), 2)
	if err != nil {
		t.Fatal(err)
	}
	if !long.Eq(want) {
		t.Errorf("long: got %s, want %s", long.Dec(), want.Dec())
	}

	short, err := state.CalcShortLiquidationPriceX96(u(6000), u(3), 2)
	if err != nil {
		t.Fatal(err)
	}
	if !short.Eq(want) {
		t.Errorf("short: got %s, want %s", short.Dec(), want.Dec())
	}
}

func TestCalcLiquidationPriceX96_DegenerateLeverage(t *testing.T) {
	if _, err := state.CalcLongLiquidationPriceX96(u(6), u(3000), 1); !errors.Is(err, fp.ErrDivisionByZero) {
		t.Errorf("maxLeverage 1: expected ErrDivisionByZero, got %v", err)
	}
	if _, err := state.CalcShortLiquidationPriceX96(u(6000), u(3), 0); !errors.Is(err, fp.ErrOutOfRange) {
		t.Errorf("maxLeverage 0: expected ErrOutOfRange, got %v", err)
	}
}

func TestPosition_LiquidationPrice(t *testing.T) {
	tests := []struct {
		name   string
		pt     state.PositionType
		db, dq uint64
		ok     bool
	}{
		{"uninitialized", state.PositionTypeUninitialized, 3, 6000, false},
		{"lend", state.PositionTypeLend, 1, 1000, false},
		{"long", state.PositionTypeLong, 6, 3000, true},
		{"short", state.PositionTypeShort, 3, 6000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustPosition(t, state.UnitCoeffs(), tt.pt, tt.db, tt.dq)
			got, ok, err := p.LiquidationPriceX96(2)
			if err != nil {
				t.Fatalf("liquidation price: %v", err)
			}
			if ok != tt.ok {
				t.Fatalf("ok: got %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			human, err := fp.PriceFromX96(got, 0, 0)
			if err != nil {
				t.Fatal(err)
			}
			if human.Uint64() != 1000 {
				t.Errorf("got %s, want 1000", human.Dec())
			}
		})
	}
}

// ============================================================================
// Test: Withdraw available
// ============================================================================

func TestPosition_WithdrawAvailable(t *testing.T) {
	price := fp.FromInt(1000)

	tests := []struct {
		name      string
		pt        state.PositionType
		db, dq    uint64
		wantBase  uint64
		wantQuote uint64
	}{
		{"uninitialized", state.PositionTypeUninitialized, 3, 6000, 0, 0},
		{"lend withdraws everything", state.PositionTypeLend, 1, 1000, 1, 1000},
		// 7 - 3000*2/1000/1
		{"long", state.PositionTypeLong, 7, 3000, 1, 0},
		// 7000 - 3*2*1000/1
		{"short", state.PositionTypeShort, 3, 7000, 0, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustPosition(t, state.UnitCoeffs(), tt.pt, tt.db, tt.dq)

			base, err := p.BaseWithdrawAvailable(price, 2)
			if err != nil {
				t.Fatalf("base: %v", err)
			}
			if base.Uint64() != tt.wantBase {
				t.Errorf("base: got %s, want %d", base.Dec(), tt.wantBase)
			}

			quote, err := p.QuoteWithdrawAvailable(price, 2)
			if err != nil {
				t.Fatalf("quote: %v", err)
			}
			if quote.Uint64() != tt.wantQuote {
				t.Errorf("quote: got %s, want %d", quote.Dec(), tt.wantQuote)
			}
		})
	}
}

func TestPosition_LendWithdrawEqualsBalance(t *testing.T) {
	p := mustPosition(t, state.UnitCoeffs(), state.PositionTypeLend, 1, 1000)

	base, _ := p.BaseWithdrawAvailable(fp.FromInt(1000), 2)
	quote, _ := p.QuoteWithdrawAvailable(fp.FromInt(1000), 2)
	if !base.Eq(p.BaseAmount()) || !quote.Eq(p.QuoteAmount()) {
		t.Errorf("got base=%s quote=%s, want %s/%s",
			base.Dec(), quote.Dec(), p.BaseAmount().Dec(), p.QuoteAmount().Dec())
	}
}

func TestPosition_WithdrawAvailable_Underwater(t *testing.T) {
	// 5 base cannot back 3000 debt at 1000 with maxLeverage 2
	p := mustPosition(t, state.UnitCoeffs(), state.PositionTypeLong, 5, 3000)
	if _, err := p.BaseWithdrawAvailable(fp.FromInt(1000), 2); !errors.Is(err, fp.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}
