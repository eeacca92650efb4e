package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"MarginlyLedger/internal/action"
	"MarginlyLedger/internal/calldata"
	"MarginlyLedger/internal/core"
	"MarginlyLedger/internal/execute"
	"MarginlyLedger/internal/persistence"
	"MarginlyLedger/internal/testutil"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// ============================================================================
// Test: Engine -> worker -> Postgres round trip
// ============================================================================

func TestIntegration_IntentLogRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := persistence.NewMigrator(db, testutil.MigrationsDir(t)).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	codec, err := calldata.NewCodec()
	if err != nil {
		t.Fatal(err)
	}
	persistChan := make(chan core.EncodedIntent, 16)
	dbChecker := persistence.NewPostgresIdempotencyChecker(db)
	engine := core.NewIntentEngine(execute.NewEncoder(execute.DefaultConfig()), codec, persistChan, nil,
		core.EngineConfig{LRUCapacity: 16, DBChecker: dbChecker})

	pool := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	ids := make([]uuid.UUID, 3)
	outs := make([]core.EncodedIntent, 3)
	for i := range ids {
		ids[i] = uuid.New()
		if outs[i], err = engine.Process(ctx, core.Intent{
			ID:     ids[i],
			Pool:   pool,
			Action: &action.Long{Amount: uint256.NewInt(uint64(100 * (i + 1))), LimitPriceX96: uint256.NewInt(1 << 40)},
		}); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}
	close(persistChan)

	worker := persistence.NewPersistenceWorker(persistence.NewIntentWriter(db), persistChan, 2, time.Second, nil)
	if err := worker.Run(ctx); err != nil {
		t.Fatalf("worker: %v", err)
	}

	log := persistence.NewIntentLog(db)
	head, err := log.Head(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if head.Sequence != 3 || head.ChainTip == nil || *head.ChainTip != engine.ChainTip() {
		t.Fatalf("head: got seq=%d, want 3 with engine tip", head.Sequence)
	}

	verified, err := log.VerifyChain(ctx, 2)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if *verified.ChainTip != *head.ChainTip {
		t.Error("verified tip differs from stored head")
	}

	recent, err := log.RecentIntentIDs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 || recent[0] != ids[2] {
		t.Errorf("recent ids: got %v", recent)
	}

	dup, err := dbChecker.IsDuplicate(ctx, ids[0])
	if err != nil || !dup {
		t.Errorf("db duplicate: got %v, %v", dup, err)
	}

	// a fresh engine only sees the id through Postgres
	restarted := core.NewIntentEngine(execute.NewEncoder(execute.DefaultConfig()), codec,
		make(chan core.EncodedIntent, 1), nil,
		core.EngineConfig{StartSequence: head.Sequence, ChainTip: head.ChainTip, DBChecker: dbChecker})
	_, err = restarted.Process(ctx, core.Intent{ID: ids[1], Pool: pool, Action: &action.Reinit{}})
	if !errors.Is(err, core.ErrDuplicateIntent) {
		t.Errorf("replay: got %v, want ErrDuplicateIntent", err)
	}

	// replaying a batch is absorbed by the primary key
	row, err := persistence.NewIntentRow(outs[0])
	if err != nil {
		t.Fatal(err)
	}
	if err := persistence.NewIntentWriter(db).WriteBatch(ctx, []persistence.IntentRow{row}); err != nil {
		t.Errorf("replay write: %v", err)
	}

	// the same id under a new chain position is a conflict and nothing in the batch is kept
	fresh := row
	fresh.IntentID = uuid.New()
	fresh.Sequence = 5
	conflicting := row
	conflicting.Sequence = 4
	conflicting.ChainHash = make([]byte, 32)
	err = persistence.NewIntentWriter(db).WriteBatch(ctx, []persistence.IntentRow{fresh, conflicting})
	if !errors.Is(err, persistence.ErrIntentConflict) {
		t.Fatalf("conflicting write: got %v, want ErrIntentConflict", err)
	}
	if head, err := log.Head(ctx); err != nil || head.Sequence != 3 {
		t.Errorf("head after conflict: got %d, %v, want 3", head.Sequence, err)
	}
}

// ============================================================================
// Test: Preview store
// ============================================================================

func TestIntegration_PreviewStore(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := persistence.NewMigrator(db, testutil.MigrationsDir(t)).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := persistence.NewPreviewStore(db)
	if _, err := store.Latest(ctx, "0xpool", "0xuser"); !errors.Is(err, persistence.ErrPreviewNotFound) {
		t.Fatalf("empty: got %v, want ErrPreviewNotFound", err)
	}

	lev := "4"
	for _, block := range []uint64{10, 12, 11} {
		if err := store.Save(ctx, persistence.PreviewRow{
			Pool: "0xpool", User: "0xuser", Block: block, PositionType: 2,
			BaseAmount: "1000", QuoteAmount: "0", BasePriceX96: "79228162514264337593543950336",
			Leverage: &lev, Payload: []byte(`{"block":1}`),
		}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.Latest(ctx, "0xpool", "0xuser")
	if err != nil {
		t.Fatal(err)
	}
	if got.Block != 12 || got.PositionType != 2 || got.BasePriceX96 != "79228162514264337593543950336" {
		t.Errorf("latest: got %+v", got)
	}
	if got.Leverage == nil || *got.Leverage != "4" || got.LiquidationPriceX96 != nil {
		t.Errorf("nullable columns: got lev=%v liq=%v", got.Leverage, got.LiquidationPriceX96)
	}
}
