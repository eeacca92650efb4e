package ingestion_test

import (
	"errors"
	"testing"
	"time"

	"MarginlyLedger/internal/action"
	"MarginlyLedger/internal/ingestion"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sugawarayuuta/sonnet"
)

const (
	testIntentID = "550e8400-e29b-41d4-a716-446655440000"
	testPool     = "0x00000000000000000000000000000000000000b0"
	testSender   = "0x00000000000000000000000000000000000000a1"
)

func intentJSON(t *testing.T, kind string, params map[string]any) []byte {
	t.Helper()
	data, err := sonnet.Marshal(map[string]any{
		"intent_id": testIntentID,
		"pool":      testPool,
		"sender":    testSender,
		"action":    kind,
		"params":    params,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

// ============================================================================
// Test: ParseIntent
// ============================================================================

func TestParseIntent_Envelope(t *testing.T) {
	at := time.UnixMicro(1700000000000000)
	in, err := ingestion.ParseIntent(intentJSON(t, action.KindDepositBase, map[string]any{
		"amount": "1000000000000000000",
	}), at, ingestion.SourceNATS)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if in.ID.String() != testIntentID {
		t.Errorf("id: got %s, want %s", in.ID, testIntentID)
	}
	if in.Pool != common.HexToAddress(testPool) {
		t.Errorf("pool: got %s", in.Pool.Hex())
	}
	if in.Sender != common.HexToAddress(testSender) {
		t.Errorf("sender: got %s", in.Sender.Hex())
	}
	if !in.ReceivedAt.Equal(at) {
		t.Errorf("received at: got %v, want %v", in.ReceivedAt, at)
	}
	if in.Source != ingestion.SourceNATS {
		t.Errorf("source: got %q", in.Source)
	}

	d, ok := in.Action.(*action.DepositBase)
	if !ok {
		t.Fatalf("expected *action.DepositBase, got %T", in.Action)
	}
	if d.Amount.Dec() != "1000000000000000000" {
		t.Errorf("amount: got %s", d.Amount.Dec())
	}
}

func TestParseIntent_EveryKind(t *testing.T) {
	tests := []struct {
		kind   string
		params map[string]any
		check  func(t *testing.T, a action.Action)
	}{
		{action.KindDepositQuote, map[string]any{"amount": "5", "native_eth": true}, func(t *testing.T, a action.Action) {
			d := a.(*action.DepositQuote)
			if d.Amount.Uint64() != 5 || !d.NativeETH {
				t.Errorf("got %+v", d)
			}
		}},
		{action.KindDepositBaseAndLong, map[string]any{"amount": "10", "trade_amount": "20", "limit_price_x96": "0x1000000000000000000000000"}, func(t *testing.T, a action.Action) {
			d := a.(*action.DepositBaseAndLong)
			if d.DepositAmount.Uint64() != 10 || d.LongAmount.Uint64() != 20 {
				t.Errorf("amounts: got %s/%s", d.DepositAmount.Dec(), d.LongAmount.Dec())
			}
			if d.LimitPriceX96.Hex() != "0x1000000000000000000000000" {
				t.Errorf("limit: got %s", d.LimitPriceX96.Hex())
			}
			if !d.Route.IsDefault() {
				t.Error("expected default route")
			}
		}},
		{action.KindDepositQuoteAndShort, map[string]any{"amount": "10", "trade_amount": "3", "swap_calldata": "0x0000ff"}, func(t *testing.T, a action.Action) {
			d := a.(*action.DepositQuoteAndShort)
			swap, ok := d.Route.Calldata()
			if !ok || swap.Uint64() != 255 {
				t.Errorf("route: got %v ok=%v", swap, ok)
			}
		}},
		{action.KindWithdrawBase, map[string]any{"amount": "all"}, func(t *testing.T, a action.Action) {
			w := a.(*action.WithdrawBase)
			if !w.All || w.Amount != nil {
				t.Errorf("got all=%v amount=%v", w.All, w.Amount)
			}
		}},
		{action.KindWithdrawQuote, map[string]any{"amount": "42", "native_eth": true}, func(t *testing.T, a action.Action) {
			w := a.(*action.WithdrawQuote)
			if w.All || w.Amount.Uint64() != 42 || !w.NativeETH {
				t.Errorf("got %+v", w)
			}
		}},
		{action.KindLong, map[string]any{"amount": "7"}, func(t *testing.T, a action.Action) {
			if a.(*action.Long).Amount.Uint64() != 7 {
				t.Error("amount mismatch")
			}
		}},
		{action.KindShort, map[string]any{"amount": "8"}, func(t *testing.T, a action.Action) {
			if a.(*action.Short).Amount.Uint64() != 8 {
				t.Error("amount mismatch")
			}
		}},
		{action.KindClosePosition, map[string]any{"limit_price_x96": "99"}, func(t *testing.T, a action.Action) {
			if a.(*action.ClosePosition).LimitPriceX96.Uint64() != 99 {
				t.Error("limit mismatch")
			}
		}},
		{action.KindReinit, map[string]any{"sync_balances": true}, func(t *testing.T, a action.Action) {
			if !a.(*action.Reinit).SyncBalances {
				t.Error("sync balances not set")
			}
		}},
		{action.KindReceivePosition, map[string]any{"position": "0x00000000000000000000000000000000000000cc", "deposit_base": "1", "deposit_quote": "2"}, func(t *testing.T, a action.Action) {
			r := a.(*action.ReceivePosition)
			if r.Position != common.HexToAddress("0xcc") || r.DepositBase.Uint64() != 1 || r.DepositQuote.Uint64() != 2 {
				t.Errorf("got %+v", r)
			}
		}},
		{action.KindEmergencyWithdraw, map[string]any{}, func(t *testing.T, a action.Action) {
			if a.(*action.EmergencyWithdraw).NativeETH {
				t.Error("native should default to false")
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			in, err := ingestion.ParseIntent(intentJSON(t, tt.kind, tt.params), time.Now(), ingestion.SourceGRPC)
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if in.Action.Kind() != tt.kind {
				t.Fatalf("kind: got %s, want %s", in.Action.Kind(), tt.kind)
			}
			tt.check(t, in.Action)
		})
	}
}

func TestParseIntent_MissingAmountStaysNil(t *testing.T) {
	in, err := ingestion.ParseIntent(intentJSON(t, action.KindLong, map[string]any{}), time.Now(), "")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if in.Action.(*action.Long).Amount != nil {
		t.Error("expected nil amount")
	}
}

func TestParseIntent_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("{")},
		{"bad id", []byte(`{"intent_id":"x","pool":"` + testPool + `","action":"reinit"}`)},
		{"bad pool", []byte(`{"intent_id":"` + testIntentID + `","pool":"0x12","action":"reinit"}`)},
		{"missing pool", []byte(`{"intent_id":"` + testIntentID + `","action":"reinit"}`)},
		{"bad sender", []byte(`{"intent_id":"` + testIntentID + `","pool":"` + testPool + `","sender":"nope","action":"reinit"}`)},
		{"negative amount", []byte(`{"intent_id":"` + testIntentID + `","pool":"` + testPool + `","action":"long","params":{"amount":"-1"}}`)},
		{"fractional amount", []byte(`{"intent_id":"` + testIntentID + `","pool":"` + testPool + `","action":"long","params":{"amount":"1.5"}}`)},
		{"hex overflow", []byte(`{"intent_id":"` + testIntentID + `","pool":"` + testPool + `","action":"long","params":{"amount":"0x1` + "0000000000000000000000000000000000000000000000000000000000000000" + `"}}`)},
		{"bad withdraw amount", []byte(`{"intent_id":"` + testIntentID + `","pool":"` + testPool + `","action":"withdraw_base","params":{"amount":"some"}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ingestion.ParseIntent(tt.data, time.Now(), ""); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDecodeAction_UnknownKind(t *testing.T) {
	_, err := ingestion.DecodeAction("margin_call", ingestion.ActionParams{})
	if !errors.Is(err, ingestion.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestDecodeAction_CoversEveryKind(t *testing.T) {
	for _, kind := range action.Kinds {
		a, err := ingestion.DecodeAction(kind, ingestion.ActionParams{Position: testSender})
		if err != nil {
			t.Errorf("%s: %v", kind, err)
			continue
		}
		if a.Kind() != kind {
			t.Errorf("%s: decoded as %s", kind, a.Kind())
		}
	}
}

func TestParseIntent_ErrorsAreMalformed(t *testing.T) {
	for _, data := range [][]byte{
		[]byte("{"),
		[]byte(`{"pool":"` + testPool + `","action":"reinit"}`),
		intentJSON(t, "teleport", nil),
	} {
		if _, err := ingestion.ParseIntent(data, time.Now(), ingestion.SourceNATS); !errors.Is(err, ingestion.ErrMalformedIntent) {
			t.Errorf("%s: got %v, want ErrMalformedIntent", data, err)
		}
	}
}
