package trading

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"swing-trader/internal/broker"
	"swing-trader/internal/models"
	"swing-trader/internal/risk"
	"swing-trader/internal/store"
)

func newSettleFixture(t *testing.T) (*Orchestrator, *broker.PaperBroker, *store.SQLiteStore) {
	t.Helper()
	cfg := backtestConfig(10)
	pb := broker.NewPaperBroker()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	gov := risk.NewGovernor(cfg, zerolog.Nop())
	orch := NewOrchestrator(cfg, zerolog.Nop(), nil, nil, pb, st, gov, nil, nil)
	return orch, pb, st
}

func TestSettle_RejectedCloseKeepsPosition(t *testing.T) {
	orch, pb, st := newSettleFixture(t)
	ctx := context.Background()
	when := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)

	pos := longPosition()
	orch.book.Open(pos)
	pb.SetReject("ACME", "exchange rejected")

	orch.settle(ctx, pos, &ExitDecision{Reason: models.ExitStopLoss, Price: 95}, when)

	if pos.State == models.StateClosed {
		t.Error("a rejected close order must not finalize the position")
	}
	if orch.book.Get("ACME") == nil {
		t.Fatal("position must stay in the book after a failed close")
	}
	trades, err := st.ListClosedTrades(ctx, when.AddDate(0, 0, -1), when.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("listing trades: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("no trade should be recorded, got %d", len(trades))
	}

	// With a price the retry settles normally.
	pb.SetPrice("ACME", 95)
	orch.settle(ctx, pos, &ExitDecision{Reason: models.ExitStopLoss, Price: 95}, when)
	if orch.book.Get("ACME") != nil {
		t.Error("position should close once the order fills")
	}
}

func TestSettle_PartialCloseKeepsRemainder(t *testing.T) {
	orch, pb, st := newSettleFixture(t)
	ctx := context.Background()
	when := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)

	pos := longPosition()
	orch.book.Open(pos)
	pb.SetPrice("ACME", 95)
	pb.SetPartialFill("ACME", 40)

	orch.settle(ctx, pos, &ExitDecision{Reason: models.ExitStopLoss, Price: 95}, when)

	kept := orch.book.Get("ACME")
	if kept == nil {
		t.Fatal("remainder must stay in the book")
	}
	if kept.State != models.StateActive || kept.Quantity != 60 {
		t.Errorf("expected 60 shares still active, got %s/%d", kept.State, kept.Quantity)
	}
	trades, err := st.ListClosedTrades(ctx, when.AddDate(0, 0, -1), when.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("listing trades: %v", err)
	}
	if len(trades) != 1 || trades[0].Quantity != 40 || trades[0].PnL != -200 {
		t.Fatalf("expected one 40-share trade at -200, got %+v", trades)
	}

	// The remainder closes in full on the next attempt.
	orch.settle(ctx, kept, &ExitDecision{Reason: models.ExitStopLoss, Price: 95}, when)
	if orch.book.Get("ACME") != nil {
		t.Error("remainder should close once fully filled")
	}
	trades, _ = st.ListClosedTrades(ctx, when.AddDate(0, 0, -1), when.AddDate(0, 0, 1))
	if len(trades) != 2 {
		t.Errorf("expected both partial and final trades recorded, got %d", len(trades))
	}
}
