package risk

import (
	"testing"

	"swing-trader/internal/config"
	"swing-trader/internal/errors"
	"swing-trader/internal/models"
)

func longSignal() *models.Signal {
	return &models.Signal{
		Strategy:   "momentum",
		Symbol:     "AAPL",
		Direction:  models.DirectionLong,
		EntryPrice: 100,
		StopPrice:  95,
		ATR:        2.0,
	}
}

func TestComputeLevels_UsesDeclaredStop(t *testing.T) {
	levels, err := ComputeLevels(longSignal(), config.StrategyConfig{
		TakeProfitATRMultiple: 3,
		TrailingActivationATR: 2,
		TrailingATRMultiple:   1.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if levels.Stop != 95 {
		t.Errorf("stop must be the signal's declared price, got %v", levels.Stop)
	}
	if levels.TakeProfit != 106 { // 100 + 3*2.0
		t.Errorf("expected take profit 106, got %v", levels.TakeProfit)
	}
	if levels.Trailing == nil {
		t.Fatal("expected trailing params")
	}
	if levels.Trailing.ActivationPrice != 104 || levels.Trailing.Distance != 3 {
		t.Errorf("unexpected trailing params: %+v", levels.Trailing)
	}
}

func TestComputeLevels_ShortDirection(t *testing.T) {
	sig := &models.Signal{
		Strategy:   "meanrev",
		Symbol:     "TSLA",
		Direction:  models.DirectionShort,
		EntryPrice: 200,
		StopPrice:  210,
		ATR:        4.0,
	}
	levels, err := ComputeLevels(sig, config.StrategyConfig{TakeProfitATRMultiple: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if levels.TakeProfit != 192 { // 200 - 2*4.0
		t.Errorf("expected take profit 192, got %v", levels.TakeProfit)
	}
}

func TestComputeLevels_MissingStopNeverDefaulted(t *testing.T) {
	sig := longSignal()
	sig.StopPrice = 0

	// Even with ATR multipliers configured, the calculator must fail rather
	// than fall back to a generic distance.
	_, err := ComputeLevels(sig, config.StrategyConfig{
		TakeProfitATRMultiple: 3,
		TrailingATRMultiple:   1.5,
		TrailingActivationATR: 2,
	})
	if err == nil {
		t.Fatal("expected error for missing stop, got nil")
	}
	if !errors.IsInvalidSignal(err) {
		t.Errorf("expected InvalidSignal, got %v", err)
	}
}

func TestComputeLevels_StopOnFavorableSide(t *testing.T) {
	sig := longSignal()
	sig.StopPrice = 105 // above entry for a long

	_, err := ComputeLevels(sig, config.StrategyConfig{})
	if !errors.IsInvalidSignal(err) {
		t.Errorf("expected InvalidSignal, got %v", err)
	}
}

func TestComputeLevels_SignalRuleOverridesStrategyDefault(t *testing.T) {
	sig := longSignal()
	sig.TakeProfit = &models.TakeProfitRule{Indicator: "chandelier", ATRMultiple: 0}

	levels, err := ComputeLevels(sig, config.StrategyConfig{TakeProfitATRMultiple: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if levels.TakeProfit != 0 {
		t.Errorf("signal rule disables the ATR target, got %v", levels.TakeProfit)
	}
	if levels.TPIndicator != "chandelier" {
		t.Errorf("expected indicator condition, got %q", levels.TPIndicator)
	}
}
