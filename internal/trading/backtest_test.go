package trading

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"swing-trader/internal/config"
	"swing-trader/internal/models"
)

func backtestConfig(maxHold int) *config.Config {
	return &config.Config{
		Trading: config.TradingConfig{Mode: "paper", Timezone: "UTC"},
		Risk: config.RiskConfig{
			BaseEquity:        100000,
			WeightCap:         0.10,
			RiskPerTrade:      0.02,
			ShortSizeRatio:    0.65,
			GapThreshold:      0.04,
			MaxDailyEntries:   6,
			MaxLongPositions:  10,
			MaxShortPositions: 5,
			MaxPerSector:      3,
			MaxPerStrategy:    4,
			RankBonusWeight:   0.15,
		},
		Governor: config.GovernorConfig{WindowDays: 60},
		Strategies: map[string]config.StrategyConfig{
			"momentum": {
				MaxHoldDays:      maxHold,
				EmergencyHardPct: 0.10,
				EmergencySoftPct: 0.07,
				ReferenceCapital: 100000,
				WindowDays:       60,
			},
		},
	}
}

func writeCandles(t *testing.T, dir, symbol, csv string) {
	t.Helper()
	path := filepath.Join(dir, symbol+".csv")
	if err := os.WriteFile(path, []byte(csv), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// scriptedSignals replays a fixed signal plan, keyed by date.
type scriptedSignals struct {
	byDay map[string][]models.Signal
}

func (s *scriptedSignals) DailySignals(ctx context.Context, day time.Time) ([]models.Signal, error) {
	return s.byDay[day.Format("2006-01-02")], nil
}

func btDay(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func TestBacktest_StopLossExitAtStopLevel(t *testing.T) {
	dir := t.TempDir()
	writeCandles(t, dir, "ACME", `date,open,high,low,close,volume
2024-03-04,100,102,99,101,1000
2024-03-05,101,102,94,96,1000
`)

	signals := &scriptedSignals{byDay: map[string][]models.Signal{
		"2024-03-04": {{
			Strategy:   "momentum",
			Symbol:     "ACME",
			Direction:  models.DirectionLong,
			EntryPrice: 100,
			StopPrice:  95,
			Score:      0.9,
			Timing:     models.TimingAtOpen,
		}},
	}}

	engine := NewBacktestEngine(backtestConfig(10), zerolog.Nop(), signals)
	result, err := engine.Run(context.Background(), dir, btDay("2024-03-04"), btDay("2024-03-05"))
	if err != nil {
		t.Fatalf("backtest failed: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.Reason != models.ExitStopLoss {
		t.Errorf("expected stop_loss, got %s", trade.Reason)
	}
	// The day traded through the stop; the exit prices at the stop level,
	// not the day's close.
	if trade.ExitPrice != 95 {
		t.Errorf("expected exit at 95, got %v", trade.ExitPrice)
	}
	// 100 shares (weight-capped) down $5.
	if trade.PnL != -500 {
		t.Errorf("expected PnL -500, got %v", trade.PnL)
	}
	if result.OpenAtEnd != 0 {
		t.Errorf("expected a flat book, %d still open", result.OpenAtEnd)
	}
}

func TestBacktest_EntryDayEmergencyExit(t *testing.T) {
	dir := t.TempDir()
	// A 12% flush on the entry day itself: past the hard threshold on a
	// single print.
	writeCandles(t, dir, "ACME", `date,open,high,low,close,volume
2024-03-04,100,101,88,90,1000
`)

	signals := &scriptedSignals{byDay: map[string][]models.Signal{
		"2024-03-04": {{
			Strategy:   "momentum",
			Symbol:     "ACME",
			Direction:  models.DirectionLong,
			EntryPrice: 100,
			StopPrice:  95,
			Score:      0.9,
			Timing:     models.TimingAtOpen,
		}},
	}}

	engine := NewBacktestEngine(backtestConfig(10), zerolog.Nop(), signals)
	result, err := engine.Run(context.Background(), dir, btDay("2024-03-04"), btDay("2024-03-04"))
	if err != nil {
		t.Fatalf("backtest failed: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.Reason != models.ExitEmergency {
		t.Errorf("expected emergency, got %s", trade.Reason)
	}
	if trade.ExitPrice != 88 {
		t.Errorf("expected exit at the breaching print 88, got %v", trade.ExitPrice)
	}
}

func TestBacktest_TimeLimitExecutesAtNextOpen(t *testing.T) {
	dir := t.TempDir()
	// Flat tape: nothing but the time budget can close the position.
	writeCandles(t, dir, "ACME", `date,open,high,low,close,volume
2024-03-04,100,101,99,100,1000
2024-03-05,100,101,99,100,1000
2024-03-06,102,103,101,102,1000
`)

	signals := &scriptedSignals{byDay: map[string][]models.Signal{
		"2024-03-04": {{
			Strategy:   "momentum",
			Symbol:     "ACME",
			Direction:  models.DirectionLong,
			EntryPrice: 100,
			StopPrice:  90,
			Score:      0.9,
			Timing:     models.TimingAtOpen,
		}},
	}}

	// Two-day budget: queued at the second day's close, executed at the
	// third day's open.
	engine := NewBacktestEngine(backtestConfig(2), zerolog.Nop(), signals)
	result, err := engine.Run(context.Background(), dir, btDay("2024-03-04"), btDay("2024-03-06"))
	if err != nil {
		t.Fatalf("backtest failed: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.Reason != models.ExitTimeLimit {
		t.Errorf("expected time_limit, got %s", trade.Reason)
	}
	if trade.ExitPrice != 102 {
		t.Errorf("expected next-open execution at 102, got %v", trade.ExitPrice)
	}
	if trade.ExitDate.Format("2006-01-02") != "2024-03-06" {
		t.Errorf("expected exit on the day after the queue, got %s", trade.ExitDate.Format("2006-01-02"))
	}
	if trade.PnL != 200 {
		t.Errorf("expected PnL +200, got %v", trade.PnL)
	}
}

func TestBacktest_ConfirmationGroup(t *testing.T) {
	dir := t.TempDir()
	// Confirm price is (open+close)/2. GOOD confirms at 102; BAD's morning
	// fades to 98 and is discarded.
	writeCandles(t, dir, "GOOD", `date,open,high,low,close,volume
2024-03-04,101,105,100,103,1000
`)
	writeCandles(t, dir, "BAD", `date,open,high,low,close,volume
2024-03-04,99,100,96,97,1000
`)

	confirm := func(symbol string) models.Signal {
		return models.Signal{
			Strategy:   "momentum",
			Symbol:     symbol,
			Direction:  models.DirectionLong,
			EntryPrice: 100,
			StopPrice:  95,
			Score:      0.9,
			Timing:     models.TimingConfirm,
		}
	}
	signals := &scriptedSignals{byDay: map[string][]models.Signal{
		"2024-03-04": {confirm("GOOD"), confirm("BAD")},
	}}

	engine := NewBacktestEngine(backtestConfig(10), zerolog.Nop(), signals)
	result, err := engine.Run(context.Background(), dir, btDay("2024-03-04"), btDay("2024-03-04"))
	if err != nil {
		t.Fatalf("backtest failed: %v", err)
	}

	if result.OpenAtEnd != 1 {
		t.Fatalf("expected exactly the confirmed entry open, got %d", result.OpenAtEnd)
	}
	if len(result.Trades) != 0 {
		t.Errorf("nothing should have closed, got %d trades", len(result.Trades))
	}
}

func TestBacktest_Deterministic(t *testing.T) {
	dir := t.TempDir()
	writeCandles(t, dir, "AAA", `date,open,high,low,close,volume
2024-03-04,100,103,99,102,1000
2024-03-05,102,104,95,96,1000
2024-03-06,96,99,94,98,1000
`)
	writeCandles(t, dir, "BBB", `date,open,high,low,close,volume
2024-03-04,50,52,49,51,1000
2024-03-05,51,53,50,52,1000
2024-03-06,52,56,51,55,1000
`)

	signals := &scriptedSignals{byDay: map[string][]models.Signal{
		"2024-03-04": {
			{Strategy: "momentum", Symbol: "AAA", Direction: models.DirectionLong, EntryPrice: 100, StopPrice: 96, Score: 0.9, Timing: models.TimingAtOpen},
			{Strategy: "momentum", Symbol: "BBB", Direction: models.DirectionLong, EntryPrice: 50, StopPrice: 47, Score: 0.8, Timing: models.TimingAtOpen},
		},
	}}

	run := func() *BacktestResult {
		engine := NewBacktestEngine(backtestConfig(10), zerolog.Nop(), signals)
		result, err := engine.Run(context.Background(), dir, btDay("2024-03-04"), btDay("2024-03-06"))
		if err != nil {
			t.Fatalf("backtest failed: %v", err)
		}
		return result
	}

	first, second := run(), run()
	if first.TotalPnL != second.TotalPnL || first.FinalEquity != second.FinalEquity {
		t.Fatalf("runs diverged: %v/%v vs %v/%v", first.TotalPnL, first.FinalEquity, second.TotalPnL, second.FinalEquity)
	}
	if len(first.Trades) != len(second.Trades) {
		t.Fatalf("trade counts diverged: %d vs %d", len(first.Trades), len(second.Trades))
	}
	for i := range first.Trades {
		a, b := first.Trades[i], second.Trades[i]
		if a.Symbol != b.Symbol || a.ExitPrice != b.ExitPrice || a.PnL != b.PnL || a.Reason != b.Reason {
			t.Errorf("trade %d diverged: %+v vs %+v", i, a, b)
		}
	}
}

func TestBacktest_GapFilterUsesFeedPrevClose(t *testing.T) {
	dir := t.TempDir()
	writeCandles(t, dir, "ACME", `date,open,high,low,close,volume
2024-03-04,100,101,99,100,1000
2024-03-05,106,107,104,105,1000
`)

	// The signal carries no reference close; the 6% overnight gap is still
	// caught against the feed's previous close.
	signals := &scriptedSignals{byDay: map[string][]models.Signal{
		"2024-03-05": {{
			Strategy:   "momentum",
			Symbol:     "ACME",
			Direction:  models.DirectionLong,
			EntryPrice: 100,
			StopPrice:  95,
			Score:      0.9,
			Timing:     models.TimingAtOpen,
		}},
	}}

	engine := NewBacktestEngine(backtestConfig(10), zerolog.Nop(), signals)
	result, err := engine.Run(context.Background(), dir, btDay("2024-03-04"), btDay("2024-03-05"))
	if err != nil {
		t.Fatalf("backtest failed: %v", err)
	}

	if result.OpenAtEnd != 0 || len(result.Trades) != 0 {
		t.Errorf("gapped signal must not enter: %d open, %d trades", result.OpenAtEnd, len(result.Trades))
	}
}
