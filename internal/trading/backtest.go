package trading

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"swing-trader/internal/broker"
	"swing-trader/internal/config"
	"swing-trader/internal/feed"
	"swing-trader/internal/models"
	"swing-trader/internal/risk"
	"swing-trader/internal/store"
)

// backtestFeed pins the CSV feed's intraday stream to the simulated day, so
// the orchestrator's tick subscription replays the right session.
type backtestFeed struct {
	*feed.CSVFeed

	mu  sync.RWMutex
	day time.Time
}

func (f *backtestFeed) SetDay(day time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.day = day
}

func (f *backtestFeed) Ticks(ctx context.Context, symbols []string) (<-chan models.Tick, error) {
	f.mu.RLock()
	day := f.day
	f.mu.RUnlock()
	return f.TicksFor(ctx, symbols, day)
}

// StrategyStats aggregates one strategy's closed trades.
type StrategyStats struct {
	Trades  int
	Wins    int
	PnL     float64
	WinRate float64
}

// EquityPoint is one point of the realized equity curve.
type EquityPoint struct {
	Day    time.Time
	Equity float64
}

// BacktestResult summarizes a historical run.
type BacktestResult struct {
	From, To time.Time

	Trades      []models.ClosedTrade
	TotalPnL    float64
	FinalEquity float64
	MaxDrawdown float64 // peak-to-trough fraction of realized equity

	ByStrategy map[string]*StrategyStats
	ByReason   map[models.ExitReason]int

	EquityCurve []EquityPoint
	OpenAtEnd   int
}

// BacktestEngine replays historical daily candles through the identical
// component graph the live mode runs: same orchestrator, same admission,
// exits, and governor. Every derived price is a pure function of the candle
// files, so two runs over the same data produce identical results.
type BacktestEngine struct {
	cfg     *config.Config
	logger  zerolog.Logger
	signals SignalSource
}

// NewBacktestEngine creates a backtest engine.
func NewBacktestEngine(cfg *config.Config, logger zerolog.Logger, signals SignalSource) *BacktestEngine {
	return &BacktestEngine{cfg: cfg, logger: logger, signals: signals}
}

// Run replays the sessions in [from, to] from per-symbol CSV files in dataDir.
func (e *BacktestEngine) Run(ctx context.Context, dataDir string, from, to time.Time) (*BacktestResult, error) {
	csvFeed, err := feed.NewCSVFeed(dataDir)
	if err != nil {
		return nil, fmt.Errorf("loading candle data: %w", err)
	}
	bf := &backtestFeed{CSVFeed: csvFeed}

	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening backtest store: %w", err)
	}
	defer st.Close()

	paper := broker.NewPaperBroker()
	gov := risk.NewGovernor(e.cfg, e.logger)
	clock := NewSimClock(from)
	orch := NewOrchestrator(e.cfg, e.logger, clock, bf, paper, st, gov, e.signals, nil)

	symbols := csvFeed.Symbols()
	for _, day := range csvFeed.TradingDays(from, to) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clock.Set(day)
		bf.SetDay(day)

		e.pushPrices(ctx, bf, paper, symbols, day, phaseOpen)
		if err := orch.SessionOpen(ctx, day); err != nil {
			return nil, fmt.Errorf("session open %s: %w", day.Format("2006-01-02"), err)
		}

		e.pushPrices(ctx, bf, paper, symbols, day, phaseConfirm)
		if err := orch.ConfirmDeadline(ctx, day); err != nil {
			return nil, fmt.Errorf("confirm phase %s: %w", day.Format("2006-01-02"), err)
		}

		if err := orch.WatchIntraday(ctx); err != nil {
			return nil, fmt.Errorf("intraday replay %s: %w", day.Format("2006-01-02"), err)
		}

		e.pushPrices(ctx, bf, paper, symbols, day, phaseClose)
		if err := orch.EndOfDay(ctx, day); err != nil {
			return nil, fmt.Errorf("end of day %s: %w", day.Format("2006-01-02"), err)
		}
	}

	trades, err := st.ListClosedTrades(ctx, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("collecting trades: %w", err)
	}

	result := buildResult(trades, e.cfg.Risk.BaseEquity)
	result.From, result.To = from, to
	result.OpenAtEnd = orch.Book().Len()
	return result, nil
}

type pricePhase int

const (
	phaseOpen pricePhase = iota
	phaseConfirm
	phaseClose
)

// pushPrices advances the paper broker's last prices to the phase being
// replayed, so market fills happen at the phase's price.
func (e *BacktestEngine) pushPrices(ctx context.Context, bf *backtestFeed, paper *broker.PaperBroker, symbols []string, day time.Time, phase pricePhase) {
	for _, symbol := range symbols {
		var price float64
		var err error
		switch phase {
		case phaseOpen:
			price, err = bf.OpenPrice(ctx, symbol, day)
		case phaseConfirm:
			price, err = bf.ConfirmPrice(ctx, symbol, day)
		case phaseClose:
			var c models.Candle
			c, err = bf.DayCandle(ctx, symbol, day)
			price = c.Close
		}
		if err != nil {
			continue // data gap: last price stays stale, quotes report the gap
		}
		paper.SetPrice(symbol, price)
	}
}

func buildResult(trades []models.ClosedTrade, baseEquity float64) *BacktestResult {
	result := &BacktestResult{
		Trades:     trades,
		ByStrategy: make(map[string]*StrategyStats),
		ByReason:   make(map[models.ExitReason]int),
	}

	sort.SliceStable(trades, func(i, j int) bool { return trades[i].ExitDate.Before(trades[j].ExitDate) })

	equity := baseEquity
	peak := baseEquity
	for _, t := range trades {
		result.TotalPnL += t.PnL
		result.ByReason[t.Reason]++

		ss := result.ByStrategy[t.Strategy]
		if ss == nil {
			ss = &StrategyStats{}
			result.ByStrategy[t.Strategy] = ss
		}
		ss.Trades++
		ss.PnL += t.PnL
		if t.PnL > 0 {
			ss.Wins++
		}

		equity += t.PnL
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > result.MaxDrawdown {
				result.MaxDrawdown = dd
			}
		}
		result.EquityCurve = append(result.EquityCurve, EquityPoint{Day: t.ExitDate, Equity: equity})
	}

	for _, ss := range result.ByStrategy {
		if ss.Trades > 0 {
			ss.WinRate = float64(ss.Wins) / float64(ss.Trades)
		}
	}
	result.FinalEquity = equity
	return result
}
