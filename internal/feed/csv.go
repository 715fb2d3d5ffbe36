package feed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"swing-trader/internal/errors"
	"swing-trader/internal/models"
)

// candleRow is the CSV schema for historical daily candles, one file per
// symbol: date,open,high,low,close,volume.
type candleRow struct {
	Date   string  `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume int64   `csv:"volume"`
}

// CSVFeed serves historical candles from a directory of per-symbol CSV
// files. It is the deterministic backtest implementation of Feed: every
// derived price is a pure function of the loaded candles, so two runs over
// the same files produce identical admission and exit decisions.
type CSVFeed struct {
	candles map[string]map[string]models.Candle // symbol -> yyyy-mm-dd -> candle
	days    []time.Time                         // sorted union of trading days
}

// NewCSVFeed loads every *.csv file in dir; the file name (without
// extension, upper-cased) is the symbol.
func NewCSVFeed(dir string) (*CSVFeed, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading data dir: %w", err)
	}

	f := &CSVFeed{candles: make(map[string]map[string]models.Candle)}
	daySet := make(map[string]time.Time)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		symbol := strings.ToUpper(strings.TrimSuffix(entry.Name(), ".csv"))
		rows, err := loadCandleFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", entry.Name(), err)
		}
		byDay := make(map[string]models.Candle, len(rows))
		for _, row := range rows {
			ts, err := time.Parse("2006-01-02", row.Date)
			if err != nil {
				return nil, fmt.Errorf("%s: bad date %q: %w", entry.Name(), row.Date, err)
			}
			byDay[row.Date] = models.Candle{
				Timestamp: ts,
				Open:      row.Open,
				High:      row.High,
				Low:       row.Low,
				Close:     row.Close,
				Volume:    row.Volume,
			}
			daySet[row.Date] = ts
		}
		f.candles[symbol] = byDay
	}

	for _, ts := range daySet {
		f.days = append(f.days, ts)
	}
	sort.Slice(f.days, func(i, j int) bool { return f.days[i].Before(f.days[j]) })

	return f, nil
}

func loadCandleFile(path string) ([]*candleRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rows []*candleRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// TradingDays returns the loaded trading days within [from, to].
func (f *CSVFeed) TradingDays(from, to time.Time) []time.Time {
	var out []time.Time
	for _, d := range f.days {
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Symbols returns every loaded symbol.
func (f *CSVFeed) Symbols() []string {
	out := make([]string, 0, len(f.candles))
	for s := range f.candles {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (f *CSVFeed) candle(symbol string, day time.Time) (models.Candle, bool) {
	byDay, ok := f.candles[strings.ToUpper(symbol)]
	if !ok {
		return models.Candle{}, false
	}
	c, ok := byDay[day.Format("2006-01-02")]
	return c, ok
}

// prevCandle returns the last candle strictly before day.
func (f *CSVFeed) prevCandle(symbol string, day time.Time) (models.Candle, bool) {
	byDay, ok := f.candles[strings.ToUpper(symbol)]
	if !ok {
		return models.Candle{}, false
	}
	var best models.Candle
	found := false
	for _, c := range byDay {
		if !c.Timestamp.Before(day) {
			continue
		}
		if !found || c.Timestamp.After(best.Timestamp) {
			best = c
			found = true
		}
	}
	return best, found
}

// PrevClose returns the close of the last session before day.
func (f *CSVFeed) PrevClose(ctx context.Context, symbol string, day time.Time) (float64, error) {
	c, ok := f.prevCandle(symbol, day)
	if !ok {
		return 0, &errors.DataGapError{Symbol: symbol, At: day.Format("2006-01-02")}
	}
	return c.Close, nil
}

// PreMarketPrice approximates the pre-open print with the session open,
// which is the best information daily bars carry.
func (f *CSVFeed) PreMarketPrice(ctx context.Context, symbol string, day time.Time) (float64, error) {
	return f.OpenPrice(ctx, symbol, day)
}

// OpenPrice returns the session open.
func (f *CSVFeed) OpenPrice(ctx context.Context, symbol string, day time.Time) (float64, error) {
	c, ok := f.candle(symbol, day)
	if !ok {
		return 0, &errors.DataGapError{Symbol: symbol, At: day.Format("2006-01-02")}
	}
	return c.Open, nil
}

// ConfirmPrice is the deterministic same-morning check price: the midpoint
// of the session open and close.
func (f *CSVFeed) ConfirmPrice(ctx context.Context, symbol string, day time.Time) (float64, error) {
	c, ok := f.candle(symbol, day)
	if !ok {
		return 0, &errors.DataGapError{Symbol: symbol, At: day.Format("2006-01-02")}
	}
	return (c.Open + c.Close) / 2, nil
}

// DayCandle returns the session's OHLC.
func (f *CSVFeed) DayCandle(ctx context.Context, symbol string, day time.Time) (models.Candle, error) {
	c, ok := f.candle(symbol, day)
	if !ok {
		return models.Candle{}, &errors.DataGapError{Symbol: symbol, At: day.Format("2006-01-02")}
	}
	return c, nil
}

// Ticks synthesizes a deterministic intraday sequence from each symbol's
// daily bar: open, adverse extreme, favorable extreme, close. That is enough
// for the entry-day emergency rules to observe the worst print of the day.
func (f *CSVFeed) Ticks(ctx context.Context, symbols []string) (<-chan models.Tick, error) {
	return f.TicksFor(ctx, symbols, time.Time{})
}

// TicksFor is Ticks pinned to a specific day; the zero day means the most
// recent loaded session.
func (f *CSVFeed) TicksFor(ctx context.Context, symbols []string, day time.Time) (<-chan models.Tick, error) {
	if day.IsZero() && len(f.days) > 0 {
		day = f.days[len(f.days)-1]
	}

	ch := make(chan models.Tick)
	go func() {
		defer close(ch)
		for _, symbol := range symbols {
			c, ok := f.candle(symbol, day)
			if !ok {
				continue // data gap: the consumer skips this tick cycle
			}
			for i, px := range []float64{c.Open, c.Low, c.High, c.Close} {
				tick := models.Tick{
					Symbol:    symbol,
					Price:     px,
					Timestamp: c.Timestamp.Add(time.Duration(i) * time.Hour),
				}
				select {
				case ch <- tick:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}
