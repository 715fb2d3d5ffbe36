// Package feed provides the market-data collaborator boundary: reference
// prices for the gap filter, session prices for entry execution, end-of-day
// candles for exit evaluation, and an intraday stream restricted to the
// symbols that need it.
package feed

import (
	"context"
	"time"

	"swing-trader/internal/models"
)

// Feed is the market-data surface the engine requires.
type Feed interface {
	// PrevClose returns the previous session's close for the gap filter.
	PrevClose(ctx context.Context, symbol string, day time.Time) (float64, error)
	// PreMarketPrice returns the pre-open price for the gap filter.
	PreMarketPrice(ctx context.Context, symbol string, day time.Time) (float64, error)
	// OpenPrice returns the session-open execution price.
	OpenPrice(ctx context.Context, symbol string, day time.Time) (float64, error)
	// ConfirmPrice returns the same-morning confirmation price.
	ConfirmPrice(ctx context.Context, symbol string, day time.Time) (float64, error)
	// DayCandle returns the session's OHLC for end-of-day evaluation.
	DayCandle(ctx context.Context, symbol string, day time.Time) (models.Candle, error)
	// Ticks streams intraday observations for the given symbols only.
	// The channel closes when ctx is cancelled or the session's data ends.
	Ticks(ctx context.Context, symbols []string) (<-chan models.Tick, error)
}
