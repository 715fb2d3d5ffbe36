// Package risk provides the sizing and drawdown-governor core of the engine:
// stop/target calculation, per-trade position sizing, and the two-loop
// graduated drawdown governor that decides how much risk is allowed.
package risk

import (
	"swing-trader/internal/config"
	"swing-trader/internal/errors"
	"swing-trader/internal/models"
)

// TrailingParams describes a trailing stop derived from strategy config.
type TrailingParams struct {
	ActivationPrice float64 // favorable level that arms the trail
	Distance        float64 // absolute trail distance
}

// ExitLevels are the absolute exit levels computed for a signal at entry.
type ExitLevels struct {
	Stop        float64
	TakeProfit  float64 // 0 when the strategy has no ATR target
	TPIndicator string  // empty when no indicator condition applies
	Trailing    *TrailingParams
}

// ComputeLevels converts a signal's declared stop price and the strategy's
// ATR multipliers into absolute exit levels. The stop is always the signal's
// own declared price; a signal without one is invalid and the error must
// propagate to the caller. Defaulting the stop to a generic ATR distance
// would silently break the risk-per-trade guarantee for any strategy using a
// non-standard stop distance.
func ComputeLevels(sig *models.Signal, sc config.StrategyConfig) (*ExitLevels, error) {
	if sig.StopPrice <= 0 {
		return nil, errors.NewInvalidSignalError(sig.Strategy, sig.Symbol, "missing stop price")
	}
	if sig.EntryPrice <= 0 {
		return nil, errors.NewInvalidSignalError(sig.Strategy, sig.Symbol, "non-positive entry price")
	}
	if sig.IsFavorable(sig.StopPrice) {
		return nil, errors.NewInvalidSignalError(sig.Strategy, sig.Symbol, "stop on the favorable side of entry")
	}

	levels := &ExitLevels{Stop: sig.StopPrice}

	// Take-profit: indicator condition, ATR-multiple distance, or both.
	// The signal's own rule wins over the strategy defaults.
	tpMult := sc.TakeProfitATRMultiple
	tpIndicator := sc.TakeProfitIndicator
	if sig.TakeProfit != nil {
		tpMult = sig.TakeProfit.ATRMultiple
		tpIndicator = sig.TakeProfit.Indicator
	}
	if tpMult > 0 && sig.ATR > 0 {
		levels.TakeProfit = offset(sig.EntryPrice, tpMult*sig.ATR, sig.Direction)
	}
	levels.TPIndicator = tpIndicator

	if sc.TrailingActivationATR > 0 && sc.TrailingATRMultiple > 0 && sig.ATR > 0 {
		levels.Trailing = &TrailingParams{
			ActivationPrice: offset(sig.EntryPrice, sc.TrailingActivationATR*sig.ATR, sig.Direction),
			Distance:        sc.TrailingATRMultiple * sig.ATR,
		}
	}

	return levels, nil
}

// offset moves a price in the favorable direction of the trade.
func offset(entry, distance float64, dir models.Direction) float64 {
	if dir == models.DirectionShort {
		return entry - distance
	}
	return entry + distance
}
