package trading

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"swing-trader/internal/config"
	"swing-trader/internal/errors"
	"swing-trader/internal/models"
)

// TPCondition reports whether an indicator-based take-profit condition is
// satisfied on the day's completed candle.
type TPCondition func(pos *models.Position, day models.Candle) bool

var (
	tpMu         sync.RWMutex
	tpConditions = map[string]TPCondition{}
)

// RegisterTPCondition installs an indicator condition under a name that
// strategy configs and signals can reference.
func RegisterTPCondition(name string, fn TPCondition) {
	tpMu.Lock()
	defer tpMu.Unlock()
	tpConditions[name] = fn
}

func lookupTPCondition(name string) TPCondition {
	tpMu.RLock()
	defer tpMu.RUnlock()
	return tpConditions[name]
}

// ExitEvaluator decides when open positions close. Intraday it watches
// entry-day positions for emergency moves only; at end of day it runs the
// full rule set over active positions in a fixed priority order.
type ExitEvaluator struct {
	cfg    *config.Config
	logger zerolog.Logger

	mu    sync.Mutex
	flags map[string]models.ExitReason
}

// NewExitEvaluator creates an exit evaluator.
func NewExitEvaluator(cfg *config.Config, logger zerolog.Logger) *ExitEvaluator {
	return &ExitEvaluator{
		cfg:    cfg,
		logger: logger,
		flags:  make(map[string]models.ExitReason),
	}
}

// Flag records an externally requested forced exit (regime break or capital
// rotation) to be applied at the next end-of-day evaluation. When a symbol is
// flagged more than once, the higher-priority reason wins.
func (e *ExitEvaluator) Flag(symbol string, reason models.ExitReason) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.flags[symbol]; ok && existing.Outranks(reason) {
		return
	}
	e.flags[symbol] = reason
}

func (e *ExitEvaluator) takeFlag(symbol string) (models.ExitReason, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	reason, ok := e.flags[symbol]
	if ok {
		delete(e.flags, symbol)
	}
	return reason, ok
}

// EvaluateIntraday runs the entry-day emergency check against a single price
// observation. A move past the hard threshold closes immediately; a move past
// the soft threshold closes on the second consecutive observation. Returns
// nil when the position stays open.
func (e *ExitEvaluator) EvaluateIntraday(pos *models.Position, price float64) *ExitDecision {
	if pos.State != models.StateEntryDay {
		return nil
	}

	sc := e.cfg.Strategy(pos.Strategy)
	adverse := adverseFraction(pos, price)

	if adverse >= sc.EmergencyHardPct {
		return &ExitDecision{Reason: models.ExitEmergency, Price: price}
	}
	if adverse >= sc.EmergencySoftPct {
		pos.SoftBreaches++
		if pos.SoftBreaches >= 2 {
			return &ExitDecision{Reason: models.ExitEmergency, Price: price}
		}
		return nil
	}
	pos.SoftBreaches = 0
	return nil
}

// EvaluateClose runs the full end-of-day rule set for an active position
// against the day's completed candle. Rules are checked in priority order;
// the first satisfied rule wins even when several are true at once. When no
// rule fires, the trailing stop is ratcheted from the day's extremes.
//
// Time-budget exits are deferred: the decision carries the next open as its
// execution point, so the close itself happens a day later at the open price.
func (e *ExitEvaluator) EvaluateClose(pos *models.Position, day models.Candle) *ExitDecision {
	if pos.State != models.StateActive {
		return nil
	}

	if stop := pos.CurrentStop(); stop > 0 && touchedStop(pos, day, stop) {
		return &ExitDecision{Reason: models.ExitStopLoss, Price: stop}
	}

	if decision := e.takeProfit(pos, day); decision != nil {
		return decision
	}

	// DayIndex is the age at today's open; tomorrow's open is one older.
	if pos.MaxHoldDays > 0 && pos.DayIndex+1 >= pos.MaxHoldDays {
		return &ExitDecision{Reason: models.ExitTimeLimit, Deferred: true}
	}

	if reason, ok := e.takeFlag(pos.Symbol); ok {
		return &ExitDecision{Reason: reason, Price: day.Close}
	}

	e.updateTrailing(pos, day)
	return nil
}

func (e *ExitEvaluator) takeProfit(pos *models.Position, day models.Candle) *ExitDecision {
	if pos.TPIndicator != "" {
		if fn := lookupTPCondition(pos.TPIndicator); fn != nil && fn(pos, day) {
			return &ExitDecision{Reason: models.ExitTakeProfit, Price: day.Close}
		}
	}
	if pos.TakeProfit > 0 {
		if pos.IsLong() && day.High >= pos.TakeProfit {
			return &ExitDecision{Reason: models.ExitTakeProfit, Price: pos.TakeProfit}
		}
		if !pos.IsLong() && day.Low <= pos.TakeProfit {
			return &ExitDecision{Reason: models.ExitTakeProfit, Price: pos.TakeProfit}
		}
	}
	return nil
}

// updateTrailing arms the trail once the day's favorable extreme passes the
// activation level, then ratchets the stop toward price. The stop never moves
// in the adverse direction.
func (e *ExitEvaluator) updateTrailing(pos *models.Position, day models.Candle) {
	t := pos.Trailing
	if t == nil {
		return
	}

	extreme := day.High
	if !pos.IsLong() {
		extreme = day.Low
	}

	if !t.Activated {
		if pos.IsLong() && extreme >= t.ActivationPrice {
			t.Activated = true
		}
		if !pos.IsLong() && extreme <= t.ActivationPrice {
			t.Activated = true
		}
		if !t.Activated {
			return
		}
	}

	candidate := extreme - t.Distance
	if !pos.IsLong() {
		candidate = extreme + t.Distance
	}
	if t.Stop == 0 || (pos.IsLong() && candidate > t.Stop) || (!pos.IsLong() && candidate < t.Stop) {
		t.Stop = candidate
	}
}

// Finalize transitions a position to closed and emits its trade record. It is
// the single place a ClosedTrade is produced; a second call for the same
// position returns ErrPositionClosed.
func (e *ExitEvaluator) Finalize(pos *models.Position, decision *ExitDecision, exitDate time.Time) (*models.ClosedTrade, error) {
	if pos.State == models.StateClosed {
		return nil, errors.ErrPositionClosed
	}
	pos.State = models.StateClosed

	trade := &models.ClosedTrade{
		Symbol:     pos.Symbol,
		Strategy:   pos.Strategy,
		Sector:     pos.Sector,
		Direction:  pos.Direction,
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  decision.Price,
		EntryDate:  pos.EntryDate,
		ExitDate:   exitDate,
		Reason:     decision.Reason,
		PnL:        models.RealizedPnL(pos.Direction, pos.Quantity, pos.EntryPrice, decision.Price),
	}
	return trade, nil
}

// FinalizePartial emits a trade record for the filled part of a close order.
// The position stays open at the reduced quantity and keeps being monitored.
func (e *ExitEvaluator) FinalizePartial(pos *models.Position, decision *ExitDecision, exitDate time.Time, filledQty int) (*models.ClosedTrade, error) {
	if pos.State == models.StateClosed {
		return nil, errors.ErrPositionClosed
	}
	if filledQty <= 0 || filledQty >= pos.Quantity {
		return nil, fmt.Errorf("partial fill %d out of range for quantity %d", filledQty, pos.Quantity)
	}
	pos.Quantity -= filledQty

	trade := &models.ClosedTrade{
		Symbol:     pos.Symbol,
		Strategy:   pos.Strategy,
		Sector:     pos.Sector,
		Direction:  pos.Direction,
		Quantity:   filledQty,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  decision.Price,
		EntryDate:  pos.EntryDate,
		ExitDate:   exitDate,
		Reason:     decision.Reason,
		PnL:        models.RealizedPnL(pos.Direction, filledQty, pos.EntryPrice, decision.Price),
	}
	return trade, nil
}

// adverseFraction is the loss fraction of a price observation relative to the
// entry price, 0 when the move is favorable.
func adverseFraction(pos *models.Position, price float64) float64 {
	if pos.EntryPrice <= 0 {
		return 0
	}
	var frac float64
	if pos.IsLong() {
		frac = (pos.EntryPrice - price) / pos.EntryPrice
	} else {
		frac = (price - pos.EntryPrice) / pos.EntryPrice
	}
	if frac < 0 {
		return 0
	}
	return frac
}

func touchedStop(pos *models.Position, day models.Candle, stop float64) bool {
	if pos.IsLong() {
		return day.Low <= stop
	}
	return day.High >= stop
}
