package models

import "time"

// PositionState is the monitoring phase of an open position.
type PositionState string

const (
	// StateEntryDay is the reduced-monitoring phase on the day a position
	// is opened: only emergency thresholds are watched intraday.
	StateEntryDay PositionState = "ENTRY_DAY"
	// StateActive is the full-rule-set phase from the day after entry.
	StateActive PositionState = "ACTIVE"
	// StateClosed is terminal. A position transitions to it exactly once.
	StateClosed PositionState = "CLOSED"
)

// ExitReason identifies why a position was closed. The evaluator checks
// reasons in a fixed priority order; the declaration order here matches it.
type ExitReason string

const (
	ExitEmergency  ExitReason = "emergency"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitTimeLimit  ExitReason = "time_limit"
	ExitRegime     ExitReason = "regime"
	ExitRotation   ExitReason = "rotation"
)

var exitPriority = map[ExitReason]int{
	ExitEmergency:  0,
	ExitStopLoss:   1,
	ExitTakeProfit: 2,
	ExitTimeLimit:  3,
	ExitRegime:     4,
	ExitRotation:   5,
}

// Outranks reports whether r takes precedence over other when both exit
// conditions hold at once.
func (r ExitReason) Outranks(other ExitReason) bool {
	return exitPriority[r] < exitPriority[other]
}

// TrailingState tracks a trailing stop for one position. The stop only ever
// ratchets in the favorable direction, and only after price has moved past
// the activation level.
type TrailingState struct {
	ActivationPrice float64 // favorable level that arms the trail
	Distance        float64 // absolute trail distance (ATR multiple at entry)
	Activated       bool
	Stop            float64 // current trailing stop, 0 until activated
}

// Position is an open trade owned exclusively by the engine. It exists from
// admitted-order fill until an exit reason is determined.
type Position struct {
	Symbol     string
	Strategy   string
	Sector     string
	Direction  Direction
	Quantity   int
	EntryPrice float64
	EntryDate  time.Time
	DayIndex   int // 0 on entry day, incremented at each session open

	State       PositionState
	StopPrice   float64 // fixed stop; superseded by Trailing.Stop once armed
	Trailing    *TrailingState
	TakeProfit  float64 // absolute ATR-distance target, 0 if none
	TPIndicator string  // indicator condition name, empty if none
	MaxHoldDays int

	// softBreaches counts consecutive intraday observations past the milder
	// emergency threshold; reset whenever an observation is inside it.
	SoftBreaches int

	// ForcedExit is set when a forced close has been queued for the next
	// session open (time budget, regime, or rotation).
	ForcedExit ExitReason

	StopOrderID string // safety-net stop order at the broker
}

// IsLong reports whether the position is long.
func (p *Position) IsLong() bool { return p.Direction == DirectionLong }

// CurrentStop returns the level the stop-loss rule checks against: the
// trailing stop once armed, the fixed stop otherwise. An armed trail never
// loosens the stop past the declared fixed level.
func (p *Position) CurrentStop() float64 {
	if p.Trailing != nil && p.Trailing.Activated {
		if p.IsLong() && p.Trailing.Stop < p.StopPrice {
			return p.StopPrice
		}
		if !p.IsLong() && p.StopPrice > 0 && p.Trailing.Stop > p.StopPrice {
			return p.StopPrice
		}
		return p.Trailing.Stop
	}
	return p.StopPrice
}

// ClosedTrade is the immutable record emitted when a position closes. It is
// the only input the drawdown governor consumes.
type ClosedTrade struct {
	Symbol     string
	Strategy   string
	Sector     string
	Direction  Direction
	Quantity   int
	EntryPrice float64
	ExitPrice  float64
	EntryDate  time.Time
	ExitDate   time.Time
	Reason     ExitReason
	PnL        float64
}

// RealizedPnL computes the realized profit of a round trip before costs.
func RealizedPnL(direction Direction, quantity int, entry, exit float64) float64 {
	sign := 1.0
	if direction == DirectionShort {
		sign = -1.0
	}
	return (exit - entry) * float64(quantity) * sign
}
