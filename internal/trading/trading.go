// Package trading provides the execution-risk core: entry admission,
// per-position exit evaluation, and the daily orchestration tying them to
// the drawdown governor.
package trading

import (
	"context"
	"time"

	"swing-trader/internal/models"
	"swing-trader/internal/risk"
)

// SignalSource is the strategy-collaborator boundary: a daily ranked list of
// candidate signals.
type SignalSource interface {
	DailySignals(ctx context.Context, day time.Time) ([]models.Signal, error)
}

// ForcedExitNotice is a regime- or rotation-driven forced exit pushed by an
// external collaborator. Reason must be ExitRegime or ExitRotation.
type ForcedExitNotice struct {
	Symbol string
	Reason models.ExitReason
}

// AdmittedOrder is an admission-controller output: a sized, risk-bounded
// candidate ready for order placement.
type AdmittedOrder struct {
	Signal   models.Signal
	Quantity int
	Levels   *risk.ExitLevels
}

// ExitDecision is an exit-evaluator output. Deferred decisions (time-based
// forced exits) are queued for execution at the next session open rather
// than closed at the evaluation tick.
type ExitDecision struct {
	Reason   models.ExitReason
	Price    float64
	Deferred bool
}
