package risk

import (
	"math"

	"swing-trader/internal/errors"
	"swing-trader/internal/models"
)

// SizeRequest carries everything needed to size one trade.
type SizeRequest struct {
	Strategy     string
	Symbol       string
	Direction    models.Direction
	EntryPrice   float64
	StopPrice    float64
	Equity       float64
	WeightCap    float64 // max position value as a fraction of equity
	RiskFraction float64 // equity fraction lost if the stop is hit
	ShortRatio   float64 // applied after sizing for short positions
}

// ComputeQuantity sizes a trade so that neither the position-weight cap nor
// the per-trade risk bound is exceeded:
//
//	weight_qty = equity * weight_cap / entry_price
//	risk_qty   = equity * risk_fraction / |entry_price - stop_price|
//	quantity   = min(weight_qty, risk_qty)
//
// Shorts are scaled by ShortRatio after the min. The result is floored to a
// whole share count.
func ComputeQuantity(req SizeRequest) (int, error) {
	if req.EntryPrice <= 0 {
		return 0, errors.NewInvalidSignalError(req.Strategy, req.Symbol, "non-positive entry price")
	}
	if req.StopPrice <= 0 {
		return 0, errors.NewInvalidSignalError(req.Strategy, req.Symbol, "missing stop price")
	}

	stopDistance := math.Abs(req.EntryPrice - req.StopPrice)
	if stopDistance == 0 {
		return 0, errors.NewInvalidSignalError(req.Strategy, req.Symbol, "zero stop distance")
	}

	weightQty := req.Equity * req.WeightCap / req.EntryPrice
	riskQty := req.Equity * req.RiskFraction / stopDistance

	qty := math.Min(weightQty, riskQty)
	if req.Direction == models.DirectionShort {
		qty *= req.ShortRatio
	}

	return int(math.Floor(qty)), nil
}
