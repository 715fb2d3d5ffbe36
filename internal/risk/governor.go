package risk

import (
	"sync"

	"github.com/rs/zerolog"

	"swing-trader/internal/config"
	"swing-trader/internal/logging"
	"swing-trader/internal/models"
)

// Allowance is what a tier grants: a multiplier on the base risk-per-trade
// fraction and a cap on new entries for that strategy that day.
// MaxEntries < 0 means the tier imposes no entry cap of its own.
type Allowance struct {
	RiskMultiplier float64
	MaxEntries     int
}

// strategyState is the per-strategy risk state. Mutated only by the
// Governor, and only from realized PnL; unrealized marks never touch it, so
// a transient price spike cannot poison the rolling peak.
type strategyState struct {
	cumPnL     float64
	window     *ring // daily cumulative-PnL snapshots
	tier       int
	refCapital float64
	tiers      []config.TierConfig
}

// Governor is the graduated drawdown governor: the single authority for how
// much risk is allowed right now. It runs two independently-scoped control
// loops, a per-strategy tier and a portfolio-wide safety net, composed via
// max() so the safety net can only ever make things more restrictive.
type Governor struct {
	mu     sync.RWMutex
	logger zerolog.Logger

	strategies map[string]*strategyState

	equity         float64 // realized equity, never mark-to-market
	equityWindow   *ring
	safetyTier     int
	portfolioTiers []config.TierConfig
}

// NewGovernor creates a governor with one risk loop per configured strategy
// plus the portfolio safety net.
func NewGovernor(cfg *config.Config, logger zerolog.Logger) *Governor {
	g := &Governor{
		logger:         logger.With().Str("component", "governor").Logger(),
		strategies:     make(map[string]*strategyState),
		equity:         cfg.Risk.BaseEquity,
		equityWindow:   newRing(cfg.Governor.WindowDays),
		portfolioTiers: cfg.Governor.Tiers,
	}
	for name := range cfg.Strategies {
		g.register(name, cfg.Strategy(name))
	}
	return g
}

// Register adds a risk loop for a strategy first seen at runtime.
func (g *Governor) Register(name string, sc config.StrategyConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.register(name, sc)
}

func (g *Governor) register(name string, sc config.StrategyConfig) {
	if _, ok := g.strategies[name]; ok {
		return
	}
	g.strategies[name] = &strategyState{
		window:     newRing(sc.WindowDays),
		refCapital: sc.ReferenceCapital,
		tiers:      sc.Tiers,
	}
}

// RecordTrade folds one closed trade into the owning strategy's realized PnL
// and the portfolio's realized equity, then re-derives both tiers.
func (g *Governor) RecordTrade(t models.ClosedTrade) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.strategies[t.Strategy]
	if !ok {
		g.logger.Warn().Str("strategy", t.Strategy).Msg("Trade for unregistered strategy")
		return
	}
	st.cumPnL += t.PnL
	g.equity += t.PnL
	g.retier(t.Strategy, st)
	g.retierPortfolio()
}

// SnapshotDay appends the end-of-day snapshots both rolling windows are
// built from. Called once per trading day, after all exits have settled.
func (g *Governor) SnapshotDay() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for name, st := range g.strategies {
		st.window.Push(st.cumPnL)
		g.retier(name, st)
	}
	g.equityWindow.Push(g.equity)
	g.retierPortfolio()
}

func (g *Governor) retier(name string, st *strategyState) {
	dd := drawdownFraction(peakOf(st.window, st.cumPnL), st.cumPnL, st.refCapital)
	tier := tierForDrawdown(dd, st.tiers)
	if tier != st.tier {
		logging.LogTierChange(g.logger, "strategy:"+name, st.tier, tier, dd)
		st.tier = tier
	}
}

func (g *Governor) retierPortfolio() {
	// Portfolio drawdown is measured against the rolling equity peak itself.
	peak := peakOf(g.equityWindow, g.equity)
	dd := 0.0
	if peak > 0 {
		dd = (peak - g.equity) / peak
	}
	tier := tierForDrawdown(dd, g.portfolioTiers)
	if tier != g.safetyTier {
		logging.LogTierChange(g.logger, "portfolio", g.safetyTier, tier, dd)
		g.safetyTier = tier
	}
}

// StrategyTier returns a strategy's own tier.
func (g *Governor) StrategyTier(name string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if st, ok := g.strategies[name]; ok {
		return st.tier
	}
	return 0
}

// SafetyTier returns the portfolio-wide safety-net tier.
func (g *Governor) SafetyTier() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.safetyTier
}

// EffectiveTier is the tier admission control must obey for a strategy:
// max(own tier, portfolio safety-net tier).
func (g *Governor) EffectiveTier(name string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	tier := g.safetyTier
	if st, ok := g.strategies[name]; ok && st.tier > tier {
		tier = st.tier
	}
	return tier
}

// AllowanceFor returns what the strategy's effective tier currently grants.
// The most restrictive configured tier typically maps to zero entries, a
// halt for that strategy only, never a global halt.
func (g *Governor) AllowanceFor(name string) Allowance {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tier := g.safetyTier
	var tiers []config.TierConfig
	if st, ok := g.strategies[name]; ok {
		tiers = st.tiers
		if st.tier > tier {
			tier = st.tier
		}
	}
	return allowanceAt(tier, tiers)
}

// Equity returns current realized equity.
func (g *Governor) Equity() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.equity
}

// CumulativePnL returns a strategy's cumulative realized PnL.
func (g *Governor) CumulativePnL(name string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if st, ok := g.strategies[name]; ok {
		return st.cumPnL
	}
	return 0
}

// tierForDrawdown derives a tier from a drawdown fraction against an ordered
// threshold table. Pure; both governor loops share it.
func tierForDrawdown(drawdown float64, tiers []config.TierConfig) int {
	tier := 0
	for i, t := range tiers {
		if drawdown >= t.Drawdown {
			tier = i + 1
		}
	}
	return tier
}

// allowanceAt maps a tier to its allowance using the strategy's tier table.
// Tiers beyond the table clamp to its most restrictive entry.
func allowanceAt(tier int, tiers []config.TierConfig) Allowance {
	if tier <= 0 {
		return Allowance{RiskMultiplier: 1.0, MaxEntries: -1}
	}
	if len(tiers) == 0 {
		// A safety-net tier with no strategy table to interpret it halts
		// the strategy outright.
		return Allowance{RiskMultiplier: 0, MaxEntries: 0}
	}
	idx := tier - 1
	if idx >= len(tiers) {
		idx = len(tiers) - 1
	}
	return Allowance{RiskMultiplier: tiers[idx].RiskMultiplier, MaxEntries: tiers[idx].MaxEntries}
}

func peakOf(r *ring, current float64) float64 {
	peak := current
	if m, ok := r.Max(); ok && m > peak {
		peak = m
	}
	return peak
}

func drawdownFraction(peak, current, reference float64) float64 {
	if reference <= 0 {
		return 0
	}
	dd := (peak - current) / reference
	if dd < 0 {
		return 0
	}
	return dd
}
