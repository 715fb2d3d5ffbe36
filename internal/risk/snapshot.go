package risk

// StrategySnapshot is the persisted form of one strategy's risk state.
type StrategySnapshot struct {
	Strategy      string    `json:"strategy"`
	CumulativePnL float64   `json:"cumulative_pnl"`
	Window        []float64 `json:"window"`
	Tier          int       `json:"tier"`
}

// Snapshot is the persisted form of the governor. On restart, tiers and
// windows are reconstructed from it rather than recomputed from scratch.
type Snapshot struct {
	Strategies   []StrategySnapshot `json:"strategies"`
	Equity       float64            `json:"equity"`
	EquityWindow []float64          `json:"equity_window"`
	SafetyTier   int                `json:"safety_tier"`
}

// Export captures the governor state for persistence.
func (g *Governor) Export() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := Snapshot{
		Equity:       g.equity,
		EquityWindow: g.equityWindow.Values(),
		SafetyTier:   g.safetyTier,
	}
	for name, st := range g.strategies {
		snap.Strategies = append(snap.Strategies, StrategySnapshot{
			Strategy:      name,
			CumulativePnL: st.cumPnL,
			Window:        st.window.Values(),
			Tier:          st.tier,
		})
	}
	return snap
}

// Restore loads a persisted snapshot. Strategies present in the snapshot but
// absent from configuration are ignored.
func (g *Governor) Restore(snap Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.equity = snap.Equity
	g.equityWindow.Fill(snap.EquityWindow)
	g.safetyTier = snap.SafetyTier

	for _, ss := range snap.Strategies {
		st, ok := g.strategies[ss.Strategy]
		if !ok {
			g.logger.Warn().Str("strategy", ss.Strategy).Msg("Snapshot for unknown strategy dropped")
			continue
		}
		st.cumPnL = ss.CumulativePnL
		st.window.Fill(ss.Window)
		st.tier = ss.Tier
	}
}
