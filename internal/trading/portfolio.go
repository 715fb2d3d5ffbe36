package trading

import (
	"sync"

	"swing-trader/internal/models"
)

// PortfolioState holds the day-scoped occupancy counters and the same-day
// closed-symbols set. The admission controller is the sole writer of entry
// counters; the orchestrator resets the state at each session open. All
// mutation happens inside orchestrator wake-ups, so the mutex only matters
// when an implementation fans intraday watches out to goroutines.
type PortfolioState struct {
	mu sync.RWMutex

	entriesToday      int
	entriesByStrategy map[string]int

	longOpen     int
	shortOpen    int
	sectorOpen   map[string]int
	strategyOpen map[string]int

	// closedToday blocks re-entry into any symbol closed earlier this
	// session, regardless of which strategy closed it or wants back in.
	closedToday map[string]bool
}

// NewPortfolioState creates an empty portfolio state.
func NewPortfolioState() *PortfolioState {
	p := &PortfolioState{}
	p.reset(nil)
	return p
}

// ResetDay zeroes the daily counters and the closed-symbols set, then
// re-derives occupancy from the positions still open at session start.
func (p *PortfolioState) ResetDay(open []*models.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset(open)
}

func (p *PortfolioState) reset(open []*models.Position) {
	p.entriesToday = 0
	p.entriesByStrategy = make(map[string]int)
	p.longOpen = 0
	p.shortOpen = 0
	p.sectorOpen = make(map[string]int)
	p.strategyOpen = make(map[string]int)
	p.closedToday = make(map[string]bool)

	for _, pos := range open {
		p.countPosition(pos.Direction, pos.Sector, pos.Strategy, +1)
	}
}

func (p *PortfolioState) countPosition(dir models.Direction, sector, strategy string, delta int) {
	if dir == models.DirectionLong {
		p.longOpen += delta
	} else {
		p.shortOpen += delta
	}
	if sector != "" {
		p.sectorOpen[sector] += delta
	}
	p.strategyOpen[strategy] += delta
}

// NoteEntry records an admitted entry in every occupancy counter.
func (p *PortfolioState) NoteEntry(sig models.Signal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entriesToday++
	p.entriesByStrategy[sig.Strategy]++
	p.countPosition(sig.Direction, sig.Sector, sig.Strategy, +1)
}

// UnwindEntry reverses NoteEntry after a full order rejection, so a failed
// placement does not consume capacity.
func (p *PortfolioState) UnwindEntry(sig models.Signal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entriesToday--
	p.entriesByStrategy[sig.Strategy]--
	p.countPosition(sig.Direction, sig.Sector, sig.Strategy, -1)
}

// NoteExit releases occupancy and adds the symbol to the same-day re-entry
// block.
func (p *PortfolioState) NoteExit(pos *models.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.countPosition(pos.Direction, pos.Sector, pos.Strategy, -1)
	p.closedToday[pos.Symbol] = true
}

// ClosedToday reports whether a symbol was closed earlier this session.
func (p *PortfolioState) ClosedToday(symbol string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closedToday[symbol]
}

// EntriesToday returns the daily entry count.
func (p *PortfolioState) EntriesToday() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entriesToday
}

// EntriesFor returns today's entry count for one strategy.
func (p *PortfolioState) EntriesFor(strategy string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entriesByStrategy[strategy]
}

// DirectionOpen returns the open-position count for a direction.
func (p *PortfolioState) DirectionOpen(dir models.Direction) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if dir == models.DirectionLong {
		return p.longOpen
	}
	return p.shortOpen
}

// SectorOpen returns the open-position count for a sector.
func (p *PortfolioState) SectorOpen(sector string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sectorOpen[sector]
}

// StrategyOpen returns the open-position count for a strategy.
func (p *PortfolioState) StrategyOpen(strategy string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.strategyOpen[strategy]
}

// TotalOpen returns the total open-position count.
func (p *PortfolioState) TotalOpen() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.longOpen + p.shortOpen
}
