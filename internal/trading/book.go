package trading

import (
	"sort"
	"sync"
	"time"

	"swing-trader/internal/models"
)

// PositionBook owns every open position. Positions enter via Open on an
// admitted-order fill and leave via Remove once the exit evaluator has
// finalized them.
type PositionBook struct {
	mu        sync.RWMutex
	positions map[string]*models.Position
}

// NewPositionBook creates an empty book.
func NewPositionBook() *PositionBook {
	return &PositionBook{positions: make(map[string]*models.Position)}
}

// Open adds a filled position to the book.
func (b *PositionBook) Open(pos *models.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[pos.Symbol] = pos
}

// Get returns the open position for a symbol, or nil.
func (b *PositionBook) Get(symbol string) *models.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.positions[symbol]
}

// Remove deletes a finalized position.
func (b *PositionBook) Remove(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.positions, symbol)
}

// List returns all open positions ordered by symbol, so every consumer
// iterates in a deterministic order.
func (b *PositionBook) List() []*models.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*models.Position, 0, len(b.positions))
	for _, pos := range b.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Len returns the open-position count.
func (b *PositionBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}

// EntryDay returns open positions still in their reduced-monitoring phase.
func (b *PositionBook) EntryDay() []*models.Position {
	var out []*models.Position
	for _, pos := range b.List() {
		if pos.State == models.StateEntryDay {
			out = append(out, pos)
		}
	}
	return out
}

// Active returns open positions under the full exit rule set.
func (b *PositionBook) Active() []*models.Position {
	var out []*models.Position
	for _, pos := range b.List() {
		if pos.State == models.StateActive {
			out = append(out, pos)
		}
	}
	return out
}

// AdvanceDay promotes positions at a session open: every position opened on
// an earlier day gains a day of age, and entry-day positions move to the
// full monitoring phase. Returns the positions promoted to Active, which is
// when their safety-net stop orders are due.
func (b *PositionBook) AdvanceDay(today time.Time) []*models.Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	var promoted []*models.Position
	for _, pos := range b.positions {
		if sameDay(pos.EntryDate, today) {
			continue
		}
		pos.DayIndex++
		if pos.State == models.StateEntryDay {
			pos.State = models.StateActive
			promoted = append(promoted, pos)
		}
	}
	sort.Slice(promoted, func(i, j int) bool { return promoted[i].Symbol < promoted[j].Symbol })
	return promoted
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
