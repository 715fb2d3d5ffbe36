package trading

import (
	"testing"
	"time"

	"swing-trader/internal/models"
)

func TestPositionBook_AdvanceDay(t *testing.T) {
	book := NewPositionBook()
	monday := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)

	book.Open(&models.Position{Symbol: "OLD", State: models.StateActive, EntryDate: monday.AddDate(0, 0, -3), DayIndex: 3})
	book.Open(&models.Position{Symbol: "NEW", State: models.StateEntryDay, EntryDate: monday})

	// Same-day advance: the entry-day position is untouched.
	promoted := book.AdvanceDay(monday)
	if len(promoted) != 0 {
		t.Fatalf("nothing entered before today, promoted %d", len(promoted))
	}
	if got := book.Get("NEW").DayIndex; got != 0 {
		t.Errorf("entry-day position aged on its own day: DayIndex %d", got)
	}

	// Next session: the entry-day position ages and promotes to active.
	promoted = book.AdvanceDay(tuesday)
	if len(promoted) != 1 || promoted[0].Symbol != "NEW" {
		t.Fatalf("expected NEW promoted, got %+v", promoted)
	}
	if got := book.Get("NEW"); got.State != models.StateActive || got.DayIndex != 1 {
		t.Errorf("expected active at day 1, got %s/%d", got.State, got.DayIndex)
	}
	if got := book.Get("OLD").DayIndex; got != 5 {
		t.Errorf("expected OLD aged twice to 5, got %d", got)
	}
}

func TestPositionBook_ListIsDeterministic(t *testing.T) {
	book := NewPositionBook()
	for _, symbol := range []string{"CCC", "AAA", "BBB"} {
		book.Open(&models.Position{Symbol: symbol, State: models.StateActive})
	}
	list := book.List()
	if list[0].Symbol != "AAA" || list[1].Symbol != "BBB" || list[2].Symbol != "CCC" {
		t.Errorf("expected symbol order, got %v", []string{list[0].Symbol, list[1].Symbol, list[2].Symbol})
	}
}
