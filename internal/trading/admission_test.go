package trading

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"swing-trader/internal/config"
	"swing-trader/internal/models"
	"swing-trader/internal/risk"
)

func admissionTestConfig() *config.Config {
	return &config.Config{
		Risk: config.RiskConfig{
			BaseEquity:        100000,
			WeightCap:         1.0, // sizing stays risk-bound in these tests
			RiskPerTrade:      0.02,
			ShortSizeRatio:    0.65,
			GapThreshold:      0.04,
			MaxDailyEntries:   3,
			MaxLongPositions:  4,
			MaxShortPositions: 2,
			MaxPerSector:      2,
			MaxPerStrategy:    2,
			RankBonusWeight:   0.15,
		},
		Governor: config.GovernorConfig{WindowDays: 60},
		Strategies: map[string]config.StrategyConfig{
			"momentum": {
				MaxHoldDays:      5,
				ReferenceCapital: 100000,
				WindowDays:       60,
				Tiers: []config.TierConfig{
					{Drawdown: 0.03, RiskMultiplier: 0.5, MaxEntries: 2},
					{Drawdown: 0.06, RiskMultiplier: 0, MaxEntries: 0},
				},
			},
			"meanrev": {
				MaxHoldDays:      5,
				ReferenceCapital: 100000,
				WindowDays:       60,
				Tiers: []config.TierConfig{
					{Drawdown: 0.05, RiskMultiplier: 0.5, MaxEntries: 2},
					{Drawdown: 0.10, RiskMultiplier: 0, MaxEntries: 0},
				},
			},
		},
	}
}

func newAdmission(cfg *config.Config) (*AdmissionController, *risk.Governor, *PortfolioState, *PositionBook) {
	gov := risk.NewGovernor(cfg, zerolog.Nop())
	portfolio := NewPortfolioState()
	book := NewPositionBook()
	ac := NewAdmissionController(cfg, gov, portfolio, book, zerolog.Nop(), nil)
	return ac, gov, portfolio, book
}

func sig(strategy, symbol string, dir models.Direction, score float64) models.Signal {
	stop := 95.0
	if dir == models.DirectionShort {
		stop = 105.0
	}
	return models.Signal{
		Strategy:   strategy,
		Symbol:     symbol,
		Sector:     "tech",
		Direction:  dir,
		EntryPrice: 100,
		StopPrice:  stop,
		Score:      score,
		Timing:     models.TimingAtOpen,
		PrevClose:  100,
	}
}

func atOpen(signals ...models.Signal) []Candidate {
	out := make([]Candidate, 0, len(signals))
	for _, s := range signals {
		out = append(out, Candidate{Signal: s, PreMarketPrice: s.PrevClose})
	}
	return out
}

func TestAdmission_SizesAdmittedOrders(t *testing.T) {
	ac, _, _, _ := newAdmission(admissionTestConfig())

	admitted := ac.Admit(atOpen(sig("momentum", "ACME", models.DirectionLong, 0.9)), models.TimingAtOpen)
	if len(admitted) != 1 {
		t.Fatalf("expected 1 admission, got %d", len(admitted))
	}
	// $2,000 at risk over a $5 stop distance.
	if admitted[0].Quantity != 400 {
		t.Errorf("expected 400 shares, got %d", admitted[0].Quantity)
	}
	if admitted[0].Levels.Stop != 95 {
		t.Errorf("expected stop 95, got %v", admitted[0].Levels.Stop)
	}
}

func TestAdmission_DailyCap(t *testing.T) {
	ac, _, portfolio, _ := newAdmission(admissionTestConfig())

	// Distinct sectors so only the daily cap binds.
	a := sig("momentum", "AAA", models.DirectionLong, 0.9)
	b := sig("momentum", "BBB", models.DirectionLong, 0.8)
	b.Sector = "energy"
	c := sig("momentum", "CCC", models.DirectionLong, 0.7)
	c.Sector = "pharma"
	d := sig("momentum", "DDD", models.DirectionLong, 0.6)
	d.Sector = "auto"

	admitted := ac.Admit(atOpen(a, b, c, d), models.TimingAtOpen)
	if len(admitted) != 3 {
		t.Fatalf("daily cap is 3, admitted %d", len(admitted))
	}
	if portfolio.EntriesToday() != 3 {
		t.Errorf("expected 3 entries recorded, got %d", portfolio.EntriesToday())
	}
	// The cap admits by rank: the lowest-scored candidate is the one cut.
	for _, ord := range admitted {
		if ord.Signal.Symbol == "DDD" {
			t.Error("lowest-ranked candidate should have been cut by the daily cap")
		}
	}
}

func TestAdmission_DirectionCap(t *testing.T) {
	ac, _, _, _ := newAdmission(admissionTestConfig())

	a := sig("momentum", "AAA", models.DirectionShort, 0.9)
	b := sig("momentum", "BBB", models.DirectionShort, 0.8)
	b.Sector = "energy"
	c := sig("momentum", "CCC", models.DirectionShort, 0.7)
	c.Sector = "pharma"

	admitted := ac.Admit(atOpen(a, b, c), models.TimingAtOpen)
	if len(admitted) != 2 {
		t.Errorf("short cap is 2, admitted %d", len(admitted))
	}
}

func TestAdmission_SectorCap(t *testing.T) {
	ac, _, _, _ := newAdmission(admissionTestConfig())

	a := sig("momentum", "AAA", models.DirectionLong, 0.9)
	b := sig("momentum", "BBB", models.DirectionLong, 0.8)
	c := sig("momentum", "CCC", models.DirectionLong, 0.7)
	d := sig("momentum", "DDD", models.DirectionLong, 0.6)
	d.Sector = "energy"

	admitted := ac.Admit(atOpen(a, b, c, d), models.TimingAtOpen)
	if len(admitted) != 3 {
		t.Fatalf("expected 3 admissions, got %d", len(admitted))
	}
	// Two tech slots plus the energy candidate; CCC is squeezed out.
	symbols := map[string]bool{}
	for _, ord := range admitted {
		symbols[ord.Signal.Symbol] = true
	}
	if symbols["CCC"] || !symbols["DDD"] {
		t.Errorf("sector cap admitted the wrong set: %v", symbols)
	}
}

func TestAdmission_SameDayReentryBlockedAcrossStrategies(t *testing.T) {
	ac, _, portfolio, _ := newAdmission(admissionTestConfig())

	portfolio.NoteExit(&models.Position{Symbol: "ACME", Strategy: "momentum", Direction: models.DirectionLong})

	// A different strategy wanting the just-closed symbol is still blocked.
	admitted := ac.Admit(atOpen(sig("meanrev", "ACME", models.DirectionLong, 0.9)), models.TimingAtOpen)
	if len(admitted) != 0 {
		t.Fatal("symbol closed today must not be re-entered by any strategy")
	}

	// The block lifts with the next session's reset.
	portfolio.ResetDay(nil)
	admitted = ac.Admit(atOpen(sig("meanrev", "ACME", models.DirectionLong, 0.9)), models.TimingAtOpen)
	if len(admitted) != 1 {
		t.Error("re-entry block must not survive the daily reset")
	}
}

func TestAdmission_OpenPositionBlocksDoubleEntry(t *testing.T) {
	ac, _, _, book := newAdmission(admissionTestConfig())
	book.Open(&models.Position{Symbol: "ACME", Strategy: "momentum", State: models.StateActive})

	admitted := ac.Admit(atOpen(sig("meanrev", "ACME", models.DirectionLong, 0.9)), models.TimingAtOpen)
	if len(admitted) != 0 {
		t.Error("an already-open symbol must not be entered again")
	}
}

func TestAdmission_TierHaltBlocksOnlyThatStrategy(t *testing.T) {
	ac, gov, _, _ := newAdmission(admissionTestConfig())

	// Drive momentum past its 6% threshold: tier 2, zero entries.
	gov.SnapshotDay()
	gov.RecordTrade(models.ClosedTrade{Strategy: "momentum", PnL: -6200, ExitDate: time.Now()})

	admitted := ac.Admit(atOpen(
		sig("momentum", "AAA", models.DirectionLong, 0.9),
		sig("meanrev", "BBB", models.DirectionLong, 0.5),
	), models.TimingAtOpen)
	if len(admitted) != 1 || admitted[0].Signal.Strategy != "meanrev" {
		t.Fatalf("halt must be strategy-scoped, admitted %+v", admitted)
	}
}

func TestAdmission_TierEntryCapAndReducedRisk(t *testing.T) {
	ac, gov, _, _ := newAdmission(admissionTestConfig())

	// 3% drawdown: tier 1, half risk, two entries per day.
	gov.SnapshotDay()
	gov.RecordTrade(models.ClosedTrade{Strategy: "momentum", PnL: -3000, ExitDate: time.Now()})

	admitted := ac.Admit(atOpen(
		sig("momentum", "AAA", models.DirectionLong, 0.9),
		sig("momentum", "BBB", models.DirectionLong, 0.8),
		sig("momentum", "CCC", models.DirectionLong, 0.7),
	), models.TimingAtOpen)
	if len(admitted) != 2 {
		t.Fatalf("tier 1 allows 2 entries, admitted %d", len(admitted))
	}
	// Equity is down to $97k and risk halved: 97000*0.02*0.5 / 5 = 194.
	if admitted[0].Quantity != 194 {
		t.Errorf("expected risk-reduced 194 shares, got %d", admitted[0].Quantity)
	}
}

func TestAdmission_StrategyCapOnlyUnderContention(t *testing.T) {
	cfg := admissionTestConfig()
	cfg.Risk.MaxDailyEntries = 10
	ac, _, portfolio, book := newAdmission(cfg)

	// Two momentum positions already open: at the per-strategy cap.
	for _, symbol := range []string{"OLD1", "OLD2"} {
		pos := &models.Position{Symbol: symbol, Strategy: "momentum", Sector: "other", Direction: models.DirectionLong, State: models.StateActive}
		book.Open(pos)
	}
	portfolio.ResetDay(book.List())

	// Alone on the day, momentum may exceed its soft cap.
	admitted := ac.Admit(atOpen(sig("momentum", "AAA", models.DirectionLong, 0.9)), models.TimingAtOpen)
	if len(admitted) != 1 {
		t.Fatal("soft cap must not bind without competing strategies")
	}

	// Competing with another strategy, the cap binds.
	portfolio.ResetDay(book.List())
	admitted = ac.Admit(atOpen(
		sig("momentum", "BBB", models.DirectionLong, 0.9),
		sig("meanrev", "CCC", models.DirectionLong, 0.5),
	), models.TimingAtOpen)
	if len(admitted) != 1 || admitted[0].Signal.Strategy != "meanrev" {
		t.Fatalf("soft cap must bind under contention, admitted %+v", admitted)
	}
}

func TestAdmission_GapFilter(t *testing.T) {
	ac, _, _, _ := newAdmission(admissionTestConfig())

	gapped := sig("momentum", "AAA", models.DirectionLong, 0.9)
	ok := sig("momentum", "BBB", models.DirectionLong, 0.8)

	admitted := ac.Admit([]Candidate{
		{Signal: gapped, PreMarketPrice: 105}, // 5% gap up, past the 4% threshold
		{Signal: ok, PreMarketPrice: 103},     // 3% gap, inside
	}, models.TimingAtOpen)
	if len(admitted) != 1 || admitted[0].Signal.Symbol != "BBB" {
		t.Fatalf("expected only the un-gapped candidate, got %+v", admitted)
	}
}

func TestAdmission_GapFilterIsTwoSided(t *testing.T) {
	ac, _, _, _ := newAdmission(admissionTestConfig())

	down := sig("momentum", "AAA", models.DirectionLong, 0.9)
	admitted := ac.Admit([]Candidate{{Signal: down, PreMarketPrice: 95}}, models.TimingAtOpen)
	if len(admitted) != 0 {
		t.Error("a 5% gap down must also be filtered")
	}
}

func TestAdmission_ConfirmMissedDiscarded(t *testing.T) {
	ac, _, _, _ := newAdmission(admissionTestConfig())

	confirmed := sig("momentum", "AAA", models.DirectionLong, 0.9)
	confirmed.Timing = models.TimingConfirm
	missed := sig("momentum", "BBB", models.DirectionLong, 0.8)
	missed.Timing = models.TimingConfirm

	admitted := ac.Admit([]Candidate{
		{Signal: confirmed, PreMarketPrice: 100, Confirmed: true},
		{Signal: missed, PreMarketPrice: 100, Confirmed: false},
	}, models.TimingConfirm)
	if len(admitted) != 1 || admitted[0].Signal.Symbol != "AAA" {
		t.Fatalf("unconfirmed signals must be discarded, got %+v", admitted)
	}
}

func TestAdmission_UnderrepresentationBonus(t *testing.T) {
	cfg := admissionTestConfig()
	cfg.Risk.MaxDailyEntries = 1
	ac, _, portfolio, book := newAdmission(cfg)

	// momentum holds the whole book; meanrev holds nothing.
	for _, symbol := range []string{"OLD1", "OLD2"} {
		book.Open(&models.Position{Symbol: symbol, Strategy: "momentum", Sector: "other", Direction: models.DirectionLong, State: models.StateActive})
	}
	portfolio.ResetDay(book.List())

	// Equal raw scores: the empty strategy's full bonus wins the single slot.
	admitted := ac.Admit(atOpen(
		sig("momentum", "AAA", models.DirectionLong, 0.8),
		sig("meanrev", "BBB", models.DirectionLong, 0.8),
	), models.TimingAtOpen)
	if len(admitted) != 1 || admitted[0].Signal.Strategy != "meanrev" {
		t.Fatalf("expected the underrepresented strategy to win the slot, got %+v", admitted)
	}
}

func TestAdmission_InvalidSignalDoesNotConsumeCapacity(t *testing.T) {
	cfg := admissionTestConfig()
	cfg.Risk.MaxDailyEntries = 1
	ac, _, _, _ := newAdmission(cfg)

	bad := sig("momentum", "AAA", models.DirectionLong, 0.9)
	bad.StopPrice = 0

	admitted := ac.Admit(atOpen(
		bad,
		sig("momentum", "BBB", models.DirectionLong, 0.5),
	), models.TimingAtOpen)
	if len(admitted) != 1 || admitted[0].Signal.Symbol != "BBB" {
		t.Fatalf("an unsizable signal must not burn the day's slot, got %+v", admitted)
	}
}
