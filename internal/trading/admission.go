package trading

import (
	stderrors "errors"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"swing-trader/internal/config"
	"swing-trader/internal/errors"
	"swing-trader/internal/logging"
	"swing-trader/internal/models"
	"swing-trader/internal/monitoring"
	"swing-trader/internal/risk"
)

// Candidate is one signal presented to admission control, together with the
// pre-open price used by the gap filter and, for the confirmation timing
// group, whether the signal confirmed before the deadline.
type Candidate struct {
	Signal         models.Signal
	PreMarketPrice float64
	Confirmed      bool
}

// AdmissionController decides which candidate signals become orders. Every
// rejection is terminal for the day; nothing is queued or retried.
type AdmissionController struct {
	cfg       *config.Config
	gov       *risk.Governor
	portfolio *PortfolioState
	book      *PositionBook
	logger    zerolog.Logger
	metrics   *monitoring.Metrics
}

// NewAdmissionController creates an admission controller.
func NewAdmissionController(cfg *config.Config, gov *risk.Governor, portfolio *PortfolioState, book *PositionBook, logger zerolog.Logger, metrics *monitoring.Metrics) *AdmissionController {
	return &AdmissionController{
		cfg:       cfg,
		gov:       gov,
		portfolio: portfolio,
		book:      book,
		logger:    logger.With().Str("component", "admission").Logger(),
		metrics:   metrics,
	}
}

// Admit filters, ranks, and sizes one timing group's candidates, reserving
// capacity for each admitted order as it goes so later candidates see the
// earlier admissions.
func (a *AdmissionController) Admit(candidates []Candidate, group models.TimingGroup) []AdmittedOrder {
	eligible := a.filter(candidates, group)
	a.rank(eligible)

	multiStrategy := spansStrategies(eligible)

	var admitted []AdmittedOrder
	for _, c := range eligible {
		order, err := a.admitOne(c, multiStrategy)
		if err != nil {
			a.handleReject(c.Signal, err)
			continue
		}
		a.portfolio.NoteEntry(c.Signal)
		a.metrics.RecordAdmission(c.Signal.Strategy)
		admitted = append(admitted, order)
	}
	return admitted
}

// handleReject routes an admission failure: capacity rejections are expected
// and counted, an unsizable signal is a per-signal data defect, anything else
// is an engine error.
func (a *AdmissionController) handleReject(sig models.Signal, err error) {
	var capErr *errors.CapacityError
	if errors.IsCapacityRejected(err) && stderrors.As(err, &capErr) {
		a.reject(sig, capErr.Reason)
		return
	}
	if errors.IsInvalidSignal(err) {
		a.logger.Warn().Err(err).Str("strategy", sig.Strategy).Str("symbol", sig.Symbol).Msg("Unsizable signal")
		return
	}
	a.logger.Error().Err(err).Str("strategy", sig.Strategy).Str("symbol", sig.Symbol).Msg("Signal dropped on error")
}

// filter drops unconfirmed confirmation-group signals and gapped opens before
// ranking, so neither competes for capacity.
func (a *AdmissionController) filter(candidates []Candidate, group models.TimingGroup) []Candidate {
	var eligible []Candidate
	for _, c := range candidates {
		if c.Signal.Timing != group {
			continue
		}
		if group == models.TimingConfirm && !c.Confirmed {
			a.reject(c.Signal, errors.RejectConfirmMissed)
			continue
		}
		if a.gapped(c) {
			a.reject(c.Signal, errors.RejectGap)
			continue
		}
		eligible = append(eligible, c)
	}
	return eligible
}

// gapped reports whether the pre-open price has moved away from the signal's
// reference close by more than the gap threshold, in either direction. The
// setup was built on the reference close; a large overnight gap invalidates
// it even when the gap is favorable.
func (a *AdmissionController) gapped(c Candidate) bool {
	if c.Signal.PrevClose <= 0 || c.PreMarketPrice <= 0 {
		return false
	}
	gap := math.Abs(c.PreMarketPrice-c.Signal.PrevClose) / c.Signal.PrevClose
	return gap > a.cfg.Risk.GapThreshold
}

// rank orders candidates by score plus an underrepresentation bonus, so a
// strategy with little open exposure competes ahead of an equally scored
// crowded one. Ties break on symbol to keep the order deterministic.
func (a *AdmissionController) rank(candidates []Candidate) {
	total := a.portfolio.TotalOpen()
	rankOf := func(c Candidate) float64 {
		bonus := 1.0
		if total > 0 {
			bonus = 1.0 - float64(a.portfolio.StrategyOpen(c.Signal.Strategy))/float64(total)
		}
		return c.Signal.Score + a.cfg.Risk.RankBonusWeight*bonus
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := rankOf(candidates[i]), rankOf(candidates[j])
		if ri != rj {
			return ri > rj
		}
		return candidates[i].Signal.Symbol < candidates[j].Signal.Symbol
	})
}

func (a *AdmissionController) admitOne(c Candidate, multiStrategy bool) (AdmittedOrder, error) {
	sig := c.Signal

	if a.book.Get(sig.Symbol) != nil || a.portfolio.ClosedToday(sig.Symbol) {
		return AdmittedOrder{}, errors.NewCapacityError(sig.Strategy, sig.Symbol, errors.RejectReentryBlock)
	}
	if a.portfolio.EntriesToday() >= a.cfg.Risk.MaxDailyEntries {
		return AdmittedOrder{}, errors.NewCapacityError(sig.Strategy, sig.Symbol, errors.RejectDailyCap)
	}
	if a.directionFull(sig.Direction) {
		return AdmittedOrder{}, errors.NewCapacityError(sig.Strategy, sig.Symbol, errors.RejectDirectionCap)
	}
	if sig.Sector != "" && a.portfolio.SectorOpen(sig.Sector) >= a.cfg.Risk.MaxPerSector {
		return AdmittedOrder{}, errors.NewCapacityError(sig.Strategy, sig.Symbol, errors.RejectSectorCap)
	}
	// The per-strategy cap is soft: it only binds while strategies are
	// competing for the same day's slots.
	if multiStrategy && a.portfolio.StrategyOpen(sig.Strategy) >= a.cfg.Risk.MaxPerStrategy {
		return AdmittedOrder{}, errors.NewCapacityError(sig.Strategy, sig.Symbol, errors.RejectStrategyCap)
	}

	allowance := a.gov.AllowanceFor(sig.Strategy)
	if allowance.MaxEntries == 0 {
		return AdmittedOrder{}, errors.NewCapacityError(sig.Strategy, sig.Symbol, errors.RejectTierHalt)
	}
	if allowance.MaxEntries > 0 && a.portfolio.EntriesFor(sig.Strategy) >= allowance.MaxEntries {
		return AdmittedOrder{}, errors.NewCapacityError(sig.Strategy, sig.Symbol, errors.RejectTierHalt)
	}

	qty, err := risk.ComputeQuantity(risk.SizeRequest{
		Strategy:     sig.Strategy,
		Symbol:       sig.Symbol,
		Direction:    sig.Direction,
		EntryPrice:   sig.EntryPrice,
		StopPrice:    sig.StopPrice,
		Equity:       a.gov.Equity(),
		WeightCap:    a.cfg.Risk.WeightCap,
		RiskFraction: a.cfg.Risk.RiskPerTrade * allowance.RiskMultiplier,
		ShortRatio:   a.cfg.Risk.ShortSizeRatio,
	})
	if err != nil {
		return AdmittedOrder{}, err
	}
	if qty <= 0 {
		return AdmittedOrder{}, errors.NewCapacityError(sig.Strategy, sig.Symbol, errors.RejectZeroQuantity)
	}

	levels, err := risk.ComputeLevels(&sig, a.cfg.Strategy(sig.Strategy))
	if err != nil {
		return AdmittedOrder{}, err
	}

	return AdmittedOrder{Signal: sig, Quantity: qty, Levels: levels}, nil
}

func (a *AdmissionController) directionFull(dir models.Direction) bool {
	if dir == models.DirectionLong {
		return a.portfolio.DirectionOpen(dir) >= a.cfg.Risk.MaxLongPositions
	}
	return a.portfolio.DirectionOpen(dir) >= a.cfg.Risk.MaxShortPositions
}

func (a *AdmissionController) reject(sig models.Signal, reason errors.RejectReason) {
	logging.LogReject(a.logger, sig.Strategy, sig.Symbol, string(reason))
	a.metrics.RecordRejection(string(reason))
}

func spansStrategies(candidates []Candidate) bool {
	var first string
	for i, c := range candidates {
		if i == 0 {
			first = c.Signal.Strategy
			continue
		}
		if c.Signal.Strategy != first {
			return true
		}
	}
	return false
}
