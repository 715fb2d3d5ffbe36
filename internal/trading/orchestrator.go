package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"swing-trader/internal/broker"
	"swing-trader/internal/config"
	"swing-trader/internal/errors"
	"swing-trader/internal/feed"
	"swing-trader/internal/logging"
	"swing-trader/internal/models"
	"swing-trader/internal/monitoring"
	"swing-trader/internal/risk"
	"swing-trader/internal/store"
	"swing-trader/pkg/utils"
)

// Orchestrator drives one trading day through its phases: session open,
// confirmation deadline, intraday emergency watch, and end-of-day
// evaluation. The same orchestrator runs live against a real clock and feed,
// and in backtests against a simulated clock and historical data.
type Orchestrator struct {
	cfg     *config.Config
	logger  zerolog.Logger
	clock   Clock
	feed    feed.Feed
	broker  broker.Broker
	store   store.Store
	gov     *risk.Governor
	signals SignalSource
	metrics *monitoring.Metrics

	book      *PositionBook
	portfolio *PortfolioState
	admission *AdmissionController
	exits     *ExitEvaluator

	notices chan ForcedExitNotice

	// confirmPending holds confirmation-group signals between session open
	// and the confirmation deadline of the same morning.
	confirmPending []models.Signal
}

// NewOrchestrator wires the engine together.
func NewOrchestrator(cfg *config.Config, logger zerolog.Logger, clock Clock, f feed.Feed, b broker.Broker, st store.Store, gov *risk.Governor, signals SignalSource, metrics *monitoring.Metrics) *Orchestrator {
	book := NewPositionBook()
	portfolio := NewPortfolioState()
	return &Orchestrator{
		cfg:       cfg,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
		clock:     clock,
		feed:      f,
		broker:    b,
		store:     st,
		gov:       gov,
		signals:   signals,
		metrics:   metrics,
		book:      book,
		portfolio: portfolio,
		admission: NewAdmissionController(cfg, gov, portfolio, book, logger, metrics),
		exits:     NewExitEvaluator(cfg, logger),
		notices:   make(chan ForcedExitNotice, 64),
	}
}

// Book exposes the position book for status reporting.
func (o *Orchestrator) Book() *PositionBook { return o.book }

// Notify queues a forced-exit request from an external collaborator. It is
// applied at the next end-of-day evaluation.
func (o *Orchestrator) Notify(n ForcedExitNotice) {
	select {
	case o.notices <- n:
	default:
		o.logger.Warn().Str("symbol", n.Symbol).Msg("Forced-exit queue full, notice dropped")
	}
}

// Recover rebuilds governor and position state from the store after a
// restart. Positions resume in the state they were persisted in.
func (o *Orchestrator) Recover(ctx context.Context) error {
	snap, day, err := o.store.LoadLatestRiskSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("loading risk snapshot: %w", err)
	}
	if !day.IsZero() {
		o.gov.Restore(snap)
		o.logger.Info().Time("as_of", day).Msg("Risk state recovered")
	}

	positions, err := o.store.LoadPositions(ctx)
	if err != nil {
		return fmt.Errorf("loading positions: %w", err)
	}
	for _, pos := range positions {
		o.book.Open(pos)
	}
	if len(positions) > 0 {
		o.logger.Info().Int("count", len(positions)).Msg("Open positions recovered")
	}
	return nil
}

// SessionOpen runs the open phase: age and promote positions, execute queued
// forced exits at the open price, refresh safety-net stop orders, then admit
// and place the at-open timing group.
func (o *Orchestrator) SessionOpen(ctx context.Context, day time.Time) error {
	promoted := o.book.AdvanceDay(day)
	o.portfolio.ResetDay(o.book.List())

	for _, pos := range o.book.List() {
		if pos.ForcedExit == "" {
			continue
		}
		open, err := o.feed.OpenPrice(ctx, pos.Symbol, day)
		if err != nil {
			// No open print; the queued exit stays queued for the next open.
			o.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Forced exit deferred, no open price")
			continue
		}
		o.settle(ctx, pos, &ExitDecision{Reason: pos.ForcedExit, Price: open}, day)
	}

	for _, pos := range promoted {
		if pos.State == models.StateClosed {
			continue
		}
		o.placeSafetyStop(ctx, pos)
	}

	signals, err := o.signals.DailySignals(ctx, day)
	if err != nil {
		return fmt.Errorf("fetching signals: %w", err)
	}

	var openGroup []Candidate
	o.confirmPending = o.confirmPending[:0]
	for _, sig := range signals {
		switch sig.Timing {
		case models.TimingConfirm:
			o.confirmPending = append(o.confirmPending, sig)
		default:
			o.fillPrevClose(ctx, &sig, day)
			pre, err := o.feed.PreMarketPrice(ctx, sig.Symbol, day)
			if err != nil {
				o.logger.Warn().Err(err).Str("symbol", sig.Symbol).Msg("No pre-market price, gap filter skipped")
			}
			openGroup = append(openGroup, Candidate{Signal: sig, PreMarketPrice: pre})
		}
	}

	admitted := o.admission.Admit(openGroup, models.TimingAtOpen)
	o.placeEntries(ctx, admitted, day, func(symbol string) (float64, error) {
		return o.feed.OpenPrice(ctx, symbol, day)
	})
	return nil
}

// fillPrevClose backfills a signal's reference close from the feed so the gap
// filter still works when the signal source omits it.
func (o *Orchestrator) fillPrevClose(ctx context.Context, sig *models.Signal, day time.Time) {
	if sig.PrevClose > 0 {
		return
	}
	prev, err := o.feed.PrevClose(ctx, sig.Symbol, day)
	if err != nil {
		o.logger.Debug().Err(err).Str("symbol", sig.Symbol).Msg("No previous close, gap filter skipped")
		return
	}
	sig.PrevClose = prev
}

// ConfirmDeadline runs the confirmation phase: a confirmation-group signal
// executes only if its mid-morning price sits on the favorable side of the
// reference entry; everything else is discarded for the day.
func (o *Orchestrator) ConfirmDeadline(ctx context.Context, day time.Time) error {
	if len(o.confirmPending) == 0 {
		return nil
	}

	prices := make(map[string]float64, len(o.confirmPending))
	var group []Candidate
	for _, sig := range o.confirmPending {
		price, err := o.feed.ConfirmPrice(ctx, sig.Symbol, day)
		if err != nil {
			o.logger.Warn().Err(err).Str("symbol", sig.Symbol).Msg("No confirmation price")
			group = append(group, Candidate{Signal: sig, Confirmed: false})
			continue
		}
		prices[sig.Symbol] = price
		o.fillPrevClose(ctx, &sig, day)
		pre, err := o.feed.PreMarketPrice(ctx, sig.Symbol, day)
		if err != nil {
			o.logger.Warn().Err(err).Str("symbol", sig.Symbol).Msg("No pre-market price, gap filter skipped")
		}
		group = append(group, Candidate{
			Signal:         sig,
			PreMarketPrice: pre,
			Confirmed:      sig.IsFavorable(price),
		})
	}
	o.confirmPending = o.confirmPending[:0]

	admitted := o.admission.Admit(group, models.TimingConfirm)
	o.placeEntries(ctx, admitted, day, func(symbol string) (float64, error) {
		if price, ok := prices[symbol]; ok {
			return price, nil
		}
		return 0, &errors.DataGapError{Symbol: symbol, At: day.Format("2006-01-02")}
	})
	return nil
}

// HandleTick runs the entry-day emergency check for one intraday observation.
// Missing observations are not an error here; they simply never arrive.
func (o *Orchestrator) HandleTick(ctx context.Context, tick models.Tick) {
	pos := o.book.Get(tick.Symbol)
	if pos == nil || pos.State != models.StateEntryDay {
		return
	}
	decision := o.exits.EvaluateIntraday(pos, tick.Price)
	if decision != nil {
		o.settle(ctx, pos, decision, tick.Timestamp)
	}
}

// WatchIntraday consumes the intraday stream for entry-day positions until
// the stream ends or ctx is cancelled.
func (o *Orchestrator) WatchIntraday(ctx context.Context) error {
	entryDay := o.book.EntryDay()
	if len(entryDay) == 0 {
		return nil
	}
	symbols := make([]string, 0, len(entryDay))
	for _, pos := range entryDay {
		symbols = append(symbols, pos.Symbol)
	}

	ticks, err := o.feed.Ticks(ctx, symbols)
	if err != nil {
		return fmt.Errorf("subscribing intraday ticks: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick, ok := <-ticks:
			if !ok {
				return nil
			}
			o.HandleTick(ctx, tick)
		}
	}
}

// EndOfDay runs the close phase: apply queued forced-exit notices, evaluate
// every active position against its completed candle, settle immediate
// exits, queue deferred ones, ratchet safety-net stops, and persist the
// day's snapshots.
func (o *Orchestrator) EndOfDay(ctx context.Context, day time.Time) error {
	o.drainNotices()

	for _, pos := range o.book.Active() {
		candle, err := o.feed.DayCandle(ctx, pos.Symbol, day)
		if err != nil {
			o.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("No day candle, evaluation skipped")
			continue
		}
		decision := o.exits.EvaluateClose(pos, candle)
		switch {
		case decision == nil:
			o.refreshSafetyStop(ctx, pos)
		case decision.Deferred:
			pos.ForcedExit = decision.Reason
		default:
			o.settle(ctx, pos, decision, day)
		}
	}

	o.gov.SnapshotDay()

	if err := o.store.SaveRiskSnapshot(ctx, day, o.gov.Export()); err != nil {
		return fmt.Errorf("persisting risk snapshot: %w", err)
	}
	if err := o.store.SavePositions(ctx, o.book.List()); err != nil {
		return fmt.Errorf("persisting positions: %w", err)
	}

	o.metrics.SetOpenPositions(o.book.Len())
	o.metrics.SetRealizedEquity(o.gov.Equity())
	tiers := make(map[string]int, len(o.cfg.Strategies))
	for name := range o.cfg.Strategies {
		tiers[name] = o.gov.EffectiveTier(name)
	}
	o.metrics.SetTiers(tiers, o.gov.SafetyTier())
	return nil
}

// RunDay drives one complete trading day in order. Backtests call this per
// historical day; the live loop calls the phases individually on timers.
func (o *Orchestrator) RunDay(ctx context.Context, day time.Time) error {
	if err := o.SessionOpen(ctx, day); err != nil {
		return err
	}
	if err := o.ConfirmDeadline(ctx, day); err != nil {
		return err
	}
	if err := o.WatchIntraday(ctx); err != nil && err != context.Canceled {
		return err
	}
	return o.EndOfDay(ctx, day)
}

// Run is the live loop: sleep to each phase boundary of each trading day and
// run it. It returns when ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	loc, err := time.LoadLocation(o.cfg.Trading.Timezone)
	if err != nil {
		return fmt.Errorf("loading timezone: %w", err)
	}

	day := o.clock.Now().In(loc)
	for {
		if !utils.IsTradingDay(day) {
			day = utils.NextTradingDay(day)
			continue
		}

		openAt, err := utils.SessionTime(day, o.cfg.Trading.SessionOpen, loc)
		if err != nil {
			return err
		}
		confirmAt, err := utils.SessionTime(day, o.cfg.Trading.ConfirmDeadline, loc)
		if err != nil {
			return err
		}
		closeAt, err := utils.SessionTime(day, o.cfg.Trading.SessionClose, loc)
		if err != nil {
			return err
		}

		if o.clock.Now().In(loc).After(closeAt) {
			day = utils.NextTradingDay(day)
			continue
		}

		if err := o.sleepUntil(ctx, openAt); err != nil {
			return err
		}
		if err := o.SessionOpen(ctx, day); err != nil {
			o.logger.Error().Err(err).Msg("Session open failed")
		}

		// Watch at-open entries until the confirmation deadline, then restart
		// the watch so confirmation-group entries are covered too.
		cancelWatch := o.startWatch(ctx, closeAt)

		if err := o.sleepUntil(ctx, confirmAt); err != nil {
			cancelWatch()
			return err
		}
		if err := o.ConfirmDeadline(ctx, day); err != nil {
			o.logger.Error().Err(err).Msg("Confirmation phase failed")
		}
		cancelWatch()
		cancelWatch = o.startWatch(ctx, closeAt)

		if err := o.sleepUntil(ctx, closeAt); err != nil {
			cancelWatch()
			return err
		}
		cancelWatch()
		if err := o.EndOfDay(ctx, day); err != nil {
			o.logger.Error().Err(err).Msg("End of day failed")
		}

		day = utils.NextTradingDay(day)
	}
}

func (o *Orchestrator) startWatch(ctx context.Context, deadline time.Time) context.CancelFunc {
	watchCtx, cancel := context.WithDeadline(ctx, deadline)
	go func() {
		if err := o.WatchIntraday(watchCtx); err != nil && err != context.DeadlineExceeded && err != context.Canceled {
			o.logger.Error().Err(err).Msg("Intraday watch failed")
		}
	}()
	return cancel
}

func (o *Orchestrator) sleepUntil(ctx context.Context, t time.Time) error {
	d := t.Sub(o.clock.Now())
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) drainNotices() {
	for {
		select {
		case n := <-o.notices:
			o.exits.Flag(n.Symbol, n.Reason)
		default:
			return
		}
	}
}

// placeEntries executes admitted orders. A partial fill opens the position at
// the filled quantity; a full rejection releases the reserved capacity.
func (o *Orchestrator) placeEntries(ctx context.Context, admitted []AdmittedOrder, day time.Time, execPrice func(symbol string) (float64, error)) {
	for _, ord := range admitted {
		sig := ord.Signal

		price, err := execPrice(sig.Symbol)
		if err != nil {
			o.logger.Error().Err(err).Str("symbol", sig.Symbol).Msg("No execution price, entry abandoned")
			o.portfolio.UnwindEntry(sig)
			continue
		}

		side := models.OrderSideBuy
		if sig.Direction == models.DirectionShort {
			side = models.OrderSideSell
		}
		result, err := o.broker.PlaceOrder(ctx, &models.Order{
			Symbol:   sig.Symbol,
			Side:     side,
			Type:     models.OrderTypeMarket,
			Quantity: ord.Quantity,
			Tag:      sig.Strategy,
		})
		if err != nil || result.Status == broker.StatusRejected {
			if err == nil {
				err = errors.NewExecutionError(result.OrderID, result.Status, result.Message, nil)
			}
			o.logger.Error().Err(err).Str("symbol", sig.Symbol).Msg("Entry order rejected")
			o.portfolio.UnwindEntry(sig)
			continue
		}

		qty := ord.Quantity
		if result.Status == broker.StatusPartial && result.FilledQty > 0 {
			qty = result.FilledQty
			o.logger.Warn().Str("symbol", sig.Symbol).Int("requested", ord.Quantity).Int("filled", qty).Msg("Partial fill")
		}
		if result.AvgPrice > 0 {
			price = result.AvgPrice
		}

		pos := &models.Position{
			Symbol:      sig.Symbol,
			Strategy:    sig.Strategy,
			Sector:      sig.Sector,
			Direction:   sig.Direction,
			Quantity:    qty,
			EntryPrice:  price,
			EntryDate:   day,
			State:       models.StateEntryDay,
			StopPrice:   ord.Levels.Stop,
			TakeProfit:  ord.Levels.TakeProfit,
			TPIndicator: ord.Levels.TPIndicator,
			MaxHoldDays: o.cfg.Strategy(sig.Strategy).MaxHoldDays,
		}
		if tp := ord.Levels.Trailing; tp != nil {
			pos.Trailing = &models.TrailingState{ActivationPrice: tp.ActivationPrice, Distance: tp.Distance}
		}
		o.book.Open(pos)
		logging.LogEntry(o.logger, pos.Strategy, pos.Symbol, string(pos.Direction), pos.Quantity, pos.EntryPrice)
	}
}

// settle closes a position: cancel its safety-net stop, emit the trade
// record exactly once, and fold it into governor, store, and counters.
func (o *Orchestrator) settle(ctx context.Context, pos *models.Position, decision *ExitDecision, when time.Time) {
	if pos.StopOrderID != "" {
		if err := o.broker.CancelOrder(ctx, pos.StopOrderID); err != nil {
			o.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Safety-net stop cancel failed")
		}
		pos.StopOrderID = ""
	}

	side := models.OrderSideSell
	if pos.Direction == models.DirectionShort {
		side = models.OrderSideBuy
	}
	result, err := o.broker.PlaceOrder(ctx, &models.Order{
		Symbol:   pos.Symbol,
		Side:     side,
		Type:     models.OrderTypeMarket,
		Quantity: pos.Quantity,
		Tag:      pos.Strategy,
	})
	if err != nil || result.Status == broker.StatusRejected {
		if err == nil {
			err = errors.NewExecutionError(result.OrderID, result.Status, result.Message, nil)
		}
		o.logger.Error().Err(err).Str("symbol", pos.Symbol).Msg("Close order failed, position kept")
		o.placeSafetyStop(ctx, pos)
		return
	}

	if result.Status == broker.StatusPartial && result.FilledQty > 0 && result.FilledQty < pos.Quantity {
		trade, ferr := o.exits.FinalizePartial(pos, decision, when, result.FilledQty)
		if ferr != nil {
			o.logger.Error().Err(ferr).Str("symbol", pos.Symbol).Msg("Partial finalize failed")
			return
		}
		o.logger.Warn().Str("symbol", pos.Symbol).Int("filled", trade.Quantity).Int("remaining", pos.Quantity).Msg("Partial close fill, remainder stays monitored")
		o.recordTrade(ctx, trade)
		o.placeSafetyStop(ctx, pos)
		return
	}

	trade, err := o.exits.Finalize(pos, decision, when)
	if err != nil {
		o.logger.Error().Err(err).Str("symbol", pos.Symbol).Msg("Finalize failed")
		return
	}
	o.recordTrade(ctx, trade)
	o.portfolio.NoteExit(pos)
	o.book.Remove(pos.Symbol)
}

func (o *Orchestrator) recordTrade(ctx context.Context, trade *models.ClosedTrade) {
	if err := o.store.SaveClosedTrade(ctx, *trade); err != nil {
		o.logger.Error().Err(err).Str("symbol", trade.Symbol).Msg("Closed trade not persisted")
	}
	o.gov.RecordTrade(*trade)
	o.metrics.RecordClose(trade.Strategy, string(trade.Reason))
	logging.LogExit(o.logger, trade.Strategy, trade.Symbol, string(trade.Reason), trade.Quantity, trade.ExitPrice, trade.PnL)
}

// placeSafetyStop rests a stop order at the broker covering the position
// outside the engine's own monitoring.
func (o *Orchestrator) placeSafetyStop(ctx context.Context, pos *models.Position) {
	stop := pos.CurrentStop()
	if stop <= 0 {
		return
	}
	side := models.OrderSideSell
	if pos.Direction == models.DirectionShort {
		side = models.OrderSideBuy
	}
	result, err := o.broker.PlaceOrder(ctx, &models.Order{
		Symbol:       pos.Symbol,
		Side:         side,
		Type:         models.OrderTypeStopLossM,
		Quantity:     pos.Quantity,
		TriggerPrice: stop,
		Tag:          pos.Strategy + ":stop",
	})
	if err != nil {
		o.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Safety-net stop not placed")
		return
	}
	pos.StopOrderID = result.OrderID
}

// refreshSafetyStop moves the resting stop order when the trailing stop has
// ratcheted past it.
func (o *Orchestrator) refreshSafetyStop(ctx context.Context, pos *models.Position) {
	if pos.StopOrderID == "" {
		return
	}
	stop := pos.CurrentStop()
	if stop <= 0 {
		return
	}
	side := models.OrderSideSell
	if pos.Direction == models.DirectionShort {
		side = models.OrderSideBuy
	}
	if err := o.broker.ModifyOrder(ctx, pos.StopOrderID, &models.Order{
		Symbol:       pos.Symbol,
		Side:         side,
		Type:         models.OrderTypeStopLossM,
		Quantity:     pos.Quantity,
		TriggerPrice: stop,
	}); err != nil {
		o.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Safety-net stop not updated")
	}
}
