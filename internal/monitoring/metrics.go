// Package monitoring provides Prometheus metrics for the engine.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and turns every record call into a no-op, so components don't need to care
// whether the endpoint is enabled.
type Metrics struct {
	entriesAdmitted  *prometheus.CounterVec
	entriesRejected  *prometheus.CounterVec
	tradesClosed     *prometheus.CounterVec
	openPositions    prometheus.Gauge
	strategyTier     *prometheus.GaugeVec
	safetyTier       prometheus.Gauge
	realizedEquity   prometheus.Gauge
}

// NewMetrics creates and registers the engine collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		entriesAdmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_entries_admitted_total",
			Help: "Signals admitted into positions, by strategy",
		}, []string{"strategy"}),
		entriesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_entries_rejected_total",
			Help: "Signals rejected by admission control, by reason",
		}, []string{"reason"}),
		tradesClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_trades_closed_total",
			Help: "Positions closed, by strategy and exit reason",
		}, []string{"strategy", "reason"}),
		openPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "trader_open_positions",
			Help: "Currently open positions",
		}),
		strategyTier: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trader_strategy_tier",
			Help: "Effective drawdown tier per strategy",
		}, []string{"strategy"}),
		safetyTier: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "trader_safety_tier",
			Help: "Portfolio safety-net tier",
		}),
		realizedEquity: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "trader_realized_equity",
			Help: "Realized account equity",
		}),
	}
}

// RecordAdmission counts an admitted entry.
func (m *Metrics) RecordAdmission(strategy string) {
	if m == nil {
		return
	}
	m.entriesAdmitted.WithLabelValues(strategy).Inc()
}

// RecordRejection counts an admission rejection.
func (m *Metrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.entriesRejected.WithLabelValues(reason).Inc()
}

// RecordClose counts a closed trade.
func (m *Metrics) RecordClose(strategy, reason string) {
	if m == nil {
		return
	}
	m.tradesClosed.WithLabelValues(strategy, reason).Inc()
}

// SetOpenPositions updates the open-position gauge.
func (m *Metrics) SetOpenPositions(n int) {
	if m == nil {
		return
	}
	m.openPositions.Set(float64(n))
}

// SetTiers updates the tier gauges.
func (m *Metrics) SetTiers(strategyTiers map[string]int, safetyTier int) {
	if m == nil {
		return
	}
	for strategy, tier := range strategyTiers {
		m.strategyTier.WithLabelValues(strategy).Set(float64(tier))
	}
	m.safetyTier.Set(float64(safetyTier))
}

// SetRealizedEquity updates the equity gauge.
func (m *Metrics) SetRealizedEquity(equity float64) {
	if m == nil {
		return
	}
	m.realizedEquity.Set(equity)
}

// Serve exposes the metrics endpoint. It blocks; run it in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}
