// Package metrics exposes the engine's Prometheus counters and gauges.
//
// Trimmed from phenomenon0-polymarket-agents's pkg/trader/metrics package
// (same CounterVec/HistogramVec/GaugeVec + private registry + MustRegister
// shape) down to the handful of series a single-process paper-trading
// engine actually needs: per-cycle throughput, sizing edge, ledger outcomes,
// and notifier health.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects the engine's Prometheus series behind a private registry.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal     *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	StationErrors   *prometheus.CounterVec
	DecisionsTotal  *prometheus.CounterVec
	DecisionEdge    *prometheus.HistogramVec
	KellyFraction   *prometheus.HistogramVec
	TradesResolved  *prometheus.CounterVec
	RealizedPnL     *prometheus.CounterVec
	NotifyFailures  *prometheus.CounterVec
	LiveFeedActive  prometheus.Gauge
}

// New builds a Metrics collector with all series registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dynamic_trader_cycles_total",
				Help: "Total number of engine cycles run",
			},
			[]string{"status"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dynamic_trader_cycle_duration_seconds",
				Help:    "Wall-clock duration of one engine cycle",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
		StationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dynamic_trader_station_errors_total",
				Help: "Recoverable per-station-day errors, by kind",
			},
			[]string{"station", "kind"},
		),
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dynamic_trader_decisions_total",
				Help: "Sizing decisions evaluated, by station and reason",
			},
			[]string{"station", "reason"},
		),
		DecisionEdge: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dynamic_trader_decision_edge",
				Help:    "Model-vs-market edge for evaluated brackets",
				Buckets: []float64{0, 0.01, 0.02, 0.05, 0.08, 0.12, 0.20, 0.30},
			},
			[]string{"station"},
		),
		KellyFraction: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dynamic_trader_kelly_fraction",
				Help:    "Kelly fraction f* (before caps) of placed trades",
				Buckets: prometheus.LinearBuckets(0, 0.01, 11),
			},
			[]string{"station"},
		),
		TradesResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dynamic_trader_trades_resolved_total",
				Help: "Resolved ledger rows, by outcome",
			},
			[]string{"station", "outcome"},
		),
		RealizedPnL: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dynamic_trader_realized_pnl_usd",
				Help: "Cumulative realized P&L in USD (can be negative cumulatively, but this is a counter of absolute swings)",
			},
			[]string{"station"},
		),
		NotifyFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dynamic_trader_notify_failures_total",
				Help: "Failed best-effort notification sends, by channel",
			},
			[]string{"channel"},
		),
		LiveFeedActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dynamic_trader_livefeed_active",
				Help: "1 if the websocket live price feed is currently connected",
			},
		),
	}

	registry.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.StationErrors,
		m.DecisionsTotal,
		m.DecisionEdge,
		m.KellyFraction,
		m.TradesResolved,
		m.RealizedPnL,
		m.NotifyFailures,
		m.LiveFeedActive,
	)

	return m
}

// Registry returns the collector's private Prometheus registry, for mounting
// under promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

var (
	defaultOnce sync.Once
	defaultM    *Metrics
)

// Default returns a process-wide Metrics instance, built once on first use.
func Default() *Metrics {
	defaultOnce.Do(func() { defaultM = New() })
	return defaultM
}
