package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ducminhle1904/crypto-trade-gate/internal/ledger"
	"github.com/ducminhle1904/crypto-trade-gate/internal/orchestrator"
	"github.com/ducminhle1904/crypto-trade-gate/internal/safety"
)

// Metrics holds the gate's Prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	decisionsTotal *prometheus.CounterVec
	failuresTotal  *prometheus.CounterVec
	orderNotional  *prometheus.HistogramVec
	realizedPnL    prometheus.Gauge
	currentPrice   *prometheus.GaugeVec
	ledgerCapital  *prometheus.GaugeVec
	healthErrors   prometheus.Gauge
	breakerTripped prometheus.Gauge
	openPositions  prometheus.Gauge
}

// NewMetrics creates and registers the collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_gate_decisions_total",
				Help: "Pipeline results by kind and status",
			},
			[]string{"kind", "status"},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_gate_failures_total",
				Help: "Order failures by category",
			},
			[]string{"category"},
		),
		orderNotional: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trade_gate_order_notional",
				Help:    "Distribution of executed order notionals in quote currency",
				Buckets: prometheus.ExponentialBuckets(5, 2, 10),
			},
			[]string{"symbol"},
		),
		realizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trade_gate_realized_pnl",
			Help: "Realized PnL since start",
		}),
		currentPrice: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trade_gate_current_price",
				Help: "Last validated price of the trading symbol",
			},
			[]string{"symbol"},
		),
		ledgerCapital: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trade_gate_ledger_capital",
				Help: "Ledger figures: total, reserved and available",
			},
			[]string{"figure"},
		),
		healthErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trade_gate_health_consecutive_errors",
			Help: "Consecutive infrastructure errors seen by the health monitor",
		}),
		breakerTripped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trade_gate_breaker_tripped",
			Help: "1 when the kill switch is active",
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trade_gate_open_positions",
			Help: "Open positions held by the risk evaluator",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.decisionsTotal,
		m.failuresTotal,
		m.orderNotional,
		m.realizedPnL,
		m.currentPrice,
		m.ledgerCapital,
		m.healthErrors,
		m.breakerTripped,
		m.openPositions,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveResult counts a pipeline result
func (m *Metrics) ObserveResult(res orchestrator.Result) {
	m.decisionsTotal.WithLabelValues(string(res.Kind), string(res.Status)).Inc()

	switch res.Status {
	case orchestrator.StatusFailed:
		m.failuresTotal.WithLabelValues(string(res.Category)).Inc()
	case orchestrator.StatusExecuted:
		if res.Position != nil {
			m.orderNotional.WithLabelValues(res.Position.Symbol).Observe(res.Position.Cost)
		}
		if res.Closed != nil {
			m.realizedPnL.Add(res.Closed.RealizedPnL)
		}
	}
}

// UpdatePrice updates the current price metric
func (m *Metrics) UpdatePrice(symbol string, price float64) {
	m.currentPrice.WithLabelValues(symbol).Set(price)
}

// UpdateLedger mirrors the ledger figures
func (m *Metrics) UpdateLedger(s ledger.Status) {
	m.ledgerCapital.WithLabelValues("total").Set(s.Total)
	m.ledgerCapital.WithLabelValues("reserved").Set(s.Reserved)
	m.ledgerCapital.WithLabelValues("available").Set(s.Available)
}

// UpdateSafety mirrors the health counter and breaker state
func (m *Metrics) UpdateSafety(h safety.HealthStatus, b safety.BreakerStatus) {
	m.healthErrors.Set(float64(h.ErrorCount))
	if b.KillSwitchActive {
		m.breakerTripped.Set(1)
	} else {
		m.breakerTripped.Set(0)
	}
}

// UpdateOpenPositions sets the open position gauge
func (m *Metrics) UpdateOpenPositions(n int) {
	m.openPositions.Set(float64(n))
}
