package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// TokenMetrics exposes supply and bridge instrumentation for a ledger node.
type TokenMetrics struct {
	supplyDelta     *prometheus.CounterVec
	interestAccrued prometheus.Counter
	globalRate      prometheus.Gauge
	bridgeLocks     *prometheus.CounterVec
	bridgeReleases  *prometheus.CounterVec
	bridgeRejected  *prometheus.CounterVec
	inFlight        prometheus.Gauge
}

var (
	tokenOnce     sync.Once
	tokenRegistry *TokenMetrics
)

// Token returns the process-wide token metrics registry.
func Token() *TokenMetrics {
	tokenOnce.Do(func() {
		tokenRegistry = &TokenMetrics{
			supplyDelta: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "token_supply_events_total",
				Help: "Count of supply-changing events by reason.",
			}, []string{"reason"}),
			interestAccrued: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "token_interest_accrued_units_total",
				Help: "Total interest materialized into principal, in whole tokens.",
			}),
			globalRate: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "token_global_rate",
				Help: "Current global accrual rate (fixed point, 1e18 scale).",
			}),
			bridgeLocks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "bridge_locks_total",
				Help: "Count of outbound bridge locks by destination domain.",
			}, []string{"domain"}),
			bridgeReleases: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "bridge_releases_total",
				Help: "Count of inbound bridge releases by source domain.",
			}, []string{"domain"}),
			bridgeRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "bridge_rejections_total",
				Help: "Count of rejected bridge operations by cause.",
			}, []string{"cause"}),
			inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "bridge_in_flight_units",
				Help: "Value burned locally but not yet confirmed on a remote ledger, in whole tokens.",
			}),
		}
		prometheus.MustRegister(
			tokenRegistry.supplyDelta,
			tokenRegistry.interestAccrued,
			tokenRegistry.globalRate,
			tokenRegistry.bridgeLocks,
			tokenRegistry.bridgeReleases,
			tokenRegistry.bridgeRejected,
			tokenRegistry.inFlight,
		)
	})
	return tokenRegistry
}

func (m *TokenMetrics) ObserveSupplyEvent(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.supplyDelta.WithLabelValues(reason).Inc()
}

func (m *TokenMetrics) AddInterestAccrued(units float64) {
	if m == nil || units <= 0 {
		return
	}
	m.interestAccrued.Add(units)
}

func (m *TokenMetrics) SetGlobalRate(rate *big.Int) {
	if m == nil || rate == nil {
		return
	}
	value, _ := new(big.Float).SetInt(rate).Float64()
	m.globalRate.Set(value)
}

func (m *TokenMetrics) ObserveBridgeLock(domain string) {
	if m == nil {
		return
	}
	m.bridgeLocks.WithLabelValues(domain).Inc()
}

func (m *TokenMetrics) ObserveBridgeRelease(domain string) {
	if m == nil {
		return
	}
	m.bridgeReleases.WithLabelValues(domain).Inc()
}

func (m *TokenMetrics) ObserveBridgeRejection(cause string) {
	if m == nil {
		return
	}
	if cause == "" {
		cause = "unknown"
	}
	m.bridgeRejected.WithLabelValues(cause).Inc()
}

func (m *TokenMetrics) SetInFlight(units float64) {
	if m == nil {
		return
	}
	m.inFlight.Set(units)
}
