package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type OfferMetrics struct {
	created      *prometheus.CounterVec
	countered    prometheus.Counter
	settled      prometheus.Counter
	refunded     *prometheus.CounterVec
	conflicts    prometheus.Counter
	escrowLocked *prometheus.GaugeVec
}

var (
	offerOnce     sync.Once
	offerRegistry *OfferMetrics
)

func Offers() *OfferMetrics {
	offerOnce.Do(func() {
		offerRegistry = &OfferMetrics{
			created: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "offer_created_total",
				Help: "Count of offers created by kind.",
			}, []string{"kind"}),
			countered: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "offer_countered_total",
				Help: "Count of counter-offers appended to chains.",
			}),
			settled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "offer_settled_total",
				Help: "Count of offers settled by acceptance.",
			}),
			refunded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "offer_refunded_total",
				Help: "Count of escrow refunds by terminal reason.",
			}, []string{"reason"}),
			conflicts: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "offer_conflicts_total",
				Help: "Count of optimistic-concurrency conflicts surfaced to callers.",
			}),
			escrowLocked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "escrow_locked",
				Help: "Amount currently locked in the escrow vault, by asset.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			offerRegistry.created,
			offerRegistry.countered,
			offerRegistry.settled,
			offerRegistry.refunded,
			offerRegistry.conflicts,
			offerRegistry.escrowLocked,
		)
	})
	return offerRegistry
}

func (m *OfferMetrics) ObserveCreated(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.created.WithLabelValues(kind).Inc()
}

func (m *OfferMetrics) ObserveCountered() {
	if m == nil {
		return
	}
	m.countered.Inc()
}

func (m *OfferMetrics) ObserveSettled() {
	if m == nil {
		return
	}
	m.settled.Inc()
}

func (m *OfferMetrics) ObserveRefunded(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.refunded.WithLabelValues(reason).Inc()
}

func (m *OfferMetrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

// EscrowLocked returns the gauge tracking the escrowed total for one asset.
func (m *OfferMetrics) EscrowLocked(asset string) prometheus.Gauge {
	if m == nil {
		return nil
	}
	return m.escrowLocked.WithLabelValues(asset)
}

// AdjustEscrowLocked moves the locked-escrow gauge by a signed delta.
func (m *OfferMetrics) AdjustEscrowLocked(asset string, delta *big.Int) {
	if m == nil || delta == nil || delta.Sign() == 0 {
		return
	}
	value, _ := new(big.Float).SetInt(delta).Float64()
	m.escrowLocked.WithLabelValues(asset).Add(value)
}
