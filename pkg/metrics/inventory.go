package metrics

import "github.com/prometheus/client_golang/prometheus"

// InventoryMetrics tracks ledger contention and hold lifecycle outcomes.
type InventoryMetrics struct {
	insufficient *prometheus.CounterVec
	conflicts    *prometheus.CounterVec
	holdsExpired prometheus.Counter
	available    *prometheus.GaugeVec
}

// NewInventoryMetrics registers the inventory metrics on the provided registerer.
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	insufficient := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_insufficient_total",
		Help: "Reservation attempts rejected for insufficient availability.",
	}, []string{"tier"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_conflict_total",
		Help: "Guarded ledger updates that lost a concurrent race.",
	}, []string{"op"})
	holdsExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "holds_expired_total",
		Help: "Holds released by the expiry sweep.",
	})
	available := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tier_available",
		Help: "Last observed available quantity per tier.",
	}, []string{"tier"})
	reg.MustRegister(insufficient, conflicts, holdsExpired, available)
	return &InventoryMetrics{
		insufficient: insufficient,
		conflicts:    conflicts,
		holdsExpired: holdsExpired,
		available:    available,
	}
}

// IncInsufficient counts a rejected reservation for the tier.
func (m *InventoryMetrics) IncInsufficient(tier string) {
	if m == nil || m.insufficient == nil {
		return
	}
	m.insufficient.WithLabelValues(tier).Inc()
}

// IncConflict counts a lost guarded update for the named ledger op.
func (m *InventoryMetrics) IncConflict(op string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(op).Inc()
}

// AddHoldsExpired records holds reclaimed by the sweep.
func (m *InventoryMetrics) AddHoldsExpired(n int) {
	if m == nil || m.holdsExpired == nil || n <= 0 {
		return
	}
	m.holdsExpired.Add(float64(n))
}

// SetAvailable updates the availability gauge for the tier.
func (m *InventoryMetrics) SetAvailable(tier string, available int) {
	if m == nil || m.available == nil {
		return
	}
	m.available.WithLabelValues(tier).Set(float64(available))
}
