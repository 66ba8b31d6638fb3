package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters for the scheduling engine. All
// observe methods are nil-safe so callers can run without a registry.
type SchedulingMetrics struct {
	bookingsTotal  *prometheus.CounterVec
	slotsGenerated prometheus.Counter
	windowsCreated prometheus.Counter
	sweptSlots     prometheus.Counter
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking and cancellation attempts by outcome",
		}, []string{"op", "outcome"}),
		slotsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "availability",
			Name:      "slots_generated_total",
			Help:      "Slots materialized from availability windows",
		}),
		windowsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "availability",
			Name:      "windows_created_total",
			Help:      "Availability windows persisted, recurrence occurrences included",
		}),
		sweptSlots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "sweeper",
			Name:      "blocked_slots_total",
			Help:      "Past still-open slots blocked by the sweeper",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.slotsGenerated, m.windowsCreated, m.sweptSlots)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(op, outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(op, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveSlotsGenerated(n int) {
	if m == nil {
		return
	}
	m.slotsGenerated.Add(float64(n))
}

func (m *SchedulingMetrics) ObserveWindowCreated() {
	if m == nil {
		return
	}
	m.windowsCreated.Inc()
}

func (m *SchedulingMetrics) ObserveSweptSlots(n int64) {
	if m == nil {
		return
	}
	m.sweptSlots.Add(float64(n))
}
