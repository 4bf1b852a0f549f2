package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the engine's Prometheus collectors. A nil *Metrics is safe
// to call, so tests can pass nil without a registry.
type Metrics struct {
	BookingsCreated     prometheus.Counter
	BookingConflicts    prometheus.Counter
	BookingsRescheduled prometheus.Counter
	BookingsCancelled   prometheus.Counter

	SlotChecks      *prometheus.CounterVec
	SeriesAdvanced  prometheus.Counter
	SeriesConflicts prometheus.Counter
	SeriesCompleted prometheus.Counter

	OutboxPublished prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		BookingsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "slotwise_bookings_created_total",
			Help: "Bookings accepted into the ledger.",
		}),
		BookingConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "slotwise_booking_conflicts_total",
			Help: "Booking attempts rejected for overlapping an existing booking.",
		}),
		BookingsRescheduled: f.NewCounter(prometheus.CounterOpts{
			Name: "slotwise_bookings_rescheduled_total",
			Help: "Bookings moved to a new time.",
		}),
		BookingsCancelled: f.NewCounter(prometheus.CounterOpts{
			Name: "slotwise_bookings_cancelled_total",
			Help: "Bookings cancelled.",
		}),
		SlotChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "slotwise_slot_checks_total",
			Help: "Slot availability checks by verdict.",
		}, []string{"verdict"}),
		SeriesAdvanced: f.NewCounter(prometheus.CounterOpts{
			Name: "slotwise_recurring_materialized_total",
			Help: "Occurrences materialized from recurring series.",
		}),
		SeriesConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "slotwise_recurring_conflicts_total",
			Help: "Recurring occurrences skipped because the slot was unavailable.",
		}),
		SeriesCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "slotwise_recurring_completed_total",
			Help: "Recurring series that reached their cap or end date.",
		}),
		OutboxPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "slotwise_outbox_published_total",
			Help: "Outbox events published to the broker.",
		}),
	}
}

func (m *Metrics) IncBookingsCreated() {
	if m != nil {
		m.BookingsCreated.Inc()
	}
}

func (m *Metrics) IncBookingConflicts() {
	if m != nil {
		m.BookingConflicts.Inc()
	}
}

func (m *Metrics) IncBookingsRescheduled() {
	if m != nil {
		m.BookingsRescheduled.Inc()
	}
}

func (m *Metrics) IncBookingsCancelled() {
	if m != nil {
		m.BookingsCancelled.Inc()
	}
}

func (m *Metrics) IncSlotCheck(verdict string) {
	if m != nil {
		m.SlotChecks.WithLabelValues(verdict).Inc()
	}
}

func (m *Metrics) IncSeriesAdvanced() {
	if m != nil {
		m.SeriesAdvanced.Inc()
	}
}

func (m *Metrics) IncSeriesConflicts() {
	if m != nil {
		m.SeriesConflicts.Inc()
	}
}

func (m *Metrics) IncSeriesCompleted() {
	if m != nil {
		m.SeriesCompleted.Inc()
	}
}

func (m *Metrics) IncOutboxPublished() {
	if m != nil {
		m.OutboxPublished.Inc()
	}
}

// Handler exposes the given registry (or the default) for scraping.
func Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
