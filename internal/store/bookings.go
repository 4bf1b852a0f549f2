package store

import (
	"context"
	"time"

	"github.com/slotwise/slotwise/internal/model"
	"github.com/slotwise/slotwise/internal/outbox"
)

// BookingLedger is the single mutable shared resource of the engine. Writes
// are transactional and carry outbox events committed atomically with the
// row change; the bookings exclusion constraint is the authoritative
// conflict arbiter, surfaced as ErrConflict.
type BookingLedger interface {
	// FindOverlapping returns pending/confirmed bookings of the same
	// (provider, staff) calendar whose half-open interval intersects
	// [start,end), optionally excluding one booking id (reschedule
	// self-exclusion).
	FindOverlapping(ctx context.Context, providerID, staffID string, start, end time.Time, excludeID string) ([]model.Booking, error)

	Create(ctx context.Context, b model.Booking, evts ...outbox.Event) (model.Booking, error)
	Get(ctx context.Context, bookingID string) (model.Booking, error)
	// Reschedule moves a non-terminal booking to a new interval, leaving
	// status untouched.
	Reschedule(ctx context.Context, bookingID string, start, end time.Time, evts ...outbox.Event) (model.Booking, error)
	// Cancel is idempotent: cancelling an already-cancelled booking
	// returns it unchanged. The row is retained for audit.
	Cancel(ctx context.Context, bookingID, reason string, evts ...outbox.Event) (model.Booking, error)
	UpdateStatus(ctx context.Context, bookingID string, status model.BookingStatus) (model.Booking, error)
	ListByProvider(ctx context.Context, providerID string, limit int) ([]model.Booking, error)
}

// RecurringStore persists recurring-booking series. Advance applies a
// materialization step atomically: cursor/counter/status update on the
// series, the optional generated booking, and outbox events in one
// transaction, so CurrentBookingCount can never drift from the bookings
// actually created.
type RecurringStore interface {
	Create(ctx context.Context, rb model.RecurringBooking) (model.RecurringBooking, error)
	Get(ctx context.Context, seriesID string) (model.RecurringBooking, error)
	ListByProvider(ctx context.Context, providerID string, limit int) ([]model.RecurringBooking, error)
	SetStatus(ctx context.Context, seriesID string, status model.SeriesStatus) (model.RecurringBooking, error)
	// Advance compares against orig's cursor and counter before applying
	// next, so two concurrent materializers cannot both step the same
	// series; a lost race returns ErrConflict with no state change.
	Advance(ctx context.Context, orig, next model.RecurringBooking, b *model.Booking, evts ...outbox.Event) (model.RecurringBooking, *model.Booking, error)
	// DueSeries returns active series whose cursor has not yet passed the
	// horizon date, i.e. candidates for materialization.
	DueSeries(ctx context.Context, horizon time.Time, limit int) ([]model.RecurringBooking, error)
}
