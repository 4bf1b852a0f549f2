package model

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingNoShow    BookingStatus = "no_show"
)

// Blocks reports whether a booking in this status occupies its interval
// for conflict purposes. Cancelled and no-show rows are kept for audit but
// never block a slot.
func (s BookingStatus) Blocks() bool {
	return s == BookingPending || s == BookingConfirmed
}

// Terminal reports whether the status permits no further transitions.
func (s BookingStatus) Terminal() bool {
	return s == BookingCompleted || s == BookingCancelled || s == BookingNoShow
}

type Booking struct {
	ID                 string
	ProviderID         string
	StaffID            string // empty = provider's default calendar
	ServiceID          string
	CustomerID         string
	StartTime          time.Time
	EndTime            time.Time
	DurationMinutes    int
	Status             BookingStatus
	RecurringBookingID string
	CancelledAt        *time.Time
	CancellationReason string
	CreatedAt          time.Time
}
