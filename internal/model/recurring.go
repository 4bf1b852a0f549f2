package model

import "time"

type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyQuarterly:
		return true
	}
	return false
}

type SeriesStatus string

const (
	SeriesActive    SeriesStatus = "active"
	SeriesPaused    SeriesStatus = "paused"
	SeriesCompleted SeriesStatus = "completed"
	SeriesCancelled SeriesStatus = "cancelled"
)

// RecurringBooking is a template that periodically materializes concrete
// bookings. StartTime fixes both the first occurrence date and the clock
// time every occurrence keeps. LastOccurrence is the cursor: the date of
// the most recently considered occurrence (materialized or skipped).
type RecurringBooking struct {
	ID                  string
	ProviderID          string
	StaffID             string
	ServiceID           string
	CustomerID          string
	Frequency           Frequency
	StartTime           time.Time
	DurationMinutes     int
	EndDate             *time.Time
	MaxBookings         int // 0 = unbounded
	CurrentBookingCount int
	SkipDates           []time.Time
	Status              SeriesStatus
	AutoConfirm         bool
	LastOccurrence      *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
