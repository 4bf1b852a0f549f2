package recurrence

import (
	"time"

	"github.com/slotwise/slotwise/internal/model"
)

// NextOccurrence computes the next candidate occurrence of a series, in the
// provider's location, skipping any candidate whose date appears in
// SkipDates. It returns ok=false when the series is exhausted: the count
// cap is reached, or every remaining candidate falls past EndDate.
//
// Monthly and quarterly recurrence is "by date": each occurrence lands on
// the series start's day-of-month, clamped to the last day of shorter
// months. Daily frequency and explicit weekday selection are not supported.
func NextOccurrence(rb model.RecurringBooking, loc *time.Location) (time.Time, bool) {
	if rb.MaxBookings > 0 && rb.CurrentBookingCount >= rb.MaxBookings {
		return time.Time{}, false
	}
	if !rb.Frequency.Valid() || rb.DurationMinutes <= 0 {
		return time.Time{}, false
	}

	start := rb.StartTime.In(loc)
	anchorDay := start.Day()

	var candidate time.Time
	if rb.LastOccurrence == nil {
		candidate = dateOf(start, loc)
	} else {
		candidate = advance(dateOf(rb.LastOccurrence.In(loc), loc), rb.Frequency, anchorDay)
	}

	for skipped(candidate, rb.SkipDates) {
		candidate = advance(candidate, rb.Frequency, anchorDay)
	}

	// Date columns scan as midnight UTC; compare calendar dates, not instants.
	if rb.EndDate != nil {
		ey, em, ed := rb.EndDate.UTC().Date()
		end := time.Date(ey, em, ed, 0, 0, 0, 0, loc)
		if candidate.After(end) {
			return time.Time{}, false
		}
	}

	occ := time.Date(candidate.Year(), candidate.Month(), candidate.Day(),
		start.Hour(), start.Minute(), 0, 0, loc)
	return occ, true
}

func advance(day time.Time, freq model.Frequency, anchorDay int) time.Time {
	switch freq {
	case model.FrequencyWeekly:
		return day.AddDate(0, 0, 7)
	case model.FrequencyBiweekly:
		return day.AddDate(0, 0, 14)
	case model.FrequencyMonthly:
		return addMonthsClamped(day, 1, anchorDay)
	case model.FrequencyQuarterly:
		return addMonthsClamped(day, 3, anchorDay)
	}
	return day.AddDate(0, 0, 7)
}

// addMonthsClamped moves forward by whole months keeping the anchor
// day-of-month, clamping Jan 31 → Feb 28/29 instead of letting the stdlib
// normalize it into March.
func addMonthsClamped(day time.Time, months int, anchorDay int) time.Time {
	firstOfTarget := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location()).AddDate(0, months, 0)
	d := anchorDay
	if last := daysInMonth(firstOfTarget); d > last {
		d = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, 0, 0, 0, 0, day.Location())
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

func skipped(day time.Time, skipDates []time.Time) bool {
	dy, dm, dd := day.Date()
	for _, s := range skipDates {
		sy, sm, sd := s.UTC().Date()
		if dy == sy && dm == sm && dd == sd {
			return true
		}
	}
	return false
}

func dateOf(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// WeeklyDates expands a weekly-repeating template date into every concrete
// date from the template's own date through endDate inclusive.
func WeeklyDates(templateDate, endDate time.Time) []time.Time {
	if endDate.Before(templateDate) {
		return nil
	}
	var out []time.Time
	for d := templateDate; !d.After(endDate); d = d.AddDate(0, 0, 7) {
		out = append(out, d)
	}
	return out
}

// DefaultBlockEnd is the expansion horizon for recurring time blocks with
// no explicit end date: December 31 of the template's start year.
func DefaultBlockEnd(templateDate time.Time) time.Time {
	return time.Date(templateDate.Year(), time.December, 31, 0, 0, 0, 0, templateDate.Location())
}
