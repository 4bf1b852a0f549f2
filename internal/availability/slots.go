package availability

import (
	"time"

	"github.com/slotwise/slotwise/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals [a.Start,a.End) and
// [b.Start,b.End) intersect. Touching endpoints do not overlap, so a slot
// may abut an existing booking's end exactly.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Contains reports whether [start,end) lies fully inside the window.
func Contains(win Interval, start, end time.Time) bool {
	return !start.Before(win.Start) && !end.After(win.End)
}

// ContainedInAny reports whether [start,end) fits inside a single window.
// A request spanning a window boundary (e.g. the provider closes mid-slot)
// is rejected even if adjacent windows would jointly cover it.
func ContainedInAny(windows []Interval, start, end time.Time) bool {
	for _, w := range windows {
		if Contains(w, start, end) {
			return true
		}
	}
	return false
}

// OverlapsAny reports whether [start,end) intersects any busy interval.
func OverlapsAny(start, end time.Time, busy []Interval) bool {
	target := Interval{Start: start, End: end}
	for _, b := range busy {
		if Overlaps(target, b) {
			return true
		}
	}
	return false
}

// Slots returns slot start times within [windowStart, windowEnd) where a
// booking of length duration would not overlap any busy interval. Starts
// already in the past (before now) are suppressed.
func Slots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}
	if windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !OverlapsAny(t, t.Add(duration), busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

// DayWindows resolves a weekly working-hours template to concrete instants
// for one provider-local day. Rows for other weekdays are ignored.
func DayWindows(hours []model.HoursInterval, day time.Time, loc *time.Location) []Interval {
	day = day.In(loc)
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	weekday := int(day.Weekday())

	var out []Interval
	for _, h := range hours {
		if h.Weekday != weekday || h.EndMinute <= h.StartMinute {
			continue
		}
		out = append(out, Interval{
			Start: midnight.Add(time.Duration(h.StartMinute) * time.Minute),
			End:   midnight.Add(time.Duration(h.EndMinute) * time.Minute),
		})
	}
	return out
}

// BlockWindows resolves time blocks on a given provider-local date to
// concrete instants.
func BlockWindows(blocks []model.TimeBlock, day time.Time, loc *time.Location) []Interval {
	day = day.In(loc)
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)

	var out []Interval
	for _, b := range blocks {
		if b.EndMinute <= b.StartMinute {
			continue
		}
		out = append(out, Interval{
			Start: midnight.Add(time.Duration(b.StartMinute) * time.Minute),
			End:   midnight.Add(time.Duration(b.EndMinute) * time.Minute),
		})
	}
	return out
}
