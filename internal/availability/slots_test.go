package availability

import (
	"testing"
	"time"

	"github.com/slotwise/slotwise/internal/model"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func at(t *testing.T, loc *time.Location, hour, min int) time.Time {
	t.Helper()
	return time.Date(2026, time.September, 7, hour, min, 0, 0, loc) // a Monday
}

func TestOverlapsHalfOpen(t *testing.T) {
	loc := time.UTC
	a := Interval{Start: at(t, loc, 9, 0), End: at(t, loc, 10, 0)}

	// Abutting intervals share an endpoint but no time.
	b := Interval{Start: at(t, loc, 10, 0), End: at(t, loc, 11, 0)}
	if Overlaps(a, b) {
		t.Fatalf("abutting intervals reported as overlapping")
	}
	if Overlaps(b, a) {
		t.Fatalf("abutting intervals reported as overlapping (reversed)")
	}

	c := Interval{Start: at(t, loc, 9, 30), End: at(t, loc, 10, 30)}
	if !Overlaps(a, c) {
		t.Fatalf("intersecting intervals reported as disjoint")
	}

	// Full containment overlaps.
	d := Interval{Start: at(t, loc, 9, 15), End: at(t, loc, 9, 45)}
	if !Overlaps(a, d) {
		t.Fatalf("contained interval reported as disjoint")
	}
}

func TestContainedInAnyRejectsBoundarySpanning(t *testing.T) {
	loc := time.UTC
	windows := []Interval{
		{Start: at(t, loc, 9, 0), End: at(t, loc, 12, 0)},
		{Start: at(t, loc, 12, 0), End: at(t, loc, 17, 0)},
	}

	if !ContainedInAny(windows, at(t, loc, 9, 0), at(t, loc, 10, 0)) {
		t.Fatalf("slot inside first window rejected")
	}
	if !ContainedInAny(windows, at(t, loc, 16, 0), at(t, loc, 17, 0)) {
		t.Fatalf("slot ending exactly at window close rejected")
	}
	// 11:30-12:30 is jointly covered by the two windows but spans the seam.
	if ContainedInAny(windows, at(t, loc, 11, 30), at(t, loc, 12, 30)) {
		t.Fatalf("boundary-spanning slot accepted")
	}
	if ContainedInAny(windows, at(t, loc, 8, 30), at(t, loc, 9, 30)) {
		t.Fatalf("slot starting before open accepted")
	}
}

func TestSlotsGeneration(t *testing.T) {
	loc := time.UTC
	windowStart := at(t, loc, 9, 0)
	windowEnd := at(t, loc, 17, 0)
	busy := []Interval{
		{Start: at(t, loc, 10, 0), End: at(t, loc, 10, 30)},
	}
	now := at(t, loc, 0, 0)

	slots := Slots(windowStart, windowEnd, 30*time.Minute, 30*time.Minute, busy, now)
	if len(slots) == 0 {
		t.Fatalf("no slots generated")
	}
	if !slots[0].Equal(at(t, loc, 9, 0)) {
		t.Fatalf("first slot = %v, want 09:00", slots[0])
	}
	if last := slots[len(slots)-1]; !last.Equal(at(t, loc, 16, 30)) {
		t.Fatalf("last slot = %v, want 16:30", last)
	}
	// 16 half-hour starts 09:00..16:30, minus the one busy start.
	if len(slots) != 15 {
		t.Fatalf("got %d slots, want 15", len(slots))
	}
	for _, s := range slots {
		if s.Equal(at(t, loc, 10, 0)) {
			t.Fatalf("busy start 10:00 offered as a slot")
		}
	}
	// 10:30 abuts the busy interval's end; half-open means it's free.
	found := false
	for _, s := range slots {
		if s.Equal(at(t, loc, 10, 30)) {
			found = true
		}
	}
	if !found {
		t.Fatalf("slot abutting busy end not offered")
	}
}

func TestSlotsLongerDurationBlocksNeighbors(t *testing.T) {
	loc := time.UTC
	busy := []Interval{
		{Start: at(t, loc, 10, 0), End: at(t, loc, 10, 30)},
	}
	slots := Slots(at(t, loc, 9, 0), at(t, loc, 12, 0), 60*time.Minute, 30*time.Minute, busy, time.Time{})

	// A 60-minute booking at 09:30 would run into the 10:00 busy block.
	for _, s := range slots {
		if s.Equal(at(t, loc, 9, 30)) || s.Equal(at(t, loc, 10, 0)) {
			t.Fatalf("slot %v overlaps busy interval", s)
		}
	}
	// The final start must leave room for the full duration before close.
	if last := slots[len(slots)-1]; !last.Equal(at(t, loc, 11, 0)) {
		t.Fatalf("last slot = %v, want 11:00", last)
	}
}

func TestSlotsSuppressesPastStarts(t *testing.T) {
	loc := time.UTC
	now := at(t, loc, 10, 15)
	slots := Slots(at(t, loc, 9, 0), at(t, loc, 12, 0), 30*time.Minute, 30*time.Minute, nil, now)
	if len(slots) == 0 {
		t.Fatalf("no slots generated")
	}
	if !slots[0].Equal(at(t, loc, 10, 30)) {
		t.Fatalf("first slot = %v, want 10:30 (first start not in the past)", slots[0])
	}
}

func TestDayWindowsFiltersWeekday(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	hours := []model.HoursInterval{
		{Weekday: 1, StartMinute: 9 * 60, EndMinute: 17 * 60},  // Monday
		{Weekday: 2, StartMinute: 10 * 60, EndMinute: 18 * 60}, // Tuesday
		{Weekday: 1, StartMinute: 0, EndMinute: 0},             // degenerate, dropped
	}
	monday := time.Date(2026, time.September, 7, 12, 0, 0, 0, loc)

	windows := DayWindows(hours, monday, loc)
	if len(windows) != 1 {
		t.Fatalf("got %d windows, want 1", len(windows))
	}
	wantStart := time.Date(2026, time.September, 7, 9, 0, 0, 0, loc)
	wantEnd := time.Date(2026, time.September, 7, 17, 0, 0, 0, loc)
	if !windows[0].Start.Equal(wantStart) || !windows[0].End.Equal(wantEnd) {
		t.Fatalf("window = %v-%v, want %v-%v", windows[0].Start, windows[0].End, wantStart, wantEnd)
	}
}

func TestDayWindowsResolvesUTCInstantToLocalDay(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	hours := []model.HoursInterval{
		{Weekday: 1, StartMinute: 9 * 60, EndMinute: 17 * 60},
	}
	// 01:00 UTC Tuesday is still Monday evening in New York.
	utcInstant := time.Date(2026, time.September, 8, 1, 0, 0, 0, time.UTC)

	windows := DayWindows(hours, utcInstant, loc)
	if len(windows) != 1 {
		t.Fatalf("got %d windows, want 1 (Monday local)", len(windows))
	}
	if windows[0].Start.Day() != 7 {
		t.Fatalf("window resolved to local day %d, want 7", windows[0].Start.Day())
	}
}

func TestBlockWindows(t *testing.T) {
	loc := time.UTC
	blocks := []model.TimeBlock{
		{StartMinute: 12 * 60, EndMinute: 13 * 60, Type: model.BlockBreak},
		{StartMinute: 13 * 60, EndMinute: 13 * 60, Type: model.BlockBlocked}, // degenerate
	}
	day := time.Date(2026, time.September, 7, 0, 0, 0, 0, loc)

	windows := BlockWindows(blocks, day, loc)
	if len(windows) != 1 {
		t.Fatalf("got %d block windows, want 1", len(windows))
	}
	if windows[0].Start.Hour() != 12 || windows[0].End.Hour() != 13 {
		t.Fatalf("block window = %v-%v, want 12:00-13:00", windows[0].Start, windows[0].End)
	}
}
