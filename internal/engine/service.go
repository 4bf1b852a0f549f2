package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/slotwise/slotwise/internal/availability"
	"github.com/slotwise/slotwise/internal/metrics"
	"github.com/slotwise/slotwise/internal/model"
	"github.com/slotwise/slotwise/internal/outbox"
	"github.com/slotwise/slotwise/internal/recurrence"
	"github.com/slotwise/slotwise/internal/store"
)

// Engine evaluates availability and mutates the booking ledger. All decisions
// are made in the provider's timezone and persisted in UTC.
type Engine struct {
	schedule store.ScheduleStore
	bookings store.BookingLedger
	series   store.RecurringStore
	locker   Locker
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Engine)

func WithLocker(l Locker) Option {
	return func(e *Engine) { e.locker = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(schedule store.ScheduleStore, bookings store.BookingLedger, series store.RecurringStore, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		schedule: schedule,
		bookings: bookings,
		series:   series,
		locker:   noopLocker{},
		logger:   logger,
		now:      time.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Verdict is the outcome of a slot check. Reason names the first failing
// rule: working hours, then time off, then existing bookings.
type Verdict struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

const (
	ReasonOutsideHours       = "outside working hours"
	ReasonTimeOff            = "time off"
	ReasonConflictingBooking = "conflicting booking"
)

func (e *Engine) providerLocation(ctx context.Context, providerID string) (model.Provider, *time.Location, error) {
	p, err := e.schedule.GetProvider(ctx, providerID)
	if err != nil {
		return model.Provider{}, nil, err
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return model.Provider{}, nil, validationErr("timezone", "provider has invalid timezone "+p.Timezone)
	}
	return p, loc, nil
}

// CheckSlot reports whether [start,end) is bookable on the given calendar.
func (e *Engine) CheckSlot(ctx context.Context, providerID, staffID string, start, end time.Time) (Verdict, error) {
	if !end.After(start) {
		return Verdict{}, validationErr("end", "must be after start")
	}
	_, loc, err := e.providerLocation(ctx, providerID)
	if err != nil {
		return Verdict{}, err
	}
	return e.checkSlot(ctx, providerID, staffID, start, end, loc, "")
}

func (e *Engine) checkSlot(ctx context.Context, providerID, staffID string, start, end time.Time, loc *time.Location, excludeID string) (Verdict, error) {
	day := start.In(loc)

	hours, err := e.schedule.ListWorkingHours(ctx, providerID)
	if err != nil {
		return Verdict{}, err
	}
	windows := availability.DayWindows(hours, day, loc)
	if !availability.ContainedInAny(windows, start, end) {
		e.metrics.IncSlotCheck("outside_hours")
		return Verdict{Reason: ReasonOutsideHours}, nil
	}

	blocks, err := e.schedule.BlocksOn(ctx, providerID, day)
	if err != nil {
		return Verdict{}, err
	}
	if availability.OverlapsAny(start, end, availability.BlockWindows(blocks, day, loc)) {
		e.metrics.IncSlotCheck("time_off")
		return Verdict{Reason: ReasonTimeOff}, nil
	}

	overlapping, err := e.bookings.FindOverlapping(ctx, providerID, staffID, start, end, excludeID)
	if err != nil {
		return Verdict{}, err
	}
	if len(overlapping) > 0 {
		e.metrics.IncSlotCheck("conflict")
		return Verdict{Reason: ReasonConflictingBooking}, nil
	}

	e.metrics.IncSlotCheck("available")
	return Verdict{Available: true}, nil
}

// ListFreeSlots returns the bookable start instants for a service on one
// provider-local date: every step-aligned start inside working hours where
// the full duration clears blocks and existing bookings.
func (e *Engine) ListFreeSlots(ctx context.Context, providerID, staffID, serviceID string, date time.Time) ([]time.Time, error) {
	p, loc, err := e.providerLocation(ctx, providerID)
	if err != nil {
		return nil, err
	}
	durationMinutes, err := e.schedule.GetServiceDuration(ctx, providerID, serviceID)
	if err != nil {
		return nil, err
	}
	duration := time.Duration(durationMinutes) * time.Minute
	step := time.Duration(p.SlotStepMinutes) * time.Minute

	// The date arrives as a bare calendar day; resolve it in the provider's
	// zone so the weekday and window instants belong to that local day, not
	// to whatever day midnight UTC falls on there.
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)

	hours, err := e.schedule.ListWorkingHours(ctx, providerID)
	if err != nil {
		return nil, err
	}
	windows := availability.DayWindows(hours, day, loc)
	if len(windows) == 0 {
		return nil, nil
	}

	blocks, err := e.schedule.BlocksOn(ctx, providerID, day)
	if err != nil {
		return nil, err
	}
	busy := availability.BlockWindows(blocks, day, loc)

	now := e.now()
	var out []time.Time
	for _, w := range windows {
		booked, err := e.bookings.FindOverlapping(ctx, providerID, staffID, w.Start, w.End, "")
		if err != nil {
			return nil, err
		}
		windowBusy := busy
		for _, b := range booked {
			windowBusy = append(windowBusy, availability.Interval{Start: b.StartTime, End: b.EndTime})
		}
		out = append(out, availability.Slots(w.Start, w.End, duration, step, windowBusy, now)...)
	}
	return out, nil
}

type CreateBookingRequest struct {
	ProviderID string
	StaffID    string
	ServiceID  string
	CustomerID string
	Start      time.Time
	Confirm    bool
}

// CreateBooking runs the full availability check and, if it passes, writes
// the booking with its outbox event in one transaction. The exclusion
// constraint still backstops races the pre-check cannot see.
func (e *Engine) CreateBooking(ctx context.Context, req CreateBookingRequest) (model.Booking, error) {
	switch {
	case req.ProviderID == "":
		return model.Booking{}, validationErr("provider_id", "required")
	case req.ServiceID == "":
		return model.Booking{}, validationErr("service_id", "required")
	case req.CustomerID == "":
		return model.Booking{}, validationErr("customer_id", "required")
	case req.Start.IsZero():
		return model.Booking{}, validationErr("start_time", "required")
	}

	_, loc, err := e.providerLocation(ctx, req.ProviderID)
	if err != nil {
		return model.Booking{}, err
	}
	durationMinutes, err := e.schedule.GetServiceDuration(ctx, req.ProviderID, req.ServiceID)
	if err != nil {
		return model.Booking{}, err
	}
	start := req.Start.UTC()
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	release, ok, err := e.locker.Acquire(ctx, calendarKey(req.ProviderID, req.StaffID))
	if err != nil {
		// The constraint arbitrates; a broken lock degrades, not fails.
		e.logger.Warn("calendar lock unavailable", "provider_id", req.ProviderID, "err", err)
	} else if !ok {
		return model.Booking{}, store.ErrConflict
	} else {
		defer release()
	}

	verdict, err := e.checkSlot(ctx, req.ProviderID, req.StaffID, start, end, loc, "")
	if err != nil {
		return model.Booking{}, err
	}
	if !verdict.Available {
		if verdict.Reason == ReasonConflictingBooking {
			e.metrics.IncBookingConflicts()
			return model.Booking{}, store.ErrConflict
		}
		return model.Booking{}, &UnavailableError{Reason: verdict.Reason}
	}

	status := model.BookingPending
	if req.Confirm {
		status = model.BookingConfirmed
	}
	b := model.Booking{
		ProviderID:      req.ProviderID,
		StaffID:         req.StaffID,
		ServiceID:       req.ServiceID,
		CustomerID:      req.CustomerID,
		StartTime:       start,
		EndTime:         end,
		DurationMinutes: durationMinutes,
		Status:          status,
	}
	created, err := e.bookings.Create(ctx, b, bookingEvent(outbox.EventBookingCreated, b))
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			e.metrics.IncBookingConflicts()
		}
		return model.Booking{}, err
	}
	e.metrics.IncBookingsCreated()
	e.logger.Info("booking created",
		"booking_id", created.ID, "provider_id", created.ProviderID, "start_time", created.StartTime)
	return created, nil
}

// Reschedule moves a booking to a new interval, keeping its status. A zero
// newEnd keeps the booking's current duration. The booking's own interval is
// excluded from the conflict check, so moving within or adjacent to itself
// succeeds.
func (e *Engine) Reschedule(ctx context.Context, bookingID string, newStart, newEnd time.Time) (model.Booking, error) {
	if newStart.IsZero() {
		return model.Booking{}, validationErr("start_time", "required")
	}
	b, err := e.bookings.Get(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status.Terminal() {
		return model.Booking{}, store.ErrConflict
	}

	_, loc, err := e.providerLocation(ctx, b.ProviderID)
	if err != nil {
		return model.Booking{}, err
	}
	start := newStart.UTC()
	end := start.Add(time.Duration(b.DurationMinutes) * time.Minute)
	if !newEnd.IsZero() {
		end = newEnd.UTC()
		if !end.After(start) {
			return model.Booking{}, validationErr("end_time", "must be after start_time")
		}
	}
	if start.Equal(b.StartTime) && end.Equal(b.EndTime) {
		return b, nil
	}

	release, ok, err := e.locker.Acquire(ctx, calendarKey(b.ProviderID, b.StaffID))
	if err != nil {
		e.logger.Warn("calendar lock unavailable", "provider_id", b.ProviderID, "err", err)
	} else if !ok {
		return model.Booking{}, store.ErrConflict
	} else {
		defer release()
	}

	verdict, err := e.checkSlot(ctx, b.ProviderID, b.StaffID, start, end, loc, b.ID)
	if err != nil {
		return model.Booking{}, err
	}
	if !verdict.Available {
		if verdict.Reason == ReasonConflictingBooking {
			e.metrics.IncBookingConflicts()
			return model.Booking{}, store.ErrConflict
		}
		return model.Booking{}, &UnavailableError{Reason: verdict.Reason}
	}

	moved := b
	moved.StartTime = start
	moved.EndTime = end
	moved.DurationMinutes = int(end.Sub(start) / time.Minute)
	updated, err := e.bookings.Reschedule(ctx, bookingID, start, end, bookingEvent(outbox.EventBookingRescheduled, moved))
	if err != nil {
		return model.Booking{}, err
	}
	e.metrics.IncBookingsRescheduled()
	e.logger.Info("booking rescheduled", "booking_id", bookingID, "start_time", start)
	return updated, nil
}

// Cancel marks a booking cancelled and frees its interval. Repeat cancels
// are idempotent.
func (e *Engine) Cancel(ctx context.Context, bookingID, reason string) (model.Booking, error) {
	b, err := e.bookings.Get(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status == model.BookingCancelled {
		return b, nil
	}
	evt := b
	evt.Status = model.BookingCancelled
	cancelled, err := e.bookings.Cancel(ctx, bookingID, reason, bookingEvent(outbox.EventBookingCancelled, evt))
	if err != nil {
		return model.Booking{}, err
	}
	e.metrics.IncBookingsCancelled()
	e.logger.Info("booking cancelled", "booking_id", bookingID, "reason", reason)
	return cancelled, nil
}

func (e *Engine) GetBooking(ctx context.Context, bookingID string) (model.Booking, error) {
	return e.bookings.Get(ctx, bookingID)
}

func (e *Engine) ListBookings(ctx context.Context, providerID string, limit int) ([]model.Booking, error) {
	return e.bookings.ListByProvider(ctx, providerID, limit)
}

// CreateRecurring validates and stores a series template. No occurrences
// are materialized here; the worker (or an explicit MaterializeNext) does
// that so a slow series create never blocks on conflict checking.
func (e *Engine) CreateRecurring(ctx context.Context, rb model.RecurringBooking) (model.RecurringBooking, error) {
	switch {
	case rb.ProviderID == "":
		return model.RecurringBooking{}, validationErr("provider_id", "required")
	case rb.ServiceID == "":
		return model.RecurringBooking{}, validationErr("service_id", "required")
	case rb.CustomerID == "":
		return model.RecurringBooking{}, validationErr("customer_id", "required")
	case !rb.Frequency.Valid():
		return model.RecurringBooking{}, validationErr("frequency", "must be weekly, biweekly, monthly or quarterly")
	case rb.StartTime.IsZero():
		return model.RecurringBooking{}, validationErr("start_time", "required")
	case rb.MaxBookings < 0:
		return model.RecurringBooking{}, validationErr("max_bookings", "must not be negative")
	}
	_, loc, err := e.providerLocation(ctx, rb.ProviderID)
	if err != nil {
		return model.RecurringBooking{}, err
	}
	if rb.DurationMinutes <= 0 {
		mins, err := e.schedule.GetServiceDuration(ctx, rb.ProviderID, rb.ServiceID)
		if err != nil {
			return model.RecurringBooking{}, err
		}
		rb.DurationMinutes = mins
	}
	if rb.EndDate != nil {
		// The end date is inclusive and date-only; a series ending on its own
		// start date is a valid single occurrence. Compare calendar days in
		// the provider's zone, the way the expander does.
		ey, em, ed := rb.EndDate.UTC().Date()
		end := time.Date(ey, em, ed, 0, 0, 0, 0, loc)
		s := rb.StartTime.In(loc)
		if end.Before(time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)) {
			return model.RecurringBooking{}, validationErr("end_date", "must not precede start_time")
		}
	}
	rb.StartTime = rb.StartTime.UTC()
	rb.Status = model.SeriesActive
	return e.series.Create(ctx, rb)
}

func (e *Engine) GetRecurring(ctx context.Context, seriesID string) (model.RecurringBooking, error) {
	return e.series.Get(ctx, seriesID)
}

func (e *Engine) ListRecurring(ctx context.Context, providerID string, limit int) ([]model.RecurringBooking, error) {
	return e.series.ListByProvider(ctx, providerID, limit)
}

// SetSeriesStatus pauses, resumes or cancels a series. Completed and
// cancelled series cannot be reactivated.
func (e *Engine) SetSeriesStatus(ctx context.Context, seriesID string, status model.SeriesStatus) (model.RecurringBooking, error) {
	switch status {
	case model.SeriesActive, model.SeriesPaused, model.SeriesCancelled:
	default:
		return model.RecurringBooking{}, validationErr("status", "must be active, paused or cancelled")
	}
	rb, err := e.series.Get(ctx, seriesID)
	if err != nil {
		return model.RecurringBooking{}, err
	}
	if rb.Status == model.SeriesCompleted || rb.Status == model.SeriesCancelled {
		return model.RecurringBooking{}, store.ErrConflict
	}
	return e.series.SetStatus(ctx, seriesID, status)
}

// maxMaterializeSteps bounds one MaterializeNext call so an unbounded series
// whose every candidate conflicts cannot spin forever.
const maxMaterializeSteps = 52

// MaterializeNext advances a series until one occurrence books, the series
// exhausts, or the step bound trips. Conflicting occurrences are skipped:
// the cursor advances, the count does not.
func (e *Engine) MaterializeNext(ctx context.Context, seriesID string) (*model.Booking, error) {
	for i := 0; i < maxMaterializeSteps; i++ {
		b, advanced, err := e.materializeStep(ctx, seriesID, nil)
		if err != nil {
			return nil, err
		}
		if b != nil {
			return b, nil
		}
		if !advanced {
			return nil, nil
		}
	}
	return nil, nil
}

// MaterializeThrough advances a series up to the horizon date, returning how
// many bookings were created. Used by the worker.
func (e *Engine) MaterializeThrough(ctx context.Context, seriesID string, horizon time.Time) (int, error) {
	created := 0
	for {
		b, advanced, err := e.materializeStep(ctx, seriesID, &horizon)
		if err != nil {
			return created, err
		}
		if b != nil {
			created++
		}
		if !advanced {
			return created, nil
		}
	}
}

// materializeStep considers exactly one occurrence. It returns the booking
// when one was created, and advanced=false when no state changed (series
// inactive, exhausted, or next occurrence past the bound).
func (e *Engine) materializeStep(ctx context.Context, seriesID string, bound *time.Time) (*model.Booking, bool, error) {
	rb, err := e.series.Get(ctx, seriesID)
	if err != nil {
		return nil, false, err
	}
	if rb.Status != model.SeriesActive {
		return nil, false, nil
	}
	_, loc, err := e.providerLocation(ctx, rb.ProviderID)
	if err != nil {
		return nil, false, err
	}

	occ, ok := recurrence.NextOccurrence(rb, loc)
	if !ok {
		next := rb
		next.Status = model.SeriesCompleted
		if _, _, err := e.series.Advance(ctx, rb, next, nil, seriesEvent(outbox.EventRecurrenceCompleted, rb, time.Time{})); err != nil {
			return nil, false, err
		}
		e.metrics.IncSeriesCompleted()
		e.logger.Info("recurring series completed", "series_id", rb.ID)
		return nil, false, nil
	}
	if bound != nil && occ.After(*bound) {
		return nil, false, nil
	}

	start := occ.UTC()
	end := start.Add(time.Duration(rb.DurationMinutes) * time.Minute)
	cursor := time.Date(occ.Year(), occ.Month(), occ.Day(), 0, 0, 0, 0, time.UTC)

	verdict, err := e.checkSlot(ctx, rb.ProviderID, rb.StaffID, start, end, loc, "")
	if err != nil {
		return nil, false, err
	}

	if !verdict.Available {
		// Skip the occurrence: cursor moves, count does not.
		next := rb
		next.LastOccurrence = &cursor
		if _, _, err := e.series.Advance(ctx, rb, next, nil, seriesEvent(outbox.EventRecurrenceConflict, rb, start)); err != nil {
			return nil, false, err
		}
		e.metrics.IncSeriesConflicts()
		e.logger.Info("recurring occurrence skipped",
			"series_id", rb.ID, "occurrence", start, "reason", verdict.Reason)
		return nil, true, nil
	}

	status := model.BookingPending
	if rb.AutoConfirm {
		status = model.BookingConfirmed
	}
	b := model.Booking{
		ProviderID:         rb.ProviderID,
		StaffID:            rb.StaffID,
		ServiceID:          rb.ServiceID,
		CustomerID:         rb.CustomerID,
		StartTime:          start,
		EndTime:            end,
		DurationMinutes:    rb.DurationMinutes,
		Status:             status,
		RecurringBookingID: rb.ID,
	}
	next := rb
	next.LastOccurrence = &cursor
	next.CurrentBookingCount = rb.CurrentBookingCount + 1

	_, created, err := e.series.Advance(ctx, rb, next, &b, seriesEvent(outbox.EventRecurrenceMaterialized, rb, start))
	if err != nil {
		return nil, false, err
	}
	e.metrics.IncSeriesAdvanced()
	e.logger.Info("recurring occurrence materialized",
		"series_id", rb.ID, "booking_id", created.ID, "start_time", start)
	return created, true, nil
}

func calendarKey(providerID, staffID string) string {
	return providerID + ":" + staffID
}

type bookingEventPayload struct {
	BookingID          string    `json:"booking_id"`
	ProviderID         string    `json:"provider_id"`
	StaffID            string    `json:"staff_id,omitempty"`
	ServiceID          string    `json:"service_id"`
	CustomerID         string    `json:"customer_id"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	Status             string    `json:"status"`
	RecurringBookingID string    `json:"recurring_booking_id,omitempty"`
}

func bookingEvent(eventType string, b model.Booking) outbox.Event {
	payload, _ := json.Marshal(bookingEventPayload{
		BookingID:          b.ID,
		ProviderID:         b.ProviderID,
		StaffID:            b.StaffID,
		ServiceID:          b.ServiceID,
		CustomerID:         b.CustomerID,
		StartTime:          b.StartTime,
		EndTime:            b.EndTime,
		Status:             string(b.Status),
		RecurringBookingID: b.RecurringBookingID,
	})
	return outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       payload,
	}
}

type seriesEventPayload struct {
	SeriesID   string     `json:"series_id"`
	ProviderID string     `json:"provider_id"`
	CustomerID string     `json:"customer_id"`
	Frequency  string     `json:"frequency"`
	Occurrence *time.Time `json:"occurrence,omitempty"`
}

func seriesEvent(eventType string, rb model.RecurringBooking, occurrence time.Time) outbox.Event {
	p := seriesEventPayload{
		SeriesID:   rb.ID,
		ProviderID: rb.ProviderID,
		CustomerID: rb.CustomerID,
		Frequency:  string(rb.Frequency),
	}
	if !occurrence.IsZero() {
		p.Occurrence = &occurrence
	}
	payload, _ := json.Marshal(p)
	return outbox.Event{
		AggregateType: "recurring_booking",
		AggregateID:   rb.ID,
		EventType:     eventType,
		Payload:       payload,
	}
}
