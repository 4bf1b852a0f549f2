package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/slotwise/slotwise/internal/engine"
	"github.com/slotwise/slotwise/internal/model"
	"github.com/slotwise/slotwise/internal/outbox"
	"github.com/slotwise/slotwise/internal/store"
)

// memStore is an in-memory implementation of the three store interfaces,
// enough to drive the engine end to end through the HTTP layer.
type memStore struct {
	provider  model.Provider
	hours     []model.HoursInterval
	blocks    []model.TimeBlock
	durations map[string]int
	bookings  map[string]model.Booking
	series    map[string]model.RecurringBooking
	seq       int
}

func newMemStore() *memStore {
	return &memStore{
		provider: model.Provider{ID: "provider-1", Name: "Test Provider", Timezone: "UTC", SlotStepMinutes: 30},
		hours: []model.HoursInterval{
			{Weekday: 1, StartMinute: 9 * 60, EndMinute: 17 * 60},
		},
		durations: map[string]int{"service-1": 60},
		bookings:  map[string]model.Booking{},
		series:    map[string]model.RecurringBooking{},
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memStore) GetProvider(_ context.Context, id string) (model.Provider, error) {
	if id != s.provider.ID {
		return model.Provider{}, store.ErrNotFound
	}
	return s.provider, nil
}

func (s *memStore) UpsertProvider(_ context.Context, p model.Provider) (model.Provider, error) {
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	if p.SlotStepMinutes <= 0 {
		p.SlotStepMinutes = 30
	}
	s.provider = p
	return p, nil
}

func (s *memStore) CreateService(_ context.Context, svc model.Service) (model.Service, error) {
	svc.ID = s.nextID("service")
	s.durations[svc.ID] = svc.DurationMinutes
	return svc, nil
}

func (s *memStore) ListServices(context.Context, string, int) ([]model.Service, error) {
	return nil, nil
}

func (s *memStore) GetServiceDuration(_ context.Context, _, serviceID string) (int, error) {
	mins, ok := s.durations[serviceID]
	if !ok {
		return 0, store.ErrNotFound
	}
	return mins, nil
}

func (s *memStore) ListWorkingHours(context.Context, string) ([]model.HoursInterval, error) {
	return s.hours, nil
}

func (s *memStore) ReplaceWorkingHours(_ context.Context, _ string, weekday int, intervals []model.HoursInterval) error {
	var kept []model.HoursInterval
	for _, h := range s.hours {
		if h.Weekday != weekday {
			kept = append(kept, h)
		}
	}
	s.hours = append(kept, intervals...)
	return nil
}

func (s *memStore) CreateTimeBlock(_ context.Context, b model.TimeBlock) ([]model.TimeBlock, error) {
	b.ID = s.nextID("block")
	s.blocks = append(s.blocks, b)
	return []model.TimeBlock{b}, nil
}

func (s *memStore) BlocksOn(_ context.Context, _ string, day time.Time) ([]model.TimeBlock, error) {
	y, m, d := day.Date()
	var out []model.TimeBlock
	for _, b := range s.blocks {
		by, bm, bd := b.Date.Date()
		if by == y && bm == m && bd == d {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) ListTimeBlocks(context.Context, string, time.Time, time.Time, int) ([]model.TimeBlock, error) {
	return s.blocks, nil
}

func (s *memStore) DeleteTimeBlock(_ context.Context, _, blockID string) error {
	for i, b := range s.blocks {
		if b.ID == blockID {
			s.blocks = append(s.blocks[:i], s.blocks[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *memStore) FindOverlapping(_ context.Context, providerID, staffID string, start, end time.Time, excludeID string) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range s.bookings {
		if b.ProviderID != providerID || b.StaffID != staffID || b.ID == excludeID || !b.Status.Blocks() {
			continue
		}
		if b.StartTime.Before(end) && start.Before(b.EndTime) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) Create(ctx context.Context, b model.Booking, _ ...outbox.Event) (model.Booking, error) {
	if b.Status.Blocks() {
		overlapping, _ := s.FindOverlapping(ctx, b.ProviderID, b.StaffID, b.StartTime, b.EndTime, "")
		if len(overlapping) > 0 {
			return model.Booking{}, store.ErrConflict
		}
	}
	b.ID = s.nextID("booking")
	b.CreatedAt = time.Now().UTC()
	s.bookings[b.ID] = b
	return b, nil
}

func (s *memStore) Get(_ context.Context, id string) (model.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, store.ErrNotFound
	}
	return b, nil
}

func (s *memStore) Reschedule(_ context.Context, id string, start, end time.Time, _ ...outbox.Event) (model.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, store.ErrNotFound
	}
	if b.Status.Terminal() {
		return model.Booking{}, store.ErrConflict
	}
	b.StartTime = start
	b.EndTime = end
	b.DurationMinutes = int(end.Sub(start) / time.Minute)
	s.bookings[id] = b
	return b, nil
}

func (s *memStore) Cancel(_ context.Context, id, reason string, _ ...outbox.Event) (model.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, store.ErrNotFound
	}
	if b.Status == model.BookingCancelled {
		return b, nil
	}
	if b.Status.Terminal() {
		return model.Booking{}, store.ErrConflict
	}
	now := time.Now().UTC()
	b.Status = model.BookingCancelled
	b.CancelledAt = &now
	b.CancellationReason = reason
	s.bookings[id] = b
	return b, nil
}

func (s *memStore) UpdateStatus(_ context.Context, id string, status model.BookingStatus) (model.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, store.ErrNotFound
	}
	b.Status = status
	s.bookings[id] = b
	return b, nil
}

func (s *memStore) ListByProvider(_ context.Context, providerID string, _ int) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range s.bookings {
		if b.ProviderID == providerID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) CreateRecurring(_ context.Context, rb model.RecurringBooking) (model.RecurringBooking, error) {
	rb.ID = s.nextID("series")
	s.series[rb.ID] = rb
	return rb, nil
}

func (s *memStore) GetRecurring(_ context.Context, id string) (model.RecurringBooking, error) {
	rb, ok := s.series[id]
	if !ok {
		return model.RecurringBooking{}, store.ErrNotFound
	}
	return rb, nil
}

func (s *memStore) ListRecurring(_ context.Context, providerID string, _ int) ([]model.RecurringBooking, error) {
	var out []model.RecurringBooking
	for _, rb := range s.series {
		if rb.ProviderID == providerID {
			out = append(out, rb)
		}
	}
	return out, nil
}

func (s *memStore) SetSeriesStatus(_ context.Context, id string, status model.SeriesStatus) (model.RecurringBooking, error) {
	rb, ok := s.series[id]
	if !ok {
		return model.RecurringBooking{}, store.ErrNotFound
	}
	rb.Status = status
	s.series[id] = rb
	return rb, nil
}

func (s *memStore) AdvanceSeries(ctx context.Context, orig, next model.RecurringBooking, b *model.Booking, _ ...outbox.Event) (model.RecurringBooking, *model.Booking, error) {
	current, ok := s.series[orig.ID]
	if !ok {
		return model.RecurringBooking{}, nil, store.ErrNotFound
	}
	if current.CurrentBookingCount != orig.CurrentBookingCount {
		return model.RecurringBooking{}, nil, store.ErrConflict
	}
	var created *model.Booking
	if b != nil {
		cb, err := s.Create(ctx, *b)
		if err != nil {
			return model.RecurringBooking{}, nil, err
		}
		created = &cb
	}
	s.series[orig.ID] = next
	return next, created, nil
}

func (s *memStore) DueSeries(context.Context, time.Time, int) ([]model.RecurringBooking, error) {
	return nil, nil
}

// seriesAdapter renames the recurring-store methods that collide with the
// booking-ledger method set on memStore.
type seriesAdapter struct{ *memStore }

func (a seriesAdapter) Create(ctx context.Context, rb model.RecurringBooking) (model.RecurringBooking, error) {
	return a.memStore.CreateRecurring(ctx, rb)
}

func (a seriesAdapter) Get(ctx context.Context, id string) (model.RecurringBooking, error) {
	return a.memStore.GetRecurring(ctx, id)
}

func (a seriesAdapter) ListByProvider(ctx context.Context, providerID string, limit int) ([]model.RecurringBooking, error) {
	return a.memStore.ListRecurring(ctx, providerID, limit)
}

func (a seriesAdapter) SetStatus(ctx context.Context, id string, status model.SeriesStatus) (model.RecurringBooking, error) {
	return a.memStore.SetSeriesStatus(ctx, id, status)
}

func (a seriesAdapter) Advance(ctx context.Context, orig, next model.RecurringBooking, b *model.Booking, evts ...outbox.Event) (model.RecurringBooking, *model.Booking, error) {
	return a.memStore.AdvanceSeries(ctx, orig, next, b, evts...)
}

var (
	_ store.ScheduleStore  = (*memStore)(nil)
	_ store.BookingLedger  = (*memStore)(nil)
	_ store.RecurringStore = seriesAdapter{}
)

func newTestServer(t *testing.T) (*httptest.Server, *memStore) {
	t.Helper()
	ms := newMemStore()
	logger := slog.Default()
	eng := engine.New(ms, ms, seriesAdapter{ms}, logger,
		engine.WithClock(func() time.Time {
			return time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
		}))

	bookingHandler := NewBookingHandler(eng, logger)
	providerHandler := NewProviderHandler(ms, eng, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/public/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/public/availability", bookingHandler.Availability)
	mux.HandleFunc("/api/v1/public/book", bookingHandler.Book)
	mux.HandleFunc("/api/v1/bookings", bookingHandler.List)
	mux.HandleFunc("/api/v1/bookings/reschedule", bookingHandler.Reschedule)
	mux.HandleFunc("/api/v1/bookings/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/provider/profile", providerHandler.Profile)
	mux.HandleFunc("/api/v1/provider/working-hours", providerHandler.WorkingHours)
	mux.HandleFunc("/api/v1/provider/time-blocks", providerHandler.TimeBlocks)
	mux.HandleFunc("/api/v1/provider/services", providerHandler.Services)
	mux.HandleFunc("/api/v1/provider/recurring-bookings", providerHandler.Recurring)
	mux.HandleFunc("/api/v1/provider/recurring-bookings/status", providerHandler.RecurringStatus)
	mux.HandleFunc("/api/v1/provider/recurring-bookings/materialize", providerHandler.Materialize)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, ms
}
