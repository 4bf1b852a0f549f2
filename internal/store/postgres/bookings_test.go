package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/slotwise/slotwise/internal/model"
	"github.com/slotwise/slotwise/internal/outbox"
	"github.com/slotwise/slotwise/internal/store"
)

func newBookingRepo(t *testing.T) (*BookingRepo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewBookingRepo(mock, outbox.NewRepository(mock)), mock
}

func bookingRows(t *testing.T, b model.Booking) *pgxmock.Rows {
	t.Helper()
	return pgxmock.NewRows([]string{
		"id", "provider_id", "staff_id", "service_id", "customer_id",
		"start_time", "end_time", "duration_minutes", "status",
		"recurring_booking_id", "cancelled_at", "cancellation_reason", "created_at",
	}).AddRow(
		b.ID, b.ProviderID, b.StaffID, b.ServiceID, b.CustomerID,
		b.StartTime, b.EndTime, b.DurationMinutes, string(b.Status),
		b.RecurringBookingID, b.CancelledAt, b.CancellationReason, b.CreatedAt,
	)
}

func testBooking() model.Booking {
	start := time.Date(2026, time.September, 7, 10, 0, 0, 0, time.UTC)
	return model.Booking{
		ID:              "6f1c9a52-0000-0000-0000-000000000001",
		ProviderID:      "6f1c9a52-0000-0000-0000-0000000000aa",
		StaffID:         "",
		ServiceID:       "6f1c9a52-0000-0000-0000-0000000000bb",
		CustomerID:      "customer-1",
		StartTime:       start,
		EndTime:         start.Add(time.Hour),
		DurationMinutes: 60,
		Status:          model.BookingPending,
		CreatedAt:       start.Add(-24 * time.Hour),
	}
}

func TestBookingRepoCreateCommitsBookingAndOutbox(t *testing.T) {
	repo, mock := newBookingRepo(t)
	b := testBooking()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO bookings").
		WithArgs(b.ID, b.ProviderID, b.StaffID, b.ServiceID, b.CustomerID,
			b.StartTime, b.EndTime, b.DurationMinutes, string(b.Status), nil).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(b.CreatedAt))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("booking", b.ID, outbox.EventBookingCreated, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	created, err := repo.Create(context.Background(), b, outbox.Event{
		AggregateType: "booking",
		EventType:     outbox.EventBookingCreated,
		Payload:       []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != b.ID {
		t.Fatalf("id = %s, want %s", created.ID, b.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBookingRepoCreateExclusionViolationIsConflict(t *testing.T) {
	repo, mock := newBookingRepo(t)
	b := testBooking()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO bookings").
		WithArgs(b.ID, b.ProviderID, b.StaffID, b.ServiceID, b.CustomerID,
			b.StartTime, b.EndTime, b.DurationMinutes, string(b.Status), nil).
		WillReturnError(&pgconn.PgError{Code: "23P01", ConstraintName: "bookings_no_overlap"})
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), b)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBookingRepoGetNotFound(t *testing.T) {
	repo, mock := newBookingRepo(t)

	mock.ExpectQuery("FROM bookings").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestBookingRepoFindOverlapping(t *testing.T) {
	repo, mock := newBookingRepo(t)
	b := testBooking()

	mock.ExpectQuery("FROM bookings").
		WithArgs(b.ProviderID, "", b.StartTime, b.EndTime, "exclude-me").
		WillReturnRows(bookingRows(t, b))

	got, err := repo.FindOverlapping(context.Background(), b.ProviderID, "", b.StartTime, b.EndTime, "exclude-me")
	if err != nil {
		t.Fatalf("find overlapping: %v", err)
	}
	if len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("got %+v, want one row %s", got, b.ID)
	}
	if got[0].Status != model.BookingPending {
		t.Fatalf("status = %s, want pending", got[0].Status)
	}
}

func TestBookingRepoCancelIdempotent(t *testing.T) {
	repo, mock := newBookingRepo(t)
	b := testBooking()
	b.Status = model.BookingCancelled
	cancelledAt := b.StartTime.Add(-time.Hour)
	b.CancelledAt = &cancelledAt
	b.CancellationReason = "customer request"

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(b.ID).
		WillReturnRows(bookingRows(t, b))
	mock.ExpectCommit()

	got, err := repo.Cancel(context.Background(), b.ID, "another reason")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.CancellationReason != "customer request" {
		t.Fatalf("repeat cancel overwrote reason: %q", got.CancellationReason)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBookingRepoRescheduleTerminalIsConflict(t *testing.T) {
	repo, mock := newBookingRepo(t)
	b := testBooking()
	b.Status = model.BookingCompleted

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(b.ID).
		WillReturnRows(bookingRows(t, b))
	mock.ExpectRollback()

	_, err := repo.Reschedule(context.Background(), b.ID, b.StartTime.Add(time.Hour), b.EndTime.Add(time.Hour))
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
}
