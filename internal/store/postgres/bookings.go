package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/slotwise/slotwise/internal/model"
	"github.com/slotwise/slotwise/internal/outbox"
	"github.com/slotwise/slotwise/internal/store"
	"github.com/slotwise/slotwise/libs/db"
)

type BookingRepo struct {
	pool   db.Querier
	outbox *outbox.Repository
}

func NewBookingRepo(pool db.Querier, outboxRepo *outbox.Repository) *BookingRepo {
	return &BookingRepo{pool: pool, outbox: outboxRepo}
}

var _ store.BookingLedger = (*BookingRepo)(nil)

const bookingColumns = `id::text, provider_id::text, staff_id, service_id::text, customer_id, ` +
	`start_time, end_time, duration_minutes, status, COALESCE(recurring_booking_id::text, ''), ` +
	`cancelled_at, COALESCE(cancellation_reason, ''), created_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	var status string
	err := row.Scan(
		&b.ID,
		&b.ProviderID,
		&b.StaffID,
		&b.ServiceID,
		&b.CustomerID,
		&b.StartTime,
		&b.EndTime,
		&b.DurationMinutes,
		&status,
		&b.RecurringBookingID,
		&b.CancelledAt,
		&b.CancellationReason,
		&b.CreatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.Status = model.BookingStatus(status)
	return b, nil
}

func (r *BookingRepo) FindOverlapping(ctx context.Context, providerID, staffID string, start, end time.Time, excludeID string) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE provider_id = $1
			AND staff_id = $2
			AND status IN ('pending', 'confirmed')
			AND start_time < $4
			AND end_time > $3
			AND id::text <> $5
		ORDER BY start_time ASC
	`, providerID, staffID, start, end, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *BookingRepo) Create(ctx context.Context, b model.Booking, evts ...outbox.Event) (model.Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created, err := insertBooking(ctx, tx, b)
	if err != nil {
		return model.Booking{}, mapError(err)
	}
	for _, evt := range evts {
		if evt.AggregateID == "" {
			evt.AggregateID = created.ID
		}
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return model.Booking{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, mapError(err)
	}
	return created, nil
}

func insertBooking(ctx context.Context, tx pgx.Tx, b model.Booking) (model.Booking, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	var recurringID any
	if b.RecurringBookingID != "" {
		recurringID = b.RecurringBookingID
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO bookings
			(id, provider_id, staff_id, service_id, customer_id, start_time, end_time, duration_minutes, status, recurring_booking_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, b.ID, b.ProviderID, b.StaffID, b.ServiceID, b.CustomerID,
		b.StartTime, b.EndTime, b.DurationMinutes, string(b.Status), recurringID).Scan(&b.CreatedAt)
	if err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

func (r *BookingRepo) Get(ctx context.Context, bookingID string) (model.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, bookingID))
	if err != nil {
		return model.Booking{}, mapError(err)
	}
	return b, nil
}

func (r *BookingRepo) Reschedule(ctx context.Context, bookingID string, start, end time.Time, evts ...outbox.Event) (model.Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := scanBooking(tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, bookingID))
	if err != nil {
		return model.Booking{}, mapError(err)
	}
	if b.Status.Terminal() {
		return model.Booking{}, store.ErrConflict
	}

	durationMinutes := int(end.Sub(start) / time.Minute)
	_, err = tx.Exec(ctx, `
		UPDATE bookings
		SET start_time = $2,
			end_time = $3,
			duration_minutes = $4
		WHERE id = $1
	`, bookingID, start, end, durationMinutes)
	if err != nil {
		return model.Booking{}, mapError(err)
	}

	for _, evt := range evts {
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return model.Booking{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, mapError(err)
	}

	b.StartTime = start
	b.EndTime = end
	b.DurationMinutes = durationMinutes
	return b, nil
}

func (r *BookingRepo) Cancel(ctx context.Context, bookingID, reason string, evts ...outbox.Event) (model.Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := scanBooking(tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, bookingID))
	if err != nil {
		return model.Booking{}, mapError(err)
	}
	if b.Status == model.BookingCancelled {
		// Idempotent: a repeated cancel returns the row untouched.
		if err := tx.Commit(ctx); err != nil {
			return model.Booking{}, err
		}
		return b, nil
	}
	if b.Status.Terminal() {
		return model.Booking{}, store.ErrConflict
	}

	var cancelledAt time.Time
	err = tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $2
		WHERE id = $1
		RETURNING cancelled_at
	`, bookingID, reason).Scan(&cancelledAt)
	if err != nil {
		return model.Booking{}, mapError(err)
	}

	for _, evt := range evts {
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return model.Booking{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, mapError(err)
	}

	b.Status = model.BookingCancelled
	b.CancelledAt = &cancelledAt
	b.CancellationReason = reason
	return b, nil
}

func (r *BookingRepo) UpdateStatus(ctx context.Context, bookingID string, status model.BookingStatus) (model.Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := scanBooking(tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, bookingID))
	if err != nil {
		return model.Booking{}, mapError(err)
	}
	if b.Status.Terminal() {
		return model.Booking{}, store.ErrConflict
	}

	_, err = tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2
		WHERE id = $1
	`, bookingID, string(status))
	if err != nil {
		return model.Booking{}, mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, mapError(err)
	}

	b.Status = status
	return b, nil
}

func (r *BookingRepo) ListByProvider(ctx context.Context, providerID string, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE provider_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, providerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
