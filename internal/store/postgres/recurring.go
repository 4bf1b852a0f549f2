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

type RecurringRepo struct {
	pool   db.Querier
	outbox *outbox.Repository
}

func NewRecurringRepo(pool db.Querier, outboxRepo *outbox.Repository) *RecurringRepo {
	return &RecurringRepo{pool: pool, outbox: outboxRepo}
}

var _ store.RecurringStore = (*RecurringRepo)(nil)

const recurringColumns = `id::text, provider_id::text, staff_id, service_id::text, customer_id, ` +
	`frequency, start_time, duration_minutes, end_date, max_bookings, current_booking_count, ` +
	`skip_dates, status, auto_confirm, last_occurrence, created_at, updated_at`

func scanRecurring(row pgx.Row) (model.RecurringBooking, error) {
	var rb model.RecurringBooking
	var frequency, status string
	err := row.Scan(
		&rb.ID,
		&rb.ProviderID,
		&rb.StaffID,
		&rb.ServiceID,
		&rb.CustomerID,
		&frequency,
		&rb.StartTime,
		&rb.DurationMinutes,
		&rb.EndDate,
		&rb.MaxBookings,
		&rb.CurrentBookingCount,
		&rb.SkipDates,
		&status,
		&rb.AutoConfirm,
		&rb.LastOccurrence,
		&rb.CreatedAt,
		&rb.UpdatedAt,
	)
	if err != nil {
		return model.RecurringBooking{}, err
	}
	rb.Frequency = model.Frequency(frequency)
	rb.Status = model.SeriesStatus(status)
	return rb, nil
}

func skipDateStrings(dates []time.Time) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format(dateLayout))
	}
	return out
}

func (r *RecurringRepo) Create(ctx context.Context, rb model.RecurringBooking) (model.RecurringBooking, error) {
	if rb.ID == "" {
		rb.ID = uuid.NewString()
	}
	if rb.Status == "" {
		rb.Status = model.SeriesActive
	}
	var endDate any
	if rb.EndDate != nil {
		endDate = rb.EndDate.Format(dateLayout)
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO recurring_bookings
			(id, provider_id, staff_id, service_id, customer_id, frequency, start_time,
			 duration_minutes, end_date, max_bookings, skip_dates, status, auto_confirm)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`, rb.ID, rb.ProviderID, rb.StaffID, rb.ServiceID, rb.CustomerID, string(rb.Frequency),
		rb.StartTime, rb.DurationMinutes, endDate, rb.MaxBookings,
		skipDateStrings(rb.SkipDates), string(rb.Status), rb.AutoConfirm,
	).Scan(&rb.CreatedAt, &rb.UpdatedAt)
	if err != nil {
		return model.RecurringBooking{}, mapError(err)
	}
	return rb, nil
}

func (r *RecurringRepo) Get(ctx context.Context, seriesID string) (model.RecurringBooking, error) {
	rb, err := scanRecurring(r.pool.QueryRow(ctx, `
		SELECT `+recurringColumns+`
		FROM recurring_bookings
		WHERE id = $1
	`, seriesID))
	if err != nil {
		return model.RecurringBooking{}, mapError(err)
	}
	return rb, nil
}

func (r *RecurringRepo) ListByProvider(ctx context.Context, providerID string, limit int) ([]model.RecurringBooking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+recurringColumns+`
		FROM recurring_bookings
		WHERE provider_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, providerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RecurringBooking
	for rows.Next() {
		rb, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rb)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *RecurringRepo) SetStatus(ctx context.Context, seriesID string, status model.SeriesStatus) (model.RecurringBooking, error) {
	rb, err := scanRecurring(r.pool.QueryRow(ctx, `
		UPDATE recurring_bookings
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+recurringColumns+`
	`, seriesID, string(status)))
	if err != nil {
		return model.RecurringBooking{}, mapError(err)
	}
	return rb, nil
}

// Advance applies one materialization step. The UPDATE is guarded on the
// cursor and counter read by the caller; a concurrent materializer that
// stepped the series first makes the guard miss and the whole transaction
// rolls back with ErrConflict.
func (r *RecurringRepo) Advance(ctx context.Context, orig, next model.RecurringBooking, b *model.Booking, evts ...outbox.Event) (model.RecurringBooking, *model.Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.RecurringBooking{}, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var lastOccurrence any
	if next.LastOccurrence != nil {
		lastOccurrence = next.LastOccurrence.Format(dateLayout)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE recurring_bookings
		SET current_booking_count = $2,
			last_occurrence = $3,
			status = $4,
			updated_at = now()
		WHERE id = $1
			AND current_booking_count = $5
			AND last_occurrence IS NOT DISTINCT FROM $6
	`, orig.ID, next.CurrentBookingCount, lastOccurrence, string(next.Status),
		orig.CurrentBookingCount, origCursor(orig))
	if err != nil {
		return model.RecurringBooking{}, nil, mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return model.RecurringBooking{}, nil, store.ErrConflict
	}

	var created *model.Booking
	if b != nil {
		cb, err := insertBooking(ctx, tx, *b)
		if err != nil {
			return model.RecurringBooking{}, nil, mapError(err)
		}
		created = &cb
	}

	for _, evt := range evts {
		if evt.AggregateID == "" {
			evt.AggregateID = orig.ID
		}
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return model.RecurringBooking{}, nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.RecurringBooking{}, nil, mapError(err)
	}
	next.UpdatedAt = time.Now().UTC()
	return next, created, nil
}

func origCursor(rb model.RecurringBooking) any {
	if rb.LastOccurrence == nil {
		return nil
	}
	return rb.LastOccurrence.Format(dateLayout)
}

func (r *RecurringRepo) DueSeries(ctx context.Context, horizon time.Time, limit int) ([]model.RecurringBooking, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+recurringColumns+`
		FROM recurring_bookings
		WHERE status = 'active'
			AND (last_occurrence IS NULL OR last_occurrence <= $1::date)
		ORDER BY last_occurrence ASC NULLS FIRST
		LIMIT $2
	`, horizon.Format(dateLayout), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RecurringBooking
	for rows.Next() {
		rb, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rb)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
