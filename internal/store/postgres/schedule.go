package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/slotwise/slotwise/internal/model"
	"github.com/slotwise/slotwise/internal/recurrence"
	"github.com/slotwise/slotwise/internal/store"
	"github.com/slotwise/slotwise/libs/db"
)

type ScheduleRepo struct {
	pool db.Querier
}

func NewScheduleRepo(pool db.Querier) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

var _ store.ScheduleStore = (*ScheduleRepo)(nil)

const dateLayout = "2006-01-02"

func (r *ScheduleRepo) GetProvider(ctx context.Context, providerID string) (model.Provider, error) {
	var p model.Provider
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, timezone, slot_step_minutes, created_at
		FROM providers
		WHERE id = $1
	`, providerID).Scan(&p.ID, &p.Name, &p.Timezone, &p.SlotStepMinutes, &p.CreatedAt)
	if err != nil {
		return model.Provider{}, mapError(err)
	}
	return p, nil
}

func (r *ScheduleRepo) UpsertProvider(ctx context.Context, p model.Provider) (model.Provider, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	if p.SlotStepMinutes <= 0 {
		p.SlotStepMinutes = 30
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO providers (id, name, timezone, slot_step_minutes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			timezone = EXCLUDED.timezone,
			slot_step_minutes = EXCLUDED.slot_step_minutes,
			updated_at = now()
		RETURNING created_at
	`, p.ID, p.Name, p.Timezone, p.SlotStepMinutes).Scan(&p.CreatedAt)
	if err != nil {
		return model.Provider{}, mapError(err)
	}
	return p, nil
}

func (r *ScheduleRepo) CreateService(ctx context.Context, svc model.Service) (model.Service, error) {
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO provider_services (id, provider_id, name, duration_minutes, price, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, svc.ID, svc.ProviderID, svc.Name, svc.DurationMinutes, svc.Price, svc.Description).Scan(&svc.CreatedAt)
	if err != nil {
		return model.Service{}, mapError(err)
	}
	return svc, nil
}

func (r *ScheduleRepo) ListServices(ctx context.Context, providerID string, limit int) ([]model.Service, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, provider_id::text, name, duration_minutes, price::text, description, created_at
		FROM provider_services
		WHERE provider_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, providerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.ProviderID, &s.Name, &s.DurationMinutes, &s.Price, &s.Description, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *ScheduleRepo) GetServiceDuration(ctx context.Context, providerID, serviceID string) (int, error) {
	var mins int
	err := r.pool.QueryRow(ctx, `
		SELECT duration_minutes
		FROM provider_services
		WHERE provider_id = $1 AND id = $2
	`, providerID, serviceID).Scan(&mins)
	if err != nil {
		return 0, mapError(err)
	}
	return mins, nil
}

func (r *ScheduleRepo) ListWorkingHours(ctx context.Context, providerID string) ([]model.HoursInterval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, start_minute, end_minute
		FROM working_hours
		WHERE provider_id = $1
		ORDER BY weekday ASC, start_minute ASC
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.HoursInterval
	for rows.Next() {
		var h model.HoursInterval
		if err := rows.Scan(&h.Weekday, &h.StartMinute, &h.EndMinute); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *ScheduleRepo) ReplaceWorkingHours(ctx context.Context, providerID string, weekday int, intervals []model.HoursInterval) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM working_hours
		WHERE provider_id = $1 AND weekday = $2
	`, providerID, weekday); err != nil {
		return err
	}
	for _, iv := range intervals {
		if _, err := tx.Exec(ctx, `
			INSERT INTO working_hours (provider_id, weekday, start_minute, end_minute)
			VALUES ($1, $2, $3, $4)
		`, providerID, weekday, iv.StartMinute, iv.EndMinute); err != nil {
			return mapError(err)
		}
	}
	return tx.Commit(ctx)
}

func (r *ScheduleRepo) CreateTimeBlock(ctx context.Context, block model.TimeBlock) ([]model.TimeBlock, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if block.ID == "" {
		block.ID = uuid.NewString()
	}
	created, err := insertTimeBlock(ctx, tx, block)
	if err != nil {
		return nil, mapError(err)
	}
	out := []model.TimeBlock{created}

	if block.Recurring {
		end := recurrence.DefaultBlockEnd(block.Date)
		if block.EndDate != nil {
			ey, em, ed := block.EndDate.UTC().Date()
			end = time.Date(ey, em, ed, 0, 0, 0, 0, block.Date.Location())
		}
		dates := recurrence.WeeklyDates(block.Date, end)
		for _, d := range dates[1:] { // the template row covers the first date
			inst := block
			inst.ID = uuid.NewString()
			inst.Date = d
			inst.Recurring = false
			inst.EndDate = nil
			inst.ParentID = created.ID
			createdInst, err := insertTimeBlock(ctx, tx, inst)
			if err != nil {
				return nil, mapError(err)
			}
			out = append(out, createdInst)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func insertTimeBlock(ctx context.Context, tx pgx.Tx, b model.TimeBlock) (model.TimeBlock, error) {
	var endDate any
	if b.EndDate != nil {
		endDate = b.EndDate.Format(dateLayout)
	}
	var parentID any
	if b.ParentID != "" {
		parentID = b.ParentID
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO time_blocks
			(id, provider_id, block_date, start_minute, end_minute, block_type, reason, recurring, end_date, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, b.ID, b.ProviderID, b.Date.Format(dateLayout), b.StartMinute, b.EndMinute,
		string(b.Type), b.Reason, b.Recurring, endDate, parentID).Scan(&b.CreatedAt)
	if err != nil {
		return model.TimeBlock{}, err
	}
	return b, nil
}

func (r *ScheduleRepo) BlocksOn(ctx context.Context, providerID string, date time.Time) ([]model.TimeBlock, error) {
	return r.queryBlocks(ctx, `
		SELECT `+timeBlockColumns+`
		FROM time_blocks
		WHERE provider_id = $1 AND block_date = $2::date
		ORDER BY start_minute ASC
	`, providerID, date.Format(dateLayout))
}

func (r *ScheduleRepo) ListTimeBlocks(ctx context.Context, providerID string, from, to time.Time, limit int) ([]model.TimeBlock, error) {
	if limit <= 0 {
		limit = 200
	}
	return r.queryBlocks(ctx, `
		SELECT `+timeBlockColumns+`
		FROM time_blocks
		WHERE provider_id = $1
			AND block_date >= $2::date
			AND block_date <= $3::date
		ORDER BY block_date ASC, start_minute ASC
		LIMIT $4
	`, providerID, from.Format(dateLayout), to.Format(dateLayout), limit)
}

const timeBlockColumns = `id::text, provider_id::text, block_date, start_minute, end_minute, ` +
	`block_type, COALESCE(reason, ''), recurring, end_date, COALESCE(parent_id::text, ''), created_at`

func (r *ScheduleRepo) queryBlocks(ctx context.Context, sql string, args ...any) ([]model.TimeBlock, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TimeBlock
	for rows.Next() {
		var b model.TimeBlock
		var blockType string
		if err := rows.Scan(&b.ID, &b.ProviderID, &b.Date, &b.StartMinute, &b.EndMinute,
			&blockType, &b.Reason, &b.Recurring, &b.EndDate, &b.ParentID, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Type = model.BlockType(blockType)
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *ScheduleRepo) DeleteTimeBlock(ctx context.Context, providerID, blockID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM time_blocks
		WHERE provider_id = $1 AND (id = $2 OR parent_id = $2)
	`, providerID, blockID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
