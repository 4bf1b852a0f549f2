package store

import (
	"context"
	"time"

	"github.com/slotwise/slotwise/internal/model"
)

// ScheduleStore is the read-mostly configuration side: provider profiles,
// services, the weekly working-hours template and time-off blocks.
type ScheduleStore interface {
	GetProvider(ctx context.Context, providerID string) (model.Provider, error)
	UpsertProvider(ctx context.Context, p model.Provider) (model.Provider, error)

	CreateService(ctx context.Context, svc model.Service) (model.Service, error)
	ListServices(ctx context.Context, providerID string, limit int) ([]model.Service, error)
	GetServiceDuration(ctx context.Context, providerID, serviceID string) (int, error)

	// ListWorkingHours returns every interval row for the provider, all
	// weekdays, ordered by (weekday, start_minute).
	ListWorkingHours(ctx context.Context, providerID string) ([]model.HoursInterval, error)
	// ReplaceWorkingHours swaps the full set of intervals for one weekday.
	// An empty slice closes the provider on that day.
	ReplaceWorkingHours(ctx context.Context, providerID string, weekday int, intervals []model.HoursInterval) error

	// CreateTimeBlock stores a block. For a recurring template it also
	// materializes weekly instances through the template's end date
	// (December 31 of the start year when absent) and returns template
	// plus instances.
	CreateTimeBlock(ctx context.Context, block model.TimeBlock) ([]model.TimeBlock, error)
	// BlocksOn returns all blocks (one-off rows, templates and
	// materialized instances alike) whose date equals the given
	// provider-local date.
	BlocksOn(ctx context.Context, providerID string, date time.Time) ([]model.TimeBlock, error)
	ListTimeBlocks(ctx context.Context, providerID string, from, to time.Time, limit int) ([]model.TimeBlock, error)
	// DeleteTimeBlock removes a block; deleting a recurring template also
	// removes its materialized instances.
	DeleteTimeBlock(ctx context.Context, providerID, blockID string) error
}
