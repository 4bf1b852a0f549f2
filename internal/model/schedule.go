package model

import "time"

type Provider struct {
	ID              string
	Name            string
	Timezone        string
	SlotStepMinutes int
	CreatedAt       time.Time
}

type Service struct {
	ID              string
	ProviderID      string
	Name            string
	DurationMinutes int
	Price           string
	Description     string
	CreatedAt       time.Time
}

// HoursInterval is one open interval of a provider's weekly working-hours
// template, expressed as provider-local minutes since midnight.
type HoursInterval struct {
	Weekday     int // 0 = Sunday … 6 = Saturday
	StartMinute int
	EndMinute   int
}

type BlockType string

const (
	BlockBlocked  BlockType = "blocked"
	BlockBreak    BlockType = "break"
	BlockVacation BlockType = "vacation"
)

// TimeBlock is a closure overlaid on working hours for one date. A recurring
// block is a weekly template; its materialized instances carry ParentID and
// are themselves non-recurring leaves.
type TimeBlock struct {
	ID          string
	ProviderID  string
	Date        time.Time // date only, provider-local
	StartMinute int
	EndMinute   int
	Type        BlockType
	Reason      string
	Recurring   bool
	EndDate     *time.Time
	ParentID    string
	CreatedAt   time.Time
}
