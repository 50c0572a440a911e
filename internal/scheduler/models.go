package scheduler

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SchedulerRun is the per-day sentinel: the unique day claim makes the
// daily task run exactly once across replicas even without redis.
type SchedulerRun struct {
	ID    snowflake.ID `gorm:"primaryKey"`
	Day   string       `gorm:"size:10;not null;uniqueIndex:ux_scheduler_runs_day"`
	RanAt time.Time    `gorm:"not null"`
}

func (SchedulerRun) TableName() string {
	return "scheduler_runs"
}

// WarningMarker dedupes renewal warnings: one per tenant, threshold,
// and period end.
type WarningMarker struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"not null;uniqueIndex:ux_warning_markers_key"`
	Threshold int          `gorm:"not null;uniqueIndex:ux_warning_markers_key"`
	PeriodEnd time.Time    `gorm:"not null;uniqueIndex:ux_warning_markers_key"`
	SentAt    time.Time    `gorm:"not null"`
}

func (WarningMarker) TableName() string {
	return "renewal_warning_markers"
}
