package models

import "time"

// DailyAggregate is a materialized per-day rollup of mentions, rebuilt
// periodically from the mentions table. Date is YYYY-MM-DD in UTC.
type DailyAggregate struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Date       string     `gorm:"type:varchar(10);not null;uniqueIndex:idx_daily_agg,priority:1" json:"date"`
	EntitySlug string     `gorm:"type:varchar(100);not null;uniqueIndex:idx_daily_agg,priority:2" json:"entity_slug"`
	SourceType SourceType `gorm:"type:varchar(20);not null;uniqueIndex:idx_daily_agg,priority:3" json:"source_type"`

	MentionCount   int `gorm:"not null;default:0" json:"mention_count"`
	AmbiguousCount int `gorm:"not null;default:0" json:"ambiguous_count"`
	UniqueSources  int `gorm:"not null;default:0" json:"unique_sources"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (DailyAggregate) TableName() string {
	return "daily_aggregates"
}
