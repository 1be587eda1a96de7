package models

import "time"

// CollectionRun statuses.
const (
	RunOK     = "ok"
	RunFailed = "failed"
)

// CollectionRun is the bookkeeping record of one collector cycle.
type CollectionRun struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Adapter    string     `gorm:"type:varchar(50);not null;index:idx_run_adapter_started,priority:1" json:"adapter"`
	SourceType SourceType `gorm:"type:varchar(20);not null" json:"source_type"`

	StartedAt  time.Time  `gorm:"type:timestamptz;not null;index:idx_run_adapter_started,priority:2" json:"started_at"`
	FinishedAt *time.Time `gorm:"type:timestamptz" json:"finished_at,omitempty"`

	ItemsFetched      int `gorm:"not null;default:0" json:"items_fetched"`
	ItemsMatched      int `gorm:"not null;default:0" json:"items_matched"`
	NewMentions       int `gorm:"not null;default:0" json:"new_mentions"`
	DuplicateMentions int `gorm:"not null;default:0" json:"duplicate_mentions"`
	// UnitErrors counts non-fatal per-feed/per-channel/per-query failures
	// inside an otherwise successful cycle.
	UnitErrors int `gorm:"not null;default:0" json:"unit_errors"`

	Status string  `gorm:"type:varchar(20);not null;index" json:"status"`
	Error  *string `gorm:"type:text" json:"error,omitempty"`

	// Cursor is the watermark the run ended on; the next cycle starts here.
	Cursor string `gorm:"type:text" json:"cursor"`
}

func (CollectionRun) TableName() string {
	return "collection_runs"
}
