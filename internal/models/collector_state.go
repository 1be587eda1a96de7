package models

import (
	"time"

	"gorm.io/datatypes"
)

// CollectorState is the durable per-adapter watermark plus the liveness
// signal surfaced by the ops API. The cursor only moves forward after a
// fully successful cycle (or, for multi-unit adapters, for the units that
// succeeded); a failed cycle updates attempt/error fields only.
type CollectorState struct {
	Adapter       string         `gorm:"primaryKey;type:varchar(50)" json:"adapter"`
	SourceType    SourceType     `gorm:"type:varchar(20);not null" json:"source_type"`
	Cursor        *string        `gorm:"type:text" json:"cursor,omitempty"`
	WatermarkTS   *time.Time     `gorm:"type:timestamptz" json:"watermark_ts,omitempty"`
	LastSuccessAt *time.Time     `gorm:"type:timestamptz" json:"last_success_at,omitempty"`
	LastAttemptAt *time.Time     `gorm:"type:timestamptz" json:"last_attempt_at,omitempty"`
	LastStatus    string         `gorm:"type:varchar(20);default:'unknown'" json:"last_status"`
	LastError     *string        `gorm:"type:text" json:"last_error,omitempty"`
	StatsJSON     datatypes.JSON `gorm:"type:jsonb" json:"stats,omitempty"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (CollectorState) TableName() string {
	return "collector_state"
}
