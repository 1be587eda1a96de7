package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Entity is a tracked person or organization. The slug is immutable once
// created; name variants feed the matcher, topics are reporting-only tags.
type Entity struct {
	ID           uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Slug         string         `gorm:"type:varchar(100);uniqueIndex;not null" json:"slug"`
	DisplayName  string         `gorm:"type:varchar(190);not null" json:"display_name"`
	NameVariants datatypes.JSON `gorm:"type:jsonb" json:"name_variants"`
	MinusWords   datatypes.JSON `gorm:"type:jsonb" json:"minus_words"`
	Topics       datatypes.JSON `gorm:"type:jsonb" json:"topics"`
	Active       bool           `gorm:"not null;default:true;index" json:"active"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Entity) TableName() string {
	return "entities"
}

// Variants decodes the name_variants JSON array. A broken payload yields nil
// rather than an error; the matcher treats that as "display name only".
func (e *Entity) Variants() []string {
	return decodeStrings(e.NameVariants)
}

func (e *Entity) MinusWordList() []string {
	return decodeStrings(e.MinusWords)
}

func (e *Entity) TopicList() []string {
	return decodeStrings(e.Topics)
}

func decodeStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// EncodeStrings marshals a string list for a jsonb column. Used by the admin
// handler when creating or updating entities.
func EncodeStrings(items []string) datatypes.JSON {
	if items == nil {
		items = []string{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}
