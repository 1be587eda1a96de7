package models

import (
	"time"

	"gorm.io/datatypes"
)

// Match methods recorded on a Mention.
const (
	MatchExact   = "exact"
	MatchVariant = "variant"
)

// Mention is the persisted unit of record: one entity referenced in one
// source item. The (source_type, source_item_id, entity_slug) tuple is the
// dedup identity key; exactly one row exists per key no matter how many
// overlapping collection cycles observe the same item.
type Mention struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	SourceType   SourceType `gorm:"type:varchar(20);not null;uniqueIndex:idx_mention_identity,priority:1;index:idx_mention_source_published" json:"source_type"`
	SourceItemID string     `gorm:"type:varchar(255);not null;uniqueIndex:idx_mention_identity,priority:2" json:"source_item_id"`
	EntitySlug   string     `gorm:"type:varchar(100);not null;uniqueIndex:idx_mention_identity,priority:3;index" json:"entity_slug"`

	SourceName  string     `gorm:"type:varchar(190);index" json:"source_name"`
	Title       string     `gorm:"type:text" json:"title"`
	Snippet     string     `gorm:"type:text" json:"snippet"`
	URL         string     `gorm:"type:varchar(500)" json:"url"`
	Language    string     `gorm:"type:varchar(10)" json:"language"`
	PublishedAt time.Time  `gorm:"type:timestamptz;not null;index:idx_mention_source_published,priority:2" json:"published_at"`

	MatchMethod string `gorm:"type:varchar(20);not null" json:"match_method"`
	Ambiguous   bool   `gorm:"not null;default:false" json:"ambiguous"`

	// Attrs carries opaque source metrics (views, forwards, likes) straight
	// through from the adapter; nothing downstream interprets them.
	Attrs datatypes.JSON `gorm:"type:jsonb" json:"attrs,omitempty"`

	CollectedAt time.Time `gorm:"type:timestamptz;not null" json:"collected_at"`
	LastSeenAt  time.Time `gorm:"type:timestamptz;not null" json:"last_seen_at"`
}

func (Mention) TableName() string {
	return "mentions"
}
