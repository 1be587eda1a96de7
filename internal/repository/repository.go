package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"mediameter/internal/models"
)

type ListEntitiesParams struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}

type ListMentionsParams struct {
	EntitySlug *string
	SourceType *models.SourceType
	SourceName *string
	// Query is a case-insensitive substring filter over title and snippet.
	Query     *string
	Since     *time.Time
	Until     *time.Time
	Ambiguous *bool
	Limit      int
	Offset     int
	OrderBy    string
	Asc        *bool
}

type ListRunsParams struct {
	Adapter *string
	Status  *string
	Limit   int
	Offset  int
}

type ListAggregatesParams struct {
	EntitySlug *string
	SourceType *models.SourceType
	FromDate   string
	ToDate     string
	Limit      int
	Offset     int
}

// Repository is the persistence boundary of the pipeline. The mention
// insert is conditional ("insert if absent") so overlapping cycles racing
// on the same identity key cannot double-write.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Registry (admin write path, pipeline read path).
	CreateEntity(ctx context.Context, item *models.Entity) error
	UpdateEntity(ctx context.Context, item *models.Entity) error
	GetEntityBySlug(ctx context.Context, slug string) (*models.Entity, error)
	ListEntities(ctx context.Context, params ListEntitiesParams) ([]models.Entity, error)

	// Mentions (dedup contract of the pipeline).
	InsertMentionIfAbsent(ctx context.Context, item *models.Mention) (bool, error)
	TouchMentionLastSeen(ctx context.Context, sourceType models.SourceType, sourceItemID, entitySlug string, seenAt time.Time) error
	GetMentionByID(ctx context.Context, id uint64) (*models.Mention, error)
	ListMentions(ctx context.Context, params ListMentionsParams) ([]models.Mention, error)
	CountMentions(ctx context.Context, params ListMentionsParams) (int64, error)

	// Collection bookkeeping.
	InsertCollectionRun(ctx context.Context, item *models.CollectionRun) error
	ListCollectionRuns(ctx context.Context, params ListRunsParams) ([]models.CollectionRun, error)
	DeleteCollectionRunsBefore(ctx context.Context, before time.Time) (int64, error)
	GetCollectorState(ctx context.Context, adapter string) (*models.CollectorState, error)
	SaveCollectorState(ctx context.Context, state *models.CollectorState) error
	ListCollectorStates(ctx context.Context) ([]models.CollectorState, error)

	// Reporting rollups.
	RebuildDailyAggregates(ctx context.Context, since, until time.Time) error
	ListDailyAggregates(ctx context.Context, params ListAggregatesParams) ([]models.DailyAggregate, error)
}
