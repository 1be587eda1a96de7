package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mediameter/internal/models"
	"mediameter/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Registry ----------------------------------------------------------------

func (s *Store) CreateEntity(ctx context.Context, item *models.Entity) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) UpdateEntity(ctx context.Context, item *models.Entity) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	// Slug is immutable; update by slug, never touch it.
	return s.db.WithContext(ctx).
		Model(&models.Entity{}).
		Where("slug = ?", item.Slug).
		Updates(map[string]any{
			"display_name":  item.DisplayName,
			"name_variants": item.NameVariants,
			"minus_words":   item.MinusWords,
			"topics":        item.Topics,
			"active":        item.Active,
		}).Error
}

func (s *Store) GetEntityBySlug(ctx context.Context, slug string) (*models.Entity, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, nil
	}
	var item models.Entity
	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListEntities(ctx context.Context, params repository.ListEntitiesParams) ([]models.Entity, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Entity{})
	if params.ActiveOnly {
		query = query.Where("active = ?", true)
	}
	if params.Limit > 0 {
		query = query.Limit(normalizeLimit(params.Limit, 200)).Offset(normalizeOffset(params.Offset))
	}
	var items []models.Entity
	if err := query.Order("slug asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Mentions ----------------------------------------------------------------

// InsertMentionIfAbsent performs the conditional insert on the identity key.
// Returns true when the row was created, false when an identical key already
// existed (no column is modified in that case).
func (s *Store) InsertMentionIfAbsent(ctx context.Context, item *models.Mention) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "source_type"},
			{Name: "source_item_id"},
			{Name: "entity_slug"},
		},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) TouchMentionLastSeen(ctx context.Context, sourceType models.SourceType, sourceItemID, entitySlug string, seenAt time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).
		Model(&models.Mention{}).
		Where("source_type = ? AND source_item_id = ? AND entity_slug = ?", sourceType, sourceItemID, entitySlug).
		Update("last_seen_at", seenAt).Error
}

func (s *Store) GetMentionByID(ctx context.Context, id uint64) (*models.Mention, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Mention
	err := s.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) mentionQuery(ctx context.Context, params repository.ListMentionsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Mention{})
	if params.EntitySlug != nil && strings.TrimSpace(*params.EntitySlug) != "" {
		query = query.Where("entity_slug = ?", strings.TrimSpace(*params.EntitySlug))
	}
	if params.SourceType != nil && *params.SourceType != "" {
		query = query.Where("source_type = ?", *params.SourceType)
	}
	if params.SourceName != nil && strings.TrimSpace(*params.SourceName) != "" {
		query = query.Where("source_name = ?", strings.TrimSpace(*params.SourceName))
	}
	if params.Query != nil && strings.TrimSpace(*params.Query) != "" {
		like := "%" + strings.TrimSpace(*params.Query) + "%"
		query = query.Where("title ILIKE ? OR snippet ILIKE ?", like, like)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("published_at >= ?", *params.Since)
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("published_at < ?", *params.Until)
	}
	if params.Ambiguous != nil {
		query = query.Where("ambiguous = ?", *params.Ambiguous)
	}
	return query
}

func (s *Store) ListMentions(ctx context.Context, params repository.ListMentionsParams) ([]models.Mention, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(s.mentionQuery(ctx, params), params.OrderBy, params.Asc, "published_at")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.Mention
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountMentions(ctx context.Context, params repository.ListMentionsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.mentionQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// --- Collection bookkeeping --------------------------------------------------

func (s *Store) InsertCollectionRun(ctx context.Context, item *models.CollectionRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListCollectionRuns(ctx context.Context, params repository.ListRunsParams) ([]models.CollectionRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.CollectionRun{})
	if params.Adapter != nil && strings.TrimSpace(*params.Adapter) != "" {
		query = query.Where("adapter = ?", strings.TrimSpace(*params.Adapter))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var items []models.CollectionRun
	if err := query.Order("started_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DeleteCollectionRunsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil || before.IsZero() {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("started_at < ?", before).
		Delete(&models.CollectionRun{})
	return res.RowsAffected, res.Error
}

func (s *Store) GetCollectorState(ctx context.Context, adapter string) (*models.CollectorState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	adapter = strings.TrimSpace(adapter)
	if adapter == "" {
		return nil, nil
	}
	var state models.CollectorState
	err := s.db.WithContext(ctx).Where("adapter = ?", adapter).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) SaveCollectorState(ctx context.Context, state *models.CollectorState) error {
	if s == nil || s.db == nil || state == nil {
		return nil
	}
	if strings.TrimSpace(state.Adapter) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "adapter"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source_type",
			"cursor",
			"watermark_ts",
			"last_success_at",
			"last_attempt_at",
			"last_status",
			"last_error",
			"stats_json",
			"updated_at",
		}),
	}).Create(state).Error
}

func (s *Store) ListCollectorStates(ctx context.Context) ([]models.CollectorState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var states []models.CollectorState
	if err := s.db.WithContext(ctx).Order("adapter asc").Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

// --- Reporting rollups -------------------------------------------------------

func (s *Store) RebuildDailyAggregates(ctx context.Context, since, until time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	if until.IsZero() {
		until = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Exec(`
		INSERT INTO daily_aggregates (date, entity_slug, source_type, mention_count, ambiguous_count, unique_sources, updated_at)
		SELECT to_char(published_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS date,
		       entity_slug,
		       source_type,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE ambiguous),
		       COUNT(DISTINCT source_name),
		       NOW()
		FROM mentions
		WHERE published_at >= ? AND published_at < ?
		GROUP BY 1, 2, 3
		ON CONFLICT (date, entity_slug, source_type) DO UPDATE SET
			mention_count   = EXCLUDED.mention_count,
			ambiguous_count = EXCLUDED.ambiguous_count,
			unique_sources  = EXCLUDED.unique_sources,
			updated_at      = EXCLUDED.updated_at
	`, since, until).Error
}

func (s *Store) ListDailyAggregates(ctx context.Context, params repository.ListAggregatesParams) ([]models.DailyAggregate, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.DailyAggregate{})
	if params.EntitySlug != nil && strings.TrimSpace(*params.EntitySlug) != "" {
		query = query.Where("entity_slug = ?", strings.TrimSpace(*params.EntitySlug))
	}
	if params.SourceType != nil && *params.SourceType != "" {
		query = query.Where("source_type = ?", *params.SourceType)
	}
	if strings.TrimSpace(params.FromDate) != "" {
		query = query.Where("date >= ?", strings.TrimSpace(params.FromDate))
	}
	if strings.TrimSpace(params.ToDate) != "" {
		query = query.Where("date <= ?", strings.TrimSpace(params.ToDate))
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.DailyAggregate
	if err := query.Order("date desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers -----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
