package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mediameter/internal/client/social"
	"mediameter/internal/config"
	"mediameter/internal/models"
	"mediameter/internal/registry"
)

type socialSearcher interface {
	SearchStatuses(ctx context.Context, q, minID string, limit int) ([]social.Status, error)
}

type entitySource interface {
	Snapshot(ctx context.Context) (*registry.Snapshot, error)
}

// SocialCollector searches a fediverse instance once per tracked entity.
// Cursors hold a min_id per entity plus the time each entity was last
// covered; when the request budget runs out mid-cycle, the uncovered
// entities go first next time.
type SocialCollector struct {
	cfg      config.SocialConfig
	client   socialSearcher
	entities entitySource
	limiter  *rate.Limiter
	log      *zap.Logger
	now      func() time.Time
}

func NewSocialCollector(cfg config.SocialConfig, entities entitySource, accessToken string, log *zap.Logger) *SocialCollector {
	window := cfg.RateWindow
	if window <= 0 {
		window = 5 * time.Minute
	}
	budget := cfg.RateBudget
	if budget <= 0 {
		budget = 30
	}
	return &SocialCollector{
		cfg:      cfg,
		client:   social.NewClient(&http.Client{Timeout: cfg.FetchTimeout}, cfg.BaseURL, accessToken),
		entities: entities,
		limiter:  rate.NewLimiter(rate.Every(window/time.Duration(budget)), budget),
		log:      log,
		now:      time.Now,
	}
}

func (c *SocialCollector) Name() string {
	return "social"
}

func (c *SocialCollector) SourceType() models.SourceType {
	return models.SourceSocial
}

const coveragePrefix = "cov:"

func (c *SocialCollector) Fetch(ctx context.Context, cursor string) (FetchResult, error) {
	snap, err := c.entities.Snapshot(ctx)
	if err != nil {
		return FetchResult{}, fmt.Errorf("social: %w", err)
	}
	if snap.Empty() {
		return FetchResult{NextCursor: cursor}, nil
	}

	cur := decodeUnitCursor(cursor)
	next := decodeUnitCursor(cursor)

	ordered := orderByCoverage(snap.Entities, cur)

	var (
		items      []RawItem
		unitErrors int
		covered    int
	)
	for _, ent := range ordered {
		query := searchQuery(ent)
		if query == "" {
			continue
		}
		if !c.limiter.Allow() {
			// Budget spent; the rest of the entities keep their cursors and
			// lead the next cycle.
			c.log.Debug("search budget exhausted",
				zap.Int("covered", covered),
				zap.Int("remaining", len(ordered)-covered))
			break
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout())
		statuses, err := c.client.SearchStatuses(fetchCtx, query, cur[ent.Slug], c.cfg.MaxPerQuery)
		cancel()
		if err != nil {
			var apiErr *social.APIError
			if errors.As(err, &apiErr) {
				switch {
				case apiErr.Status == http.StatusTooManyRequests:
					if covered == 0 {
						return FetchResult{}, &RateLimitError{RetryAfter: apiErr.RetryAfter}
					}
					// Partial cycle; the throttled tail is first up next time.
					return FetchResult{Items: items, NextCursor: next.encode(), UnitErrors: unitErrors}, nil
				case apiErr.Status >= 500:
					return FetchResult{}, fmt.Errorf("search %q: %s: %w", ent.Slug, apiErr, ErrSourceUnavailable)
				}
			}
			unitErrors++
			c.log.Warn("entity search failed",
				zap.String("entity", ent.Slug),
				zap.Error(err))
			continue
		}

		minID := cur[ent.Slug]
		for _, status := range statuses {
			if status.ID == "" {
				unitErrors++
				continue
			}
			published := status.CreatedAt.UTC()
			if published.IsZero() {
				published = c.now().UTC()
			}
			items = append(items, RawItem{
				SourceType:   models.SourceSocial,
				SourceItemID: status.ID,
				SourceName:   status.Account.Acct,
				Body:         stripTags(status.Content),
				URL:          status.URL,
				PublishedAt:  published,
				Attrs:        statusAttrs(status),
			})
			if snowflakeLess(minID, status.ID) {
				minID = status.ID
			}
		}
		if minID != "" {
			next[ent.Slug] = minID
		}
		next.setTime(coveragePrefix+ent.Slug, c.now())
		covered++
	}

	return FetchResult{Items: items, NextCursor: next.encode(), UnitErrors: unitErrors}, nil
}

func (c *SocialCollector) fetchTimeout() time.Duration {
	if c.cfg.FetchTimeout > 0 {
		return c.cfg.FetchTimeout
	}
	return 30 * time.Second
}

// orderByCoverage sorts entities so the least recently searched come first;
// never-covered entities lead. Ties break on slug for determinism.
func orderByCoverage(entities []registry.Entity, cur unitCursor) []registry.Entity {
	out := make([]registry.Entity, len(entities))
	copy(out, entities)
	sort.SliceStable(out, func(i, j int) bool {
		ti, _ := cur.timeAt(coveragePrefix + out[i].Slug)
		tj, _ := cur.timeAt(coveragePrefix + out[j].Slug)
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].Slug < out[j].Slug
	})
	return out
}

func searchQuery(ent registry.Entity) string {
	if ent.DisplayName != "" {
		return ent.DisplayName
	}
	if len(ent.Variants) > 0 {
		return ent.Variants[0]
	}
	return ""
}

func statusAttrs(status social.Status) map[string]any {
	if status.RepliesCount == 0 && status.ReblogsCount == 0 && status.FavouritesCount == 0 {
		return nil
	}
	return map[string]any{
		"replies":    status.RepliesCount,
		"reblogs":    status.ReblogsCount,
		"favourites": status.FavouritesCount,
	}
}
