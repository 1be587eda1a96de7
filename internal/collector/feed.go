package collector

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"mediameter/internal/config"
	"mediameter/internal/models"
)

// FeedCollector polls RSS/Atom endpoints. Each feed carries its own
// watermark (max published_at seen) inside the cursor; one broken feed
// never blocks the others.
type FeedCollector struct {
	cfg    config.FeedsConfig
	parser *gofeed.Parser
	log    *zap.Logger
	now    func() time.Time
}

func NewFeedCollector(cfg config.FeedsConfig, log *zap.Logger) *FeedCollector {
	return &FeedCollector{
		cfg:    cfg,
		parser: gofeed.NewParser(),
		log:    log,
		now:    time.Now,
	}
}

func (c *FeedCollector) Name() string {
	return "feeds"
}

func (c *FeedCollector) SourceType() models.SourceType {
	return models.SourceFeed
}

func (c *FeedCollector) Fetch(ctx context.Context, cursor string) (FetchResult, error) {
	cur := decodeUnitCursor(cursor)
	next := decodeUnitCursor(cursor)

	var (
		items      []RawItem
		unitErrors int
		attempted  int
	)
	for _, endpoint := range c.cfg.Endpoints {
		if endpoint.URL == "" {
			continue
		}
		attempted++
		name := endpoint.Name
		if name == "" {
			name = endpoint.URL
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout())
		feed, err := c.parser.ParseURLWithContext(endpoint.URL, fetchCtx)
		cancel()
		if err != nil {
			unitErrors++
			c.log.Warn("feed fetch failed",
				zap.String("feed", name),
				zap.Error(err))
			continue
		}

		since, seeded := cur.timeAt(name)
		watermark := since
		kept := 0
		for _, entry := range feed.Items {
			if entry == nil {
				unitErrors++
				continue
			}
			if c.cfg.MaxPerFeed > 0 && kept >= c.cfg.MaxPerFeed {
				break
			}
			published := c.now().UTC()
			if entry.PublishedParsed != nil {
				published = entry.PublishedParsed.UTC()
			} else if entry.UpdatedParsed != nil {
				published = entry.UpdatedParsed.UTC()
			}
			// Re-fetch a margin behind the watermark; dedup absorbs the
			// overlap, late-published items are not lost.
			if seeded && published.Before(since.Add(-c.cfg.SafetyMargin)) {
				continue
			}
			items = append(items, RawItem{
				SourceType:   models.SourceFeed,
				SourceItemID: feedItemID(name, entry),
				SourceName:   name,
				Title:        entry.Title,
				Body:         feedItemBody(entry),
				URL:          entry.Link,
				PublishedAt:  published,
			})
			kept++
			if published.After(watermark) {
				watermark = published
			}
		}
		if !watermark.IsZero() {
			next.setTime(name, watermark)
		}
	}

	if attempted > 0 && unitErrors >= attempted && len(items) == 0 {
		return FetchResult{}, fmt.Errorf("all %d feeds failed: %w", attempted, ErrSourceUnavailable)
	}
	return FetchResult{Items: items, NextCursor: next.encode(), UnitErrors: unitErrors}, nil
}

func (c *FeedCollector) fetchTimeout() time.Duration {
	if c.cfg.FetchTimeout > 0 {
		return c.cfg.FetchTimeout
	}
	return 30 * time.Second
}

// feedItemID prefers the feed's own GUID, then the link, then a hash of
// (feed, title) for feeds that publish neither.
func feedItemID(feedName string, entry *gofeed.Item) string {
	if entry.GUID != "" {
		return entry.GUID
	}
	if entry.Link != "" {
		return entry.Link
	}
	h := fnv.New64a()
	h.Write([]byte(feedName))
	h.Write([]byte{0})
	h.Write([]byte(entry.Title))
	return "h:" + strconv.FormatUint(h.Sum64(), 16)
}

func feedItemBody(entry *gofeed.Item) string {
	if entry.Content != "" {
		return stripTags(entry.Content)
	}
	return stripTags(entry.Description)
}
