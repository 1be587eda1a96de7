package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"mediameter/internal/config"
	"mediameter/internal/models"
)

// discordAPI is the slice of *discordgo.Session the collector uses.
type discordAPI interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

// DiscordCollector polls monitored channels for new messages. Cursors are
// per-channel last message IDs; the channel list is re-read every cycle so
// config reloads take effect without restarting the adapter.
type DiscordCollector struct {
	cfg      config.DiscordConfig
	session  discordAPI
	channels func() []string
	log      *zap.Logger
	now      func() time.Time
}

func NewDiscordCollector(cfg config.DiscordConfig, session *discordgo.Session, log *zap.Logger) *DiscordCollector {
	return &DiscordCollector{
		cfg:      cfg,
		session:  session,
		channels: func() []string { return cfg.Channels },
		log:      log,
		now:      time.Now,
	}
}

func (c *DiscordCollector) Name() string {
	return "discord"
}

func (c *DiscordCollector) SourceType() models.SourceType {
	return models.SourceMessaging
}

func (c *DiscordCollector) Fetch(ctx context.Context, cursor string) (FetchResult, error) {
	cur := decodeUnitCursor(cursor)
	next := decodeUnitCursor(cursor)

	channels := c.channels()
	var (
		items      []RawItem
		unitErrors int
		attempted  int
	)
	for _, channelID := range channels {
		if channelID == "" {
			continue
		}
		attempted++

		messages, err := c.fetchChannel(ctx, channelID, cur[channelID])
		if err != nil {
			var rle discordgo.RateLimitError
			if errors.As(err, &rle) {
				// Global throttle: stop the whole cycle, keep what we have.
				return FetchResult{}, &RateLimitError{RetryAfter: rle.RetryAfter}
			}
			unitErrors++
			c.log.Warn("channel fetch failed",
				zap.String("channel", channelID),
				zap.Error(err))
			continue
		}

		lastID := cur[channelID]
		for _, msg := range messages {
			if msg == nil || msg.Author == nil || msg.Content == "" {
				continue
			}
			items = append(items, RawItem{
				SourceType:   models.SourceMessaging,
				SourceItemID: msg.ID,
				SourceName:   channelID,
				Body:         msg.Content,
				URL:          messageURL(msg, channelID),
				PublishedAt:  msg.Timestamp.UTC(),
				Attrs:        messageAttrs(msg),
			})
			if snowflakeLess(lastID, msg.ID) {
				lastID = msg.ID
			}
		}
		if lastID != "" {
			next[channelID] = lastID
		}
	}

	if attempted > 0 && unitErrors >= attempted {
		return FetchResult{}, fmt.Errorf("all %d channels failed: %w", attempted, ErrSourceUnavailable)
	}
	return FetchResult{Items: items, NextCursor: next.encode(), UnitErrors: unitErrors}, nil
}

// fetchChannel pages forward from afterID until it drains or hits the batch
// cap. Messages come back newest first; sorting by timestamp restores fetch
// order for the pipeline.
func (c *DiscordCollector) fetchChannel(ctx context.Context, channelID, afterID string) ([]*discordgo.Message, error) {
	limit := c.cfg.MaxPerBatch
	if limit <= 0 {
		limit = 100
	}
	var out []*discordgo.Message
	for len(out) < limit {
		pageSize := limit - len(out)
		if pageSize > 100 {
			pageSize = 100
		}
		page, err := c.session.ChannelMessages(channelID, pageSize, "", afterID, "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		out = append(out, page...)
		for _, msg := range page {
			if msg != nil && snowflakeLess(afterID, msg.ID) {
				afterID = msg.ID
			}
		}
		if len(page) < pageSize {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func messageURL(msg *discordgo.Message, channelID string) string {
	guild := msg.GuildID
	if guild == "" {
		guild = "@me"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guild, channelID, msg.ID)
}

func messageAttrs(msg *discordgo.Message) map[string]any {
	reactions := 0
	for _, r := range msg.Reactions {
		if r != nil {
			reactions += r.Count
		}
	}
	if reactions == 0 {
		return nil
	}
	return map[string]any{"reactions": reactions}
}

// snowflakeLess compares Discord snowflake IDs numerically without parsing:
// longer decimal strings are larger, equal lengths compare lexically.
func snowflakeLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
