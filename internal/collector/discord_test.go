package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"mediameter/internal/config"
	"mediameter/internal/models"
)

type fakeDiscord struct {
	messages map[string][]*discordgo.Message
	errs     map[string]error
	afterIDs map[string]string
}

func (f *fakeDiscord) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	if f.afterIDs == nil {
		f.afterIDs = map[string]string{}
	}
	if _, seen := f.afterIDs[channelID]; !seen {
		f.afterIDs[channelID] = afterID
	}
	if err := f.errs[channelID]; err != nil {
		return nil, err
	}
	msgs := f.messages[channelID]
	delete(f.messages, channelID)
	return msgs, nil
}

func dmsg(id, content string, ts time.Time) *discordgo.Message {
	return &discordgo.Message{
		ID:        id,
		Content:   content,
		Timestamp: ts,
		Author:    &discordgo.User{Username: "tester"},
	}
}

func newTestDiscordCollector(session discordAPI, channels ...string) *DiscordCollector {
	return &DiscordCollector{
		cfg:      config.DiscordConfig{MaxPerBatch: 100},
		session:  session,
		channels: func() []string { return channels },
		log:      zap.NewNop(),
		now:      time.Now,
	}
}

func TestDiscordFetchAdvancesPerChannelCursor(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeDiscord{messages: map[string][]*discordgo.Message{
		"100": {dmsg("9002", "second", base.Add(time.Minute)), dmsg("9001", "first", base)},
		"200": {dmsg("9005", "other channel", base)},
	}}
	c := newTestDiscordCollector(fake, "100", "200")

	res, err := c.Fetch(context.Background(), "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(res.Items))
	}
	if res.Items[0].SourceType != models.SourceMessaging {
		t.Fatalf("source type = %q", res.Items[0].SourceType)
	}
	// Newest-first pages come out in timestamp order.
	if res.Items[0].SourceItemID != "9001" || res.Items[1].SourceItemID != "9002" {
		t.Fatalf("fetch order = %q, %q", res.Items[0].SourceItemID, res.Items[1].SourceItemID)
	}

	next := decodeUnitCursor(res.NextCursor)
	if next["100"] != "9002" {
		t.Fatalf("channel 100 cursor = %q, want 9002", next["100"])
	}
	if next["200"] != "9005" {
		t.Fatalf("channel 200 cursor = %q, want 9005", next["200"])
	}
}

func TestDiscordFetchPassesCursorAsAfter(t *testing.T) {
	fake := &fakeDiscord{}
	c := newTestDiscordCollector(fake, "100")
	cur := unitCursor{"100": "8888"}

	if _, err := c.Fetch(context.Background(), cur.encode()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if fake.afterIDs["100"] != "8888" {
		t.Fatalf("after = %q, want 8888", fake.afterIDs["100"])
	}
}

func TestDiscordFetchFailSoftPerChannel(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeDiscord{
		messages: map[string][]*discordgo.Message{"200": {dmsg("9005", "hello", base)}},
		errs:     map[string]error{"100": errors.New("missing access")},
	}
	c := newTestDiscordCollector(fake, "100", "200")
	cur := unitCursor{"100": "7777"}

	res, err := c.Fetch(context.Background(), cur.encode())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.UnitErrors != 1 {
		t.Fatalf("unit errors = %d, want 1", res.UnitErrors)
	}
	next := decodeUnitCursor(res.NextCursor)
	if next["100"] != "7777" {
		t.Fatalf("failed channel cursor moved to %q", next["100"])
	}
	if next["200"] != "9005" {
		t.Fatalf("succeeded channel cursor = %q", next["200"])
	}
}

func TestDiscordFetchRateLimit(t *testing.T) {
	fake := &fakeDiscord{errs: map[string]error{
		"100": discordgo.RateLimitError{RateLimit: &discordgo.RateLimit{
			TooManyRequests: &discordgo.TooManyRequests{RetryAfter: 42 * time.Second},
		}},
	}}
	c := newTestDiscordCollector(fake, "100")

	_, err := c.Fetch(context.Background(), "")
	if err == nil {
		t.Fatalf("expected rate limit error")
	}
	hint, ok := RetryAfterHint(err)
	if !ok {
		t.Fatalf("no retry hint on %v", err)
	}
	if hint != 42*time.Second {
		t.Fatalf("hint = %s, want 42s", hint)
	}
}

func TestSnowflakeLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"", "1", true},
		{"9", "10", true},
		{"10", "9", false},
		{"9001", "9002", true},
		{"9002", "9002", false},
	}
	for _, tc := range cases {
		if got := snowflakeLess(tc.a, tc.b); got != tc.want {
			t.Fatalf("snowflakeLess(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
