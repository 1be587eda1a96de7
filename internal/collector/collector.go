package collector

import (
	"context"
	"time"

	"mediameter/internal/models"
)

// RawItem is one normalized source item before matching. SourceItemID must
// be stable across fetches of the same item; it is one third of the mention
// identity key.
type RawItem struct {
	SourceType   models.SourceType
	SourceItemID string
	SourceName   string
	Title        string
	Body         string
	URL          string
	PublishedAt  time.Time
	// Attrs carries source metrics (views, forwards, likes) untouched.
	Attrs map[string]any
}

// FetchResult is one collection batch. Items are in fetch order. NextCursor
// already reflects per-unit success: a feed, channel or query that failed
// keeps its previous watermark inside the encoded cursor.
type FetchResult struct {
	Items      []RawItem
	NextCursor string
	UnitErrors int
}

// Collector pulls new items from one source since the given cursor. An
// empty cursor means a cold start; each adapter decides its own baseline.
// Fetch returning an error means the whole cycle failed and the cursor must
// not advance.
type Collector interface {
	Name() string
	SourceType() models.SourceType
	Fetch(ctx context.Context, cursor string) (FetchResult, error)
}
