package collector

import (
	"encoding/json"
	"sort"
	"time"
)

// unitCursor is the per-unit watermark map behind every adapter cursor:
// feed name → last published_at, channel ID → last message ID, entity slug
// → last status ID. Values are opaque strings; only the owning adapter
// interprets them. Encoding to JSON keeps cursors inspectable in the
// collector_state table.
type unitCursor map[string]string

func decodeUnitCursor(raw string) unitCursor {
	if raw == "" {
		return unitCursor{}
	}
	out := unitCursor{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		// A cursor we cannot read is treated as a cold start rather than
		// wedging the adapter forever.
		return unitCursor{}
	}
	return out
}

func (c unitCursor) encode() string {
	if len(c) == 0 {
		return ""
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return string(raw)
}

func (c unitCursor) timeAt(key string) (time.Time, bool) {
	raw, ok := c[key]
	if !ok || raw == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func (c unitCursor) setTime(key string, ts time.Time) {
	c[key] = ts.UTC().Format(time.RFC3339)
}

// keys returns the unit keys in stable order, for deterministic fetch order
// and logs.
func (c unitCursor) keys() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
