package collector

import (
	"testing"
	"time"
)

func TestUnitCursorRoundTrip(t *testing.T) {
	cur := unitCursor{}
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	cur.setTime("feed-a", ts)
	cur["chan-1"] = "112233445566778899"

	decoded := decodeUnitCursor(cur.encode())
	got, ok := decoded.timeAt("feed-a")
	if !ok {
		t.Fatalf("feed-a watermark missing after round trip")
	}
	if !got.Equal(ts) {
		t.Fatalf("watermark = %s, want %s", got, ts)
	}
	if decoded["chan-1"] != "112233445566778899" {
		t.Fatalf("chan-1 = %q", decoded["chan-1"])
	}
}

func TestDecodeUnitCursorEmptyAndGarbage(t *testing.T) {
	if got := decodeUnitCursor(""); len(got) != 0 {
		t.Fatalf("empty cursor decoded to %#v", got)
	}
	if got := decodeUnitCursor("not json"); len(got) != 0 {
		t.Fatalf("garbage cursor decoded to %#v", got)
	}
}

func TestUnitCursorEmptyEncodesEmpty(t *testing.T) {
	if got := (unitCursor{}).encode(); got != "" {
		t.Fatalf("empty cursor encoded to %q", got)
	}
}

func TestUnitCursorKeysSorted(t *testing.T) {
	cur := unitCursor{"b": "2", "a": "1", "c": "3"}
	keys := cur.keys()
	want := []string{"a", "b", "c"}
	for i, k := range want {
		if keys[i] != k {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
}
