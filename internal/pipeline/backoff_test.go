package pipeline

import (
	"testing"
	"time"
)

func TestNextDelayExponential(t *testing.T) {
	base := 30 * time.Second
	max := 30 * time.Minute
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{7, 30 * time.Minute},
		{50, 30 * time.Minute},
	}
	for _, tc := range cases {
		if got := nextDelay(base, max, tc.failures, 0); got != tc.want {
			t.Fatalf("nextDelay(failures=%d) = %s, want %s", tc.failures, got, tc.want)
		}
	}
}

func TestNextDelayHintWins(t *testing.T) {
	if got := nextDelay(30*time.Second, 30*time.Minute, 1, 5*time.Minute); got != 5*time.Minute {
		t.Fatalf("hint ignored: %s", got)
	}
	// A hint shorter than the computed backoff does not shrink it.
	if got := nextDelay(30*time.Second, 30*time.Minute, 4, time.Second); got != 4*time.Minute {
		t.Fatalf("short hint shrank backoff: %s", got)
	}
}

func TestNextDelayDefaults(t *testing.T) {
	if got := nextDelay(0, 0, 0, 0); got != 30*time.Second {
		t.Fatalf("defaults = %s", got)
	}
}
