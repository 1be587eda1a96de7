package collector

import (
	"errors"
	"fmt"
	"time"
)

// ErrSourceUnavailable marks a transient upstream failure (network error,
// 5xx, auth expiry). The cycle is recorded as failed and retried with
// backoff; the cursor does not move.
var ErrSourceUnavailable = errors.New("source unavailable")

// RateLimitError is returned when the upstream throttles us. RetryAfter is
// the server's hint when it gave one; the scheduler prefers it over its own
// backoff.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// RetryAfterHint extracts the server-supplied delay from err, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter, true
	}
	return 0, false
}
