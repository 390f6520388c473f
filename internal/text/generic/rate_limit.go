package generic

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"golang.org/x/time/rate"
)

// RateLimiter is a vendor agnostic view on rate limit headers. It is used to
// attach a reset hint to 429 errors and, optionally, to pace outbound
// requests so a single process stays below a configured request rate.
type RateLimiter struct {
	resetHeader string

	pacer *rate.Limiter
	debug bool
}

// NewRateLimiter creates a new limiter reading the vendor's reset header.
// An empty name leaves only Retry-After.
func NewRateLimiter(resetHeader string) RateLimiter {
	rl := RateLimiter{
		resetHeader: strings.ToLower(resetHeader),
	}
	if misc.Truthy(os.Getenv("DEBUG")) || misc.Truthy(os.Getenv("DEBUG_RATE_LIMIT")) {
		rl.debug = true
	}
	return rl
}

// WithPacing limits outbound requests to rps per second with the given
// burst. rps <= 0 disables pacing.
func (r RateLimiter) WithPacing(rps float64, burst int) RateLimiter {
	if rps <= 0 {
		r.pacer = nil
		return r
	}
	if burst < 1 {
		burst = 1
	}
	r.pacer = rate.NewLimiter(rate.Limit(rps), burst)
	return r
}

// Wait blocks until the pacer allows another request or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil || r.pacer == nil {
		return nil
	}
	if err := r.pacer.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for outbound pacing: %w", err)
	}
	return nil
}

// ResetHint reads the reset time of a 429 response. Retry-After wins over
// vendor specific headers.
func (r *RateLimiter) ResetHint(h http.Header) time.Time {
	if ra := h.Get("retry-after"); ra != "" {
		if t, err := parseReset(ra, time.Now()); err == nil {
			return t
		}
	}
	if r.resetHeader == "" {
		return time.Time{}
	}
	v := h.Get(r.resetHeader)
	if v == "" {
		return time.Time{}
	}
	t, err := parseReset(v, time.Now())
	if err != nil {
		if r.debug {
			ancli.PrintWarn(fmt.Sprintf("failed to parse %s: %v", r.resetHeader, err))
		}
		return time.Time{}
	}
	return t
}

// parseReset accepts durations ("1m2s"), RFC3339 timestamps, unix seconds
// and fractional seconds relative to now.
func parseReset(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if dur, err := time.ParseDuration(s); err == nil {
		return now.Add(dur), nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Small integers are relative seconds (retry-after), large ones are
		// unix timestamps.
		if n < 1_000_000_000 {
			return now.Add(time.Duration(n) * time.Second), nil
		}
		return time.Unix(n, 0), nil
	}
	if sec, err := strconv.ParseFloat(s, 64); err == nil {
		return now.Add(time.Duration(sec * float64(time.Second))), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized reset format: '%v'", s)
}
