package generic

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestRateLimiter_DurationHeaders(t *testing.T) {
	rl := NewRateLimiter("reset")
	h := http.Header{}
	h.Set("reset", "2s")
	if d := time.Until(rl.ResetHint(h)); d < time.Second || d > 3*time.Second {
		t.Errorf("expected ~2s reset, got %v", d)
	}
}

func TestRateLimiter_UnixHeaders(t *testing.T) {
	rl := NewRateLimiter("reset")
	h := http.Header{}
	ts := time.Now().Add(3 * time.Second).Unix()
	h.Set("reset", fmt.Sprintf("%d", ts))
	if d := time.Until(rl.ResetHint(h)); d < time.Second || d > 4*time.Second {
		t.Errorf("expected ~3s reset, got %v", d)
	}
}

func TestRateLimiter_RFC3339Headers(t *testing.T) {
	rl := NewRateLimiter("reset")
	want := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	h := http.Header{}
	h.Set("reset", want.Format(time.RFC3339))
	if got := rl.ResetHint(h); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRateLimiter_MissingOrMalformed(t *testing.T) {
	rl := NewRateLimiter("reset")
	if got := rl.ResetHint(http.Header{}); !got.IsZero() {
		t.Fatalf("expected zero time without headers, got %v", got)
	}
	h := http.Header{}
	h.Set("reset", "soon")
	if got := rl.ResetHint(h); !got.IsZero() {
		t.Fatalf("expected zero time for malformed header, got %v", got)
	}
}

func TestRateLimiter_RetryAfterWins(t *testing.T) {
	rl := NewRateLimiter("reset")
	h := http.Header{}
	h.Set("retry-after", "30")
	h.Set("reset", "10m")
	got := rl.ResetHint(h)
	if d := time.Until(got); d < 25*time.Second || d > 31*time.Second {
		t.Fatalf("expected ~30s, got %v", d)
	}
}

func TestRateLimiter_PacingRespectsContext(t *testing.T) {
	rl := NewRateLimiter("").WithPacing(0.001, 1)
	ctx, cancel := context.WithCancel(context.Background())
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("first call should pass the burst: %v", err)
	}
	cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
