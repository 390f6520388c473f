package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/baalimago/chatmux/internal/models"
	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(store CounterStore, conf Config) (*Limiter, *clock) {
	c := &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(store, conf)
	l.now = c.Now
	return l, c
}

func TestCheckLimit_FreeTier(t *testing.T) {
	ctx := context.Background()
	l, c := newTestLimiter(NewMemoryStore(), DefaultConfig())
	start := c.Now()
	wantReset := start.Add(DefaultWindow)

	for i := 1; i <= FreeTierLimit; i++ {
		d, err := l.CheckLimit(ctx, "alice", "gpt-4o", TierFree)
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("call %v should be allowed", i)
		}
		testboil.FailTestIfDiff(t, d.Remaining, FreeTierLimit-i)
		c.Advance(time.Minute)
	}

	d, err := l.CheckLimit(ctx, "alice", "gpt-4o", TierFree)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if d.Allowed {
		t.Fatal("11th call must be denied")
	}
	testboil.FailTestIfDiff(t, d.ResetAt, wantReset)
	testboil.FailTestIfDiff(t, d.ResetIn, wantReset.Sub(c.Now()))
	testboil.AssertStringContains(t, d.Reason, "limit of 10 requests")

	var rlErr *models.RateLimitExceededError
	if !errors.As(d.Err(), &rlErr) {
		t.Fatalf("expected RateLimitExceededError, got: %T", d.Err())
	}

	// Other models and users have their own counters
	d, _ = l.CheckLimit(ctx, "alice", "claude-sonnet-4", TierFree)
	if !d.Allowed {
		t.Fatal("other model should be allowed")
	}
	d, _ = l.CheckLimit(ctx, "bob", "gpt-4o", TierFree)
	if !d.Allowed {
		t.Fatal("other user should be allowed")
	}
}

func TestCheckLimit_ResetsAfterWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l, c := newTestLimiter(store, DefaultConfig())
	for range FreeTierLimit + 1 {
		l.CheckLimit(ctx, "alice", "gpt-4o", TierFree)
	}
	c.Advance(DefaultWindow)

	d, err := l.CheckLimit(ctx, "alice", "gpt-4o", TierFree)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !d.Allowed {
		t.Fatal("expected call after window to be allowed")
	}
	testboil.FailTestIfDiff(t, d.Remaining, FreeTierLimit-1)
	testboil.FailTestIfDiff(t, d.ResetAt, c.Now().Add(DefaultWindow))

	rec, _ := store.Increment(ctx, Key{UserID: "alice", ModelID: "gpt-4o"}, c.Now(), DefaultWindow)
	testboil.FailTestIfDiff(t, rec.Count, 2)
}

func TestCheckLimit_ProIsUnlimited(t *testing.T) {
	store := NewMemoryStore()
	l, _ := newTestLimiter(store, DefaultConfig())
	for range FreeTierLimit * 3 {
		d, err := l.CheckLimit(context.Background(), "alice", "gpt-4o", TierPro)
		if err != nil || !d.Allowed {
			t.Fatalf("pro tier must be unlimited, got: %+v, err: %v", d, err)
		}
	}
	testboil.FailTestIfDiff(t, store.Len(), 0)
}

func TestCheckLimit_AnonymousAndOverrides(t *testing.T) {
	conf := DefaultConfig()
	conf.Models = map[string]int{"o1": 1}
	l, _ := newTestLimiter(NewMemoryStore(), conf)
	ctx := context.Background()

	d, _ := l.CheckLimit(ctx, "", "o1", TierPro)
	if !d.Allowed {
		t.Fatal("first anonymous call should be allowed")
	}
	// Empty user ids are always free tier
	d, _ = l.CheckLimit(ctx, "", "o1", TierPro)
	if d.Allowed {
		t.Fatal("expected model override to deny the second call")
	}
}

func TestCheckLimit_ConcurrentIncrementsAreAtomic(t *testing.T) {
	conf := DefaultConfig()
	conf.Free = 50
	l, _ := newTestLimiter(NewMemoryStore(), conf)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := l.CheckLimit(context.Background(), "alice", "gpt-4o", TierFree)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	testboil.FailTestIfDiff(t, allowed, 50)
}

func TestMemoryStore_DeleteExpired(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	ctx := context.Background()
	s.Increment(ctx, Key{UserID: "a"}, now, time.Minute)
	s.Increment(ctx, Key{UserID: "b"}, now, time.Hour)

	n, err := s.DeleteExpired(ctx, now.Add(2*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	testboil.FailTestIfDiff(t, n, 1)
	testboil.FailTestIfDiff(t, s.Len(), 1)
}

func TestJanitor(t *testing.T) {
	s := NewMemoryStore()
	s.Increment(context.Background(), Key{UserID: "a"}, time.Now().Add(-time.Hour), time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	Janitor(ctx, s, time.Millisecond)
	testboil.FailTestIfDiff(t, s.Len(), 0)

	testboil.ReturnsOnContextCancel(t, func(ctx context.Context) {
		Janitor(ctx, s, time.Hour)
	}, time.Second)
}

func TestParseTier(t *testing.T) {
	testboil.FailTestIfDiff(t, ParseTier("PRO"), TierPro)
	testboil.FailTestIfDiff(t, ParseTier(""), TierFree)
	testboil.FailTestIfDiff(t, ParseTier("enterprise"), TierFree)
}

func TestLimiter_SetConfig(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(NewMemoryStore(), Config{Free: 1})
	d, _ := l.CheckLimit(ctx, "alice", "gpt-4o", TierFree)
	testboil.FailTestIfDiff(t, d.Allowed, true)
	d, _ = l.CheckLimit(ctx, "alice", "gpt-4o", TierFree)
	testboil.FailTestIfDiff(t, d.Allowed, false)

	l.SetConfig(Config{Free: 5})
	d, _ = l.CheckLimit(ctx, "alice", "gpt-4o", TierFree)
	testboil.FailTestIfDiff(t, d.Allowed, true)
	testboil.FailTestIfDiff(t, d.Remaining, 2)
	testboil.FailTestIfDiff(t, l.config().Window, DefaultWindow)
}
