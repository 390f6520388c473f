// Package ratelimit enforces per user and model request quotas.
package ratelimit

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/baalimago/chatmux/internal/models"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
)

const (
	FreeTierLimit = 10
	DefaultWindow = 3 * time.Hour
	AnonymousUser = "anonymous"
)

type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// ParseTier defaults unknown and empty tiers to free.
func ParseTier(s string) Tier {
	if Tier(strings.ToLower(strings.TrimSpace(s))) == TierPro {
		return TierPro
	}
	return TierFree
}

// Key identifies one counter.
type Key struct {
	UserID  string
	ModelID string
}

// UsageRecord is the state of one counter within its window.
type UsageRecord struct {
	Count     int
	ResetTime time.Time
}

// CounterStore persists usage counters. Implementations must make Increment
// atomic per key.
type CounterStore interface {
	// Increment the counter of key and return the new record. A missing or
	// expired record (ResetTime <= now) restarts at count 1 with ResetTime
	// now+window.
	Increment(ctx context.Context, key Key, now time.Time, window time.Duration) (UsageRecord, error)
}

// Sweeper is implemented by stores which can delete expired records.
type Sweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Janitor deletes expired records of store every interval until ctx is done.
// Stores which aren't Sweepers are left as is.
func Janitor(ctx context.Context, store CounterStore, interval time.Duration) {
	sweeper, ok := store.(Sweeper)
	if !ok {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := sweeper.DeleteExpired(ctx, now)
			if err != nil {
				if ctx.Err() == nil {
					ancli.Warnf("failed to delete expired usage records: %v\n", err)
				}
				continue
			}
			if n > 0 && misc.Truthy(os.Getenv("DEBUG_RATELIMIT")) {
				ancli.Noticef("ratelimit: deleted %v expired usage records\n", n)
			}
		}
	}
}

// Decision of a limit check.
type Decision struct {
	Allowed   bool
	Reason    string
	ResetIn   time.Duration
	ResetAt   time.Time
	Remaining int
}

// Config of the limits. A limit of 0 means unlimited.
type Config struct {
	Window time.Duration `mapstructure:"window"`
	Free   int           `mapstructure:"free"`
	Pro    int           `mapstructure:"pro"`
	// Models overrides the free tier limit per model id.
	Models map[string]int `mapstructure:"models"`
}

func DefaultConfig() Config {
	return Config{
		Window: DefaultWindow,
		Free:   FreeTierLimit,
	}
}

func (c Config) limit(tier Tier, modelID string) int {
	if tier == TierPro {
		return c.Pro
	}
	if l, ok := c.Models[modelID]; ok {
		return l
	}
	return c.Free
}

type Limiter struct {
	store CounterStore
	mu    sync.RWMutex
	conf  Config
	now   func() time.Time
	debug bool
}

func NewLimiter(store CounterStore, conf Config) *Limiter {
	l := &Limiter{
		store: store,
		now:   time.Now,
		debug: misc.Truthy(os.Getenv("DEBUG_RATELIMIT")),
	}
	l.SetConfig(conf)
	return l
}

// SetConfig replaces the limits. Counters of the current windows are kept.
func (l *Limiter) SetConfig(conf Config) {
	if conf.Window <= 0 {
		conf.Window = DefaultWindow
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conf = conf
}

func (l *Limiter) config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.conf
}

// CheckLimit counts one request of userID to modelID and decides if it's
// allowed. Empty user ids share the anonymous free tier quota.
func (l *Limiter) CheckLimit(ctx context.Context, userID, modelID string, tier Tier) (Decision, error) {
	if userID == "" {
		userID = AnonymousUser
		tier = TierFree
	}
	conf := l.config()
	limit := conf.limit(tier, modelID)
	if limit <= 0 {
		return Decision{Allowed: true, Remaining: -1}, nil
	}
	now := l.now()
	rec, err := l.store.Increment(ctx, Key{UserID: userID, ModelID: modelID}, now, conf.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to increment usage: %w", err)
	}
	d := Decision{
		Allowed:   rec.Count <= limit,
		ResetAt:   rec.ResetTime,
		ResetIn:   rec.ResetTime.Sub(now),
		Remaining: max(limit-rec.Count, 0),
	}
	if !d.Allowed {
		d.Reason = fmt.Sprintf("limit of %v requests per %v reached for model '%v' on the %v tier", limit, conf.Window, modelID, tier)
	}
	if l.debug {
		ancli.Noticef("ratelimit: user: '%v', model: '%v', count: %v/%v, allowed: %v\n", userID, modelID, rec.Count, limit, d.Allowed)
	}
	return d, nil
}

// Err returns a *models.RateLimitExceededError for denied decisions, nil
// when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &models.RateLimitExceededError{Reason: d.Reason, ResetIn: d.ResetIn}
}
