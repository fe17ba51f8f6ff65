package backend

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	logx "github.com/Chative-reservations/server/pkg/logger"
)

const (
	DefaultDurationMinutes = 120
	MinDurationMinutes     = 60
	MaxDurationMinutes     = 180
)

type durationEntry struct {
	minutes   int
	fetchedAt time.Time
}

// DurationCache holds the backend-configured reservation duration. It is a single slot
// replaced atomically; a refresh that loses a race simply overwrites with an equally
// fresh value.
type DurationCache struct {
	fetch    func(ctx context.Context) (int, error)
	ttl      time.Duration
	fallback int
	now      func() time.Time

	entry atomic.Pointer[durationEntry]
	group singleflight.Group
}

func NewDurationCache(fetch func(ctx context.Context) (int, error), ttl time.Duration, fallback int) *DurationCache {
	if fallback <= 0 {
		fallback = DefaultDurationMinutes
	}
	return &DurationCache{fetch: fetch, ttl: ttl, fallback: fallback, now: time.Now}
}

// Read returns the duration in minutes. forceRefresh bypasses the TTL and always fetches.
// A failed fetch returns the last known value, or the fallback, together with the error.
func (c *DurationCache) Read(ctx context.Context, forceRefresh bool) (int, error) {
	if !forceRefresh {
		if e := c.entry.Load(); e != nil && !e.fetchedAt.IsZero() && c.now().Sub(e.fetchedAt) < c.ttl {
			return e.minutes, nil
		}
		// concurrent unforced readers of an expired slot share one fetch
		v, err, _ := c.group.Do("duration", func() (any, error) {
			return c.refresh(ctx)
		})
		return v.(int), err
	}
	return c.refresh(ctx)
}

func (c *DurationCache) refresh(ctx context.Context) (int, error) {
	minutes, err := c.fetch(ctx)
	if err != nil {
		stale := c.fallback
		if e := c.entry.Load(); e != nil {
			stale = e.minutes
		}
		logx.Warn().Err(err).Int("duration_min", stale).Msg("duration policy read failed, using last known value")
		return stale, err
	}
	return c.Store(minutes), nil
}

// Store records a duration read elsewhere from the policies endpoint and returns it clamped.
func (c *DurationCache) Store(minutes int) int {
	minutes = clampDuration(minutes)
	c.entry.Store(&durationEntry{minutes: minutes, fetchedAt: c.now()})
	return minutes
}

// Current returns the last known value, or the fallback, without fetching.
func (c *DurationCache) Current() int {
	if e := c.entry.Load(); e != nil {
		return e.minutes
	}
	return c.fallback
}

// Invalidate marks the cached value expired so the next read of any kind refetches.
func (c *DurationCache) Invalidate() {
	e := c.entry.Load()
	if e == nil {
		return
	}
	c.entry.Store(&durationEntry{minutes: e.minutes})
}

// Peek returns the cached value without fetching; ok is false when nothing was cached yet.
func (c *DurationCache) Peek() (minutes int, fetchedAt time.Time, ok bool) {
	e := c.entry.Load()
	if e == nil {
		return 0, time.Time{}, false
	}
	return e.minutes, e.fetchedAt, true
}

func clampDuration(m int) int {
	switch {
	case m <= 0:
		return DefaultDurationMinutes
	case m < MinDurationMinutes:
		return MinDurationMinutes
	case m > MaxDurationMinutes:
		return MaxDurationMinutes
	}
	return m
}
