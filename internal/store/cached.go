package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/pool-availability/internal/availability"
	"github.com/hackgods/pool-availability/internal/cache"
	"github.com/hackgods/pool-availability/internal/interval"
	"github.com/hackgods/pool-availability/internal/schedule"
	"github.com/hackgods/pool-availability/internal/wallclock"
)

// CachedCalendars caches the slow-changing calendar reads. Bookings always go
// to the underlying store: a stale booking list would show taken time as free.
type CachedCalendars struct {
	next  availability.CalendarStore
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedCalendars(next availability.CalendarStore, c cache.Cache, ttl time.Duration) *CachedCalendars {
	return &CachedCalendars{next: next, cache: c, ttl: ttl}
}

func (c *CachedCalendars) CalendarSettings(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]availability.CalendarSettings, error) {
	return cache.GetOrLoadMany(ctx, c.cache, "settings", ids, c.ttl, c.next.CalendarSettings)
}

func (c *CachedCalendars) Rules(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]schedule.Rule, error) {
	return cache.GetOrLoadMany(ctx, c.cache, "rules", ids, c.ttl, c.next.Rules)
}

func (c *CachedCalendars) Blackouts(ctx context.Context, ids []uuid.UUID, from wallclock.Date) (map[uuid.UUID][]schedule.Blackout, error) {
	return cache.GetOrLoadMany(ctx, c.cache, "blackouts:"+from.String(), ids, c.ttl,
		func(ctx context.Context, missing []uuid.UUID) (map[uuid.UUID][]schedule.Blackout, error) {
			loaded, err := c.next.Blackouts(ctx, missing, from)
			if err != nil {
				return nil, err
			}
			// Cache the empty list too, otherwise providers with no
			// blackouts miss every time.
			for _, id := range missing {
				if _, ok := loaded[id]; !ok {
					loaded[id] = []schedule.Blackout{}
				}
			}
			return loaded, nil
		})
}

func (c *CachedCalendars) Bookings(ctx context.Context, ids []uuid.UUID, from, to time.Time) (map[uuid.UUID][]interval.Interval, error) {
	return c.next.Bookings(ctx, ids, from, to)
}

func (c *CachedCalendars) Meeting(ctx context.Context, id uuid.UUID) (availability.Meeting, error) {
	return cache.GetOrLoad(ctx, c.cache, cache.Key("meeting", id), c.ttl, func(ctx context.Context) (availability.Meeting, error) {
		return c.next.Meeting(ctx, id)
	})
}

// CachedPools caches pool metadata only. Membership and assignments are read
// through so toggling a member takes effect immediately.
type CachedPools struct {
	availability.PoolStore
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedPools(next availability.PoolStore, c cache.Cache, ttl time.Duration) *CachedPools {
	return &CachedPools{PoolStore: next, cache: c, ttl: ttl}
}

func (c *CachedPools) Pool(ctx context.Context, id uuid.UUID) (availability.PoolInfo, error) {
	return cache.GetOrLoad(ctx, c.cache, cache.Key("pool", id), c.ttl, func(ctx context.Context) (availability.PoolInfo, error) {
		return c.PoolStore.Pool(ctx, id)
	})
}
