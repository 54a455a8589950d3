// Package cache defines the time-boxed read cache injected into the
// data-fetch layer.
package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Cache stores JSON-encodable values under string keys with a TTL.
type Cache interface {
	// Get decodes the value under key into dst and reports whether it was found.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Noop never hits. Used when caching is disabled.
type Noop struct{}

func (Noop) Get(context.Context, string, any) (bool, error)        { return false, nil }
func (Noop) Set(context.Context, string, any, time.Duration) error { return nil }
func (Noop) Delete(context.Context, ...string) error               { return nil }

// GetOrLoad returns the cached value for key, or calls load and caches the
// result. Cache failures are logged and never fail the read.
func GetOrLoad[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var cached T
	hit, err := c.Get(ctx, key, &cached)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache get failed")
	} else if hit {
		return cached, nil
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
	return v, nil
}

// GetOrLoadMany is GetOrLoad for per-id values. Misses are loaded in one call;
// ids the loader does not return are not cached.
func GetOrLoadMany[T any](ctx context.Context, c Cache, prefix string, ids []uuid.UUID, ttl time.Duration, load func(context.Context, []uuid.UUID) (map[uuid.UUID]T, error)) (map[uuid.UUID]T, error) {
	out := make(map[uuid.UUID]T, len(ids))
	var missing []uuid.UUID

	for _, id := range ids {
		var v T
		hit, err := c.Get(ctx, Key(prefix, id), &v)
		if err != nil {
			log.Warn().Err(err).Str("key", Key(prefix, id)).Msg("cache get failed")
		} else if hit {
			out[id] = v
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := load(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, v := range loaded {
		out[id] = v
		if err := c.Set(ctx, Key(prefix, id), v, ttl); err != nil {
			log.Warn().Err(err).Str("key", Key(prefix, id)).Msg("cache set failed")
		}
	}
	return out, nil
}

func Key(prefix string, id uuid.UUID) string {
	return prefix + ":" + id.String()
}
