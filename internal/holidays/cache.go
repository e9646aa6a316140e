package holidays

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cached is a Redis read-through cache in front of another Source. Cache
// failures fall back to the wrapped source.
type Cached struct {
	Source Source
	RDB    *redis.Client
	Key    string
	TTL    time.Duration
}

// CacheKey namespaces the cache entry for a calendar.
func CacheKey(calendarID string) string { return "sla:holidays:" + calendarID }

func (c Cached) Load(ctx context.Context) ([]Holiday, error) {
	if c.RDB != nil {
		b, err := c.RDB.Get(ctx, c.Key).Bytes()
		switch {
		case err == nil:
			var hs []Holiday
			if err := json.Unmarshal(b, &hs); err == nil {
				return hs, nil
			}
			log.Ctx(ctx).Warn().Str("key", c.Key).Msg("discarding unreadable holiday cache entry")
		case !errors.Is(err, redis.Nil):
			log.Ctx(ctx).Warn().Err(err).Str("key", c.Key).Msg("holiday cache read")
		}
	}
	hs, err := c.Source.Load(ctx)
	if err != nil {
		return nil, err
	}
	if c.RDB != nil {
		if hs == nil {
			hs = []Holiday{}
		}
		if b, err := json.Marshal(hs); err == nil {
			if err := c.RDB.Set(ctx, c.Key, b, c.TTL).Err(); err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("key", c.Key).Msg("holiday cache write")
			}
		}
	}
	return hs, nil
}

// Invalidate drops the cached entry so the next Load reads the source.
func (c Cached) Invalidate(ctx context.Context) error {
	if c.RDB == nil {
		return nil
	}
	return c.RDB.Del(ctx, c.Key).Err()
}
