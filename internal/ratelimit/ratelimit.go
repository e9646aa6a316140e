// Package ratelimit throttles calculation requests per caller with a token
// bucket kept in Redis, so every API replica shares one budget.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "rl:"

// Limiter allows limit requests per window for each key.
type Limiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	scope  string
}

// New returns a Limiter. scope namespaces the keys of one endpoint group.
// A nil client or non-positive limit disables limiting.
func New(rdb *redis.Client, limit int, window time.Duration, scope string) *Limiter {
	return &Limiter{rdb: rdb, limit: limit, window: window, scope: scope}
}

func (l *Limiter) key(k string) string {
	if l.scope == "" {
		return keyPrefix + k
	}
	return keyPrefix + l.scope + ":" + k
}

// Allow consumes a token for key if one is available.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.rdb == nil || l.limit <= 0 {
		return true, nil
	}
	interval := l.window.Milliseconds() / int64(l.limit)
	if interval <= 0 {
		interval = 1
	}
	res, err := l.rdb.Eval(ctx, tokenBucket, []string{l.key(key)}, l.limit, interval, time.Now().UnixMilli()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Middleware rejects requests over budget with 429. Redis errors fail open.
func (l *Limiter) Middleware(keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := l.Allow(c.Request.Context(), keyFunc(c))
		if err != nil {
			log.Ctx(c.Request.Context()).Warn().Err(err).Msg("rate limiter unavailable")
			c.Next()
			return
		}
		if !ok {
			secs := int(l.window.Seconds()) / l.limit
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
			return
		}
		c.Next()
	}
}

// tokenBucket stores remaining tokens and the last refill time per key.
const tokenBucket = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local data = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(data[1])
local ts = tonumber(data[2])
if tokens == nil then
  tokens = capacity
  ts = now
else
  local add = math.floor((now - ts) / interval)
  if add > 0 then
    tokens = math.min(tokens + add, capacity)
    ts = ts + add * interval
  end
end
local allowed = 0
if tokens > 0 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HMSET', key, 'tokens', tokens, 'ts', ts)
redis.call('PEXPIRE', key, interval * capacity)
return allowed
`
