package tokenguard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/fieldware/sessiongate"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "sg:principal"

// Cache memoizes token->Principal resolutions in Redis so hot tokens skip
// the provider round trip. Entries expire after the configured TTL, which
// bounds how long a revoked token keeps validating; keep it short.
//
// Every failure path degrades to a cache miss. The guard never turns a cache
// fault into a request failure.
type Cache struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger sessiongate.Logger
}

type CacheOption func(*Cache)

// WithCacheLogger overrides the logger used for degraded lookups.
func WithCacheLogger(logger sessiongate.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCachePrefix namespaces cache keys, e.g. per environment.
func WithCachePrefix(prefix string) CacheOption {
	return func(c *Cache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

func NewCache(rdb redis.UniversalClient, ttl time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		rdb:    rdb,
		prefix: cacheKeyPrefix,
		ttl:    ttl,
		logger: sessiongate.DefaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// key hashes the token so the raw credential never lands in Redis.
func (c *Cache) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return c.prefix + ":" + hex.EncodeToString(sum[:])
}

func (c *Cache) Get(ctx context.Context, token string) (sessiongate.Principal, bool) {
	b, err := c.rdb.Get(ctx, c.key(token)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("principal cache read degraded: %v", err)
		}
		return sessiongate.Principal{}, false
	}

	var principal sessiongate.Principal
	if err := json.Unmarshal(b, &principal); err != nil {
		c.logger.Warn("principal cache entry corrupt, dropping: %v", err)
		_ = c.rdb.Del(ctx, c.key(token)).Err()
		return sessiongate.Principal{}, false
	}

	return principal, true
}

func (c *Cache) Set(ctx context.Context, token string, principal sessiongate.Principal) {
	b, err := json.Marshal(principal)
	if err != nil {
		return
	}

	if err := c.rdb.Set(ctx, c.key(token), b, c.ttl).Err(); err != nil {
		c.logger.Warn("principal cache write degraded: %v", err)
	}
}

// Invalidate drops a token's cached principal, used on logout so revocation
// takes effect immediately instead of waiting out the TTL.
func (c *Cache) Invalidate(ctx context.Context, token string) {
	if err := c.rdb.Del(ctx, c.key(token)).Err(); err != nil {
		c.logger.Warn("principal cache invalidate degraded: %v", err)
	}
}
