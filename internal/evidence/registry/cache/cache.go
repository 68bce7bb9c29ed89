// Package cache wraps a registry client with a Redis read-through cache.
//
// Registry lookups are slow and rate-limited upstream; verified results are
// safe to reuse for a short TTL. Keys are a digest of the national ID, never
// the plaintext: Redis holds no raw NIK even for the TTL window.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"skillpass/internal/evidence/registry"
	platformredis "skillpass/internal/platform/redis"
	"skillpass/pkg/domain"
)

// Cache is a registry.Client that consults Redis before the wrapped client.
// Cache errors fall through to the wrapped client; they never fail a lookup.
type Cache struct {
	next   registry.Client
	redis  *platformredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func New(next registry.Client, redis *platformredis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{next: next, redis: redis, ttl: ttl, logger: logger}
}

type cachedResult struct {
	Valid         bool      `json:"valid"`
	MatchedFields []string  `json:"matched_fields"`
	Source        string    `json:"source"`
	CheckedAt     time.Time `json:"checked_at"`
}

func key(nationalID domain.NationalID) string {
	digest := sha256.Sum256([]byte(nationalID.String()))
	return "registry:citizen:" + hex.EncodeToString(digest[:])
}

func (c *Cache) Lookup(ctx context.Context, nationalID domain.NationalID, match registry.MatchFields) (registry.Result, error) {
	// Cross-matching against name or birth date bypasses the cache: the
	// cached result does not record what it was matched against.
	if match != (registry.MatchFields{}) {
		return c.next.Lookup(ctx, nationalID, match)
	}

	if raw, err := c.redis.Get(ctx, key(nationalID)).Bytes(); err == nil {
		var cached cachedResult
		if err := json.Unmarshal(raw, &cached); err == nil {
			return registry.Result{
				Valid:         cached.Valid,
				MatchedFields: cached.MatchedFields,
				Source:        cached.Source + " (cached)",
				CheckedAt:     cached.CheckedAt,
			}, nil
		}
	} else if !errors.Is(err, goredis.Nil) {
		c.logger.WarnContext(ctx, "registry cache read failed", "error", err)
	}

	result, err := c.next.Lookup(ctx, nationalID, match)
	if err != nil {
		return registry.Result{}, err
	}

	raw, err := json.Marshal(cachedResult{
		Valid:         result.Valid,
		MatchedFields: result.MatchedFields,
		Source:        result.Source,
		CheckedAt:     result.CheckedAt,
	})
	if err != nil {
		// The registry answered; a cache bookkeeping failure must not
		// turn that into a lookup failure.
		c.logger.WarnContext(ctx, "registry cache entry marshal failed", "error", err)
		return result, nil
	}
	if err := c.redis.Set(ctx, key(nationalID), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "registry cache write failed", "error", err)
	}
	return result, nil
}
