package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	keyCachedRecord = "idem:order:%s"
	ttlCachedRecord = 24 * time.Hour
)

// Cache is the part of *redis.Client the cached ledger needs.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// CachedLedger serves repeated lookups of successful records from Redis.
// Redis failures fall back to the wrapped ledger.
type CachedLedger struct {
	inner  Ledger
	cache  Cache
	logger zerolog.Logger
}

func NewCachedLedger(inner Ledger, cache Cache, logger zerolog.Logger) *CachedLedger {
	return &CachedLedger{inner: inner, cache: cache, logger: logger}
}

func (c *CachedLedger) Get(ctx context.Context, key string) (*Record, error) {
	cacheKey := fmt.Sprintf(keyCachedRecord, key)

	raw, err := c.cache.Get(ctx, cacheKey).Bytes()
	switch {
	case err == nil:
		var rec Record
		if jsonErr := json.Unmarshal(raw, &rec); jsonErr == nil {
			return &rec, nil
		}
		c.logger.Warn().Str("key", cacheKey).Msg("discarding undecodable idempotency cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("key", cacheKey).Msg("idempotency cache read")
	}

	rec, err := c.inner.Get(ctx, key)
	if err != nil || rec == nil || rec.Status != StatusSuccess {
		return rec, err
	}

	if body, err := json.Marshal(rec); err == nil {
		if err := c.cache.Set(ctx, cacheKey, body, ttlCachedRecord).Err(); err != nil {
			c.logger.Warn().Err(err).Str("key", cacheKey).Msg("idempotency cache write")
		}
	}
	return rec, nil
}

// RecordIfAbsent goes straight to the wrapped ledger; it usually runs inside
// a transaction that has not committed yet, so nothing is cached here.
func (c *CachedLedger) RecordIfAbsent(ctx context.Context, rec Record) (bool, *Record, error) {
	return c.inner.RecordIfAbsent(ctx, rec)
}
