// Package ratelimit caps requests per client with fixed one-minute windows
// counted in Redis.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyRateLimit = "ratelimit:%s:%d"

// Store counts hits for a key within the current window.
type Store interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("rate limit hit: %w", err)
	}
	return incr.Val(), nil
}

type Limiter struct {
	store  Store
	limit  int64
	window time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

func New(store Store, perMinute int, logger zerolog.Logger) *Limiter {
	return &Limiter{
		store:  store,
		limit:  int64(perMinute),
		window: time.Minute,
		now:    time.Now,
		logger: logger,
	}
}

// Middleware rejects clients over the limit with 429. Store failures let
// the request through.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		windowStart := l.now().Truncate(l.window)
		key := fmt.Sprintf(keyRateLimit, clientKey(r), windowStart.Unix())

		n, err := l.store.Hit(r.Context(), key, l.window)
		if err != nil {
			l.logger.Warn().Err(err).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		remaining := l.limit - n
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(l.limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if n > l.limit {
			retry := windowStart.Add(l.window).Sub(l.now())
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "too many requests",
				"code":  "rate_limited",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey prefers the authenticated user and falls back to the remote IP.
func clientKey(r *http.Request) string {
	if id := r.Header.Get("X-User-Id"); id != "" {
		return "user:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
