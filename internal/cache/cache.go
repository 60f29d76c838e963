// Package cache provides result caches keyed by input fingerprint: an in-process map and a
// Redis-backed store.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"goregime/domain/regime"
	"goregime/internal"
	"goregime/internal/config"
	"goregime/internal/errors"
	"goregime/ports"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "goregime:result:"

// Entry is the stored form of a cached result
type Entry struct {
	Result    *regime.RegimeAnalysisResult `json:"result"`
	CachedAt  time.Time                    `json:"cached_at"`
	ExpiresAt time.Time                    `json:"expires_at"`
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Stats counts cache traffic
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Errors int64 `json:"errors"`
}

// HitRate is hits over lookups, 0 before any lookup
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type counters struct {
	hits, misses, sets, errs atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Sets: c.sets.Load(), Errors: c.errs.Load()}
}

// Nop never stores anything
type Nop struct{}

func (Nop) Get(context.Context, string) (*regime.RegimeAnalysisResult, bool, error) {
	return nil, false, nil
}
func (Nop) Set(context.Context, string, *regime.RegimeAnalysisResult, time.Duration) error {
	return nil
}
func (Nop) Delete(context.Context, string) error { return nil }

// New builds the cache selected by cfg.Backend
func New(ctx context.Context, cfg config.CacheConfig, logger *internal.Logger) (ports.ResultCache, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, errors.CacheError(err)
		}
		return NewRedis(client, cfg.Prefix, logger), nil
	default:
		return Nop{}, nil
	}
}
