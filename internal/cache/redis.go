package cache

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"time"

	"goregime/domain/regime"
	"goregime/internal"
	"goregime/internal/errors"

	"github.com/redis/go-redis/v9"
)

// Redis stores results as JSON entries with a server-side TTL
type Redis struct {
	client *redis.Client
	prefix string
	stats  counters
	logger *internal.Logger
}

func NewRedis(client *redis.Client, prefix string, logger *internal.Logger) *Redis {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Redis{client: client, prefix: prefix, logger: logger.With("cache")}
}

func (r *Redis) Get(ctx context.Context, key string) (*regime.RegimeAnalysisResult, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if goerrors.Is(err, redis.Nil) {
		r.stats.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		r.stats.errs.Add(1)
		return nil, false, errors.CacheError(err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		r.stats.errs.Add(1)
		r.logger.Warn("discarding undecodable cache entry %s: %v", key, err)
		_ = r.client.Del(ctx, r.prefix+key).Err()
		return nil, false, nil
	}
	if e.Result == nil || e.expired(time.Now()) {
		r.stats.misses.Add(1)
		return nil, false, nil
	}
	r.stats.hits.Add(1)
	return e.Result, true, nil
}

// Set stores result; ttl <= 0 stores it without expiry
func (r *Redis) Set(ctx context.Context, key string, result *regime.RegimeAnalysisResult, ttl time.Duration) error {
	now := time.Now()
	e := Entry{Result: result, CachedAt: now}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	} else {
		ttl = 0
	}
	data, err := json.Marshal(e)
	if err != nil {
		r.stats.errs.Add(1)
		return errors.CacheError(err)
	}
	if err := r.client.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		r.stats.errs.Add(1)
		return errors.CacheError(err)
	}
	r.stats.sets.Add(1)
	r.logger.Debug("cached result %s (ttl %v)", key, ttl)
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return errors.CacheError(err)
	}
	return nil
}

func (r *Redis) Stats() Stats { return r.stats.snapshot() }

// Close releases the underlying client
func (r *Redis) Close() error { return r.client.Close() }
