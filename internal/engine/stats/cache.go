package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rendis/geodrill/internal/logger"
	"github.com/rendis/geodrill/internal/metrics"
	"github.com/rendis/geodrill/internal/model"
)

const cachePrefix = "geodrill:kpi:"

// CachedKPI is a read-through redis cache in front of one KPI source. The
// scope names that source (an API base URL, a database path) and prefixes
// every key, so two sources never share entries. Wrap a single tier, never
// a Fallback chain: a fallback answer cached under the primary's scope
// would hide the primary after it recovers. A nil client passes every
// query through. Redis failures are logged and treated as misses.
type CachedKPI struct {
	src   KPISource
	rdb   *redis.Client
	scope string
	ttl   time.Duration
	log   *logger.Logger
}

func NewCachedKPI(src KPISource, rdb *redis.Client, scope string, ttl time.Duration, log *logger.Logger) *CachedKPI {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedKPI{src: src, rdb: rdb, scope: scope, ttl: ttl, log: log}
}

// NewRedisClient connects to addr and pings it. An empty addr returns nil,
// which disables caching.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// CacheKey is the redis key for q answered by the source named scope.
func CacheKey(scope string, q Query) string {
	return cachePrefix + scope + "|" + q.String()
}

func (c *CachedKPI) FetchKPI(ctx context.Context, q Query) ([]model.KPIRecord, error) {
	if c.rdb == nil {
		return c.src.FetchKPI(ctx, q)
	}
	key := CacheKey(c.scope, q)

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var recs []model.KPIRecord
		if err := json.Unmarshal(data, &recs); err == nil {
			metrics.CacheHits.Inc()
			return recs, nil
		}
		c.log.Warn("discarding undecodable cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("kpi cache read failed", "key", key, "error", err)
	}
	metrics.CacheMisses.Inc()

	recs, err := c.src.FetchKPI(ctx, q)
	if err != nil || len(recs) == 0 {
		return recs, err
	}
	if data, err := json.Marshal(recs); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.Warn("kpi cache write failed", "key", key, "error", err)
		}
	}
	return recs, nil
}

// Invalidate drops this source's cached entries for the given level and metric.
func (c *CachedKPI) Invalidate(ctx context.Context, level model.Level, metric string) error {
	if c.rdb == nil {
		return nil
	}
	pattern := fmt.Sprintf("%s%s|%s:%s:*", cachePrefix, escapeGlob(c.scope), level.DataLevel(), metric)
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// escapeGlob quotes the redis SCAN pattern metacharacters in s.
func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)
