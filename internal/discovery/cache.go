package discovery

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/technosupport/roomview/internal/data"
)

const redisKeyPrefix = "roomview:previews:"

type cacheEntry struct {
	previews []data.CameraPreview
	storedAt time.Time
}

// PreviewCache keeps discovery results per key for a TTL. Service keys are
// "<settings scope>:<system id>". The in-process
// LRU is consulted first; Redis, when configured, is shared across instances.
// Every cache failure degrades to a miss.
type PreviewCache struct {
	local  *lru.Cache[string, cacheEntry]
	redis  redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewPreviewCache(size int, ttl time.Duration, rdb redis.UniversalClient, logger *zap.Logger) *PreviewCache {
	if size <= 0 {
		size = 512
	}
	c, _ := lru.New[string, cacheEntry](size)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreviewCache{local: c, redis: rdb, ttl: ttl, now: time.Now, logger: logger}
}

func (c *PreviewCache) Get(ctx context.Context, key string) ([]data.CameraPreview, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	if e, ok := c.local.Get(key); ok {
		if c.now().Sub(e.storedAt) < c.ttl {
			metricCache.WithLabelValues("local", "hit").Inc()
			return e.previews, true
		}
		c.local.Remove(key)
	}
	metricCache.WithLabelValues("local", "miss").Inc()

	if c.redis == nil {
		return nil, false
	}
	raw, err := c.redis.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("Preview cache read failed", zap.Error(err))
		}
		metricCache.WithLabelValues("redis", "miss").Inc()
		return nil, false
	}
	var previews []data.CameraPreview
	if err := json.Unmarshal(raw, &previews); err != nil {
		metricCache.WithLabelValues("redis", "miss").Inc()
		return nil, false
	}
	metricCache.WithLabelValues("redis", "hit").Inc()
	c.local.Add(key, cacheEntry{previews: previews, storedAt: c.now()})
	return previews, true
}

func (c *PreviewCache) Put(ctx context.Context, key string, previews []data.CameraPreview) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.local.Add(key, cacheEntry{previews: previews, storedAt: c.now()})
	if c.redis == nil {
		return
	}
	raw, err := json.Marshal(previews)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, redisKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		c.logger.Debug("Preview cache write failed", zap.Error(err))
	}
}

// Invalidate drops a key from both layers.
func (c *PreviewCache) Invalidate(ctx context.Context, key string) {
	if c == nil {
		return
	}
	c.local.Remove(key)
	if c.redis != nil {
		c.redis.Del(ctx, redisKeyPrefix+key)
	}
}

// Purge empties the in-process layer. Redis entries under old scopes are
// unreachable and age out on their own.
func (c *PreviewCache) Purge() {
	if c == nil {
		return
	}
	c.local.Purge()
}
