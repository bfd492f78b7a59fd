// Package extractcache caches parsed report fields keyed by the file's
// content fingerprint, so unchanged files never hit the parsing provider
// twice. Entries carry a TTL to bound staleness if parsing logic changes.
package extractcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ishan121028/RadiologyAI/internal/db"
	"github.com/ishan121028/RadiologyAI/internal/domain"
	"github.com/ishan121028/RadiologyAI/internal/domain/report"
)

var cacheKeyPrefix = domain.KeyPrefix + "extract_cache:"

// DefaultTTL is applied when the configured TTL is zero.
const DefaultTTL = 7 * 24 * time.Hour

// store is the consumer interface for the extraction cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache stores parsed reports by content fingerprint.
type Cache struct {
	store  store
	ttl    time.Duration
	logger *zap.Logger
}

// New creates an extraction cache.
func New(s store, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: s, ttl: ttl, logger: logger}
}

// Get returns the cached parse for a fingerprint, or ok=false.
// Cache failures are logged and treated as misses; parsing is retryable.
func (c *Cache) Get(ctx context.Context, fingerprint string) (report.Parsed, bool) {
	data, err := c.store.Get(ctx, cacheKeyPrefix+fingerprint)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached extraction",
				zap.String("fingerprint", fingerprint), zap.Error(err))
		}
		return report.Parsed{}, false
	}
	if len(data) == 0 {
		return report.Parsed{}, false
	}

	var p report.Parsed
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("Failed to decode cached extraction",
			zap.String("fingerprint", fingerprint), zap.Error(err))
		return report.Parsed{}, false
	}
	return p, true
}

// Put stores a parse result. Degraded parses are never cached: they are
// placeholders for a provider failure and should be retried next time.
func (c *Cache) Put(ctx context.Context, fingerprint string, p report.Parsed) {
	data, err := json.Marshal(p)
	if err != nil {
		c.logger.Warn("Failed to encode extraction for cache",
			zap.String("fingerprint", fingerprint), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, cacheKeyPrefix+fingerprint, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache extraction",
			zap.String("fingerprint", fingerprint), zap.Error(err))
	}
}
