package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/skola-app/unit-enrollment-service/internal/core/domain"
	"github.com/skola-app/unit-enrollment-service/internal/core/ports"
)

const (
	availableKeyPrefix = "units:available:"
	defaultTTL         = 30 * time.Second
)

// DiscoveryCache keeps short-lived per-user snapshots of the discovery
// listing in Redis. It is strictly best-effort: any Redis failure (or an
// open circuit breaker) degrades to a repository read, never to a request
// failure.
type DiscoveryCache struct {
	rdb *redis.Client
	cb  *gobreaker.CircuitBreaker
	ttl time.Duration
	log *zap.Logger
}

var _ ports.DiscoveryCache = (*DiscoveryCache)(nil)

func NewDiscoveryCache(rdb *redis.Client, cb *gobreaker.CircuitBreaker, log *zap.Logger) *DiscoveryCache {
	return &DiscoveryCache{
		rdb: rdb,
		cb:  cb,
		ttl: defaultTTL,
		log: log,
	}
}

func (c *DiscoveryCache) GetAvailable(ctx context.Context, userID string) ([]domain.AvailableUnit, bool) {
	raw, err := c.cb.Execute(func() (interface{}, error) {
		return c.rdb.Get(ctx, availableKeyPrefix+userID).Bytes()
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Debug("discovery cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var units []domain.AvailableUnit
	if err := json.Unmarshal(raw.([]byte), &units); err != nil {
		c.log.Warn("discovery cache held invalid payload", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	return units, true
}

func (c *DiscoveryCache) SetAvailable(ctx context.Context, userID string, units []domain.AvailableUnit) {
	payload, err := json.Marshal(units)
	if err != nil {
		return
	}
	_, err = c.cb.Execute(func() (interface{}, error) {
		return nil, c.rdb.Set(ctx, availableKeyPrefix+userID, payload, c.ttl).Err()
	})
	if err != nil {
		c.log.Debug("discovery cache write failed", zap.Error(err))
	}
}

// Invalidate drops every cached listing. A roster change for one unit can
// affect any user's listing, so the whole prefix goes.
func (c *DiscoveryCache) Invalidate(ctx context.Context) {
	_, err := c.cb.Execute(func() (interface{}, error) {
		iter := c.rdb.Scan(ctx, 0, availableKeyPrefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
				return nil, err
			}
		}
		return nil, iter.Err()
	})
	if err != nil {
		c.log.Debug("discovery cache invalidation failed", zap.Error(err))
	}
}
