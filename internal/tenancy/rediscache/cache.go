// Package rediscache provides a Redis-backed allow-set cache so multiple
// API replicas share one staleness window.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"scopetree.org/internal/tenancy"
)

const keyPrefix = "scopetree:allowset"

// Cache implements tenancy.AllowSetCache on top of a Redis client.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ tenancy.AllowSetCache = (*Cache)(nil)

// New creates a Cache. TTL must be positive; seconds-to-minutes is the
// intended range.
func New(client *redis.Client, ttl time.Duration) (*Cache, error) {
	if client == nil {
		return nil, errors.New("rediscache: client is required")
	}
	if ttl <= 0 {
		return nil, errors.New("rediscache: ttl must be positive")
	}
	return &Cache{client: client, ttl: ttl}, nil
}

func key(tenantID int64, kind tenancy.Kind) string {
	return fmt.Sprintf("%s:%s:%d", keyPrefix, kind, tenantID)
}

func (c *Cache) Get(ctx context.Context, tenantID int64, kind tenancy.Kind) (tenancy.AllowSet, bool, error) {
	raw, err := c.client.Get(ctx, key(tenantID, kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		// Treat a corrupt entry as a miss; it will be overwritten.
		return nil, false, nil
	}
	return tenancy.NewAllowSet(ids...), true, nil
}

func (c *Cache) Set(ctx context.Context, tenantID int64, kind tenancy.Kind, set tenancy.AllowSet) error {
	raw, err := json.Marshal(set.IDs())
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(tenantID, kind), raw, c.ttl).Err()
}
