package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func deliveryKey(phone string) string {
	return fmt.Sprintf("delivery:%s", phone)
}

func (c *RedisCache) StoreDelivery(ctx context.Context, d Delivery) error {
	d.At = d.At.UTC()
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, deliveryKey(d.Phone), b, c.ttl).Err()
}

func (c *RedisCache) LastDelivery(ctx context.Context, phone string) (Delivery, error) {
	raw, err := c.rdb.Get(ctx, deliveryKey(phone)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Delivery{}, ErrNotFound
	}
	if err != nil {
		return Delivery{}, err
	}

	var d Delivery
	if err := json.Unmarshal(raw, &d); err != nil {
		return Delivery{}, fmt.Errorf("decode cached delivery for %s: %w", phone, err)
	}
	return d, nil
}
