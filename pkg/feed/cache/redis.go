// Package cache exposes the latest aggregated prices through Redis so
// other services can read them without talking to the feed directly.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JirA44/obelisk-dex-sub013/pkg/feed"
	"github.com/JirA44/obelisk-dex-sub013/pkg/logging"
)

const keyPrefix = "price:latest:"

// Config holds the Redis cache configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCache writes every aggregated price to Redis under a per-asset key
// with a TTL, so a reader that finds no key knows the price is stale.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// New connects to Redis and verifies the connection with a ping.
func New(cfg Config, logger *logging.Logger) (*RedisCache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 60 * time.Second
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{
		client: client,
		ttl:    cfg.TTL,
		logger: logger,
	}, nil
}

// Name identifies the cache as a dispatch sink.
func (r *RedisCache) Name() string { return "redis" }

// Publish stores the aggregated price under price:latest:{ASSET}.
func (r *RedisCache) Publish(ctx context.Context, price feed.AggregatedPrice) error {
	data, err := json.Marshal(price)
	if err != nil {
		return fmt.Errorf("failed to marshal price: %w", err)
	}
	return r.client.Set(ctx, keyPrefix+price.Asset, data, r.ttl).Err()
}

// Get reads the cached price for an asset. The second return is false when
// no fresh value exists.
func (r *RedisCache) Get(ctx context.Context, asset string) (feed.AggregatedPrice, bool, error) {
	val, err := r.client.Get(ctx, keyPrefix+asset).Bytes()
	if err == redis.Nil {
		return feed.AggregatedPrice{}, false, nil
	}
	if err != nil {
		return feed.AggregatedPrice{}, false, err
	}

	var price feed.AggregatedPrice
	if err := json.Unmarshal(val, &price); err != nil {
		return feed.AggregatedPrice{}, false, fmt.Errorf("failed to unmarshal cached price: %w", err)
	}
	return price, true, nil
}

// Close releases the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
