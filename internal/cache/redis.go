package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/quotestream/internal/config"
	"github.com/rickgao/quotestream/internal/model"
)

const keyPrefix = "quote:"

// Store is the persisted cache tier. Entries carry a TTL; an expired entry
// reads as a miss.
type Store interface {
	Get(ctx context.Context, symbol string) (model.Quote, bool, error)
	Set(ctx context.Context, quote model.Quote) error
	Close() error
}

// Compile-time check
var _ Store = (*Redis)(nil)

// Redis implements Store on a Redis instance using per-key TTL expiry.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg config.RedisConfig, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Redis{client: client, ttl: ttl}, nil
}

// Set stores a quote with the configured TTL.
func (r *Redis) Set(ctx context.Context, quote model.Quote) error {
	data, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("marshal quote: %w", err)
	}

	if err := r.client.Set(ctx, keyPrefix+quote.Symbol, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("set quote in redis: %w", err)
	}
	return nil
}

// Get returns the cached quote for a symbol. Expired or absent keys are
// reported as a miss, not an error.
func (r *Redis) Get(ctx context.Context, symbol string) (model.Quote, bool, error) {
	data, err := r.client.Get(ctx, keyPrefix+symbol).Bytes()
	if err != nil {
		if err == redis.Nil {
			return model.Quote{}, false, nil
		}
		return model.Quote{}, false, fmt.Errorf("get quote from redis: %w", err)
	}

	var q model.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return model.Quote{}, false, fmt.Errorf("unmarshal cached quote: %w", err)
	}
	return q, true, nil
}

// Close releases the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
