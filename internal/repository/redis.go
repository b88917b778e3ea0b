package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"giftcheck/internal/config"
	"giftcheck/pkg/util"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	// Redis key prefixes
	ResolutionKeyPrefix  = "gc:rl:"
	BatchStatusKeyPrefix = "gc:batch:"
	BatchStatusTTL       = 7 * 24 * time.Hour
)

// resolutionSeparator joins redirect URL and category in one cache value.
// "|" cannot occur in either side.
const resolutionSeparator = "|"

// RedisRepository caches link resolutions and per-batch status counters.
type RedisRepository struct {
	client *redis.Client
	cfg    *config.RedisConfig
}

// NewRedisRepository creates a new Redis repository
func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("Failed to connect to Redis")
	} else {
		log.Info().Msg("Redis connected successfully")
	}

	return &RedisRepository{
		client: rdb,
		cfg:    cfg,
	}
}

// GetClient returns the Redis client
func (r *RedisRepository) GetClient() *redis.Client {
	return r.client
}

// SaveResolution caches a resolved redirect target and its category
func (r *RedisRepository) SaveResolution(ctx context.Context, sourceURL, redirectURL, category string, ttl time.Duration) error {
	key := r.resolutionKey(sourceURL)
	value := redirectURL + resolutionSeparator + category
	return r.client.Set(ctx, key, value, ttl).Err()
}

// GetResolution retrieves a cached resolution; empty strings on miss
func (r *RedisRepository) GetResolution(ctx context.Context, sourceURL string) (string, string, error) {
	key := r.resolutionKey(sourceURL)
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return "", "", err
	}

	idx := strings.LastIndex(value, resolutionSeparator)
	if idx < 0 {
		return value, "", nil
	}
	return value[:idx], value[idx+1:], nil
}

// IncrBatchStatus increments the per-batch counter for a status label
func (r *RedisRepository) IncrBatchStatus(ctx context.Context, batchID, status string) (int64, error) {
	key := r.batchStatusKey(batchID, status)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// Set expiration if this is the first increment
	if count == 1 {
		r.client.Expire(ctx, key, BatchStatusTTL)
	}
	return count, nil
}

// GetBatchStatusCounts returns all status counters recorded for a batch
func (r *RedisRepository) GetBatchStatusCounts(ctx context.Context, batchID string) (map[string]int64, error) {
	prefix := BatchStatusKeyPrefix + batchID + ":"
	pattern := prefix + "*"
	counts := make(map[string]int64)

	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		count, err := r.client.Get(ctx, key).Int64()
		if err != nil {
			continue
		}
		counts[key[len(prefix):]] += count
	}

	return counts, iter.Err()
}

// Close closes the Redis connection
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// Helper functions to build Redis keys. Source URLs can be arbitrarily long,
// so resolution keys use a hash of the URL.

func (r *RedisRepository) resolutionKey(sourceURL string) string {
	return fmt.Sprintf("%s%x", ResolutionKeyPrefix, util.HashString(sourceURL))
}

func (r *RedisRepository) batchStatusKey(batchID, status string) string {
	return BatchStatusKeyPrefix + batchID + ":" + status
}
