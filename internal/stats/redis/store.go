// Package redis provides a Redis-backed StatsStore with per-key TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

const keyPrefix = "provider_stats:"

// Config captures the Redis connection parameters.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store persists rolling provider stats in Redis. Writes carry a TTL so
// stale history ages out and providers fall back to the neutral prior.
type Store struct {
	client *redis.Client
}

// New creates a Store from config.
func New(cfg Config) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Store{client: client}
}

// NewWithClient constructs a Store from an existing client (primarily for testing).
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Get fetches stats for a provider; (nil, nil) when the key is absent or expired.
func (s *Store) Get(ctx context.Context, providerID string) (*webintel.ProviderStats, error) {
	data, err := s.client.Get(ctx, keyPrefix+providerID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get provider stats %s: %w", providerID, err)
	}
	var stats webintel.ProviderStats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil, fmt.Errorf("unmarshal provider stats %s: %w", providerID, err)
	}
	return &stats, nil
}

// Set writes stats with the given TTL.
func (s *Store) Set(ctx context.Context, providerID string, stats webintel.ProviderStats, ttl time.Duration) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal provider stats %s: %w", providerID, err)
	}
	if err := s.client.Set(ctx, keyPrefix+providerID, data, ttl).Err(); err != nil {
		return fmt.Errorf("set provider stats %s: %w", providerID, err)
	}
	return nil
}

// Ping verifies connectivity for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
