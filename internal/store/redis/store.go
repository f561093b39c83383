// Package redis persists scroll state in Redis hashes so several service
// replicas can share it.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/JakeFAU/maxscroll/internal/store"
)

// DefaultTTL bounds how long an idle namespace survives.
const DefaultTTL = 24 * time.Hour

// Config controls key prefixing and expiry.
type Config struct {
	// Prefix is prepended to every hash key.
	Prefix string
	// TTL is refreshed on every write. Zero uses DefaultTTL, negative disables expiry.
	TTL time.Duration
}

// Provider opens hash-backed stores on a shared client.
type Provider struct {
	client redis.UniversalClient
	cfg    Config
}

// NewProvider wraps client.
func NewProvider(client redis.UniversalClient, cfg Config) *Provider {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	return &Provider{client: client, cfg: cfg}
}

// Open returns a Store bound to the namespace hash.
func (p *Provider) Open(_ context.Context, trackingID, namespace string) (store.Store, error) {
	key, err := store.Key(trackingID, namespace)
	if err != nil {
		return nil, err
	}
	return &Store{client: p.client, key: p.cfg.Prefix + key, ttl: p.cfg.TTL}, nil
}

// Ping checks that Redis is reachable.
func (p *Provider) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Store maps one namespace onto one Redis hash.
type Store struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// Get reads the whole hash with HGETALL. Fields that do not parse as
// integers are skipped.
func (s *Store) Get(ctx context.Context) (map[string]int64, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", s.key, err)
	}
	out := make(map[string]int64, len(raw))
	for field, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}

// GetOr reads a single field with HGET.
func (s *Store) GetOr(ctx context.Context, key string, def int64) (int64, error) {
	raw, err := s.client.HGet(ctx, s.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return def, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis hget %s %s: %w", s.key, key, err)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %s: %w", s.key, key, err)
	}
	return n, nil
}

// Set writes partial with HSET and refreshes the TTL.
func (s *Store) Set(ctx context.Context, partial map[string]int64) error {
	if len(partial) == 0 {
		return nil
	}
	fields := make([]interface{}, 0, len(partial)*2)
	for k, v := range partial {
		fields = append(fields, k, v)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key, fields...)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis hset %s: %w", s.key, err)
	}
	return nil
}

// Clear deletes the hash.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", s.key, err)
	}
	return nil
}
