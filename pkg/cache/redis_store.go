package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/parkrun-harvester/pkg/results"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps both tiers in Redis without expiry.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store. An empty prefix falls back to
// DefaultPrefix.
func NewRedisStore(redisClient *redis.Client, prefix string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisStore) key(tier Tier, event string, index int) string {
	return Key{Prefix: s.prefix, Tier: tier, Event: event, Index: index}.String()
}

// Location implements Store.
func (s *RedisStore) Location(event string) string {
	return fmt.Sprintf("redis %s:%s:%s:*", s.prefix, TierParsed, event)
}

// Prepare checks connectivity; Redis needs no per-event structure.
func (s *RedisStore) Prepare(ctx context.Context, event string) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		CacheErrors.WithLabelValues("prepare").Inc()
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *RedisStore) exists(ctx context.Context, tier Tier, event string, index int) (bool, error) {
	if err := validateEvent(event); err != nil {
		return false, err
	}
	n, err := s.redis.Exists(ctx, s.key(tier, event, index)).Result()
	if err != nil {
		CacheErrors.WithLabelValues("stat").Inc()
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) get(ctx context.Context, tier Tier, event string, index int) ([]byte, error) {
	if err := validateEvent(event); err != nil {
		return nil, err
	}
	data, err := s.redis.Get(ctx, s.key(tier, event, index)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(string(tier)).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("read").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}
	CacheHits.WithLabelValues(string(tier)).Inc()
	return data, nil
}

// HasParsed implements Store.
func (s *RedisStore) HasParsed(ctx context.Context, event string, index int) (bool, error) {
	return s.exists(ctx, TierParsed, event, index)
}

// ReadParsed implements Store.
func (s *RedisStore) ReadParsed(ctx context.Context, event string, index int) (*results.PageResult, error) {
	data, err := s.get(ctx, TierParsed, event, index)
	if err != nil {
		return nil, err
	}
	return DecodeArtifact(data, index)
}

// WriteParsed implements Store.
func (s *RedisStore) WriteParsed(ctx context.Context, event string, index int, page *results.PageResult) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	data, err := EncodeArtifact(page)
	if err != nil {
		return err
	}

	// No TTL: parsed artifacts are permanent
	if err := s.redis.Set(ctx, s.key(TierParsed, event, index), data, 0).Err(); err != nil {
		CacheErrors.WithLabelValues("write").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheWrites.WithLabelValues(string(TierParsed)).Inc()
	CacheSize.WithLabelValues(string(TierParsed)).Add(float64(len(data)))
	return nil
}

// HasRaw implements Store.
func (s *RedisStore) HasRaw(ctx context.Context, event string, index int) (bool, error) {
	return s.exists(ctx, TierRaw, event, index)
}

// ReadRaw implements Store.
func (s *RedisStore) ReadRaw(ctx context.Context, event string, index int) ([]byte, error) {
	return s.get(ctx, TierRaw, event, index)
}

// WriteRaw implements Store. SETNX keeps the first snapshot.
func (s *RedisStore) WriteRaw(ctx context.Context, event string, index int, content []byte) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	created, err := s.redis.SetNX(ctx, s.key(TierRaw, event, index), content, 0).Result()
	if err != nil {
		CacheErrors.WithLabelValues("write").Inc()
		return fmt.Errorf("redis setnx: %w", err)
	}
	if created {
		CacheWrites.WithLabelValues(string(TierRaw)).Inc()
		CacheSize.WithLabelValues(string(TierRaw)).Add(float64(len(content)))
	}
	return nil
}
