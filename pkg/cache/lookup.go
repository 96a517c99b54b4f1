// Package cache provides an optional Redis-backed cache of resolved
// CEP lookups. ViaCEP data is effectively static, so a hit avoids
// spending a rate-budget slot on a CEP that was already resolved.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrLookupMiss indicates the CEP was not found in the cache.
	ErrLookupMiss = errors.New("lookup cache miss")

	// ErrInvalidEntry indicates the cached payload could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

const keyPrefix = "cep:lookup:"

// Lookup caches resolved address fields by canonical CEP.
type Lookup struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewLookup creates a lookup cache. Entries expire after ttl; a zero
// ttl stores entries without expiry.
func NewLookup(redisClient *redis.Client, ttl time.Duration) *Lookup {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Lookup{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Get retrieves the cached fields for a CEP.
// Returns ErrLookupMiss if the CEP is not cached.
func (l *Lookup) Get(ctx context.Context, cep string) (map[string]string, error) {
	data, err := l.redis.Get(ctx, keyPrefix+cep).Bytes()
	if err != nil {
		if err == redis.Nil {
			lookupMisses.Inc()
			return nil, ErrLookupMiss
		}
		lookupErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil {
		lookupErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	lookupHits.Inc()
	return fields, nil
}

// Set stores the resolved fields for a CEP.
func (l *Lookup) Set(ctx context.Context, cep string, fields map[string]string) error {
	if fields == nil {
		return fmt.Errorf("fields cannot be nil")
	}

	data, err := json.Marshal(fields)
	if err != nil {
		lookupErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := l.redis.Set(ctx, keyPrefix+cep, data, l.ttl).Err(); err != nil {
		lookupErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a cached CEP.
func (l *Lookup) Delete(ctx context.Context, cep string) error {
	if err := l.redis.Del(ctx, keyPrefix+cep).Err(); err != nil {
		lookupErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
