// Package database also provides a Redis-backed cache of the latest
// sequence state per instrument, so API reads and restarts do not hit
// PostgreSQL for hot state. When Redis is unavailable the cache falls
// back to in-memory storage and analysis continues uninterrupted.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"forex-smc-engine/internal/sequence"
)

const (
	// SequenceKeyPrefix is the prefix for per-instrument sequence state keys.
	// Format: smc:sequence:{instrument}
	SequenceKeyPrefix = "smc:sequence"

	// SequenceListKey holds the set of instruments with cached state.
	SequenceListKey = "smc:sequence:instruments"

	// SequenceStateTTL bounds staleness; states are rewritten on every scan.
	SequenceStateTTL = 48 * time.Hour
)

// RedisSequenceCache caches sequence states in Redis with an in-memory
// fallback when Redis is unavailable.
type RedisSequenceCache struct {
	client         *redis.Client
	inMemoryCache  map[string]*sequence.State
	cacheMu        sync.RWMutex
	redisAvailable atomic.Bool
}

// NewRedisSequenceCache creates the cache. A nil client means
// memory-only mode.
func NewRedisSequenceCache(client *redis.Client) *RedisSequenceCache {
	cache := &RedisSequenceCache{
		client:        client,
		inMemoryCache: make(map[string]*sequence.State),
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("[REDIS-SEQUENCE] Redis unavailable at startup: %v, using in-memory cache", err)
			cache.redisAvailable.Store(false)
		} else {
			log.Printf("[REDIS-SEQUENCE] Redis connected successfully")
			cache.redisAvailable.Store(true)
		}
	} else {
		log.Printf("[REDIS-SEQUENCE] No Redis client provided, using in-memory cache only")
		cache.redisAvailable.Store(false)
	}

	return cache
}

func (c *RedisSequenceCache) stateKey(instrument string) string {
	return fmt.Sprintf("%s:%s", SequenceKeyPrefix, instrument)
}

// SaveState writes the state to Redis and the in-memory cache.
func (c *RedisSequenceCache) SaveState(ctx context.Context, state *sequence.State) error {
	if state == nil {
		return fmt.Errorf("cannot cache nil sequence state")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal sequence state: %w", err)
	}

	c.updateCache(state)

	if c.client != nil && c.redisAvailable.Load() {
		pipe := c.client.TxPipeline()
		pipe.Set(ctx, c.stateKey(state.Instrument), data, SequenceStateTTL)
		pipe.SAdd(ctx, SequenceListKey, state.Instrument)
		pipe.Expire(ctx, SequenceListKey, SequenceStateTTL)

		if _, err := pipe.Exec(ctx); err != nil {
			log.Printf("[REDIS-SEQUENCE] Failed to save to Redis: %v, using in-memory cache", err)
			c.redisAvailable.Store(false)
		}
	}

	return nil
}

// LoadState reads a cached state. Returns nil when no state is cached.
func (c *RedisSequenceCache) LoadState(ctx context.Context, instrument string) (*sequence.State, error) {
	if c.client != nil && c.redisAvailable.Load() {
		data, err := c.client.Get(ctx, c.stateKey(instrument)).Result()
		if err != nil {
			if err == redis.Nil {
				return c.getFromCache(instrument), nil
			}
			log.Printf("[REDIS-SEQUENCE] Redis read error: %v, using in-memory cache", err)
			c.redisAvailable.Store(false)
			return c.getFromCache(instrument), nil
		}

		var state sequence.State
		if err := json.Unmarshal([]byte(data), &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sequence state: %w", err)
		}
		c.updateCache(&state)
		return &state, nil
	}

	return c.getFromCache(instrument), nil
}

// ListInstruments returns the instruments with cached state.
func (c *RedisSequenceCache) ListInstruments(ctx context.Context) ([]string, error) {
	if c.client != nil && c.redisAvailable.Load() {
		instruments, err := c.client.SMembers(ctx, SequenceListKey).Result()
		if err == nil {
			return instruments, nil
		}
		log.Printf("[REDIS-SEQUENCE] Redis list error: %v, using in-memory cache", err)
		c.redisAvailable.Store(false)
	}

	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	instruments := make([]string, 0, len(c.inMemoryCache))
	for instrument := range c.inMemoryCache {
		instruments = append(instruments, instrument)
	}
	return instruments, nil
}

// IsRedisAvailable reports whether the last Redis operation succeeded.
func (c *RedisSequenceCache) IsRedisAvailable() bool {
	return c.redisAvailable.Load()
}

func (c *RedisSequenceCache) updateCache(state *sequence.State) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	copied := *state
	c.inMemoryCache[state.Instrument] = &copied
}

func (c *RedisSequenceCache) getFromCache(instrument string) *sequence.State {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	if state, ok := c.inMemoryCache[instrument]; ok {
		copied := *state
		return &copied
	}
	return nil
}
