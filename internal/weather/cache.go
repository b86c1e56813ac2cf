package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// kv is the subset of *redis.Client the cache uses
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cache is a read-through Redis cache in front of a Provider. Redis errors
// fall through to the provider.
type Cache struct {
	next        Provider
	rdb         kv
	currentTTL  time.Duration
	forecastTTL time.Duration
}

// NewCache wraps next with a Redis cache
func NewCache(next Provider, rdb *redis.Client, currentTTL, forecastTTL time.Duration) *Cache {
	return newCache(next, rdb, currentTTL, forecastTTL)
}

func newCache(next Provider, rdb kv, currentTTL, forecastTTL time.Duration) *Cache {
	return &Cache{next: next, rdb: rdb, currentTTL: currentTTL, forecastTTL: forecastTTL}
}

// Current returns cached current conditions or fetches them
func (c *Cache) Current(ctx context.Context, lat, lon float64) (*Current, error) {
	key := cacheKey("current", lat, lon)

	var cached Current
	if c.load(ctx, key, &cached) {
		return &cached, nil
	}

	current, err := c.next.Current(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, current, c.currentTTL)
	return current, nil
}

// Forecast returns a cached forecast or fetches one
func (c *Cache) Forecast(ctx context.Context, lat, lon float64) (*Forecast, error) {
	key := cacheKey("forecast", lat, lon)

	var cached Forecast
	if c.load(ctx, key, &cached) {
		return &cached, nil
	}

	forecast, err := c.next.Forecast(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, forecast, c.forecastTTL)
	return forecast, nil
}

func (c *Cache) load(ctx context.Context, key string, dest any) bool {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		log.Printf("Weather cache read failed for %s: %v", key, err)
		return false
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		log.Printf("Weather cache entry %s is corrupt: %v", key, err)
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Printf("Weather cache write failed for %s: %v", key, err)
	}
}

// cacheKey rounds coordinates to about 1 km so nearby farms share entries
func cacheKey(kind string, lat, lon float64) string {
	return fmt.Sprintf("weather:%s:%.2f,%.2f", kind, lat, lon)
}
