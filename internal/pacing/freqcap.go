// Package pacing applies per-viewer frequency caps to feed
// composition. The serve gate itself (budget, schedule) lives in the
// engine; frequency capping is a layer the service wrapper applies on
// top of it.
package pacing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// FrequencyCapper limits how many times one viewer sees one ad per
// UTC day.
type FrequencyCapper interface {
	// Allow reports whether the ad may be shown to the viewer again
	// today, and counts the showing when it is. A zero or negative
	// limit disables capping. Anonymous viewers are never capped.
	Allow(ctx context.Context, adID, viewerID string, limit int) bool
}

// RedisFrequencyCapper keeps per-day counters in Redis so caps hold
// across process restarts and replicas.
type RedisFrequencyCapper struct {
	client *redis.Client
}

// NewRedisFrequencyCapper wraps an existing Redis client.
func NewRedisFrequencyCapper(client *redis.Client) *RedisFrequencyCapper {
	return &RedisFrequencyCapper{client: client}
}

func capKey(adID, viewerID string) string {
	return fmt.Sprintf("freqcap:%s:%s:%s", adID, viewerID, time.Now().UTC().Format("2006-01-02"))
}

// Allow checks and increments the viewer's counter for the ad.
func (c *RedisFrequencyCapper) Allow(ctx context.Context, adID, viewerID string, limit int) bool {
	if limit <= 0 || viewerID == "" {
		return true
	}

	key := capKey(adID, viewerID)
	count, err := c.client.Get(ctx, key).Int64()
	if err != nil && err != redis.Nil {
		return true // fail open
	}
	if count >= int64(limit) {
		return false
	}

	pipe := c.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 25*time.Hour)
	_, _ = pipe.Exec(ctx)
	return true
}

// InMemoryFrequencyCapper keeps counters in process memory. Counters
// reset on restart; intended for single-instance and test use.
type InMemoryFrequencyCapper struct {
	mu     sync.Mutex
	counts map[string]int // adID:viewerID:date -> impressions shown
}

// NewInMemoryFrequencyCapper constructs an empty capper.
func NewInMemoryFrequencyCapper() *InMemoryFrequencyCapper {
	return &InMemoryFrequencyCapper{counts: make(map[string]int)}
}

// Allow checks and increments the viewer's counter for the ad.
func (c *InMemoryFrequencyCapper) Allow(ctx context.Context, adID, viewerID string, limit int) bool {
	if limit <= 0 || viewerID == "" {
		return true
	}

	key := capKey(adID, viewerID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts[key] >= limit {
		return false
	}
	c.counts[key]++
	return true
}
