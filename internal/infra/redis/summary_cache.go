package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"rater-tracker-service/internal/domain"
)

// DaySummarySource computes a day summary from the ledger.
type DaySummarySource interface {
	DaySummary(ctx context.Context, userID string, date time.Time, loc *time.Location) (domain.DaySummary, error)
}

// SummaryCache caches day summaries as JSON blobs in Redis:
// SETEX tracker:day:{userID}:{YYYY-MM-DD} {summary JSON}.
// Summaries only read committed ledger data, so a short TTL plus explicit
// invalidation after each event keeps them fresh without holding any
// session lock.
type SummaryCache struct {
	client *redis.Client
	source DaySummarySource
	ttl    time.Duration
	sf     singleflight.Group
}

func NewSummaryCache(client *redis.Client, source DaySummarySource, ttl time.Duration) *SummaryCache {
	return &SummaryCache{
		client: client,
		source: source,
		ttl:    ttl,
	}
}

func (c *SummaryCache) DaySummary(ctx context.Context, userID string, date time.Time, loc *time.Location) (domain.DaySummary, error) {
	if loc == nil {
		loc = time.UTC
	}
	key := c.key(userID, date.In(loc))

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var cached domain.DaySummary
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		// Unparseable entries are dropped and recomputed.
		_ = c.client.Del(ctx, key).Err()
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled it.
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var cached domain.DaySummary
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}

		summary, err := c.source.DaySummary(ctx, userID, date, loc)
		if err != nil {
			return domain.DaySummary{}, err
		}

		if data, err := json.Marshal(summary); err == nil {
			_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		}
		return summary, nil
	})
	if err != nil {
		return domain.DaySummary{}, err
	}
	return result.(domain.DaySummary), nil
}

// Invalidate drops the cached summary for the day an event just touched.
func (c *SummaryCache) Invalidate(ctx context.Context, userID string, date time.Time, loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	_ = c.client.Del(ctx, c.key(userID, date.In(loc))).Err()
}

func (c *SummaryCache) key(userID string, localDate time.Time) string {
	return fmt.Sprintf("tracker:day:%s:%s", userID, localDate.Format("2006-01-02"))
}

func (c *SummaryCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations; the global source is safe
	// for the concurrent misses singleflight lets through on distinct keys
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
