// Package cache provides the read-through cache used for file listings.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	domain "github.com/example/file-ingestion/domain/file"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/sync/singleflight"
)

// Policy is a sliding expiration bounded by an absolute ceiling measured from creation.
type Policy struct {
	Sliding  time.Duration
	Absolute time.Duration
}

// Expiration policies for listing reads.
var (
	ListingPolicy   = Policy{Sliding: 20 * time.Second, Absolute: 40 * time.Second}
	DateRangePolicy = Policy{Sliding: 15 * time.Second, Absolute: 30 * time.Second}
)

// expired reports whether an entry created at created and last read at lastAccess is stale at now.
func (p Policy) expired(created, lastAccess, now time.Time) bool {
	return now.Sub(created) >= p.Absolute || now.Sub(lastAccess) >= p.Sliding
}

// remaining returns how long an entry created at created may still live if read at now.
func (p Policy) remaining(created, now time.Time) time.Duration {
	left := p.Absolute - now.Sub(created)
	if p.Sliding < left {
		return p.Sliding
	}
	return left
}

// PolicyFor returns the policy that applies to listings using f.
func PolicyFor(f domain.Filter) Policy {
	if f.Kind == domain.ByDateRange {
		return DateRangePolicy
	}
	return ListingPolicy
}

// absentValue stands in for any parameter that was not supplied or was empty.
const absentValue = "<none>"

// ListingKey canonicalizes f into a cache key.
// Text matches ignore case, so their text is folded to lower case.
func ListingKey(f domain.Filter) string {
	switch f.Kind {
	case domain.ByName, domain.ByStorageKey, domain.ByType:
		return fmt.Sprintf("files:%s:%s", f.Kind, orAbsent(strings.ToLower(f.Text)))
	case domain.BySizeAtMost:
		return fmt.Sprintf("files:%s:%s", f.Kind, strconv.FormatInt(f.MaxSize, 10))
	case domain.ByDateRange:
		return fmt.Sprintf("files:%s:%s:%s", f.Kind, timeOrAbsent(f.Start), timeOrAbsent(f.End))
	default:
		return fmt.Sprintf("files:%s:%s", domain.Unfiltered, absentValue)
	}
}

func orAbsent(s string) string {
	if s == "" {
		return absentValue
	}
	return s
}

func timeOrAbsent(t *time.Time) string {
	if t == nil || t.IsZero() {
		return absentValue
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Store holds serialized entries under a Policy.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, p Policy) error
	Ping(ctx context.Context) error
	Close() error
}

// Stats tracks cache statistics.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Sets   uint64 `json:"sets"`
	Errors uint64 `json:"errors"`
}

// StatsSnapshot returns a snapshot of the current statistics.
type StatsSnapshot struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Sets      uint64  `json:"sets"`
	Errors    uint64  `json:"errors"`
	HitRate   float64 `json:"hit_rate"`
	TotalGets uint64  `json:"total_gets"`
}

// DefaultLoadTimeout bounds a shared load once it is detached from its callers.
const DefaultLoadTimeout = 30 * time.Second

// Cache is a read-through cache over a Store. It never sees writes, so entries
// only leave when their policy expires them.
type Cache struct {
	store       Store
	group       singleflight.Group
	stats       *Stats
	loadTimeout time.Duration
	logger      types.Logger
}

// New creates a cache on top of store.
func New(store Store, logger types.Logger) *Cache {
	if store == nil {
		panic("cache: nil store")
	}
	return &Cache{
		store:       store,
		stats:       &Stats{},
		loadTimeout: DefaultLoadTimeout,
		logger:      logger,
	}
}

// SetLoadTimeout changes the bound on shared loads. Non-positive values restore the default.
func (c *Cache) SetLoadTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultLoadTimeout
	}
	c.loadTimeout = d
}

// Fetch returns the value cached under key, or runs load, caches its result under p and returns it.
// Concurrent misses on the same key share a single load. The shared load keeps the first caller's
// values but not its cancellation, and is bounded by the load timeout; each caller stops waiting
// when its own ctx is done. Store failures fall back to load.
func Fetch[T any](ctx context.Context, c *Cache, key string, p Policy, load func(context.Context) (T, error)) (T, error) {
	var zero T

	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		c.logger.Warn("Cache get failed", "key", key, "error", err)
	}
	if ok {
		var out T
		if err := json.Unmarshal(data, &out); err == nil {
			atomic.AddUint64(&c.stats.Hits, 1)
			return out, nil
		}
		atomic.AddUint64(&c.stats.Errors, 1)
	}
	atomic.AddUint64(&c.stats.Misses, 1)

	shared := c.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		value, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("cache marshal error: %w", err)
		}
		if err := c.store.Set(loadCtx, key, encoded, p); err != nil {
			atomic.AddUint64(&c.stats.Errors, 1)
			c.logger.Warn("Cache set failed", "key", key, "error", err)
		} else {
			atomic.AddUint64(&c.stats.Sets, 1)
		}
		return encoded, nil
	})

	var res singleflight.Result
	select {
	case res = <-shared:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	if res.Err != nil {
		return zero, res.Err
	}

	var out T
	if err := json.Unmarshal(res.Val.([]byte), &out); err != nil {
		return zero, fmt.Errorf("cache unmarshal error: %w", err)
	}
	return out, nil
}

// GetStats returns the current cache statistics.
func (c *Cache) GetStats() StatsSnapshot {
	hits := atomic.LoadUint64(&c.stats.Hits)
	misses := atomic.LoadUint64(&c.stats.Misses)
	totalGets := hits + misses

	var hitRate float64
	if totalGets > 0 {
		hitRate = float64(hits) / float64(totalGets) * 100
	}

	return StatsSnapshot{
		Hits:      hits,
		Misses:    misses,
		Sets:      atomic.LoadUint64(&c.stats.Sets),
		Errors:    atomic.LoadUint64(&c.stats.Errors),
		HitRate:   hitRate,
		TotalGets: totalGets,
	}
}

// Ping checks the underlying store.
func (c *Cache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}
