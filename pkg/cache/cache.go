// Package cache stores clearance artifacts keyed by target host and
// network channel, with TTL expiry and LRU eviction.
package cache

import (
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/odvcencio/gatepass/pkg/solver"
)

// Cache is a thread-safe TTL+LRU cache of clearances. One entry per
// (host, channel) key: two paths on the same host deliberately share an
// entry to maximize reuse.
type Cache struct {
	entries *expirable.LRU[string, *solver.Clearance]
	ttl     time.Duration
	cap     int

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats is a point-in-time snapshot of cache state.
type Stats struct {
	Size     int     `json:"size"`
	Capacity int     `json:"capacity"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hit_rate"`
}

// New creates a cache holding at most capacity entries, each valid for ttl
// after insertion.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 100
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Cache{
		entries: expirable.NewLRU[string, *solver.Clearance](capacity, nil, ttl),
		ttl:     ttl,
		cap:     capacity,
	}
}

// Key derives the cache key for a target URL and channel. The target is
// coarsened to its host; the channel normalizes to "direct" when absent.
func Key(target, channel string) string {
	host := target
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		host = u.Host
	}
	if channel == "" {
		channel = "direct"
	}
	return strings.ToLower(host) + "|" + channel
}

// Get returns the live clearance for (target, channel). Expired entries are
// purged on access and count as misses.
func (c *Cache) Get(target, channel string) (*solver.Clearance, bool) {
	entry, ok := c.entries.Get(Key(target, channel))
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return entry, true
}

// Set inserts or replaces the clearance under (target, channel), evicting
// the least-recently-used entry when at capacity.
func (c *Cache) Set(target, channel string, clearance *solver.Clearance) {
	if clearance == nil {
		return
	}
	c.entries.Add(Key(target, channel), clearance)
}

// Invalidate drops the entry for (target, channel), if any.
func (c *Cache) Invalidate(target, channel string) bool {
	return c.entries.Remove(Key(target, channel))
}

// Clear drops every entry and returns how many were removed.
func (c *Cache) Clear() int {
	n := c.entries.Len()
	c.entries.Purge()
	return n
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Stats returns a snapshot of cache size and hit counters.
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	rate := 0.0
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Size:     c.entries.Len(),
		Capacity: c.cap,
		Hits:     hits,
		Misses:   misses,
		HitRate:  rate,
	}
}
