package curve

import (
	"encoding/binary"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/kline/internal/domain/chart"
	"github.com/okian/kline/pkg/metrics"
)

// defaultCacheCapacity bounds the number of memoized decade bases.
const defaultCacheCapacity = 4096

// Keyed is implemented by charts that carry their own stable identity.
type Keyed interface {
	Key() string
}

// Fingerprint identifies a chart for memoization. Charts implementing
// Keyed use their key; others are hashed over their palace snapshots.
func Fingerprint(c chart.Chart) string {
	if k, ok := c.(Keyed); ok && k.Key() != "" {
		return k.Key()
	}
	h := xxhash.New()
	var buf [8]byte
	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v)) //nolint:gosec // hashing only
		_, _ = h.Write(buf[:])
	}
	writeStr := func(s string) {
		_, _ = h.WriteString(s)
		_, _ = h.Write([]byte{0})
	}
	for _, p := range c.Palaces() {
		writeInt(p.Index)
		writeStr(p.Name)
		writeStr(p.Stem)
		writeStr(p.Branch)
		for _, group := range [][]chart.Star{p.MajorStars, p.MinorStars} {
			writeInt(len(group))
			for _, s := range group {
				writeStr(s.Name)
				writeStr(string(s.Brightness))
				writeStr(string(s.Tag))
			}
		}
		writeInt(len(p.AdjectiveStars))
		for _, s := range p.AdjectiveStars {
			writeStr(s)
		}
		if p.Decadal != nil {
			writeInt(p.Decadal.Start)
			writeInt(p.Decadal.End)
		} else {
			writeInt(-1)
		}
	}
	return "xx:" + strconv.FormatUint(h.Sum64(), 16)
}

// DecadeKey identifies one memoized decade base.
type DecadeKey struct {
	Chart string
	Range chart.AgeRange
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// CacheOption configures a DecadeCache.
type CacheOption func(*DecadeCache)

// WithCapacity bounds the number of entries. When full, an arbitrary entry
// is evicted to make room.
func WithCapacity(n int) CacheOption {
	return func(c *DecadeCache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// DecadeCache memoizes decade base scores per chart and age range. It is
// safe for concurrent use.
type DecadeCache struct {
	mu       sync.Mutex
	entries  map[DecadeKey]float64
	capacity int
	hits     uint64
	misses   uint64
}

// NewDecadeCache returns an empty cache.
func NewDecadeCache(opts ...CacheOption) *DecadeCache {
	c := &DecadeCache{
		entries:  make(map[DecadeKey]float64),
		capacity: defaultCacheCapacity,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the cached value of key, calling compute once on a miss.
func (c *DecadeCache) Lookup(key DecadeKey, compute func() float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.entries[key]; ok {
		c.hits++
		metrics.RecordDecadeCacheHit()
		return v
	}
	c.misses++
	metrics.RecordDecadeCacheMiss()
	if len(c.entries) >= c.capacity {
		for k := range c.entries {
			delete(c.entries, k)
			break
		}
	}
	v := compute()
	c.entries[key] = v
	metrics.UpdateDecadeCacheSize(len(c.entries))
	return v
}

// Invalidate drops every entry of chartKey and returns how many were removed.
func (c *DecadeCache) Invalidate(chartKey string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if k.Chart == chartKey {
			delete(c.entries, k)
			n++
		}
	}
	metrics.UpdateDecadeCacheSize(len(c.entries))
	return n
}

// Reset empties the cache and zeroes its counters.
func (c *DecadeCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.hits, c.misses = 0, 0
	metrics.UpdateDecadeCacheSize(0)
}

// Stats returns the current counters.
func (c *DecadeCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}
