// Package cache provides a thread-safe, in-memory byte cache with
// TTL-based expiration and active memory management (eviction). The
// gallery uses it to keep hot thumbnails out of the disk read path.
package cache

import (
	"log"
	"sort"
	"sync"
	"time"

	"miogallery/pkg/logger"
	"miogallery/pkg/utils"
)

const (
	DefaultMaxSize = 100 // MB
	DefaultTTL     = 30 * time.Minute

	// GCInterval: expired item cleanup frequency.
	GCInterval = 5 * time.Minute

	// MonitorInterval: heartbeat logging. Reduce only during debugging.
	MonitorInterval = 30 * time.Minute

	// Items above this size stay on disk; the OS page cache handles them
	// better than the Go heap does.
	maxItemSize = 512 * 1024
)

type Item struct {
	Data      []byte
	ExpiresAt time.Time
	Size      int64
}

type MemoryCache struct {
	sync.RWMutex
	items     map[string]Item
	totalSize int64
	maxSize   int64
	ttl       time.Duration
	enabled   bool
}

// New initializes the in-memory cache with the given capacity in MB and
// item TTL, and starts the background maintenance routines. A disabled
// cache runs in pass-through mode: every Get misses, every Set drops.
func New(limitMB int64, ttl time.Duration, enabled bool) *MemoryCache {
	if limitMB <= 0 {
		limitMB = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &MemoryCache{
		maxSize: limitMB * 1024 * 1024,
		ttl:     ttl,
		enabled: enabled,
	}

	if c.enabled {
		c.items = make(map[string]Item)

		go c.startGC()
		go c.startMonitor()

		logger.LogInfo("Memory Cache Initialized: %d MB Limit, TTL: %s", limitMB, ttl)
	} else {
		logger.LogWarn("Memory Cache is DISABLED via config (Running in pass-through mode).")
	}
	return c
}

// Set stores a value in the cache with the configured TTL.
// Large items are skipped to preserve RAM for high-frequency thumbnails.
func (c *MemoryCache) Set(key string, data []byte) {
	if !c.enabled {
		return
	}

	c.Lock()
	defer c.Unlock()

	size := int64(len(data))

	// A single item shouldn't take more than half of the cache.
	if size > c.maxSize/2 || size > maxItemSize {
		return
	}

	if c.totalSize+size > c.maxSize {
		c.prune()
	}

	if oldItem, exists := c.items[key]; exists {
		c.totalSize -= oldItem.Size
	}

	c.items[key] = Item{
		Data:      data,
		ExpiresAt: time.Now().Add(c.ttl),
		Size:      size,
	}
	c.totalSize += size
}

// Get retrieves an item if it exists and hasn't expired.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	if !c.enabled {
		return nil, false
	}

	c.RLock()
	defer c.RUnlock()

	item, found := c.items[key]
	if !found {
		return nil, false
	}
	if time.Now().After(item.ExpiresAt) {
		return nil, false
	}
	return item.Data, true
}

// Delete explicitly removes an item from the cache.
func (c *MemoryCache) Delete(key string) {
	if !c.enabled {
		return
	}

	c.Lock()
	defer c.Unlock()

	if item, found := c.items[key]; found {
		delete(c.items, key)
		c.totalSize -= item.Size
	}
}

// prune evicts items sorted by expiration time until memory usage drops
// below 80% of capacity. Caller must hold the write lock.
func (c *MemoryCache) prune() {
	if len(c.items) == 0 {
		return
	}

	targetSize := int64(float64(c.maxSize) * 0.80)

	type candidate struct {
		Key       string
		ExpiresAt time.Time
		Size      int64
	}

	candidates := make([]candidate, 0, len(c.items))
	for k, v := range c.items {
		candidates = append(candidates, candidate{k, v.ExpiresAt, v.Size})
	}

	// Items that expire soonest go first.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ExpiresAt.Before(candidates[j].ExpiresAt)
	})

	for _, cand := range candidates {
		if c.totalSize <= targetSize {
			break
		}
		delete(c.items, cand.Key)
		c.totalSize -= cand.Size
	}
}

// startGC is a background worker that removes expired items.
func (c *MemoryCache) startGC() {
	ticker := time.NewTicker(GCInterval)
	for range ticker.C {
		c.Lock()
		if len(c.items) == 0 {
			c.Unlock()
			continue
		}
		now := time.Now()
		removedCount := 0
		removedBytes := int64(0)

		for k, v := range c.items {
			if now.After(v.ExpiresAt) {
				delete(c.items, k)
				c.totalSize -= v.Size
				removedBytes += v.Size
				removedCount++
			}
		}
		c.Unlock()

		if removedCount > 0 {
			log.Printf("[CACHE] GC: Cleaned %d items (%s freed)", removedCount, utils.FormatBytes(removedBytes))
		}
	}
}

// startMonitor logs cache statistics periodically.
func (c *MemoryCache) startMonitor() {
	ticker := time.NewTicker(MonitorInterval)
	for range ticker.C {
		c.RLock()
		count := len(c.items)
		used := c.totalSize
		max := c.maxSize
		c.RUnlock()

		if count == 0 {
			continue
		}

		log.Printf("[CACHE] Cache: %d items | Usage: %s / %s (%.2f%%)",
			count,
			utils.FormatBytes(used),
			utils.FormatBytes(max),
			(float64(used)/float64(max))*100,
		)
	}
}
