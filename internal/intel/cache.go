package intel

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/mailsentry/mailsentry/internal/core"
)

const cacheShards = 16

type cacheEntry struct {
	result    *core.ThreatIntelResult
	expiresAt time.Time
}

type cacheShard struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// resultCache is a sharded TTL cache keyed by URL. Eviction is time-based
// only; the unbounded size is an accepted tradeoff for intel lookups, whose
// key space is bounded by inbound mail volume within one TTL window.
type resultCache struct {
	shards  [cacheShards]*cacheShard
	stopCh  chan struct{}
	stopped sync.Once
}

func newResultCache(sweepEvery time.Duration) *resultCache {
	c := &resultCache{stopCh: make(chan struct{})}
	for i := range c.shards {
		c.shards[i] = &cacheShard{entries: make(map[string]cacheEntry)}
	}
	if sweepEvery > 0 {
		go c.sweep(sweepEvery)
	}
	return c
}

func (c *resultCache) get(url string) (*core.ThreatIntelResult, bool) {
	shard := c.shard(url)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	entry, ok := shard.entries[url]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	cp := *entry.result
	return &cp, true
}

func (c *resultCache) set(url string, result *core.ThreatIntelResult, ttl time.Duration) {
	cp := *result
	shard := c.shard(url)
	shard.mu.Lock()
	shard.entries[url] = cacheEntry{result: &cp, expiresAt: time.Now().Add(ttl)}
	shard.mu.Unlock()
}

func (c *resultCache) clear(url string) {
	shard := c.shard(url)
	shard.mu.Lock()
	delete(shard.entries, url)
	shard.mu.Unlock()
}

func (c *resultCache) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			for _, shard := range c.shards {
				shard.mu.Lock()
				for url, entry := range shard.entries {
					if now.After(entry.expiresAt) {
						delete(shard.entries, url)
					}
				}
				shard.mu.Unlock()
			}
		case <-c.stopCh:
			return
		}
	}
}

func (c *resultCache) stop() {
	c.stopped.Do(func() { close(c.stopCh) })
}

func (c *resultCache) shard(url string) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(url))
	return c.shards[h.Sum32()%cacheShards]
}
