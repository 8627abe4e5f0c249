// Package runtime is the KAMI execution core: the component cache,
// resolver, executor, scheduler, rate limiter, metrics, and the
// orchestrator that composes them behind Execute(tool, input).
package runtime

import (
	"sync"

	"github.com/kamitools/kami/pkg/engine"
	"github.com/kamitools/kami/pkg/types"
)

// CachedComponent pairs a compiled artifact with the policy it was
// resolved under. The artifact is shared across executions and never
// mutated; cloning an entry is cheap.
type CachedComponent struct {
	// Artifact is the compiled module, shared by reference.
	Artifact *engine.Module
	// Policy is the security policy captured at resolve time.
	Policy types.SecurityPolicy
	// WasmPath records the on-disk source for invalidation decisions.
	WasmPath string
}

// ComponentCache is a strict-LRU cache of compiled components keyed by
// tool id. Both Get and Insert count as access. Compilation is the hot
// path, not cache access, so one short-lived mutex over the map and the
// recency order is enough; the lock is never held across I/O.
type ComponentCache struct {
	mu       sync.Mutex
	entries  map[string]CachedComponent
	order    []string // front = least recently used
	capacity int
}

// NewComponentCache creates a cache bounded to capacity entries.
func NewComponentCache(capacity int) *ComponentCache {
	if capacity < 1 {
		capacity = 1
	}
	return &ComponentCache{
		entries:  make(map[string]CachedComponent, capacity),
		order:    make([]string, 0, capacity),
		capacity: capacity,
	}
}

// Get returns the entry for id, promoting it to most recently used.
func (c *ComponentCache) Get(id types.ToolID) (CachedComponent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := id.String()
	entry, ok := c.entries[key]
	if !ok {
		return CachedComponent{}, false
	}
	c.touch(key)
	return entry, true
}

// Insert stores an entry under id. Replacing an existing key touches it
// without counting against capacity; a new key evicts the least recently
// used entry first when the cache is full.
func (c *ComponentCache) Insert(id types.ToolID, entry CachedComponent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := id.String()
	if _, exists := c.entries[key]; exists {
		c.touch(key)
	} else {
		if len(c.entries) >= c.capacity {
			c.evictLRU()
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = entry
}

// Invalidate removes the entry for id if present.
func (c *ComponentCache) Invalidate(id types.ToolID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := id.String()
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	c.remove(key)
}

// Clear discards every entry.
func (c *ComponentCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CachedComponent, c.capacity)
	c.order = c.order[:0]
}

// Len returns the number of cached entries.
func (c *ComponentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ComponentCache) touch(key string) {
	c.remove(key)
	c.order = append(c.order, key)
}

func (c *ComponentCache) remove(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *ComponentCache) evictLRU() {
	if len(c.order) == 0 {
		return
	}
	lru := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, lru)
}
