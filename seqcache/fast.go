package seqcache

import (
	"container/list"
	"sync"
	"time"

	"encore.app/pkg/utils"
)

// FastTier is a bounded, recency-ordered in-process cache with TTL
// expiration. It holds hot reference sequences and recent search-result
// lists.
//
// Trade-offs:
// - RWMutex over sync.Map: LRU ordering needs ordered iteration and atomic
//   eviction, which sync.Map cannot provide
// - Expiration is lazy (checked on access) plus an explicit CleanupExpired
//   sweep; no background goroutine
type FastTier struct {
	mu         sync.RWMutex
	entries    map[string]*fastEntry
	lruList    *list.List
	maxEntries int
	ttl        time.Duration
	evictions  int64

	now func() time.Time
}

// fastEntry carries the bookkeeping the cache owns exclusively: insertion
// time, last access, and hit count.
type fastEntry struct {
	key        string
	value      interface{}
	insertedAt time.Time
	lastAccess time.Time
	expiresAt  time.Time
	hits       int64
	element    *list.Element // for O(1) LRU removal
}

// NewFastTier creates a fast tier with the given capacity and TTL.
func NewFastTier(maxEntries int, ttl time.Duration) *FastTier {
	return &FastTier{
		entries:    make(map[string]*fastEntry, maxEntries),
		lruList:    list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// SetClock injects the tier's clock. Test use only.
func (t *FastTier) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Get returns the value for key and refreshes its LRU position. Expired
// entries are removed and reported as misses.
// Complexity: O(1) average.
func (t *FastTier) Get(key string) (interface{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.entries[key]
	if !exists {
		return nil, false
	}

	now := t.now()
	if now.After(entry.expiresAt) {
		t.removeLocked(entry)
		return nil, false
	}

	entry.lastAccess = now
	entry.hits++
	t.lruList.MoveToFront(entry.element)
	return entry.value, true
}

// Put stores a value, evicting the least recently used entry at capacity.
// Complexity: O(1).
func (t *FastTier) Put(key string, value interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if entry, exists := t.entries[key]; exists {
		entry.value = value
		entry.insertedAt = now
		entry.lastAccess = now
		entry.expiresAt = now.Add(t.ttl)
		t.lruList.MoveToFront(entry.element)
		return
	}

	if t.lruList.Len() >= t.maxEntries {
		t.evictOldestLocked()
	}

	entry := &fastEntry{
		key:        key,
		value:      value,
		insertedAt: now,
		lastAccess: now,
		expiresAt:  now.Add(t.ttl),
	}
	entry.element = t.lruList.PushFront(entry)
	t.entries[key] = entry
}

// Delete removes a key. Returns true if it existed.
func (t *FastTier) Delete(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.entries[key]
	if !exists {
		return false
	}
	t.removeLocked(entry)
	return true
}

// DeletePattern removes all keys matching pattern (see utils.MatchPattern).
// Returns the number removed.
func (t *FastTier) DeletePattern(pattern string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var doomed []*fastEntry
	for _, entry := range t.entries {
		if utils.MatchPattern(pattern, entry.key) {
			doomed = append(doomed, entry)
		}
	}
	for _, entry := range doomed {
		t.removeLocked(entry)
	}
	return len(doomed)
}

// DeleteOlderThan removes entries inserted before the cutoff age. Age zero
// removes everything.
func (t *FastTier) DeleteOlderThan(age time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-age)
	var doomed []*fastEntry
	for _, entry := range t.entries {
		if age == 0 || entry.insertedAt.Before(cutoff) {
			doomed = append(doomed, entry)
		}
	}
	for _, entry := range doomed {
		t.removeLocked(entry)
	}
	return len(doomed)
}

// CleanupExpired removes all expired entries. Called from the maintenance
// sweep rather than a background timer.
func (t *FastTier) CleanupExpired() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var expired []*fastEntry
	for _, entry := range t.entries {
		if now.After(entry.expiresAt) {
			expired = append(expired, entry)
		}
	}
	for _, entry := range expired {
		t.removeLocked(entry)
	}
	return len(expired)
}

// Size returns the current entry count.
func (t *FastTier) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Evictions returns the number of capacity evictions since creation.
func (t *FastTier) Evictions() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.evictions
}

// evictOldestLocked drops the LRU tail. Must hold mu.
func (t *FastTier) evictOldestLocked() {
	oldest := t.lruList.Back()
	if oldest == nil {
		return
	}
	t.removeLocked(oldest.Value.(*fastEntry))
	t.evictions++
}

// removeLocked unlinks an entry from both structures. Must hold mu.
func (t *FastTier) removeLocked(entry *fastEntry) {
	t.lruList.Remove(entry.element)
	delete(t.entries, entry.key)
}
