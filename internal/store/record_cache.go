// Package store holds the bounded in-memory retention structures of the
// reconfiguration layer. Durable state is owned by the replicated log;
// nothing here survives a restart, by contract.
package store

import (
	"sync"
	"time"

	"github.com/helixdb/reconfig/internal/model"
)

// RecordCache retains recently committed reconfiguration records for a
// bounded window, keyed by record identity. It exists to absorb races
// between executed notifications and late-arriving enqueue calls; once
// an entry ages out, the replicated log itself is the source of truth.
type RecordCache struct {
	mu      sync.RWMutex
	data    map[model.RecordKey]*cacheEntry
	ttl     time.Duration
	maxSize int
}

type cacheEntry struct {
	record    *model.ReconfigRecord
	expiresAt time.Time
}

// NewRecordCache creates a cache bounded by ttl and maxSize
func NewRecordCache(ttl time.Duration, maxSize int) *RecordCache {
	return &RecordCache{
		data:    make(map[model.RecordKey]*cacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Add inserts a record, returning false if an entry with the same
// identity is already present (its expiry is extended instead)
func (c *RecordCache) Add(record *model.ReconfigRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpiredLocked()

	key := record.Key()
	if entry, exists := c.data[key]; exists {
		entry.expiresAt = time.Now().Add(c.ttl)
		return false
	}

	if len(c.data) >= c.maxSize {
		c.evictSoonestLocked()
	}

	c.data[key] = &cacheEntry{
		record:    record,
		expiresAt: time.Now().Add(c.ttl),
	}
	return true
}

// Contains reports whether a live entry with the given identity exists
func (c *RecordCache) Contains(key model.RecordKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[key]
	return exists && time.Now().Before(entry.expiresAt)
}

// Get returns the live record with the given identity, or nil
func (c *RecordCache) Get(key model.RecordKey) *model.ReconfigRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[key]
	if !exists || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.record
}

// Remove deletes an entry by identity, reporting whether a live entry
// was removed
func (c *RecordCache) Remove(key model.RecordKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.data[key]
	if !exists {
		return false
	}
	delete(c.data, key)
	return time.Now().Before(entry.expiresAt)
}

// RemoveIf deletes every live entry the predicate matches and returns
// how many were removed
func (c *RecordCache) RemoveIf(match func(*model.ReconfigRecord) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpiredLocked()

	removed := 0
	for key, entry := range c.data {
		if match(entry.record) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

// Any reports whether the predicate matches some live entry
func (c *RecordCache) Any(match func(*model.ReconfigRecord) bool) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	for _, entry := range c.data {
		if now.Before(entry.expiresAt) && match(entry.record) {
			return true
		}
	}
	return false
}

// Size returns the number of entries, expired or not
func (c *RecordCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// purgeExpiredLocked drops expired entries. Expiry is driven lazily by
// mutators rather than a sweeper goroutine: every enqueue consults the
// cache anyway, so garbage never outlives the traffic that could see it.
func (c *RecordCache) purgeExpiredLocked() {
	now := time.Now()
	for key, entry := range c.data {
		if now.After(entry.expiresAt) {
			delete(c.data, key)
		}
	}
}

// evictSoonestLocked drops the entry closest to expiry to make room
func (c *RecordCache) evictSoonestLocked() {
	var (
		victim  model.RecordKey
		soonest time.Time
		haveAny bool
	)
	for key, entry := range c.data {
		if !haveAny || entry.expiresAt.Before(soonest) {
			victim = key
			soonest = entry.expiresAt
			haveAny = true
		}
	}
	if haveAny {
		delete(c.data, victim)
	}
}
