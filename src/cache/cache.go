// Package cache implements the bounded, time-indexed store of recently seen
// broadcast messages. It is the deduplication authority for the broadcast
// tree: a message id is delivered to the application if and only if its first
// insertion into the cache succeeds. It also serves Graft repair requests,
// for which recently announced entries are retained past normal eviction.
package cache

import (
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Record holds one cached message.
type Record[K comparable] struct {
	ID      K
	Payload []byte

	// Round is the hop count at which the message was first received. Zero
	// for locally published messages.
	Round int

	ReceivedAt  time.Time
	AnnouncedAt time.Time
}

// MessageCache is a bounded message store with two eviction triggers: an LRU
// capacity bound enforced on insert, and a TTL enforced by periodic Sweep
// calls. Entries announced to lazy peers within the announce-retention window
// survive both, so a Graft provoked by our own IHave can still be answered.
//
// The cache is not safe for concurrent use; like the protocol state machines
// it is owned by a single node event loop.
type MessageCache[K comparable] struct {
	ttl       time.Duration
	retention time.Duration
	clock     clock.Clock

	entries *lru.Cache[K, *Record[K]]

	// overflow parks announced records pushed out by the capacity bound
	// until their retention window passes.
	overflow map[K]*Record[K]
}

// New returns a cache bounded to size entries, with the given TTL and
// announce-retention window.
func New[K comparable](size int, ttl, retention time.Duration, clk clock.Clock) (*MessageCache[K], error) {
	c := &MessageCache[K]{
		ttl:       ttl,
		retention: retention,
		clock:     clk,
		overflow:  make(map[K]*Record[K]),
	}

	entries, err := lru.NewWithEvict[K, *Record[K]](size, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.entries = entries

	return c, nil
}

// onEvict intercepts capacity evictions and parks still-announced records in
// the overflow map instead of dropping them.
func (c *MessageCache[K]) onEvict(id K, rec *Record[K]) {
	if c.announced(rec, c.clock.Now()) {
		c.overflow[id] = rec
	}
}

// Insert adds a message and reports whether it was previously unknown.
func (c *MessageCache[K]) Insert(id K, payload []byte, round int) bool {
	if c.Contains(id) {
		return false
	}
	c.entries.Add(id, &Record[K]{
		ID:         id,
		Payload:    payload,
		Round:      round,
		ReceivedAt: c.clock.Now(),
	})
	return true
}

// Contains reports whether the message id has been seen and is still cached.
func (c *MessageCache[K]) Contains(id K) bool {
	if c.entries.Contains(id) {
		return true
	}
	_, ok := c.overflow[id]
	return ok
}

// Get returns the cached record for id.
func (c *MessageCache[K]) Get(id K) (*Record[K], bool) {
	if rec, ok := c.entries.Peek(id); ok {
		return rec, true
	}
	rec, ok := c.overflow[id]
	return rec, ok
}

// MarkAnnounced records that an IHave naming this id was sent, pinning the
// entry for the retention window.
func (c *MessageCache[K]) MarkAnnounced(id K) {
	if rec, ok := c.Get(id); ok {
		rec.AnnouncedAt = c.clock.Now()
	}
}

// Sweep evicts entries older than the TTL, except those still inside their
// announce-retention window, and drains the overflow map. It returns the
// evicted ids.
func (c *MessageCache[K]) Sweep() []K {
	now := c.clock.Now()

	var evicted []K
	for _, id := range c.entries.Keys() {
		rec, ok := c.entries.Peek(id)
		if !ok {
			continue
		}
		if c.expired(rec, now) && !c.announced(rec, now) {
			c.entries.Remove(id)
			evicted = append(evicted, id)
		}
	}

	for id, rec := range c.overflow {
		if !c.announced(rec, now) {
			delete(c.overflow, id)
			evicted = append(evicted, id)
		}
	}

	return evicted
}

// Len returns the number of cached messages.
func (c *MessageCache[K]) Len() int {
	return c.entries.Len() + len(c.overflow)
}

func (c *MessageCache[K]) expired(rec *Record[K], now time.Time) bool {
	return now.Sub(rec.ReceivedAt) >= c.ttl
}

func (c *MessageCache[K]) announced(rec *Record[K], now time.Time) bool {
	return !rec.AnnouncedAt.IsZero() && now.Sub(rec.AnnouncedAt) < c.retention
}
