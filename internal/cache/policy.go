// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package cache implements the bounded in-memory key/value cache tier that
// sits in front of the version manager. It is never authoritative: entries
// are evicted, expire, or simply vanish on restart, and a miss always falls
// through to the version manager.
package cache

import "time"

// Policy selects the eviction strategy used when a cache overflows its
// configured capacity.
type Policy string

const (
	LRU  Policy = "lru"
	LFU  Policy = "lfu"
	FIFO Policy = "fifo"
)

// entry is a cache-local (value, metadata) pair. Metadata never escapes to
// the version manager; it exists only to drive eviction and TTL decisions.
type entry struct {
	value      []byte
	insertedAt time.Time
	accessedAt time.Time
	hits       uint64
	// seq orders insertion for LFU tie-breaking ("oldest insertion wins"
	// per the spec). FIFO and LRU keep their order in a list instead.
	seq uint64
}

// policy is the narrow capability every eviction strategy implements. This
// is a sealed-set dispatch (§9 DESIGN NOTES: "Dynamic dispatch across cache
// policies") rather than an open, inheritance-style hierarchy: Cache holds
// exactly one of {lruPolicy, lfuPolicy, fifoPolicy} behind this interface.
type policy interface {
	// get returns the entry for key and whether it is present. On a hit the
	// policy updates whatever internal ordering it tracks (LRU recency, LFU
	// frequency); FIFO does not reorder on read.
	get(key string) (entry, bool)
	// put inserts or updates key. It returns the evicted key and true if
	// inserting overflowed capacity and an entry had to be evicted.
	put(key string, e entry) (evictedKey string, evicted bool)
	delete(key string)
	clear()
	size() int
	// keys returns every live key, in no particular order.
	keys() []string
}

func newPolicy(p Policy, maxSize int) policy {
	switch p {
	case LFU:
		return newLFUPolicy(maxSize)
	case FIFO:
		return newFIFOPolicy(maxSize)
	default:
		return newLRUPolicy(maxSize)
	}
}
