// Package icache implements the fixed-size, non-evicting in-memory inode
// table described by spec.md's inode cache module: a linear-scan table of
// NINODE slots, each with its own mutex for the first-reference decode
// (not the per-inode content lock, which lives in fstxn), with the table itself
// guarded by a single spinlock-equivalent mutex that protects only slot
// identity (inum, ref) — never the slot's inode contents.
//
// Grounded on inode/inode.go's original single-package inodeCache
// (mkInodeCache/getInode/putInode), which is a closer match to this
// design than the newer map+evict cache.Cache: this table never evicts,
// and running out of slots is a resource-exhaustion fault, not a cause
// to recycle a slot still in use.
package icache

import (
	"sync"

	"github.com/goose-fs/xv6fs/common"
)

// Slot is one in-memory inode-cache entry. mu guards only the brief
// decode-on-first-reference in inode.Get; it is not the per-inode
// content lock a caller takes to bracket a read-modify-write sequence
// (that is fstxn's Lockmap, acquired by inode.Lock/Unlock). Inum and
// ref are protected by Cache.mu instead, matching original_source/fs.c's
// icache.lock/ip->lock split.
type Slot struct {
	mu   sync.Mutex
	Inum common.Inum
	ref  uint32

	// Obj holds the decoded on-disk inode once read; nil until the first
	// caller loads it, mirroring ip->valid.
	Obj interface{}
}

func (s *Slot) Lock()   { s.mu.Lock() }
func (s *Slot) Unlock() { s.mu.Unlock() }

// Cache is a fixed-size table of Slots.
type Cache struct {
	mu    sync.Mutex
	slots []*Slot
}

// MkCache allocates a cache with n slots.
func MkCache(n uint64) *Cache {
	slots := make([]*Slot, n)
	for i := range slots {
		slots[i] = &Slot{}
	}
	return &Cache{slots: slots}
}

// Get finds the slot already caching inum, incrementing its reference
// count, or claims an empty (ref == 0) slot for it. It panics if every
// slot is in use — spec.md classifies exhausting the inode cache as a
// resource-exhaustion fault, not a recoverable error, since the table
// size is a fixed configuration constant, not something a caller's
// request can be blamed for.
func (c *Cache) Get(inum common.Inum) *Slot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var empty *Slot
	for _, s := range c.slots {
		if s.ref > 0 && s.Inum == inum {
			s.ref++
			return s
		}
		if s.ref == 0 && empty == nil {
			empty = s
		}
	}
	if empty == nil {
		common.Fatalf("icache: no free inode cache slots")
	}
	empty.Inum = inum
	empty.ref = 1
	empty.Obj = nil
	return empty
}

// Dup increments a slot's reference count without a lookup, the way
// original_source/fs.c's idup extends the lifetime of an inode a caller
// already holds a pointer to.
func (c *Cache) Dup(s *Slot) *Slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.ref++
	return s
}

// RefCount reports s's current reference count without changing it —
// the peek original_source/fs.c's iput needs under icache.lock to
// decide whether this is the last reference before it decides whether
// to truncate; the decrement itself waits until the truncate-and-free
// work (if any) is done.
func (c *Cache) RefCount(s *Slot) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return s.ref
}

// Put drops a reference to slot and returns the count after the drop.
// When the count reaches zero the slot becomes eligible for reuse by a
// future Get and its Obj is cleared, so the next Get of that inum decodes
// a fresh Inode from disk.
func (c *Cache) Put(s *Slot) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.ref--
	if s.ref == 0 {
		s.Obj = nil
	}
	return s.ref
}
