// Package fstxn implements one filesystem transaction on top of the
// external write-ahead journal: it adds block/inode allocation and an
// inode cache to a raw journal operation, mirroring the way
// original_source/fs.c's begin_op/end_op bracket a group of log_write
// calls plus the block and inode allocators.
package fstxn

import (
	gjaddr "github.com/mit-pdos/go-journal/addr"
	"github.com/mit-pdos/go-journal/lockmap"
	gjtxn "github.com/mit-pdos/go-journal/txn"
	"github.com/mit-pdos/go-journal/util"

	"github.com/goose-fs/xv6fs/common"
	"github.com/goose-fs/xv6fs/icache"
	"github.com/goose-fs/xv6fs/super"
)

// FsState is the set of singletons shared by every transaction against a
// mounted filesystem: the superblock/allocators, the journal, the inode
// cache, and the per-inode lock table. Grounded on inode/fsstate.go.
type FsState struct {
	Super   *super.FsSuper
	Log     *gjtxn.Log
	Icache  *icache.Cache
	Lockmap *lockmap.LockMap
}

// MkFsState wraps a formatted superblock and its backing disk with a
// journal, an inode cache, and a lock table, ready for Begin.
func MkFsState(fs *super.FsSuper, nInodeSlots uint64) *FsState {
	return &FsState{
		Super:   fs,
		Log:     gjtxn.Init(fs.Disk),
		Icache:  icache.MkCache(nInodeSlots),
		Lockmap: lockmap.MkLockMap(),
	}
}

// Txn is one transaction: a journal operation plus the block/inode
// numbers it has allocated or freed, so that Commit/Abort can finalize
// bitmap state together with the journaled writes. Grounded on
// fstxn/fstxn.go and alloctxn/alloctxn.go, folded into a single type
// since this module uses go-journal's own alloc.Alloc directly instead of
// a bespoke AllocTxn.
type Txn struct {
	Fs *FsState
	Op *gjtxn.Txn

	allocInums []common.Inum
	freeInums  []common.Inum
	allocBnums []common.Bnum
	freeBnums  []common.Bnum
}

// Begin starts a new transaction against fs.
func Begin(fs *FsState) *Txn {
	return &Txn{
		Fs: fs,
		Op: gjtxn.Begin(fs.Log),
	}
}

func blockAddr(blkno common.Bnum) gjaddr.Addr {
	return gjaddr.MkAddr(blkno, 0)
}

// AllocBlock returns a fresh, zeroed data block number, or NULLBNUM if the
// filesystem is out of space (a resource-exhaustion condition the caller
// reports as common.ErrNoSpace, not a panic — see spec.md §7).
func (txn *Txn) AllocBlock() common.Bnum {
	bn := common.Bnum(txn.Fs.Super.Balloc.AllocNum())
	if bn == common.NULLBNUM {
		return common.NULLBNUM
	}
	txn.Fs.Super.AssertValidBlock(bn)
	txn.allocBnums = append(txn.allocBnums, bn)
	txn.ZeroBlock(bn)
	util.DPrintf(1, "AllocBlock -> %v\n", bn)
	return bn
}

// FreeBlock returns blkno to the free pool at commit time.
func (txn *Txn) FreeBlock(blkno common.Bnum) {
	if blkno == common.NULLBNUM {
		return
	}
	txn.Fs.Super.AssertValidBlock(blkno)
	util.DPrintf(1, "FreeBlock %v\n", blkno)
	txn.freeBnums = append(txn.freeBnums, blkno)
}

// ReadBlock reads the whole block blkno through the journal.
func (txn *Txn) ReadBlock(blkno common.Bnum) []byte {
	txn.Fs.Super.AssertValidBlock(blkno)
	util.DPrintf(10, "ReadBlock %v\n", blkno)
	return txn.Op.ReadBuf(blockAddr(blkno), common.NBITBLOCK)
}

// ZeroBlock overwrites blkno with zeros through the journal.
func (txn *Txn) ZeroBlock(blkno common.Bnum) {
	zero := make([]byte, common.BSIZE)
	txn.Op.OverWrite(blockAddr(blkno), common.NBITBLOCK, zero)
}

// WriteBlock overwrites the whole of blkno with data through the journal.
func (txn *Txn) WriteBlock(blkno common.Bnum, data []byte) {
	txn.Fs.Super.AssertValidBlock(blkno)
	txn.Op.OverWrite(blockAddr(blkno), common.NBITBLOCK, data)
}

// AllocInum returns a fresh inode number, or NULLINUM if none is free.
func (txn *Txn) AllocInum() common.Inum {
	inum := common.Inum(txn.Fs.Super.Ialloc.AllocNum())
	if inum != common.NULLINUM {
		txn.allocInums = append(txn.allocInums, inum)
	}
	return inum
}

// FreeInum returns inum to the free pool at commit time.
func (txn *Txn) FreeInum(inum common.Inum) {
	txn.freeInums = append(txn.freeInums, inum)
}

// GetInode returns inum's inode-cache slot, claiming it and bumping its
// reference count if this is a fresh reference. It does not take
// inum's content lock (rank 3) — that is a separate, short-lived
// bracket taken only around the field accesses that need it, via
// LockInode/UnlockInode. Grounded on original_source/fs.c's iget.
func (txn *Txn) GetInode(inum common.Inum) *icache.Slot {
	util.DPrintf(1, "GetInode # %v\n", inum)
	return txn.Fs.Icache.Get(inum)
}

// InodeRefCount peeks slot's current reference count without releasing
// it. Grounded on original_source/fs.c's iput, which reads ip->ref
// under icache.lock to decide whether to truncate before it decrements
// the count.
func (txn *Txn) InodeRefCount(slot *icache.Slot) uint32 {
	return txn.Fs.Icache.RefCount(slot)
}

// DupInode adds a reference to slot without a fresh lookup, the way
// original_source/fs.c's idup extends the lifetime of an inode a caller
// already holds a pointer to (used to hold on to a working directory
// across a path walk that starts from it).
func (txn *Txn) DupInode(slot *icache.Slot) {
	txn.Fs.Icache.Dup(slot)
}

// ReleaseInode drops a reference to slot and returns the reference
// count after the release. It does not touch inum's content lock: a
// reference returned by GetInode is never itself locked, so there is
// nothing here to release. Grounded on original_source/fs.c's the
// ref-counting half of iput.
func (txn *Txn) ReleaseInode(slot *icache.Slot) uint32 {
	ref := txn.Fs.Icache.Put(slot)
	util.DPrintf(1, "ReleaseInode # %v -> ref %d\n", slot.Inum, ref)
	return ref
}

// LockInode acquires inum's content lock (rank 3, beneath the
// journal's own locking), bracketing one read-modify-write access to
// its fields. It is never held across a returned reference's whole
// lifetime — only around the operation that needs exclusivity.
// Grounded on original_source/fs.c's ilock.
func (txn *Txn) LockInode(inum common.Inum) {
	txn.Fs.Lockmap.Acquire(uint64(inum))
}

// UnlockInode releases the lock LockInode acquired. Grounded on
// original_source/fs.c's iunlock.
func (txn *Txn) UnlockInode(inum common.Inum) {
	txn.Fs.Lockmap.Release(uint64(inum))
}

// InodeAddr locates the dinode for inum as a journal address.
func (txn *Txn) InodeAddr(inum common.Inum) gjaddr.Addr {
	blkno, bitOff := txn.Fs.Super.Inum2Addr(inum)
	return gjaddr.MkAddr(blkno, bitOff)
}

// preCommit writes the accumulated allocate/free bits into the on-disk
// bitmaps, mirroring alloctxn.go's PreCommit.
func (txn *Txn) preCommit() {
	txn.writeBits(inumsToBnums(txn.allocInums), txn.Fs.Super.BitmapInodeStart(), true)
	txn.writeBits(txn.allocBnums, txn.Fs.Super.BitmapBlockStart(), true)
	txn.writeBits(inumsToBnums(txn.freeInums), txn.Fs.Super.BitmapInodeStart(), false)
	txn.writeBits(txn.freeBnums, txn.Fs.Super.BitmapBlockStart(), false)
}

func inumsToBnums(nums []common.Inum) []common.Bnum {
	bnums := make([]common.Bnum, len(nums))
	for i, n := range nums {
		bnums[i] = common.Bnum(n)
	}
	return bnums
}

// writeBits flips the bit for each number in nums within the bitmap
// region starting at blkStart, reading the containing block, patching one
// byte, and writing it back through the journal — the same read-modify-
// write shape as original_source/fs.c's balloc/bfree bit twiddling.
func (txn *Txn) writeBits(nums []common.Bnum, blkStart common.Bnum, alloc bool) {
	for _, n := range nums {
		byteOff := uint64(n) / 8
		bit := byte(1 << (uint64(n) % 8))
		blkno := blkStart + common.Bnum(byteOff/common.BSIZE)
		blk := txn.Op.ReadBuf(blockAddr(blkno), common.NBITBLOCK)
		idx := byteOff % common.BSIZE
		patch := make([]byte, common.BSIZE)
		copy(patch, blk)
		if alloc {
			patch[idx] |= bit
		} else {
			patch[idx] &^= bit
		}
		txn.Op.OverWrite(blockAddr(blkno), common.NBITBLOCK, patch)
	}
}

// postCommit returns freed numbers to the in-memory allocators, now that
// the freed bits are durable.
func (txn *Txn) postCommit() {
	for _, n := range txn.freeInums {
		txn.Fs.Super.Ialloc.FreeNum(uint64(n))
	}
	for _, n := range txn.freeBnums {
		txn.Fs.Super.Balloc.FreeNum(uint64(n))
	}
}

// postAbort returns allocated-but-uncommitted numbers to the allocators.
func (txn *Txn) postAbort() {
	for _, n := range txn.allocInums {
		txn.Fs.Super.Ialloc.FreeNum(uint64(n))
	}
	for _, n := range txn.allocBnums {
		txn.Fs.Super.Balloc.FreeNum(uint64(n))
	}
}

// Commit writes the transaction's buffers and bitmap updates to stable
// storage and returns whether it succeeded.
func (txn *Txn) Commit() bool {
	txn.preCommit()
	ok := txn.Op.Commit(true)
	txn.postCommit()
	util.DPrintf(1, "Commit -> %v\n", ok)
	return ok
}

// Abort discards the transaction's writes and reclaims any numbers it
// allocated.
func (txn *Txn) Abort() {
	txn.postAbort()
	util.DPrintf(1, "Abort\n")
}
