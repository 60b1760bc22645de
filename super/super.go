// Package super lays out and describes the on-disk geometry of a mounted
// filesystem: the superblock fields and the block/inode bitmap allocators
// built on top of them.
package super

import (
	"github.com/tchajed/goose/machine/disk"
	"github.com/tchajed/marshal"

	gjalloc "github.com/mit-pdos/go-journal/alloc"

	"github.com/goose-fs/xv6fs/common"
)

// FsSuper is the geometry of a mounted filesystem, read once from block 0
// at mount time (or written there by mkfs.Format) and never mutated
// afterwards; every other block address is derived arithmetically from it,
// the way original_source/fs.c derives BBLOCK/IBLOCK from struct
// superblock.
type FsSuper struct {
	Disk disk.Disk

	Size      uint64 // total blocks in the filesystem
	NLog      uint64 // blocks reserved for the journal, including the header
	NBlockmap uint64 // blocks in the free-block bitmap
	NInodeBlk uint64 // blocks holding packed dinodes

	Balloc *gjalloc.Alloc
	Ialloc *gjalloc.Alloc
}

// encoded layout of the on-disk superblock: four uint64 fields.
const encSize = 4 * 8

// Encode packs the superblock's geometry fields for block 0.
func (fs *FsSuper) Encode() []byte {
	enc := marshal.NewEnc(encSize)
	enc.PutInt(fs.Size)
	enc.PutInt(fs.NLog)
	enc.PutInt(fs.NBlockmap)
	enc.PutInt(fs.NInodeBlk)
	return enc.Finish()
}

// DecodeGeometry reads the four geometry fields out of an on-disk
// superblock block, without touching disk or allocator state.
func DecodeGeometry(blk []byte) (size, nlog, nblockmap, ninodeblk uint64) {
	dec := marshal.NewDec(blk)
	size = dec.GetInt()
	nlog = dec.GetInt()
	nblockmap = dec.GetInt()
	ninodeblk = dec.GetInt()
	return
}

// Load mounts an already-formatted disk: it reads and decodes block 0's
// superblock, then reconstructs the block and inode allocators from the
// on-disk bitmap regions the geometry describes. Grounded on
// original_source/fs.c's readsb, which likewise reads the superblock
// straight off the raw device before any other filesystem state exists
// to read it through — this runs before gjtxn.Init, so there is no
// journal Op yet to route the read through.
func Load(d disk.Disk) (*FsSuper, error) {
	size, nlog, nblockmap, ninodeblk := DecodeGeometry(d.Read(0))
	fs := &FsSuper{
		Disk:      d,
		Size:      size,
		NLog:      nlog,
		NBlockmap: nblockmap,
		NInodeBlk: ninodeblk,
	}
	fs.Balloc = gjalloc.MkAlloc(fs.readBitmap(fs.BitmapBlockStart(), fs.NBlockmap))
	fs.Ialloc = gjalloc.MkAlloc(fs.readBitmap(fs.BitmapInodeStart(), common.NINODEBITMAP))
	return fs, nil
}

// readBitmap concatenates nblocks worth of raw disk blocks starting at
// start into one contiguous bitmap byte slice, the layout
// gjalloc.MkAlloc expects.
func (fs *FsSuper) readBitmap(start common.Bnum, nblocks uint64) []byte {
	bitmap := make([]byte, nblocks*disk.BlockSize)
	for i := uint64(0); i < nblocks; i++ {
		copy(bitmap[i*disk.BlockSize:], fs.Disk.Read(uint64(start)+i))
	}
	return bitmap
}

// NBlockBitmap returns how many blocks worth of bits are needed to
// describe sz blocks of free-space state, one bit per block.
func NBlockBitmap(sz uint64) uint64 {
	return sz/common.NBITBLOCK + 1
}

// NInodeBlk returns how many blocks hold the fixed number of packed
// dinodes this module allocates room for.
func NInodeBlk() uint64 {
	return (common.NINODEBITMAP * common.NBITBLOCK * common.INODESZ) / disk.BlockSize
}

// LogStart is the first block of the journal region, immediately after
// the superblock.
func (fs *FsSuper) LogStart() common.Bnum {
	return common.Bnum(1)
}

func (fs *FsSuper) BitmapBlockStart() common.Bnum {
	return common.Bnum(1 + fs.NLog)
}

func (fs *FsSuper) BitmapInodeStart() common.Bnum {
	return fs.BitmapBlockStart() + common.Bnum(fs.NBlockmap)
}

func (fs *FsSuper) InodeStart() common.Bnum {
	return fs.BitmapInodeStart() + common.Bnum(common.NINODEBITMAP)
}

func (fs *FsSuper) DataStart() common.Bnum {
	return fs.InodeStart() + common.Bnum(fs.NInodeBlk)
}

func (fs *FsSuper) MaxBnum() common.Bnum {
	return common.Bnum(fs.Size)
}

// NInode is the number of dinode slots the on-disk inode region holds.
func (fs *FsSuper) NInode() common.Inum {
	return common.Inum(fs.NInodeBlk * common.INODEBLK)
}

// Inum2Addr locates the dinode for inum: which block it lives in, and the
// bit offset of its packed INODESZ-byte record within that block.
func (fs *FsSuper) Inum2Addr(inum common.Inum) (blkno common.Bnum, bitOff uint64) {
	blkno = fs.InodeStart() + common.Bnum(uint64(inum)/common.INODEBLK)
	bitOff = (uint64(inum) % common.INODEBLK) * common.INODESZ * 8
	return
}

// AssertValidBlock panics if blkno falls outside the data region — an
// invariant violation, since only bmap/ialloc are supposed to hand out
// data-block numbers and they only hand out numbers from Balloc.
func (fs *FsSuper) AssertValidBlock(blkno common.Bnum) {
	if blkno != 0 && (blkno < fs.DataStart() || blkno >= fs.MaxBnum()) {
		common.Fatalf("super: invalid block number %d", blkno)
	}
}
