// Package mkfs formats a fresh disk with the on-disk layout described by
// package super: superblock, journal region, free-block and free-inode
// bitmaps, the inode region, and a root directory.
package mkfs

import (
	"github.com/tchajed/goose/machine/disk"
	"github.com/tchajed/marshal"

	gjalloc "github.com/mit-pdos/go-journal/alloc"

	"github.com/goose-fs/xv6fs/common"
	"github.com/goose-fs/xv6fs/super"
)

// Config describes the geometry of a filesystem to be created.
type Config struct {
	// Size is the total number of BSIZE blocks on the disk.
	Size uint64
	// NLog is the number of blocks reserved for the journal.
	NLog uint64
}

const defaultNLog = 32

// Format lays out a brand-new filesystem on d and returns the mounted
// superblock, ready for fstxn.MkFsState. Grounded on fs.go's initFs:
// write the null inode at inum 0, allocate and initialize the root
// directory at common.ROOTINUM, and mark every structural block and both
// inodes allocated in the bitmaps before the allocators ever start
// handing out numbers.
func Format(d disk.Disk, cfg Config) (*super.FsSuper, error) {
	nlog := cfg.NLog
	if nlog == 0 {
		nlog = defaultNLog
	}

	fs := &super.FsSuper{
		Disk:      d,
		Size:      cfg.Size,
		NLog:      nlog,
		NBlockmap: super.NBlockBitmap(cfg.Size),
		NInodeBlk: super.NInodeBlk(),
	}

	zero := make(disk.Block, disk.BlockSize)
	for b := uint64(0); b < cfg.Size; b++ {
		d.Write(b, zero)
	}

	blockBitmap := make([]byte, fs.NBlockmap*disk.BlockSize)
	inodeBitmap := make([]byte, common.NINODEBITMAP*disk.BlockSize)

	// Every block up through DataStart (superblock, journal, both bitmap
	// regions, the inode region) is permanently reserved: mark those bits
	// allocated before the allocator ever runs, exactly as fs.go's
	// markAlloc(n, m) reserves [0, n) directly in the bitmap bytes.
	for b := common.Bnum(0); b < fs.DataStart(); b++ {
		setBit(blockBitmap, uint64(b))
	}
	// NBlockBitmap rounds up to a whole number of bitmap blocks, so the
	// bitmap's bit range can run past cfg.Size; reserve that tail too, or
	// the allocator could hand out a block number past the real disk.
	for b := cfg.Size; b < fs.NBlockmap*common.NBITBLOCK; b++ {
		setBit(blockBitmap, b)
	}

	// inum 0 is the permanently-free null inode; inum ROOTINUM is the
	// root directory. Both are marked allocated so ialloc never reissues
	// them.
	setBit(inodeBitmap, 0)
	setBit(inodeBitmap, uint64(common.ROOTINUM))

	// INODESZ does not evenly divide BSIZE, so the inode bitmap's bit
	// range (NINODEBITMAP*NBITBLOCK bits) is wider than the inode region
	// actually has room for (fs.NInode() dinodes). Reserve the unbacked
	// tail so the allocator can never hand out an inode number with no
	// physical dinode behind it.
	for n := uint64(fs.NInode()); n < common.NINODEBITMAP*common.NBITBLOCK; n++ {
		setBit(inodeBitmap, n)
	}

	fs.Balloc = gjalloc.MkAlloc(blockBitmap)
	fs.Ialloc = gjalloc.MkAlloc(inodeBitmap)

	// Allocate the root directory's data block before either bitmap is
	// written to disk, and mark it in the same in-memory blockBitmap
	// bytes: writing the bitmap region back afterwards without that bit
	// set would let a later remount, which rebuilds its allocator purely
	// from the on-disk bitmap, believe the block was still free.
	rootBlk := common.Bnum(fs.Balloc.AllocNum())
	if rootBlk == common.NULLBNUM {
		common.Fatalf("mkfs: no free block for root directory")
	}
	setBit(blockBitmap, uint64(rootBlk))

	writeDinode(fs, 0, common.T_FREE, 0, nil)
	writeDinode(fs, common.ROOTINUM, common.T_DIR, 1, nil)

	sbBlk := make(disk.Block, disk.BlockSize)
	copy(sbBlk, fs.Encode())
	d.Write(0, sbBlk)
	writeBitmapRegion(fs, fs.BitmapBlockStart(), blockBitmap)
	writeBitmapRegion(fs, fs.BitmapInodeStart(), inodeBitmap)

	d.Barrier()

	writeRootDir(fs, rootBlk)
	return fs, nil
}

func setBit(bitmap []byte, n uint64) {
	bitmap[n/8] |= 1 << (n % 8)
}

func writeBitmapRegion(fs *super.FsSuper, start common.Bnum, bitmap []byte) {
	for i := uint64(0); i*disk.BlockSize < uint64(len(bitmap)); i++ {
		blk := make(disk.Block, disk.BlockSize)
		copy(blk, bitmap[i*disk.BlockSize:])
		fs.Disk.Write(uint64(start)+i, blk)
	}
}

// writeDinode packs a dinode using exactly the field layout
// inode.Encode/Decode expect: type, packed major/minor, link count,
// size, then the direct-plus-indirect block pointers.
func writeDinode(fs *super.FsSuper, inum common.Inum, kind common.Itype, nlink uint32, blks []common.Bnum) {
	writeDinodeWithSize(fs, inum, kind, nlink, 0, blks)
}

// writeRootDir writes "." and ".." into the root directory's data block
// blkno, matching fs.go's mkRootDir. blkno must already be marked
// allocated in the on-disk block bitmap by the caller: this function
// only ever writes the data block and the dinode pointing at it, never
// the bitmap, so there is exactly one place in Format that decides
// whether a block is free.
func writeRootDir(fs *super.FsSuper, blkno common.Bnum) {
	blk := make(disk.Block, disk.BlockSize)
	putDirent(blk, 0, common.ROOTINUM, ".")
	putDirent(blk, common.DIRENTSZ, common.ROOTINUM, "..")
	fs.Disk.Write(uint64(blkno), blk)

	root := make([]common.Bnum, common.NDIRECT+1)
	root[0] = blkno
	writeDinodeWithSize(fs, common.ROOTINUM, common.T_DIR, 1, 2*common.DIRENTSZ, root)
	fs.Disk.Barrier()
}

func writeDinodeWithSize(fs *super.FsSuper, inum common.Inum, kind common.Itype, nlink uint32, size uint64, blks []common.Bnum) {
	if blks == nil {
		blks = make([]common.Bnum, common.NDIRECT+1)
	}
	enc := marshal.NewEnc(common.INODESZ)
	enc.PutInt32(uint32(kind))
	enc.PutInt32(0) // major/minor, unused for T_DIR/T_FREE
	enc.PutInt32(nlink)
	enc.PutInt(size)
	for _, b := range blks {
		enc.PutInt(uint64(b))
	}
	data := enc.Finish()

	blkno, bitOff := fs.Inum2Addr(inum)
	blk := make(disk.Block, disk.BlockSize)
	copy(blk, fs.Disk.Read(uint64(blkno)))
	byteOff := bitOff / 8
	copy(blk[byteOff:byteOff+common.INODESZ], data)
	fs.Disk.Write(uint64(blkno), blk)
}

func putDirent(blk disk.Block, off uint64, inum common.Inum, name string) {
	enc := marshal.NewEnc(common.DIRENTSZ)
	enc.PutInt(uint64(inum))
	enc.PutInt(uint64(len(name)))
	nameBytes := make([]byte, common.DIRSIZ)
	copy(nameBytes, name)
	enc.PutBytes(nameBytes)
	copy(blk[off:], enc.Finish())
}
