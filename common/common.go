// Package common holds the types and constants shared by every layer of
// the filesystem: block/inode numbers, on-disk geometry constants, and the
// error taxonomy of spec.md's error handling design.
package common

import (
	gcommon "github.com/mit-pdos/go-journal/common"
)

// Bnum and Inum are the block- and inode-number types used throughout this
// module. They are the same types the journal layer indexes buffers by, so
// callers never have to convert between two competing notions of address.
type Bnum = gcommon.Bnum
type Inum = gcommon.Inum

const NULLBNUM Bnum = 0

// ROOTINUM is the inode number of the filesystem root, fixed by
// convention and written by mkfs.
const ROOTINUM Inum = 1

// NULLINUM marks an empty directory entry or an unallocated dinode slot.
const NULLINUM Inum = 0

// BSIZE is the disk block size in bytes.
const BSIZE = 512

// NDIRECT is the number of direct block pointers in a dinode.
const NDIRECT = 10

// NINDIRECT is the number of block pointers held by one indirect block.
// Block numbers are packed as 8-byte values (marshal.Enc.PutInt), unlike
// original xv6's 4-byte uint on-disk addresses, so one block holds
// BSIZE/8 pointers rather than BSIZE/4.
const NINDIRECT = BSIZE / 8

// MAXFILE is the largest number of data blocks a file may hold: NDIRECT
// direct blocks plus one level of indirection.
const MAXFILE = NDIRECT + NINDIRECT

// DIRSIZ is the maximum length of one path component / directory entry name.
const DIRSIZ = 14

// DIRENTSZ is the on-disk size of one directory entry: an 8-byte inode
// number, an 8-byte name length, and a DIRSIZ-byte name field.
const DIRENTSZ = 8 + 8 + DIRSIZ

// INODESZ is the packed on-disk size of one dinode: a 4-byte type, a
// 4-byte packed major/minor, a 4-byte link count, an 8-byte size, and
// NDIRECT+1 8-byte block pointers.
const INODESZ = 4 + 4 + 4 + 8 + (NDIRECT+1)*8

// NINODEBITMAP is the number of inode-bitmap blocks the superblock reserves.
const NINODEBITMAP = 1

// NBITBLOCK is the number of bits (blocks, or dinodes) one bitmap block or
// one bit-indexed region can describe.
const NBITBLOCK = BSIZE * 8

// INODEBLK is the number of packed dinodes that fit in one disk block.
const INODEBLK = BSIZE / INODESZ

// MAXOPBLOCKS is the largest number of distinct blocks one transaction
// may enlist: the inode block, the indirect block, bitmap blocks for
// any freshly allocated data blocks, and the data blocks themselves.
// A fixed compile-time budget, matching original_source's own
// definition rather than a value read off the journal at runtime.
const MAXOPBLOCKS = 10

// MaxWriteChunk is the largest write one transaction may enlist,
// accounting for the inode block, the indirect block, and 2 blocks of
// slop for unaligned writes. A single Writei call larger than this
// must be split into multiple chunks, each committed in its own
// transaction, or it could overflow the journal's per-transaction
// capacity. Grounded on original_source/file.c's filewrite.
const MaxWriteChunk = ((MAXOPBLOCKS - 1 - 1 - 2) / 2) * BSIZE

// Itype is the on-disk file type of an inode.
type Itype uint16

const (
	T_FREE Itype = 0
	T_DIR  Itype = 1
	T_FILE Itype = 2
	T_DEV  Itype = 3
)
