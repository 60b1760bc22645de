// Package inode implements the in-memory inode representation and the
// file-content operations built on it: block mapping (direct plus one
// level of indirection), reading, writing, truncation, and allocation.
// Grounded on inode/inode.go, reduced from its double-indirect
// (NINDLEVEL=2) scheme to the single level of indirection this
// filesystem's on-disk layout specifies, and on original_source/fs.c's
// bmap/readi/writei/itrunc, which supply the exact per-byte algorithms.
package inode

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-journal/util"

	"github.com/goose-fs/xv6fs/common"
	"github.com/goose-fs/xv6fs/devsw"
	"github.com/goose-fs/xv6fs/fstxn"
	"github.com/goose-fs/xv6fs/icache"
)

// Inode is the in-memory copy of a dinode plus the bookkeeping fields
// (Slot, valid) original_source/fs.c keeps outside the on-disk struct.
type Inode struct {
	Inum common.Inum
	slot *icache.Slot

	valid bool

	// Dev is always 0: this module mounts a single device, so the field
	// exists only so fsapi.Link can reproduce sysfile.c's dev-equality
	// check.
	Dev   uint32
	Kind  common.Itype
	Major uint16
	Minor uint16
	Nlink uint32
	Size  uint64
	blks  []common.Bnum // NDIRECT direct pointers + one indirect pointer
}

func (ip *Inode) String() string {
	return fmt.Sprintf("Inode(inum=%d kind=%d nlink=%d size=%d)", ip.Inum, ip.Kind, ip.Nlink, ip.Size)
}

// MaxFileSize is the largest offset+length writei will accept.
func MaxFileSize() uint64 {
	return common.MAXFILE * common.BSIZE
}

func initInode(inum common.Inum, kind common.Itype) *Inode {
	return &Inode{
		Inum:  inum,
		valid: true,
		Kind:  kind,
		Nlink: 0,
		Size:  0,
		blks:  make([]common.Bnum, common.NDIRECT+1),
	}
}

// Encode packs ip's on-disk fields into an INODESZ-byte record, matching
// original_source/fs.c's iupdate field list (type, major, minor, nlink,
// size, addrs).
func (ip *Inode) Encode() []byte {
	enc := marshal.NewEnc(common.INODESZ)
	enc.PutInt32(uint32(ip.Kind))
	enc.PutInt32((uint32(ip.Major) << 16) | uint32(ip.Minor))
	enc.PutInt32(ip.Nlink)
	enc.PutInt(ip.Size)
	for _, b := range ip.blks {
		enc.PutInt(uint64(b))
	}
	return enc.Finish()
}

// Decode reads dinode data into a new Inode, mirroring ilock's on-disk
// read path in original_source/fs.c.
func Decode(data []byte, inum common.Inum) *Inode {
	dec := marshal.NewDec(data)
	ip := &Inode{Inum: inum, valid: true}
	ip.Kind = common.Itype(dec.GetInt32())
	majmin := dec.GetInt32()
	ip.Major = uint16(majmin >> 16)
	ip.Minor = uint16(majmin & 0xffff)
	ip.Nlink = dec.GetInt32()
	ip.Size = dec.GetInt()
	ip.blks = make([]common.Bnum, common.NDIRECT+1)
	for i := range ip.blks {
		ip.blks[i] = common.Bnum(dec.GetInt())
	}
	if ip.Kind == common.T_FREE {
		return ip
	}
	return ip
}

// Get returns a referenced handle on inum, decoding its dinode off disk
// the first time it is referenced since its slot was last recycled.
// The returned Inode is unlocked: it is safe to inspect the fields Get
// itself just populated, but a caller that goes on to mutate them, or
// that needs a read-modify-write sequence to be atomic with respect to
// another transaction referencing the same inum, must bracket that
// sequence with Lock/Unlock. Grounded on original_source/fs.c's iget,
// which likewise returns a referenced-but-unlocked inode.
func Get(txn *fstxn.Txn, inum common.Inum) *Inode {
	slot := txn.GetInode(inum)
	slot.Lock()
	if slot.Obj == nil {
		util.DPrintf(1, "Get # %v: read inode from disk\n", inum)
		data := txn.Op.ReadBuf(txn.InodeAddr(inum), common.INODESZ*8)
		ip := Decode(data, inum)
		ip.slot = slot
		slot.Obj = ip
	}
	ip := slot.Obj.(*Inode)
	slot.Unlock()
	return ip
}

// Lock acquires ip's content lock, so that the field accesses between
// Lock and the matching Unlock are atomic with respect to any other
// transaction referencing the same inum. Grounded on
// original_source/fs.c's ilock.
func Lock(txn *fstxn.Txn, ip *Inode) {
	txn.LockInode(ip.Inum)
}

// Unlock releases the lock Lock acquired. Grounded on
// original_source/fs.c's iunlock.
func Unlock(txn *fstxn.Txn, ip *Inode) {
	txn.UnlockInode(ip.Inum)
}

// Dup adds a second reference to ip without a fresh lookup, the way
// original_source/fs.c's idup extends the lifetime of an inode a caller
// already holds a pointer to. Grounded on icache.Cache.Dup.
func Dup(txn *fstxn.Txn, ip *Inode) *Inode {
	txn.DupInode(ip.slot)
	return ip
}

// Put releases a reference to ip, matching original_source/fs.c's iput:
// ip is always locked first; while locked, this checks whether ip's
// link count is zero and this is the last outstanding reference, and if
// so truncates and frees it; the lock is released before the reference
// count is finally decremented, so that no other transaction can ever
// observe ip mid-truncate through a reference it still holds.
func Put(txn *fstxn.Txn, ip *Inode) {
	Lock(txn, ip)
	freeing := ip.Nlink == 0 && txn.InodeRefCount(ip.slot) == 1
	if freeing {
		util.DPrintf(1, "Put # %v: nlink 0, ref 1, truncate and free\n", ip.Inum)
		Itrunc(txn, ip)
		ip.Kind = common.T_FREE
		WriteInode(txn, ip)
	}
	Unlock(txn, ip)
	if freeing {
		txn.FreeInum(ip.Inum)
		ip.valid = false
	}
	txn.ReleaseInode(ip.slot)
}

// WriteInode writes ip's in-memory fields back to disk, write-through, as
// required after every field mutation since this cache keeps no dirty
// bit — grounded on iupdate.
func WriteInode(txn *fstxn.Txn, ip *Inode) {
	util.DPrintf(1, "WriteInode %v\n", ip)
	txn.Op.OverWrite(txn.InodeAddr(ip.Inum), common.INODESZ*8, ip.Encode())
}

// Alloc takes a free inode number from the in-memory inode bitmap
// allocator, checks that its dinode is free (Kind == T_FREE, panicking
// otherwise), and initializes it with kind. It does not scan the inode
// region on disk for a free dinode. Returns nil if the filesystem has no
// free inode number left.
func Alloc(txn *fstxn.Txn, kind common.Itype) *Inode {
	inum := txn.AllocInum()
	if inum == common.NULLINUM {
		return nil
	}
	util.DPrintf(1, "Alloc -> # %v\n", inum)
	ip := Get(txn, inum)
	if ip.Kind != common.T_FREE {
		common.Fatalf("inode: AllocInode: inum %d not free", inum)
	}
	slot := ip.slot
	*ip = *initInode(inum, kind)
	ip.slot = slot
	slot.Obj = ip
	WriteInode(txn, ip)
	return ip
}

// bmap returns the disk block address of the bn'th block of ip's
// content, allocating it (and, if needed, the indirect block) on demand.
// Grounded verbatim on original_source/fs.c's bmap, minus the second
// level of indirection.
func bmap(txn *fstxn.Txn, ip *Inode, bn uint64) (common.Bnum, error) {
	if bn < common.NDIRECT {
		addr := ip.blks[bn]
		if addr == common.NULLBNUM {
			addr = txn.AllocBlock()
			if addr == common.NULLBNUM {
				return common.NULLBNUM, common.ErrNoSpace
			}
			ip.blks[bn] = addr
		}
		return addr, nil
	}
	bn -= common.NDIRECT
	if bn >= common.NINDIRECT {
		common.Fatalf("inode: bmap: block offset %d out of range", bn+common.NDIRECT)
	}

	indAddr := ip.blks[common.NDIRECT]
	if indAddr == common.NULLBNUM {
		indAddr = txn.AllocBlock()
		if indAddr == common.NULLBNUM {
			return common.NULLBNUM, common.ErrNoSpace
		}
		ip.blks[common.NDIRECT] = indAddr
	}
	ind := readIndirect(txn, indAddr)
	addr := ind[bn]
	if addr == common.NULLBNUM {
		addr = txn.AllocBlock()
		if addr == common.NULLBNUM {
			return common.NULLBNUM, common.ErrNoSpace
		}
		ind[bn] = addr
		writeIndirect(txn, indAddr, ind)
	}
	return addr, nil
}

func readIndirect(txn *fstxn.Txn, blkno common.Bnum) []common.Bnum {
	data := txn.ReadBlock(blkno)
	dec := marshal.NewDec(data)
	nums := make([]common.Bnum, common.NINDIRECT)
	for i := range nums {
		nums[i] = common.Bnum(dec.GetInt())
	}
	return nums
}

func writeIndirect(txn *fstxn.Txn, blkno common.Bnum, nums []common.Bnum) {
	enc := marshal.NewEnc(common.BSIZE)
	for _, n := range nums {
		enc.PutInt(uint64(n))
	}
	txn.WriteBlock(blkno, enc.Finish())
}

// Itrunc discards ip's content: every direct block, every block listed
// in the indirect block, and the indirect block itself. Synchronous and
// single-transaction, unlike shrinker/shrinker.go's async goroutine —
// justified because this filesystem excludes files large enough that a
// truncate could ever overflow one transaction's log capacity.
func Itrunc(txn *fstxn.Txn, ip *Inode) {
	util.DPrintf(5, "Itrunc %v\n", ip)
	for i := uint64(0); i < common.NDIRECT; i++ {
		if ip.blks[i] != common.NULLBNUM {
			txn.FreeBlock(ip.blks[i])
			ip.blks[i] = common.NULLBNUM
		}
	}
	if ip.blks[common.NDIRECT] != common.NULLBNUM {
		ind := readIndirect(txn, ip.blks[common.NDIRECT])
		for _, b := range ind {
			if b != common.NULLBNUM {
				txn.FreeBlock(b)
			}
		}
		txn.FreeBlock(ip.blks[common.NDIRECT])
		ip.blks[common.NDIRECT] = common.NULLBNUM
	}
	ip.Size = 0
	WriteInode(txn, ip)
}

// Readi copies min(n, ip.Size-off) bytes starting at off into a new
// slice. Grounded on original_source/fs.c's readi, including its
// overflow-safe bounds check.
func Readi(txn *fstxn.Txn, ip *Inode, off, n uint64) ([]byte, error) {
	if ip.Kind == common.T_DEV {
		dev, err := devsw.Get(ip.Major)
		if err != nil {
			return nil, err
		}
		return dev.Read(ip.Minor, off, n)
	}
	if off > ip.Size || off+n < off {
		return nil, common.ErrInval
	}
	if off+n > ip.Size {
		n = ip.Size - off
	}
	dst := make([]byte, 0, n)
	for tot := uint64(0); tot < n; {
		bn := (off + tot) / common.BSIZE
		blkOff := (off + tot) % common.BSIZE
		m := n - tot
		if rem := common.BSIZE - blkOff; m > rem {
			m = rem
		}
		addr, err := bmap(txn, ip, bn)
		if err != nil {
			return nil, err
		}
		var chunk []byte
		if addr == common.NULLBNUM {
			chunk = make([]byte, m)
		} else {
			blk := txn.ReadBlock(addr)
			chunk = blk[blkOff : blkOff+m]
		}
		dst = append(dst, chunk...)
		tot += m
	}
	return dst, nil
}

// Writei writes data at offset off, growing ip.Size and allocating
// blocks via bmap as needed. Rejects writes that would push the file
// past MaxFileSize, matching original_source/fs.c's writei bound.
func Writei(txn *fstxn.Txn, ip *Inode, off uint64, data []byte) (uint64, error) {
	if ip.Kind == common.T_DEV {
		dev, err := devsw.Get(ip.Major)
		if err != nil {
			return 0, err
		}
		return dev.Write(ip.Minor, off, data)
	}
	n := uint64(len(data))
	if off > ip.Size || off+n < off {
		return 0, common.ErrInval
	}
	if off+n > MaxFileSize() {
		return 0, common.ErrTooLarge
	}

	for tot := uint64(0); tot < n; {
		bn := (off + tot) / common.BSIZE
		blkOff := (off + tot) % common.BSIZE
		m := n - tot
		if rem := common.BSIZE - blkOff; m > rem {
			m = rem
		}
		addr, err := bmap(txn, ip, bn)
		if err != nil {
			return tot, err
		}
		if blkOff == 0 && m == common.BSIZE {
			txn.WriteBlock(addr, data[tot:tot+m])
		} else {
			blk := txn.ReadBlock(addr)
			patch := make([]byte, common.BSIZE)
			copy(patch, blk)
			copy(patch[blkOff:blkOff+m], data[tot:tot+m])
			txn.WriteBlock(addr, patch)
		}
		tot += m
	}

	if n > 0 && off+n > ip.Size {
		ip.Size = off + n
		WriteInode(txn, ip)
	}
	return n, nil
}
