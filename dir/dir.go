// Package dir implements directory content as a sequence of fixed-size
// directory entries stored in an inode's data blocks: linear-scan lookup,
// first-free-slot insertion, and the empty-directory check unlink needs.
// Grounded on original_source/fs.c's dirlookup/dirlink/isdirempty, using
// the DIRENTSZ on-disk layout mkfs.go already writes.
package dir

import (
	"github.com/tchajed/marshal"

	"github.com/goose-fs/xv6fs/common"
	"github.com/goose-fs/xv6fs/fstxn"
	"github.com/goose-fs/xv6fs/inode"
)

type dirEnt struct {
	inum common.Inum
	name string
}

func decodeDirEnt(data []byte) dirEnt {
	dec := marshal.NewDec(data)
	inum := common.Inum(dec.GetInt())
	nameLen := dec.GetInt()
	nameBytes := dec.GetBytes(common.DIRSIZ)
	if nameLen > common.DIRSIZ {
		nameLen = common.DIRSIZ
	}
	return dirEnt{inum: inum, name: string(nameBytes[:nameLen])}
}

func encodeDirEnt(de dirEnt) []byte {
	enc := marshal.NewEnc(common.DIRENTSZ)
	enc.PutInt(uint64(de.inum))
	enc.PutInt(uint64(len(de.name)))
	nameBytes := make([]byte, common.DIRSIZ)
	copy(nameBytes, de.name)
	enc.PutBytes(nameBytes)
	return enc.Finish()
}

// IllegalName reports whether name is "." or "..", the two entries every
// directory carries implicitly and that callers may never link or unlink
// by hand.
func IllegalName(name string) bool {
	return name == "." || name == ".."
}

// Lookup scans dp's entries for name, returning its inode number and the
// byte offset of its directory entry, or (NULLINUM, 0) if absent.
// Grounded on original_source/fs.c's dirlookup.
func Lookup(txn *fstxn.Txn, dp *inode.Inode, name string) (common.Inum, uint64) {
	if dp.Kind != common.T_DIR {
		return common.NULLINUM, 0
	}
	for off := uint64(0); off < dp.Size; off += common.DIRENTSZ {
		data, err := inode.Readi(txn, dp, off, common.DIRENTSZ)
		if err != nil || uint64(len(data)) != common.DIRENTSZ {
			break
		}
		de := decodeDirEnt(data)
		if de.inum != common.NULLINUM && de.name == name {
			return de.inum, off
		}
	}
	return common.NULLINUM, 0
}

// Link adds a directory entry mapping name to inum, reusing the first
// free (zeroed) slot found by a linear scan and appending a new one only
// when none exists. Grounded on original_source/fs.c's dirlink; returns
// common.ErrExists if name is already present.
func Link(txn *fstxn.Txn, dp *inode.Inode, name string, inum common.Inum) error {
	if found, _ := Lookup(txn, dp, name); found != common.NULLINUM {
		return common.ErrExists
	}
	if len(name) > common.DIRSIZ {
		return common.ErrNameTooLong
	}

	off := uint64(0)
	for ; off < dp.Size; off += common.DIRENTSZ {
		data, err := inode.Readi(txn, dp, off, common.DIRENTSZ)
		if err != nil || uint64(len(data)) != common.DIRENTSZ {
			break
		}
		de := decodeDirEnt(data)
		if de.inum == common.NULLINUM {
			break
		}
	}

	de := dirEnt{inum: inum, name: name}
	_, err := inode.Writei(txn, dp, off, encodeDirEnt(de))
	return err
}

// Unlink zeroes the directory entry at off, freeing that slot for reuse
// by a future Link without shrinking the directory. Grounded on
// original_source/sysfile.c's sys_unlink, which writes a zeroed dirEnt
// rather than compacting the directory.
func Unlink(txn *fstxn.Txn, dp *inode.Inode, off uint64) error {
	de := dirEnt{inum: common.NULLINUM, name: ""}
	_, err := inode.Writei(txn, dp, off, encodeDirEnt(de))
	return err
}

// IsEmpty reports whether dp, a directory, holds only "." and "..".
// Grounded on original_source/fs.c's isdirempty.
func IsEmpty(txn *fstxn.Txn, dp *inode.Inode) bool {
	for off := uint64(2 * common.DIRENTSZ); off < dp.Size; off += common.DIRENTSZ {
		data, err := inode.Readi(txn, dp, off, common.DIRENTSZ)
		if err != nil || uint64(len(data)) != common.DIRENTSZ {
			break
		}
		de := decodeDirEnt(data)
		if de.inum != common.NULLINUM {
			return false
		}
	}
	return true
}

// Init writes "." (self) and ".." (parent) into a freshly allocated
// directory inode, matching original_source/sysfile.c's create() setup
// for a new directory. It does not bump parent's link count for the ".."
// entry; the caller does that, since it must happen in the same
// transaction as the parent's dirlink of the new name.
func Init(txn *fstxn.Txn, dp *inode.Inode, parent common.Inum) error {
	if err := Link(txn, dp, ".", dp.Inum); err != nil {
		return err
	}
	return Link(txn, dp, "..", parent)
}
