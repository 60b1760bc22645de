package dir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tchajed/goose/machine/disk"

	"github.com/goose-fs/xv6fs/common"
	"github.com/goose-fs/xv6fs/fstxn"
	"github.com/goose-fs/xv6fs/inode"
	"github.com/goose-fs/xv6fs/mkfs"
)

func mkTestState(t *testing.T) *fstxn.FsState {
	d := disk.NewMemDisk(4096)
	fs, err := mkfs.Format(d, mkfs.Config{Size: 4096})
	require.NoError(t, err)
	return fstxn.MkFsState(fs, 50)
}

func TestRootDirHasDotAndDotDot(t *testing.T) {
	state := mkTestState(t)
	txn := fstxn.Begin(state)
	root := inode.Get(txn, common.ROOTINUM)

	inum, _ := Lookup(txn, root, ".")
	require.Equal(t, common.ROOTINUM, inum)

	inum, _ = Lookup(txn, root, "..")
	require.Equal(t, common.ROOTINUM, inum)

	inode.Put(txn, root)
	txn.Commit()
}

func TestLinkThenLookup(t *testing.T) {
	state := mkTestState(t)
	txn := fstxn.Begin(state)
	root := inode.Get(txn, common.ROOTINUM)
	child := inode.Alloc(txn, common.T_FILE)
	require.NotNil(t, child)

	require.NoError(t, Link(txn, root, "child", child.Inum))
	inum, _ := Lookup(txn, root, "child")
	require.Equal(t, child.Inum, inum)

	inode.Put(txn, child)
	inode.Put(txn, root)
	txn.Commit()
}

func TestLinkDuplicateNameFails(t *testing.T) {
	state := mkTestState(t)
	txn := fstxn.Begin(state)
	root := inode.Get(txn, common.ROOTINUM)
	child := inode.Alloc(txn, common.T_FILE)

	require.NoError(t, Link(txn, root, "dup", child.Inum))
	require.Equal(t, common.ErrExists, Link(txn, root, "dup", child.Inum))

	inode.Put(txn, child)
	inode.Put(txn, root)
	txn.Commit()
}

func TestUnlinkFreesSlotForReuse(t *testing.T) {
	state := mkTestState(t)
	txn := fstxn.Begin(state)
	root := inode.Get(txn, common.ROOTINUM)
	a := inode.Alloc(txn, common.T_FILE)
	require.NoError(t, Link(txn, root, "a", a.Inum))
	_, off := Lookup(txn, root, "a")
	require.NoError(t, Unlink(txn, root, off))

	b := inode.Alloc(txn, common.T_FILE)
	require.NoError(t, Link(txn, root, "b", b.Inum))
	inum, newOff := Lookup(txn, root, "b")
	require.Equal(t, b.Inum, inum)
	require.Equal(t, off, newOff)

	inode.Put(txn, a)
	inode.Put(txn, b)
	inode.Put(txn, root)
	txn.Commit()
}

func TestIsEmptyIgnoresDotEntries(t *testing.T) {
	state := mkTestState(t)
	txn := fstxn.Begin(state)
	root := inode.Get(txn, common.ROOTINUM)
	dp := inode.Alloc(txn, common.T_DIR)
	require.NoError(t, Init(txn, dp, root.Inum))
	require.True(t, IsEmpty(txn, dp))

	child := inode.Alloc(txn, common.T_FILE)
	require.NoError(t, Link(txn, dp, "f", child.Inum))
	require.False(t, IsEmpty(txn, dp))

	inode.Put(txn, child)
	inode.Put(txn, dp)
	inode.Put(txn, root)
	txn.Commit()
}
