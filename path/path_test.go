package path

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tchajed/goose/machine/disk"

	"github.com/goose-fs/xv6fs/common"
	"github.com/goose-fs/xv6fs/dir"
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

func TestSkipElem(t *testing.T) {
	cases := []struct {
		path, elem, rest string
		ok               bool
	}{
		{"/a/b/c", "a", "b/c", true},
		{"a/b/c", "a", "b/c", true},
		{"a", "a", "", true},
		{"/", "", "", false},
		{"", "", "", false},
		{"//a//b", "a", "b", true},
		// A component longer than DIRSIZ is truncated to its first DIRSIZ
		// bytes, matching original_source/fs.c's skipelem.
		{"/abcdefghijklmnop/x", "abcdefghijklmn", "x", true},
	}
	for _, c := range cases {
		elem, rest, ok := SkipElem(c.path)
		require.Equal(t, c.ok, ok, c.path)
		if ok {
			require.Equal(t, c.elem, elem, c.path)
			require.Equal(t, c.rest, rest, c.path)
		}
	}
}

func TestNameiResolvesNestedPath(t *testing.T) {
	state := mkTestState(t)
	txn := fstxn.Begin(state)
	root := inode.Get(txn, common.ROOTINUM)
	d1 := inode.Alloc(txn, common.T_DIR)
	d1.Nlink = 1
	inode.WriteInode(txn, d1)
	require.NoError(t, dir.Init(txn, d1, root.Inum))
	require.NoError(t, dir.Link(txn, root, "d1", d1.Inum))

	f := inode.Alloc(txn, common.T_FILE)
	f.Nlink = 1
	inode.WriteInode(txn, f)
	require.NoError(t, dir.Link(txn, d1, "f", f.Inum))

	inode.Put(txn, f)
	inode.Put(txn, d1)
	inode.Put(txn, root)
	txn.Commit()

	txn2 := fstxn.Begin(state)
	ip, err := Namei(txn2, nil, "/d1/f")
	require.NoError(t, err)
	require.Equal(t, f.Inum, ip.Inum)
	inode.Put(txn2, ip)
	txn2.Commit()
}

func TestNameiMissingComponentFails(t *testing.T) {
	state := mkTestState(t)
	txn := fstxn.Begin(state)
	_, err := Namei(txn, nil, "/nope")
	require.Equal(t, common.ErrNotFound, err)
	txn.Abort()
}

func TestNameiResolvesRelativeToCwd(t *testing.T) {
	state := mkTestState(t)
	txn := fstxn.Begin(state)
	root := inode.Get(txn, common.ROOTINUM)
	d1 := inode.Alloc(txn, common.T_DIR)
	require.NoError(t, dir.Init(txn, d1, root.Inum))
	require.NoError(t, dir.Link(txn, root, "d1", d1.Inum))

	f := inode.Alloc(txn, common.T_FILE)
	require.NoError(t, dir.Link(txn, d1, "f", f.Inum))

	inode.Put(txn, f)
	inode.Put(txn, root)
	txn.Commit()

	// d1 stays referenced across the transaction boundary, standing in
	// for a caller's held working-directory inode.
	txn2 := fstxn.Begin(state)
	ip, err := Namei(txn2, d1, "f")
	require.NoError(t, err)
	require.Equal(t, f.Inum, ip.Inum)
	inode.Put(txn2, ip)
	inode.Put(txn2, d1)
	txn2.Commit()
}

func TestNameiRelativeWithNilCwdFails(t *testing.T) {
	state := mkTestState(t)
	txn := fstxn.Begin(state)
	_, err := Namei(txn, nil, "f")
	require.Equal(t, common.ErrInval, err)
	txn.Abort()
}

func TestNameiParentStopsOneLevelEarly(t *testing.T) {
	state := mkTestState(t)
	txn := fstxn.Begin(state)
	root := inode.Get(txn, common.ROOTINUM)
	d1 := inode.Alloc(txn, common.T_DIR)
	d1.Nlink = 1
	inode.WriteInode(txn, d1)
	require.NoError(t, dir.Init(txn, d1, root.Inum))
	require.NoError(t, dir.Link(txn, root, "d1", d1.Inum))
	inode.Put(txn, d1)
	inode.Put(txn, root)
	txn.Commit()

	txn2 := fstxn.Begin(state)
	dp, name, err := NameiParent(txn2, nil, "/d1/newfile")
	require.NoError(t, err)
	require.Equal(t, "newfile", name)
	require.Equal(t, d1.Inum, dp.Inum)
	inode.Put(txn2, dp)
	txn2.Commit()
}
