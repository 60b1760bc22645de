package inode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tchajed/goose/machine/disk"

	"github.com/goose-fs/xv6fs/common"
	"github.com/goose-fs/xv6fs/fstxn"
	"github.com/goose-fs/xv6fs/mkfs"
)

func mkTestState(t *testing.T) *fstxn.FsState {
	d := disk.NewMemDisk(4096)
	fs, err := mkfs.Format(d, mkfs.Config{Size: 4096})
	require.NoError(t, err)
	return fstxn.MkFsState(fs, 50)
}

func TestAllocGivesFreeInodeInFreeState(t *testing.T) {
	state := mkTestState(t)
	txn := fstxn.Begin(state)
	ip := Alloc(txn, common.T_FILE)
	require.NotNil(t, ip)
	require.Equal(t, common.T_FILE, ip.Kind)
	require.Equal(t, uint64(0), ip.Size)
	Put(txn, ip)
	txn.Commit()
}

func TestWriteThenReadRoundtrips(t *testing.T) {
	state := mkTestState(t)
	txn := fstxn.Begin(state)
	ip := Alloc(txn, common.T_FILE)
	ip.Nlink = 1
	WriteInode(txn, ip)

	data := []byte("the quick brown fox")
	n, err := Writei(txn, ip, 0, data)
	require.NoError(t, err)
	require.Equal(t, uint64(len(data)), n)
	require.Equal(t, uint64(len(data)), ip.Size)

	got, err := Readi(txn, ip, 0, uint64(len(data)))
	require.NoError(t, err)
	require.Equal(t, data, got)

	ip.Nlink = 0
	Put(txn, ip)
	txn.Commit()
}

func TestWriteSpanningIndirectBlocks(t *testing.T) {
	state := mkTestState(t)
	txn := fstxn.Begin(state)
	ip := Alloc(txn, common.T_FILE)
	ip.Nlink = 1
	WriteInode(txn, ip)

	sz := common.BSIZE*(common.NDIRECT+5) + 17
	data := make([]byte, sz)
	for i := range data {
		data[i] = byte(i)
	}
	n, err := Writei(txn, ip, 0, data)
	require.NoError(t, err)
	require.Equal(t, uint64(sz), n)

	got, err := Readi(txn, ip, 0, uint64(sz))
	require.NoError(t, err)
	require.Equal(t, data, got)

	ip.Nlink = 0
	Put(txn, ip)
	txn.Commit()
}

func TestReadPastEndOfFileIsTruncated(t *testing.T) {
	state := mkTestState(t)
	txn := fstxn.Begin(state)
	ip := Alloc(txn, common.T_FILE)
	ip.Nlink = 1
	WriteInode(txn, ip)

	_, err := Writei(txn, ip, 0, []byte("abc"))
	require.NoError(t, err)

	got, err := Readi(txn, ip, 0, 100)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)

	ip.Nlink = 0
	Put(txn, ip)
	txn.Commit()
}

func TestWriteBeyondMaxFileSizeFails(t *testing.T) {
	state := mkTestState(t)
	txn := fstxn.Begin(state)
	ip := Alloc(txn, common.T_FILE)
	ip.Nlink = 1
	WriteInode(txn, ip)

	_, err := Writei(txn, ip, MaxFileSize(), []byte("x"))
	require.Equal(t, common.ErrTooLarge, err)

	ip.Nlink = 0
	Put(txn, ip)
	txn.Commit()
}

func TestPutWithOutstandingReferenceDoesNotFree(t *testing.T) {
	state := mkTestState(t)
	txn := fstxn.Begin(state)
	ip := Alloc(txn, common.T_FILE)
	ip.Nlink = 0
	WriteInode(txn, ip)

	// Dup and ip share the same underlying *Inode, so ip.Kind reflects
	// whatever the last Put did, without a fresh Get bumping the
	// reference count and masking the case under test.
	dup := Dup(txn, ip)

	// A reference (dup's) remains outstanding, so this Put must not
	// truncate or free the inode.
	Put(txn, ip)
	require.Equal(t, common.T_FILE, dup.Kind)

	// The last reference goes away here, which is when the free
	// actually happens.
	Put(txn, dup)
	require.Equal(t, common.T_FREE, dup.Kind)
	txn.Commit()
}

func TestItruncFreesAllBlocksAndResetsSize(t *testing.T) {
	state := mkTestState(t)
	txn := fstxn.Begin(state)
	ip := Alloc(txn, common.T_FILE)
	ip.Nlink = 1
	WriteInode(txn, ip)

	data := make([]byte, common.BSIZE*(common.NDIRECT+3))
	_, err := Writei(txn, ip, 0, data)
	require.NoError(t, err)

	Itrunc(txn, ip)
	require.Equal(t, uint64(0), ip.Size)
	for _, b := range ip.blks {
		require.Equal(t, common.NULLBNUM, b)
	}

	ip.Nlink = 0
	Put(txn, ip)
	txn.Commit()
}
