// Package fsapi implements the top-level filesystem operations exposed
// to callers: create, link, unlink, mkdir, and open-file read/write/
// close. Grounded on original_source/sysfile.c's sys_open/sys_mkdir/
// sys_mknod/sys_link/sys_unlink, adapted from syscall-numbered arguments
// to a direct Go call surface, and on fstxn/fstxn.go for the surrounding
// begin/commit discipline that wraps every operation below.
package fsapi

import (
	"time"

	"github.com/goose-fs/xv6fs/common"
	"github.com/goose-fs/xv6fs/dir"
	"github.com/goose-fs/xv6fs/fstxn"
	"github.com/goose-fs/xv6fs/inode"
	"github.com/goose-fs/xv6fs/path"
	"github.com/goose-fs/xv6fs/stats"
)

// Fs is a mounted filesystem ready to serve operations. It wraps the
// shared transaction state so each exported call can open its own
// begin/commit bracket, mirroring the way original_source/sysfile.c's
// syscalls are each wrapped individually in begin_op/end_op by the
// caller (usysfile.c's trap dispatcher, not shown, since that whole
// layer sits outside this filesystem's boundary).
type Fs struct {
	state *fstxn.FsState
	Stats *stats.Counters
}

// New wraps fs for use by the operations in this package.
func New(fs *fstxn.FsState) *Fs {
	return &Fs{state: fs, Stats: &stats.Counters{}}
}

// create implements sys_open/sys_mkdir/sys_mknod's shared find-or-create
// path: it resolves pathname's parent, and either returns the existing
// entry (if it already exists, excl is false, kind is T_FILE and the
// existing inode is T_FILE or T_DEV; any other existing entry is
// common.ErrExists) or allocates a fresh inode of kind and links it in.
// Grounded verbatim on
// original_source/sysfile.c's create().
func create(txn *fstxn.Txn, cwd *inode.Inode, pathname string, kind common.Itype, major, minor uint16, excl bool) (*inode.Inode, error) {
	dp, name, err := path.NameiParent(txn, cwd, pathname)
	if err != nil {
		return nil, err
	}
	inode.Lock(txn, dp)

	if inum, _ := dir.Lookup(txn, dp, name); inum != common.NULLINUM {
		inode.Unlock(txn, dp)
		inode.Put(txn, dp)
		if excl {
			return nil, common.ErrExists
		}
		ip := inode.Get(txn, inum)
		inode.Lock(txn, ip)
		if kind == common.T_FILE && (ip.Kind == common.T_FILE || ip.Kind == common.T_DEV) {
			inode.Unlock(txn, ip)
			return ip, nil
		}
		inode.Unlock(txn, ip)
		inode.Put(txn, ip)
		return nil, common.ErrExists
	}

	ip := inode.Alloc(txn, kind)
	if ip == nil {
		inode.Unlock(txn, dp)
		inode.Put(txn, dp)
		return nil, common.ErrNoSpace
	}
	inode.Lock(txn, ip)
	ip.Major = major
	ip.Minor = minor
	ip.Nlink = 1
	inode.WriteInode(txn, ip)

	if kind == common.T_DIR {
		dp.Nlink++
		inode.WriteInode(txn, dp)
		if err := dir.Init(txn, ip, dp.Inum); err != nil {
			inode.Unlock(txn, ip)
			inode.Put(txn, ip)
			inode.Unlock(txn, dp)
			inode.Put(txn, dp)
			return nil, err
		}
	}

	if err := dir.Link(txn, dp, name, ip.Inum); err != nil {
		if kind == common.T_DIR {
			dp.Nlink--
			inode.WriteInode(txn, dp)
		}
		inode.Unlock(txn, ip)
		inode.Put(txn, ip)
		inode.Unlock(txn, dp)
		inode.Put(txn, dp)
		return nil, err
	}
	inode.Unlock(txn, dp)
	inode.Put(txn, dp)
	inode.Unlock(txn, ip)
	return ip, nil
}

// Create makes a new regular file at pathname, or opens it if a regular
// file or device already exists there (excl false) or fails with
// common.ErrExists (excl true, or an existing directory). pathname resolves against cwd if relative, or the root if it
// begins with "/"; cwd may be nil for an absolute pathname. Grounded on
// sys_open's O_CREATE path.
func (fs *Fs) Create(cwd *inode.Inode, pathname string, excl bool) (*File, error) {
	defer fs.Stats.Record(stats.OpCreate, time.Now())
	txn := fstxn.Begin(fs.state)
	ip, err := create(txn, cwd, pathname, common.T_FILE, 0, 0, excl)
	if err != nil {
		txn.Abort()
		return nil, err
	}
	txn.Commit()
	return &File{fs: fs, ip: ip}, nil
}

// Mkdir creates a new, empty directory at pathname, resolved against
// cwd the way Create resolves its pathname.
func (fs *Fs) Mkdir(cwd *inode.Inode, pathname string) error {
	defer fs.Stats.Record(stats.OpMkdir, time.Now())
	txn := fstxn.Begin(fs.state)
	ip, err := create(txn, cwd, pathname, common.T_DIR, 0, 0, true)
	if err != nil {
		txn.Abort()
		return err
	}
	inode.Put(txn, ip)
	txn.Commit()
	return nil
}

// Mknod creates a device special file at pathname with the given
// major/minor numbers, resolved against cwd the way Create resolves
// its pathname. Grounded on sys_mknod.
func (fs *Fs) Mknod(cwd *inode.Inode, pathname string, major, minor uint16) error {
	defer fs.Stats.Record(stats.OpMknod, time.Now())
	txn := fstxn.Begin(fs.state)
	ip, err := create(txn, cwd, pathname, common.T_DEV, major, minor, true)
	if err != nil {
		txn.Abort()
		return err
	}
	inode.Put(txn, ip)
	txn.Commit()
	return nil
}

// Link adds newpath as an additional name for the file already named by
// oldpath. Both paths resolve against cwd if relative. Grounded on
// original_source/sysfile.c's sys_link, including its refusal to link a
// directory and its nlink-- compensation if the dirlink fails after the
// target's link count was already bumped.
func (fs *Fs) Link(cwd *inode.Inode, oldpath, newpath string) error {
	defer fs.Stats.Record(stats.OpLink, time.Now())
	txn := fstxn.Begin(fs.state)

	ip, err := path.Namei(txn, cwd, oldpath)
	if err != nil {
		txn.Abort()
		return err
	}
	inode.Lock(txn, ip)
	if ip.Kind == common.T_DIR {
		inode.Unlock(txn, ip)
		inode.Put(txn, ip)
		txn.Abort()
		return common.ErrIsDir
	}
	ip.Nlink++
	inode.WriteInode(txn, ip)
	inode.Unlock(txn, ip)

	dp, name, err := path.NameiParent(txn, cwd, newpath)
	if err != nil {
		inode.Lock(txn, ip)
		ip.Nlink--
		inode.WriteInode(txn, ip)
		inode.Unlock(txn, ip)
		inode.Put(txn, ip)
		txn.Abort()
		return err
	}
	inode.Lock(txn, dp)
	if dp.Dev != ip.Dev {
		inode.Unlock(txn, dp)
		inode.Put(txn, dp)
		inode.Lock(txn, ip)
		ip.Nlink--
		inode.WriteInode(txn, ip)
		inode.Unlock(txn, ip)
		inode.Put(txn, ip)
		txn.Abort()
		return common.ErrCrossDevice
	}

	if err := dir.Link(txn, dp, name, ip.Inum); err != nil {
		inode.Unlock(txn, dp)
		inode.Put(txn, dp)
		inode.Lock(txn, ip)
		ip.Nlink--
		inode.WriteInode(txn, ip)
		inode.Unlock(txn, ip)
		inode.Put(txn, ip)
		txn.Abort()
		return err
	}

	inode.Unlock(txn, dp)
	inode.Put(txn, dp)
	inode.Put(txn, ip)
	txn.Commit()
	return nil
}

// Unlink removes pathname's directory entry and decrements the target's
// link count, freeing it once the count reaches zero and no file handle
// still references it. pathname resolves against cwd if relative.
// Grounded on sys_unlink: refuses to remove "." or ".." and refuses to
// remove a non-empty directory.
func (fs *Fs) Unlink(cwd *inode.Inode, pathname string) error {
	defer fs.Stats.Record(stats.OpUnlink, time.Now())
	txn := fstxn.Begin(fs.state)

	dp, name, err := path.NameiParent(txn, cwd, pathname)
	if err != nil {
		txn.Abort()
		return err
	}
	inode.Lock(txn, dp)
	if dir.IllegalName(name) {
		inode.Unlock(txn, dp)
		inode.Put(txn, dp)
		txn.Abort()
		return common.ErrInval
	}

	inum, off := dir.Lookup(txn, dp, name)
	if inum == common.NULLINUM {
		inode.Unlock(txn, dp)
		inode.Put(txn, dp)
		txn.Abort()
		return common.ErrNotFound
	}

	ip := inode.Get(txn, inum)
	inode.Lock(txn, ip)
	if ip.Kind == common.T_DIR && !dir.IsEmpty(txn, ip) {
		inode.Unlock(txn, ip)
		inode.Put(txn, ip)
		inode.Unlock(txn, dp)
		inode.Put(txn, dp)
		txn.Abort()
		return common.ErrNotEmpty
	}

	if err := dir.Unlink(txn, dp, off); err != nil {
		inode.Unlock(txn, ip)
		inode.Put(txn, ip)
		inode.Unlock(txn, dp)
		inode.Put(txn, dp)
		txn.Abort()
		return err
	}
	if ip.Kind == common.T_DIR {
		dp.Nlink--
		inode.WriteInode(txn, dp)
	}
	inode.Unlock(txn, dp)
	inode.Put(txn, dp)

	ip.Nlink--
	inode.WriteInode(txn, ip)
	inode.Unlock(txn, ip)
	inode.Put(txn, ip)

	txn.Commit()
	return nil
}

// File is an open regular file, positioned independently of any other
// handle on the same inode, mirroring the file descriptor original_source/
// file.c's struct file provides above the shared inode.
type File struct {
	fs  *Fs
	ip  *inode.Inode
	off uint64
}

// Open resolves pathname, against cwd if relative, to an existing file
// and returns a handle to it.
func (fs *Fs) Open(cwd *inode.Inode, pathname string) (*File, error) {
	defer fs.Stats.Record(stats.OpOpen, time.Now())
	txn := fstxn.Begin(fs.state)
	ip, err := path.Namei(txn, cwd, pathname)
	if err != nil {
		txn.Abort()
		return nil, err
	}
	inode.Lock(txn, ip)
	if ip.Kind == common.T_DIR {
		inode.Unlock(txn, ip)
		inode.Put(txn, ip)
		txn.Abort()
		return nil, common.ErrIsDir
	}
	inode.Unlock(txn, ip)
	txn.Commit()
	return &File{fs: fs, ip: ip}, nil
}

// Chdir resolves pathname (against cwd, if relative) to a directory
// inode and returns a referenced handle suitable for use as a later
// call's cwd argument, mirroring original_source/sysfile.c's sys_chdir.
// The caller must release the returned reference with CloseDir once it
// stops using it as a working directory.
func (fs *Fs) Chdir(cwd *inode.Inode, pathname string) (*inode.Inode, error) {
	defer fs.Stats.Record(stats.OpChdir, time.Now())
	txn := fstxn.Begin(fs.state)
	ip, err := path.Namei(txn, cwd, pathname)
	if err != nil {
		txn.Abort()
		return nil, err
	}
	inode.Lock(txn, ip)
	if ip.Kind != common.T_DIR {
		inode.Unlock(txn, ip)
		inode.Put(txn, ip)
		txn.Abort()
		return nil, common.ErrNotDir
	}
	inode.Unlock(txn, ip)
	txn.Commit()
	return ip, nil
}

// CloseDir releases a reference obtained from Chdir.
func (fs *Fs) CloseDir(cwd *inode.Inode) {
	txn := fstxn.Begin(fs.state)
	inode.Put(txn, cwd)
	txn.Commit()
}

// Read reads up to len(buf) bytes starting at the handle's current
// offset, advancing it by the number of bytes read.
func (f *File) Read(buf []byte) (int, error) {
	defer f.fs.Stats.Record(stats.OpRead, time.Now())
	txn := fstxn.Begin(f.fs.state)
	inode.Lock(txn, f.ip)
	data, err := inode.Readi(txn, f.ip, f.off, uint64(len(buf)))
	inode.Unlock(txn, f.ip)
	if err != nil {
		txn.Abort()
		return 0, err
	}
	txn.Commit()
	copy(buf, data)
	f.off += uint64(len(data))
	return len(data), nil
}

// Write appends data at the handle's current offset, advancing it by
// the number of bytes written. A write longer than common.MaxWriteChunk
// is split into that many bytes per transaction, each committed on its
// own, so that no single transaction enlists more blocks than the log
// can hold. Grounded on original_source/file.c's filewrite loop.
func (f *File) Write(data []byte) (int, error) {
	defer f.fs.Stats.Record(stats.OpWrite, time.Now())
	var written uint64
	for written < uint64(len(data)) {
		end := written + common.MaxWriteChunk
		if end > uint64(len(data)) {
			end = uint64(len(data))
		}

		txn := fstxn.Begin(f.fs.state)
		inode.Lock(txn, f.ip)
		n, err := inode.Writei(txn, f.ip, f.off, data[written:end])
		inode.Unlock(txn, f.ip)
		if err != nil {
			txn.Abort()
			f.off += written
			return int(written), err
		}
		txn.Commit()
		f.off += n
		written += n
	}
	return int(written), nil
}

// Close releases the handle's reference to its inode.
func (f *File) Close() error {
	txn := fstxn.Begin(f.fs.state)
	inode.Put(txn, f.ip)
	txn.Commit()
	return nil
}
