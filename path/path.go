// Package path resolves slash-separated pathnames against the directory
// tree: splitting one component off the front of a path and walking
// components one directory at a time, locking and unlocking each
// intermediate directory as it goes. Grounded on original_source/fs.c's
// skipelem/namex/namei/nameiparent; an NFS server has no analogue for
// this since NFS clients resolve one path component per RPC and the
// server never walks a multi-component path itself.
package path

import (
	"github.com/goose-fs/xv6fs/common"
	"github.com/goose-fs/xv6fs/dir"
	"github.com/goose-fs/xv6fs/fstxn"
	"github.com/goose-fs/xv6fs/inode"
)

// SkipElem splits the next path component off the front of p, returning
// it along with the remainder of the path with leading and trailing
// slashes consumed. ok is false once p is exhausted.
func SkipElem(p string) (elem string, rest string, ok bool) {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	if len(p) == 0 {
		return "", "", false
	}
	i := 0
	for i < len(p) && p[i] != '/' {
		i++
	}
	elem = p[:i]
	rest = p[i:]
	for len(rest) > 0 && rest[0] == '/' {
		rest = rest[1:]
	}
	if len(elem) > common.DIRSIZ {
		elem = elem[:common.DIRSIZ]
	}
	return elem, rest, true
}

// namex walks path component by component, starting at the root inode
// if path begins with "/", or at a duplicated reference to cwd
// otherwise — matching original_source/fs.c's namex, which does
// iget(ROOTDEV, ROOTINO) or idup(myproc()->cwd) depending on the
// leading slash. A relative path with a nil cwd is a caller error.
// Each intermediate directory is locked only long enough to check its
// kind and look up the next component, then unlocked before its child
// is locked in turn — never more than one directory's content lock
// held at once — matching original_source/fs.c's
// lock-one-level-at-a-time discipline. When parent is true, resolution
// stops one level early and returns the parent directory, unlocked,
// instead of the final component's inode, storing the final
// component's name in lastElem.
func namex(txn *fstxn.Txn, cwd *inode.Inode, path string, parent bool) (ip *inode.Inode, lastElem string, err error) {
	if len(path) > 0 && path[0] == '/' {
		ip = inode.Get(txn, common.ROOTINUM)
	} else {
		if cwd == nil {
			return nil, "", common.ErrInval
		}
		ip = inode.Dup(txn, cwd)
	}

	rest := path
	for {
		elem, next, ok := SkipElem(rest)
		if !ok {
			break
		}
		inode.Lock(txn, ip)
		if ip.Kind != common.T_DIR {
			inode.Unlock(txn, ip)
			inode.Put(txn, ip)
			return nil, "", common.ErrNotDir
		}
		if parent && next == "" {
			// Stop one level early: elem names the entry the caller
			// wants to create, look up, or remove within ip.
			inode.Unlock(txn, ip)
			return ip, elem, nil
		}
		nextInum, _ := dir.Lookup(txn, ip, elem)
		if nextInum == common.NULLINUM {
			inode.Unlock(txn, ip)
			inode.Put(txn, ip)
			return nil, "", common.ErrNotFound
		}
		inode.Unlock(txn, ip)
		nextIp := inode.Get(txn, nextInum)
		inode.Put(txn, ip)
		ip = nextIp
		rest = next
	}
	if parent {
		inode.Put(txn, ip)
		return nil, "", common.ErrInval
	}
	return ip, "", nil
}

// Namei resolves path to the inode it names, starting from the root if
// path is absolute or from cwd otherwise, or common.ErrNotFound if any
// component is missing.
func Namei(txn *fstxn.Txn, cwd *inode.Inode, path string) (*inode.Inode, error) {
	ip, _, err := namex(txn, cwd, path, false)
	return ip, err
}

// NameiParent resolves path's parent directory, starting from the root
// if path is absolute or from cwd otherwise, returning it as an
// unlocked reference along with the final path component's name so the
// caller can lock it and look up or link/unlink the name within the
// same transaction. Grounded on original_source/fs.c's nameiparent.
func NameiParent(txn *fstxn.Txn, cwd *inode.Inode, path string) (dp *inode.Inode, name string, err error) {
	return namex(txn, cwd, path, true)
}
