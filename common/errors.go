package common

import (
	"errors"
	"fmt"
)

// User-recoverable errors: the caller made a request the filesystem cannot
// satisfy given its current state, but the filesystem itself remains
// consistent and usable.
var (
	ErrNotFound  = errors.New("xv6fs: no such file or directory")
	ErrExists    = errors.New("xv6fs: file exists")
	ErrNotDir    = errors.New("xv6fs: not a directory")
	ErrIsDir     = errors.New("xv6fs: is a directory")
	ErrNotEmpty  = errors.New("xv6fs: directory not empty")
	ErrTooLarge  = errors.New("xv6fs: file too large")
	ErrWrongType = errors.New("xv6fs: wrong file type")
	ErrInval     = errors.New("xv6fs: invalid argument")
	ErrNameTooLong = errors.New("xv6fs: path component too long")
	ErrCrossDevice = errors.New("xv6fs: cross-device link")
	ErrNoSpace     = errors.New("xv6fs: no space left on device")
)

// Fatalf reports a resource-exhaustion or invariant-violation condition.
// Both are unrecoverable by definition (spec.md's error taxonomy treats
// them the same way the kernel treats a failed panic()): the caller did
// nothing wrong, but the filesystem cannot continue safely.
func Fatalf(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}
