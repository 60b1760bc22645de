// Package devsw implements the device-switch table that dispatches
// reads and writes on T_DEV inodes to a registered handler by major
// number. Grounded on original_source/file.c's devsw[] array and the
// NDEV-sized dispatch it performs in readi/writei for T_DEV files.
package devsw

import "github.com/goose-fs/xv6fs/common"

// NDEV is the number of major device numbers this table has room for.
const NDEV = 10

// Device is a character-device handler, addressed by major number and
// keyed to a particular file by minor number.
type Device interface {
	Read(minor uint16, off, n uint64) ([]byte, error)
	Write(minor uint16, off uint64, data []byte) (uint64, error)
}

var table [NDEV]Device

// Register installs dev as the handler for major, matching
// original_source/file.c's static registration of console devices.
func Register(major uint16, dev Device) {
	if int(major) >= NDEV {
		common.Fatalf("devsw: major %d out of range", major)
	}
	table[major] = dev
}

// Get returns the handler for major, or common.ErrInval if none is
// registered there.
func Get(major uint16) (Device, error) {
	if int(major) >= NDEV || table[major] == nil {
		return nil, common.ErrInval
	}
	return table[major], nil
}
