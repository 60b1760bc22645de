// Command mkfs formats a disk image file with a fresh, empty filesystem.
// Grounded on cmd/fs-smallfile/main.go's flag-parsing style and its use
// of golang.org/x/sys/unix for advisory locking on the backing file,
// here applied to the image file mkfs writes instead of a mounted host
// directory.
package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/tchajed/goose/machine/disk"

	"github.com/goose-fs/xv6fs/mkfs"
)

func main() {
	size := flag.Uint64("size", 65536, "filesystem size in blocks")
	nlog := flag.Uint64("nlog", 0, "journal size in blocks (0 for default)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: mkfs [-size N] [-nlog N] <image-file>")
		os.Exit(1)
	}
	imgPath := flag.Arg(0)

	f, err := os.OpenFile(imgPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: %v\n", err)
		os.Exit(1)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: image already in use: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	d, err := disk.NewFileDisk(imgPath, *size)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: %v\n", err)
		os.Exit(1)
	}

	if _, err := mkfs.Format(d, mkfs.Config{Size: *size, NLog: *nlog}); err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: format failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("formatted %s: %d blocks\n", imgPath, *size)
}
