// Command xv6fsutil mounts a formatted disk image and runs a single
// create/link/unlink-style operation against it from the command line,
// printing a per-operation latency table on exit. Grounded on
// cmd/txn-bench/main.go for mounting a file-backed disk.Disk directly
// and on util/stats/stats.go for the closing report.
package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/tchajed/goose/machine/disk"

	"github.com/goose-fs/xv6fs/fsapi"
	"github.com/goose-fs/xv6fs/fstxn"
	"github.com/goose-fs/xv6fs/super"
)

func mount(imgPath string) (*fsapi.Fs, func(), error) {
	f, err := os.OpenFile(imgPath, os.O_RDWR, 0644)
	if err != nil {
		return nil, nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("image locked by another process: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	sz := uint64(fi.Size()) / disk.BlockSize

	d, err := disk.NewFileDisk(imgPath, sz)
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	fs, err := super.Load(d)
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	state := fstxn.MkFsState(fs, 50)
	handle := fsapi.New(state)
	// Closing f releases the lock, so it stays open until cleanup.
	return handle, func() { f.Close() }, nil
}

func run(handle *fsapi.Fs, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: xv6fsutil <image> create|mkdir|cat|write <path> [data]")
	}
	switch args[0] {
	case "create":
		_, err := handle.Create(nil, args[1], false)
		return err
	case "mkdir":
		return handle.Mkdir(nil, args[1])
	case "unlink":
		return handle.Unlink(nil, args[1])
	case "link":
		return handle.Link(nil, args[1], args[2])
	case "cat":
		f, err := handle.Open(nil, args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		buf := make([]byte, 4096)
		for {
			n, err := f.Read(buf)
			if n > 0 {
				os.Stdout.Write(buf[:n])
			}
			if err != nil || n == 0 {
				break
			}
		}
		return nil
	case "write":
		f, err := handle.Create(nil, args[1], false)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = f.Write([]byte(args[2]))
		return err
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: xv6fsutil <image> <cmd> [args...]")
		os.Exit(1)
	}

	handle, cleanup, err := mount(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "xv6fsutil: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := run(handle, args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "xv6fsutil: %v\n", err)
		os.Exit(1)
	}

	handle.Stats.WriteTable(os.Stderr)
}
