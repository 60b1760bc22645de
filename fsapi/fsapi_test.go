package fsapi

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/tchajed/goose/machine/disk"

	"github.com/goose-fs/xv6fs/common"
	"github.com/goose-fs/xv6fs/fstxn"
	"github.com/goose-fs/xv6fs/mkfs"
)

func mkTestFs(t *testing.T) *Fs {
	d := disk.NewMemDisk(10000)
	fs, err := mkfs.Format(d, mkfs.Config{Size: 10000})
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	state := fstxn.MkFsState(fs, 50)
	return New(state)
}

type FsapiSuite struct {
	suite.Suite
	fs *Fs
}

func TestFsapiSuite(t *testing.T) {
	suite.Run(t, new(FsapiSuite))
}

func (s *FsapiSuite) SetupTest() {
	s.fs = mkTestFs(s.T())
}

func (s *FsapiSuite) TestCreateAndWriteRead() {
	f, err := s.fs.Create(nil, "/hello", true)
	s.Require().NoError(err)

	n, err := f.Write([]byte("hello world"))
	s.Require().NoError(err)
	s.Equal(11, n)
	s.Require().NoError(f.Close())

	f2, err := s.fs.Open(nil, "/hello")
	s.Require().NoError(err)
	buf := make([]byte, 32)
	n, err = f2.Read(buf)
	s.Require().NoError(err)
	s.Equal("hello world", string(buf[:n]))
	s.Require().NoError(f2.Close())
}

func (s *FsapiSuite) TestCreateExclFails() {
	_, err := s.fs.Create(nil, "/x", true)
	s.Require().NoError(err)
	_, err = s.fs.Create(nil, "/x", true)
	s.Require().Equal(common.ErrExists, err)
}

func (s *FsapiSuite) TestMkdirAndNestedCreate() {
	s.Require().NoError(s.fs.Mkdir(nil, "/d"))
	_, err := s.fs.Create(nil, "/d/f", true)
	s.Require().NoError(err)

	f, err := s.fs.Open(nil, "/d/f")
	s.Require().NoError(err)
	s.Require().NoError(f.Close())
}

func (s *FsapiSuite) TestUnlinkRemovesEntry() {
	_, err := s.fs.Create(nil, "/gone", true)
	s.Require().NoError(err)
	s.Require().NoError(s.fs.Unlink(nil, "/gone"))

	_, err = s.fs.Open(nil, "/gone")
	s.Require().Equal(common.ErrNotFound, err)
}

func (s *FsapiSuite) TestUnlinkNonEmptyDirFails() {
	s.Require().NoError(s.fs.Mkdir(nil, "/d"))
	_, err := s.fs.Create(nil, "/d/f", true)
	s.Require().NoError(err)

	err = s.fs.Unlink(nil, "/d")
	s.Require().Equal(common.ErrNotEmpty, err)
}

func (s *FsapiSuite) TestLinkAddsSecondName() {
	_, err := s.fs.Create(nil, "/a", true)
	s.Require().NoError(err)
	s.Require().NoError(s.fs.Link(nil, "/a", "/b"))

	f, err := s.fs.Open(nil, "/b")
	s.Require().NoError(err)
	s.Require().NoError(f.Close())

	s.Require().NoError(s.fs.Unlink(nil, "/a"))
	f2, err := s.fs.Open(nil, "/b")
	s.Require().NoError(err)
	s.Require().NoError(f2.Close())
}

func (s *FsapiSuite) TestChdirAndRelativeCreate() {
	s.Require().NoError(s.fs.Mkdir(nil, "/d"))
	cwd, err := s.fs.Chdir(nil, "/d")
	s.Require().NoError(err)

	_, err = s.fs.Create(cwd, "f", true)
	s.Require().NoError(err)

	f, err := s.fs.Open(nil, "/d/f")
	s.Require().NoError(err)
	s.Require().NoError(f.Close())

	sub, err := s.fs.Chdir(cwd, "..")
	s.Require().NoError(err)
	f2, err := s.fs.Open(sub, "d/f")
	s.Require().NoError(err)
	s.Require().NoError(f2.Close())

	s.fs.CloseDir(sub)
	s.fs.CloseDir(cwd)
}

func (s *FsapiSuite) TestCreateRelativeWithNilCwdFails() {
	_, err := s.fs.Create(nil, "relative", true)
	s.Require().Equal(common.ErrInval, err)
}

func (s *FsapiSuite) TestWriteSpansMultipleChunks() {
	f, err := s.fs.Create(nil, "/chunked", true)
	s.Require().NoError(err)

	// common.MaxWriteChunk bytes is the most one transaction may enlist;
	// write enough to force Write to split across at least three of them.
	size := common.MaxWriteChunk*3 + 41
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	n, err := f.Write(data)
	s.Require().NoError(err)
	s.Equal(len(data), n)
	s.Require().NoError(f.Close())

	f2, err := s.fs.Open(nil, "/chunked")
	s.Require().NoError(err)
	buf := make([]byte, len(data))
	total := 0
	for total < len(data) {
		n, err := f2.Read(buf[total:])
		s.Require().NoError(err)
		if n == 0 {
			break
		}
		total += n
	}
	s.Equal(data, buf[:total])
	s.Require().NoError(f2.Close())
}

// TestConcurrentCreateSameNameIsConsistent runs two non-exclusive Creates
// of the same path from separate goroutines; both must succeed and both
// must end up holding a handle on the very same inode, whichever caller's
// dir.Link actually won the race in create's find-or-create path.
func (s *FsapiSuite) TestConcurrentCreateSameNameIsConsistent() {
	var wg sync.WaitGroup
	files := make([]*File, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			files[i], errs[i] = s.fs.Create(nil, "/race", false)
		}(i)
	}
	wg.Wait()

	s.Require().NoError(errs[0])
	s.Require().NoError(errs[1])
	s.Equal(files[0].ip.Inum, files[1].ip.Inum)
	s.Require().NoError(files[0].Close())
	s.Require().NoError(files[1].Close())
}

func (s *FsapiSuite) TestLinkDirectoryFails() {
	s.Require().NoError(s.fs.Mkdir(nil, "/d"))
	err := s.fs.Link(nil, "/d", "/d2")
	s.Require().Equal(common.ErrIsDir, err)
}

func (s *FsapiSuite) TestWriteAcrossManyBlocks() {
	f, err := s.fs.Create(nil, "/big", true)
	s.Require().NoError(err)

	data := make([]byte, common.BSIZE*15+37) // spans direct and indirect blocks
	for i := range data {
		data[i] = byte(i % 251)
	}
	n, err := f.Write(data)
	s.Require().NoError(err)
	s.Equal(len(data), n)
	s.Require().NoError(f.Close())

	f2, err := s.fs.Open(nil, "/big")
	s.Require().NoError(err)
	buf := make([]byte, len(data))
	total := 0
	for total < len(data) {
		n, err := f2.Read(buf[total:])
		s.Require().NoError(err)
		if n == 0 {
			break
		}
		total += n
	}
	s.Equal(data, buf[:total])
	s.Require().NoError(f2.Close())
}
