// Package shm maps a named region of memory that every miner or monitor
// process on the host can see: a backing file, O_CREAT|O_EXCL to decide
// which process initializes it, ftruncate to size, and
// PROT_READ|PROT_WRITE|MAP_SHARED mmap via golang.org/x/sys/unix, since
// the standard library exposes no mmap.
package shm

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Role reports whether this process created the region or joined an
// already-existing one.
type Role int

const (
	RoleJoiner Role = iota
	RoleInitializer
)

// Region is a memory-mapped shared-memory segment.
type Region struct {
	path string
	Data []byte
	Role Role
}

// dir returns the directory backing named shared-memory objects. /dev/shm
// is the POSIX-ish convention on Linux; anywhere else (tests, non-Linux
// development), os.TempDir() stands in so the same code path runs.
func dir() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// Open creates (O_CREAT|O_EXCL) or joins the named shared memory region,
// sizing it to size on creation, and returns the mapped bytes along with
// which role this process took.
func Open(name string, size int) (*Region, error) {
	path := filepath.Join(dir(), name)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0o600)
	role := RoleInitializer
	if err != nil {
		if !errors.Is(err, unix.EEXIST) {
			return nil, errors.Wrapf(err, "shm: open %s", path)
		}
		role = RoleJoiner
		fd, err = unix.Open(path, unix.O_RDWR, 0o600)
		if err != nil {
			return nil, errors.Wrapf(err, "shm: open existing %s", path)
		}
	}
	defer unix.Close(fd)

	if role == RoleInitializer {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			return nil, errors.Wrapf(err, "shm: ftruncate %s", path)
		}
	} else if err := awaitSize(fd, path, size); err != nil {
		return nil, err
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		if role == RoleInitializer {
			_ = unix.Unlink(path)
		}
		return nil, errors.Wrapf(err, "shm: mmap %s", path)
	}

	return &Region{path: path, Data: data, Role: role}, nil
}

// awaitSize spins until the creator, which may still be between its
// exclusive open and its ftruncate, has grown the backing file to the
// full region size. Mapping too early would fault on first access.
func awaitSize(fd int, path string, size int) error {
	deadline := time.Now().Add(5 * time.Second)
	for {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			return errors.Wrapf(err, "shm: stat %s", path)
		}
		if st.Size >= int64(size) {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Errorf("shm: %s stuck at %d of %d bytes", path, st.Size, size)
		}
		time.Sleep(time.Millisecond)
	}
}

// WrapForTest builds a Region directly over an already-allocated byte
// slice (normally a plain make([]byte, size)), skipping the real
// shm_open/mmap dance entirely. It always reports RoleInitializer, since
// a test has no second process to join as. Close and Unlink are no-ops:
// there is no file or mapping to release.
func WrapForTest(data []byte) *Region {
	return &Region{Data: data, Role: RoleInitializer}
}

// Close unmaps the region without removing the backing file.
func (r *Region) Close() error {
	if r == nil || r.Data == nil || r.path == "" {
		return nil
	}
	err := unix.Munmap(r.Data)
	r.Data = nil
	return errors.Wrap(err, "shm: munmap")
}

// Unlink removes the backing file. Only the entity responsible for the
// region's lifetime (the last miner to leave, the monitor launcher)
// should call this.
func (r *Region) Unlink() error {
	if r.path == "" {
		return nil
	}
	return errors.Wrap(unix.Unlink(r.path), "shm: unlink")
}
