//go:build linux

// Package shm creates anonymous, sealed shared-memory files for wl_shm pools.
package shm

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"honnef.co/go/wlwindow/internal/display"
	"honnef.co/go/wlwindow/internal/log"
)

// Replaced in tests to simulate failures part way through Create.
var (
	memfdCreate = unix.MemfdCreate
	ftruncate   = unix.Ftruncate
	mmap        = unix.Mmap
)

// Region is a memfd mapped read-write and shared.
type Region struct {
	fd   int
	data []byte
	size int
}

// Create returns a region of exactly size bytes. On failure nothing is left
// open or mapped.
func Create(size int) (*Region, error) {
	if size <= 0 {
		return nil, errors.Errorf("invalid region size %d", size)
	}
	fd, err := memfdCreate("wlwindow-shm", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, errors.Wrap(err, "memfd_create")
	}
	if err := ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "ftruncate to %d bytes", size)
	}
	// The compositor maps the same file; once sealed it can't shrink under it.
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK|unix.F_SEAL_SEAL); err != nil {
		log.Debug("shm: sealing unsupported", "err", err)
	}
	data, err := mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "mmap %d bytes", size)
	}
	return &Region{fd: fd, data: data, size: size}, nil
}

func (r *Region) Fd() int       { return r.fd }
func (r *Region) Bytes() []byte { return r.data }
func (r *Region) Size() int     { return r.size }

// Close unmaps the region, then closes the descriptor.
func (r *Region) Close() error {
	var first error
	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil {
			first = errors.Wrap(err, "munmap")
		}
		r.data = nil
	}
	if r.fd >= 0 {
		if err := unix.Close(r.fd); err != nil && first == nil {
			first = errors.Wrap(err, "close")
		}
		r.fd = -1
	}
	return first
}

// Allocator creates a fresh Region per call.
type Allocator struct{}

var _ display.Allocator = Allocator{}

func (Allocator) Allocate(size int) (display.Region, error) {
	r, err := Create(size)
	if err != nil {
		return nil, err
	}
	return r, nil
}
