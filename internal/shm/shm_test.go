//go:build linux

package shm

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func openFds(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	require.NoError(t, err)
	return len(entries)
}

func TestCreate_MapsWritableRegion(t *testing.T) {
	before := openFds(t)

	r, err := Create(4096)
	require.NoError(t, err)
	assert.Equal(t, 4096, r.Size())
	require.Len(t, r.Bytes(), 4096)

	r.Bytes()[0] = 0xAA
	r.Bytes()[4095] = 0x55
	buf := make([]byte, 1)
	_, err = unix.Pread(r.Fd(), buf, 4095)
	require.NoError(t, err)
	assert.Equal(t, byte(0x55), buf[0], "mapping must be shared with the file")

	seals, err := unix.FcntlInt(uintptr(r.Fd()), unix.F_GET_SEALS, 0)
	require.NoError(t, err)
	assert.NotZero(t, seals&unix.F_SEAL_SHRINK)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "second close must be a no-op")
	assert.Nil(t, r.Bytes())
	assert.Equal(t, before, openFds(t))
}

func TestCreate_RejectsEmptySize(t *testing.T) {
	before := openFds(t)
	_, err := Create(0)
	assert.Error(t, err)
	assert.Equal(t, before, openFds(t))
}

func TestCreate_MmapFailureClosesDescriptor(t *testing.T) {
	orig := mmap
	t.Cleanup(func() { mmap = orig })
	mmap = func(int, int64, int, int, int) ([]byte, error) {
		return nil, unix.ENOMEM
	}

	before := openFds(t)
	r, err := Create(4096)
	assert.Nil(t, r)
	require.Error(t, err)
	assert.ErrorIs(t, err, unix.ENOMEM)
	assert.Equal(t, before, openFds(t))
}

func TestCreate_TruncateFailureClosesDescriptor(t *testing.T) {
	orig := ftruncate
	t.Cleanup(func() { ftruncate = orig })
	ftruncate = func(int, int64) error { return unix.EFBIG }

	before := openFds(t)
	_, err := Create(4096)
	assert.ErrorIs(t, err, unix.EFBIG)
	assert.Equal(t, before, openFds(t))
}

func TestAllocator_ReturnsRegion(t *testing.T) {
	r, err := Allocator{}.Allocate(64)
	require.NoError(t, err)
	assert.Len(t, r.Bytes(), 64)
	assert.NoError(t, r.Close())

	r, err = Allocator{}.Allocate(-1)
	assert.Error(t, err)
	assert.Nil(t, r, "failed allocation must not return a typed nil")
}
