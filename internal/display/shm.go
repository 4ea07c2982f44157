package display

// Allocator hands out shared memory that can be passed to the compositor.
type Allocator interface {
	Allocate(size int) (Region, error)
}

// Region is a mapped shared-memory file. Close unmaps before closing the
// descriptor and may be called more than once.
type Region interface {
	Fd() int
	Bytes() []byte
	Close() error
}
