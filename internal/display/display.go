// Package display describes the narrow slice of a display server that a
// window needs: shm pools and buffers, one toplevel surface, and an event
// pump. Implementations are passed explicitly to the packages that use them;
// there is no process-wide backend.
package display

// Format is a wl_shm pixel format code.
type Format uint32

const (
	FormatARGB8888 Format = 0
	FormatXRGB8888 Format = 1
)

// BytesPerPixel is 4 for every format a window can be created with.
const BytesPerPixel = 4

func (f Format) String() string {
	switch f {
	case FormatARGB8888:
		return "argb8888"
	case FormatXRGB8888:
		return "xrgb8888"
	default:
		return "unknown"
	}
}

// Conn is a connection with the shm, compositor and shell globals bound.
type Conn interface {
	CreateShmPool(fd, size int) (ShmPool, error)
	CreateWindowSurface(title string, l SurfaceListener) (Surface, error)
	SupportsFormat(f Format) bool
	// Dispatch blocks until at least one event was processed and runs
	// the handlers of every event read.
	Dispatch() error
	Roundtrip() error
	Close() error
}

type ShmPool interface {
	CreateBuffer(offset, width, height, stride int, f Format) (Buffer, error)
	Destroy()
}

type Buffer interface {
	// SetReleaseHandler installs fn to run when the compositor stops
	// reading the buffer.
	SetReleaseHandler(fn func())
	Destroy()
}

// SurfaceListener receives the notifications of one toplevel surface.
type SurfaceListener interface {
	Configure(serial uint32)
	ToplevelConfigure(width, height int)
	Close()
}

// Surface is a wl_surface with the xdg toplevel role.
type Surface interface {
	AckConfigure(serial uint32)
	Attach(b Buffer, x, y int)
	Damage(x, y, width, height int)
	// Frame requests a one-shot notification before the next repaint.
	// The returned Callback is already consumed when done runs.
	Frame(done func(time uint32)) (Callback, error)
	Commit()
	// Destroy tears down the toplevel, the xdg surface and the wl_surface,
	// in that order.
	Destroy()
}

type Callback interface {
	Destroy()
}
