// Package window owns one toplevel surface and the buffers presented on it,
// and paces redraws off the compositor's frame callbacks.
//
// Like bufpool, nothing here is safe for concurrent use. Listener methods
// run from display.Conn.Dispatch on the caller's goroutine.
package window

import (
	"math"

	"github.com/pkg/errors"

	"honnef.co/go/wlwindow/internal/bufpool"
	"honnef.co/go/wlwindow/internal/display"
	"honnef.co/go/wlwindow/internal/log"
)

var ErrDestroyed = errors.New("window destroyed")

// ErrForeignSlot is returned when presenting a slot that doesn't belong to
// the window's buffer pool.
var ErrForeignSlot = errors.New("buffer slot not from this window's pool")

type State int

const (
	StateCreated State = iota
	StateAwaitingConfigure
	StateConfigured
	StateClosing
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAwaitingConfigure:
		return "awaiting-configure"
	case StateConfigured:
		return "configured"
	case StateClosing:
		return "closing"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

type Config struct {
	Title   string
	Width   int
	Height  int
	Buffers int
	Format  display.Format
}

func (cfg Config) poolConfig() bufpool.Config {
	return bufpool.Config{
		Capacity: cfg.Buffers,
		Width:    cfg.Width,
		Height:   cfg.Height,
		Stride:   cfg.Width * display.BytesPerPixel,
		Format:   cfg.Format,
	}
}

type Window struct {
	conn    display.Conn
	cfg     Config
	surface display.Surface
	pool    *bufpool.Pool

	state       State
	configured  bool
	shouldClose bool
	// presented is set once any buffer has been committed.
	presented bool

	reqWidth  int
	reqHeight int
}

// New creates a toplevel surface, waits for the compositor to configure it
// and then creates cfg.Buffers buffers of cfg.Width x cfg.Height.
//
// A connection error before the first configure is reported as
// display.ErrSetup. Pool failures keep their display.ErrAllocation or
// display.ErrProtocol tag. On any error the surface is destroyed again.
func New(conn display.Conn, alloc display.Allocator, cfg Config) (*Window, error) {
	if err := cfg.poolConfig().Validate(); err != nil {
		return nil, display.Wrap(display.ErrConfig, err, "window")
	}

	w := &Window{conn: conn, cfg: cfg, state: StateCreated}
	surface, err := conn.CreateWindowSurface(cfg.Title, (*listener)(w))
	if err != nil {
		return nil, display.Wrap(display.ErrSetup, err, "creating surface")
	}
	w.surface = surface

	// The surface must be configured before it can take a buffer.
	w.state = StateAwaitingConfigure
	surface.Commit()
	for !w.configured {
		if err := conn.Dispatch(); err != nil {
			w.Destroy()
			return nil, display.Wrap(display.ErrSetup, err, "waiting for first configure")
		}
	}

	if !conn.SupportsFormat(cfg.Format) {
		w.Destroy()
		return nil, display.Wrapf(display.ErrSetup, nil, "compositor does not support %s", cfg.Format)
	}

	pool, err := bufpool.New(conn, alloc, cfg.poolConfig())
	if err != nil {
		w.Destroy()
		return nil, err
	}
	w.pool = pool

	log.Info("window: ready", "title", cfg.Title, "width", cfg.Width, "height", cfg.Height, "buffers", cfg.Buffers)
	return w, nil
}

func (w *Window) State() State              { return w.state }
func (w *Window) ShouldClose() bool         { return w.shouldClose }
func (w *Window) Size() (width, height int) { return w.cfg.Width, w.cfg.Height }
func (w *Window) Pool() *bufpool.Pool       { return w.pool }

// RequestedSize is the size from the latest toplevel configure. 0x0 means
// the compositor leaves it to the client.
func (w *Window) RequestedSize() (width, height int) {
	return w.reqWidth, w.reqHeight
}

func (w *Window) destroyed() bool { return w.state == StateDestroyed }

// Present attaches slot's buffer, damages the whole surface and commits.
// From here until the compositor releases it the slot is busy.
func (w *Window) Present(slot *bufpool.Slot) error {
	if w.destroyed() {
		return ErrDestroyed
	}
	if slot == nil || w.pool.Slot(slot.Index()) != slot {
		return ErrForeignSlot
	}
	if slot.Busy() {
		return bufpool.ErrSlotBusy
	}
	w.surface.Attach(slot.Buffer(), 0, 0)
	w.surface.Damage(0, 0, math.MaxInt32, math.MaxInt32)
	w.pool.MarkBusy(slot)
	w.surface.Commit()
	w.presented = true
	return nil
}

// Commit commits the surface without attaching anything new.
func (w *Window) Commit() {
	if w.destroyed() {
		return
	}
	w.surface.Commit()
}

// RequestFrame asks to be told when the compositor wants the next frame.
// The request takes effect with the next commit.
func (w *Window) RequestFrame(done func(time uint32)) (display.Callback, error) {
	if w.destroyed() {
		return nil, ErrDestroyed
	}
	cb, err := w.surface.Frame(done)
	if err != nil {
		return nil, display.Wrap(display.ErrProtocol, err, "requesting frame callback")
	}
	return cb, nil
}

// Destroy tears down the surface roles and the surface, then the buffers.
// It may be called more than once.
func (w *Window) Destroy() {
	if w.destroyed() {
		return
	}
	if w.surface != nil {
		w.surface.Destroy()
		w.surface = nil
	}
	if w.pool != nil {
		w.pool.Destroy()
		w.pool = nil
	}
	w.state = StateDestroyed
	log.Debug("window: destroyed", "title", w.cfg.Title)
}

// listener receives the surface's events. It is a separate type so that
// the handlers don't show up in Window's method set.
type listener Window

func (l *listener) Configure(serial uint32) {
	w := (*Window)(l)
	if w.destroyed() {
		return
	}
	w.surface.AckConfigure(serial)
	first := !w.configured
	w.configured = true
	if w.shouldClose {
		w.state = StateClosing
	} else {
		w.state = StateConfigured
	}
	log.Debug("window: configure", "serial", serial, "first", first)
	if !first && w.presented {
		w.surface.Commit()
	}
}

func (l *listener) ToplevelConfigure(width, height int) {
	w := (*Window)(l)
	w.reqWidth, w.reqHeight = width, height
	log.Debug("window: toplevel configure", "width", width, "height", height)
}

func (l *listener) Close() {
	w := (*Window)(l)
	if !w.shouldClose {
		log.Debug("window: close requested", "title", w.cfg.Title)
	}
	w.shouldClose = true
	if w.configured && !w.destroyed() {
		w.state = StateClosing
	}
}
