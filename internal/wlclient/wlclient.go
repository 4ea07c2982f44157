// Package wlclient implements display.Conn on top of libwayland.
package wlclient

import (
	"math"

	"github.com/pkg/errors"

	"honnef.co/go/wlwindow/internal/display"
	"honnef.co/go/wlwindow/internal/log"
	"honnef.co/go/wlwindow/wayland"
)

type Conn struct {
	dsp        *wayland.Display
	reg        *wayland.Registry
	compositor *wayland.Compositor
	shm        *wayland.Shm
	wmBase     *wayland.XdgWmBase

	globals globalSet
	// bound maps registry names to the interfaces we hold.
	bound   map[uint32]string
	formats map[wayland.ShmFormat]bool
}

var _ display.Conn = (*Conn)(nil)

// Dial connects to the named display, or $WAYLAND_DISPLAY if name is empty,
// and binds wl_compositor, wl_shm and xdg_wm_base.
func Dial(name string) (*Conn, error) {
	c, err := connect(name)
	if err != nil {
		return nil, err
	}

	found, missing := c.globals.choose(wayland.CompositorName, wayland.ShmName, wayland.XdgWmBaseName)
	if len(missing) > 0 {
		c.Close()
		return nil, missingError(missing)
	}
	if err := c.bind(found); err != nil {
		c.Close()
		return nil, err
	}

	// The shm formats are sent in response to the bind.
	if err := c.Roundtrip(); err != nil {
		c.Close()
		return nil, display.Wrap(display.ErrProtocol, err, "collecting shm formats")
	}
	log.Debug("wlclient: connected", "globals", len(c.globals), "formats", len(c.formats))
	return c, nil
}

// connect gets as far as having read the registry.
func connect(name string) (*Conn, error) {
	dsp, err := wayland.Connect(name)
	if err != nil {
		return nil, display.Wrap(display.ErrSetup, err, "connecting")
	}
	c := &Conn{
		dsp:     dsp,
		globals: make(globalSet),
		bound:   make(map[uint32]string),
		formats: make(map[wayland.ShmFormat]bool),
	}
	reg, err := dsp.Registry()
	if err != nil {
		c.Close()
		return nil, display.Wrap(display.ErrProtocol, err, "getting registry")
	}
	c.reg = reg
	reg.OnGlobal = c.global
	reg.OnGlobalRemove = c.globalRemove
	if err := c.Roundtrip(); err != nil {
		c.Close()
		return nil, display.Wrap(display.ErrProtocol, err, "listing globals")
	}
	return c, nil
}

// ListGlobals connects, reads the registry and disconnects again.
func ListGlobals(name string) ([]Global, error) {
	c, err := connect(name)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Globals(), nil
}

func (c *Conn) bind(found map[string]Global) error {
	g := found[wayland.ShmName]
	shm, err := c.reg.BindShm(g.Name, clampVersion(g.Version, shmVersion))
	if err != nil {
		return display.Wrap(display.ErrProtocol, err, "binding")
	}
	c.shm = shm
	c.bound[g.Name] = g.Interface
	shm.OnFormat = func(format uint32) {
		c.formats[wayland.ShmFormat(format)] = true
	}

	g = found[wayland.CompositorName]
	comp, err := c.reg.BindCompositor(g.Name, clampVersion(g.Version, compositorVersion))
	if err != nil {
		return display.Wrap(display.ErrProtocol, err, "binding")
	}
	c.compositor = comp
	c.bound[g.Name] = g.Interface

	g = found[wayland.XdgWmBaseName]
	wmBase, err := c.reg.BindXdgWmBase(g.Name, clampVersion(g.Version, xdgWmBaseVersion))
	if err != nil {
		return display.Wrap(display.ErrProtocol, err, "binding")
	}
	c.wmBase = wmBase
	c.bound[g.Name] = g.Interface
	// Unanswered pings get us marked unresponsive.
	wmBase.OnPing = wmBase.Pong
	return nil
}

func (c *Conn) global(name uint32, iface string, version uint32) {
	c.globals[name] = Global{Name: name, Interface: iface, Version: version}
}

func (c *Conn) globalRemove(name uint32) {
	g := c.globals[name]
	delete(c.globals, name)
	if iface, ok := c.bound[name]; ok {
		log.Warn("wlclient: bound global removed", "name", name, "interface", iface)
		return
	}
	log.Debug("wlclient: global removed", "name", name, "interface", g.Interface)
}

// Globals returns the registry's current globals ordered by name.
func (c *Conn) Globals() []Global { return c.globals.sorted() }

var shmFormats = map[display.Format]wayland.ShmFormat{
	display.FormatARGB8888: wayland.ShmFormatArgb8888,
	display.FormatXRGB8888: wayland.ShmFormatXrgb8888,
}

func (c *Conn) SupportsFormat(f display.Format) bool {
	code, ok := shmFormats[f]
	return ok && c.formats[code]
}

func (c *Conn) CreateShmPool(fd, size int) (display.ShmPool, error) {
	if size > math.MaxInt32 {
		return nil, errors.Errorf("pool of %d bytes is too large", size)
	}
	pool, err := c.shm.CreatePool(int32(fd), int32(size))
	if err != nil {
		return nil, err
	}
	return &shmPool{pool: pool}, nil
}

func (c *Conn) CreateWindowSurface(title string, l display.SurfaceListener) (display.Surface, error) {
	s := &surface{}
	wl, err := c.compositor.CreateSurface()
	if err != nil {
		return nil, err
	}
	s.wl = wl
	s.objs.add(wl)

	xdg, err := c.wmBase.XdgSurface(wl)
	if err != nil {
		s.Destroy()
		return nil, err
	}
	s.xdg = xdg
	s.objs.add(xdg)
	xdg.OnConfigure = l.Configure

	top, err := xdg.Toplevel()
	if err != nil {
		s.Destroy()
		return nil, err
	}
	s.top = top
	s.objs.add(top)
	top.OnConfigure = func(width, height int32, _ []uint32) {
		l.ToplevelConfigure(int(width), int(height))
	}
	top.OnClose = l.Close
	top.SetTitle(title)
	return s, nil
}

func (c *Conn) Dispatch() error {
	_, err := c.dsp.Dispatch()
	return err
}

func (c *Conn) Roundtrip() error {
	_, err := c.dsp.Roundtrip()
	return err
}

// Close releases the bound globals and disconnects. It may be called more
// than once.
func (c *Conn) Close() error {
	if c.dsp == nil {
		return nil
	}
	if c.wmBase != nil {
		c.wmBase.Destroy()
		c.wmBase = nil
	}
	if c.compositor != nil {
		c.compositor.Destroy()
		c.compositor = nil
	}
	if c.shm != nil {
		c.shm.Destroy()
		c.shm = nil
	}
	if c.reg != nil {
		c.reg.Destroy()
		c.reg = nil
	}
	c.dsp.Disconnect()
	c.dsp = nil
	return nil
}

type shmPool struct {
	pool *wayland.ShmPool
}

func (p *shmPool) CreateBuffer(offset, width, height, stride int, f display.Format) (display.Buffer, error) {
	code, ok := shmFormats[f]
	if !ok {
		return nil, errors.Errorf("unsupported pixel format %s", f)
	}
	buf, err := p.pool.CreateBuffer(int32(offset), int32(width), int32(height), int32(stride), code)
	if err != nil {
		return nil, err
	}
	return &buffer{buf: buf}, nil
}

func (p *shmPool) Destroy() {
	if p.pool == nil {
		return
	}
	p.pool.Destroy()
	p.pool = nil
}

type buffer struct {
	buf *wayland.Buffer
}

func (b *buffer) SetReleaseHandler(fn func()) { b.buf.OnRelease = fn }

func (b *buffer) Destroy() {
	if b.buf == nil {
		return
	}
	b.buf.Destroy()
	b.buf = nil
}

type destroyer interface{ Destroy() }

// owned holds protocol objects in creation order and destroys them newest
// first. A role is always created after the surface it is given to, so it
// goes first.
type owned []destroyer

func (o *owned) add(d destroyer) { *o = append(*o, d) }

func (o *owned) destroy() {
	for i := len(*o) - 1; i >= 0; i-- {
		(*o)[i].Destroy()
	}
	*o = nil
}

// surface is a wl_surface with the xdg_surface and xdg_toplevel roles.
type surface struct {
	wl   *wayland.Surface
	xdg  *wayland.XdgSurface
	top  *wayland.XdgToplevel
	objs owned
}

func (s *surface) AckConfigure(serial uint32) { s.xdg.AckConfigure(serial) }

func (s *surface) Attach(b display.Buffer, x, y int) {
	var buf *wayland.Buffer
	if b != nil {
		buf = b.(*buffer).buf
	}
	s.wl.Attach(buf, int32(x), int32(y))
}

func (s *surface) Damage(x, y, width, height int) {
	s.wl.Damage(int32(x), int32(y), int32(width), int32(height))
}

func (s *surface) Frame(done func(time uint32)) (display.Callback, error) {
	cb, err := s.wl.Frame(done)
	if err != nil {
		return nil, err
	}
	return cb, nil
}

func (s *surface) Commit() { s.wl.Commit() }

func (s *surface) Destroy() {
	s.objs.destroy()
	s.wl, s.xdg, s.top = nil, nil, nil
}
