// Package displaytest provides an in-memory display.Conn and
// display.Allocator. Notifications are queued by the test and delivered by
// Dispatch, in order, the way a compositor's events would be.
package displaytest

import (
	"fmt"

	"github.com/pkg/errors"

	"honnef.co/go/wlwindow/internal/display"
)

// ErrIdle is returned by Dispatch when nothing is queued. A real connection
// would block forever instead.
var ErrIdle = errors.New("displaytest: no events queued")

// Log records destroy and close calls across fakes in the order they were
// made. Fakes with a nil Log record nothing.
type Log struct {
	Events []string
}

func (l *Log) add(format string, args ...any) {
	if l == nil {
		return
	}
	l.Events = append(l.Events, fmt.Sprintf(format, args...))
}

type Conn struct {
	Pools    []*ShmPool
	Surfaces []*Surface
	Closed   bool

	// Formats lists the advertised formats; nil advertises everything.
	Formats []display.Format
	// AutoConfigure queues a configure the first time a surface commits.
	AutoConfigure bool

	CreatePoolErr    error
	CreateSurfaceErr error
	FrameErr         error
	// FailBufferAt makes the n-th CreateBuffer of each pool fail; -1 disables it.
	FailBufferAt int
	DispatchErr  error

	Dispatches int
	// Log is shared with every object the connection creates.
	Log *Log

	queue  []func()
	serial uint32
}

func NewConn() *Conn {
	return &Conn{AutoConfigure: true, FailBufferAt: -1, Log: &Log{}}
}

var _ display.Conn = (*Conn)(nil)

// Queue adds fn to the events delivered by the next Dispatch.
func (c *Conn) Queue(fn func()) {
	c.queue = append(c.queue, fn)
}

func (c *Conn) Queued() int { return len(c.queue) }

func (c *Conn) CreateShmPool(fd, size int) (display.ShmPool, error) {
	if c.CreatePoolErr != nil {
		return nil, c.CreatePoolErr
	}
	p := &ShmPool{conn: c, Fd: fd, Size: size}
	c.Pools = append(c.Pools, p)
	return p, nil
}

func (c *Conn) CreateWindowSurface(title string, l display.SurfaceListener) (display.Surface, error) {
	if c.CreateSurfaceErr != nil {
		return nil, c.CreateSurfaceErr
	}
	s := &Surface{conn: c, Title: title, Listener: l}
	c.Surfaces = append(c.Surfaces, s)
	return s, nil
}

func (c *Conn) SupportsFormat(f display.Format) bool {
	if c.Formats == nil {
		return true
	}
	for _, have := range c.Formats {
		if have == f {
			return true
		}
	}
	return false
}

// Dispatch runs every event queued before the call. Events queued by the
// handlers wait for the next Dispatch.
func (c *Conn) Dispatch() error {
	c.Dispatches++
	if c.DispatchErr != nil {
		return c.DispatchErr
	}
	if len(c.queue) == 0 {
		return ErrIdle
	}
	batch := c.queue
	c.queue = nil
	for _, fn := range batch {
		fn()
	}
	return nil
}

// Roundtrip drains the queue, including events queued while draining.
func (c *Conn) Roundtrip() error {
	if c.DispatchErr != nil {
		return c.DispatchErr
	}
	for len(c.queue) > 0 {
		if err := c.Dispatch(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) Close() error {
	c.Closed = true
	return nil
}

// Surface returns the most recently created surface.
func (c *Conn) Surface() *Surface {
	if len(c.Surfaces) == 0 {
		return nil
	}
	return c.Surfaces[len(c.Surfaces)-1]
}

type ShmPool struct {
	conn      *Conn
	Fd        int
	Size      int
	Buffers   []*Buffer
	Destroyed bool
	calls     int
}

func (p *ShmPool) CreateBuffer(offset, width, height, stride int, f display.Format) (display.Buffer, error) {
	n := p.calls
	p.calls++
	if n == p.conn.FailBufferAt {
		return nil, errors.Errorf("displaytest: buffer %d rejected", n)
	}
	b := &Buffer{
		conn:   p.conn,
		index:  n,
		Offset: offset,
		Width:  width,
		Height: height,
		Stride: stride,
		Format: f,
	}
	p.Buffers = append(p.Buffers, b)
	return b, nil
}

func (p *ShmPool) Destroy() {
	p.Destroyed = true
	p.conn.Log.add("shm_pool.destroy")
}

type Buffer struct {
	conn      *Conn
	index     int
	Offset    int
	Width     int
	Height    int
	Stride    int
	Format    display.Format
	Destroyed bool
	release   func()
}

func (b *Buffer) SetReleaseHandler(fn func()) { b.release = fn }

func (b *Buffer) Destroy() {
	b.Destroyed = true
	b.conn.Log.add("buffer[%d].destroy", b.index)
}

// SendRelease queues the compositor's release of b.
func (b *Buffer) SendRelease() {
	b.conn.Queue(func() {
		if b.release != nil && !b.Destroyed {
			b.release()
		}
	})
}

type Rect struct{ X, Y, Width, Height int }

type Surface struct {
	conn     *Conn
	Title    string
	Listener display.SurfaceListener

	Acked     []uint32
	Attached  []*Buffer
	Damaged   []Rect
	Commits   int
	Frames    []*Callback
	Destroyed bool

	// EmptyCommits counts commits that carried no newly attached buffer.
	EmptyCommits int

	pendingAttach bool
	configureSent bool
}

func (s *Surface) AckConfigure(serial uint32) { s.Acked = append(s.Acked, serial) }

func (s *Surface) Attach(b display.Buffer, x, y int) {
	s.Attached = append(s.Attached, b.(*Buffer))
	s.pendingAttach = true
}

func (s *Surface) Damage(x, y, width, height int) {
	s.Damaged = append(s.Damaged, Rect{x, y, width, height})
}

func (s *Surface) Frame(done func(time uint32)) (display.Callback, error) {
	if s.conn.FrameErr != nil {
		return nil, s.conn.FrameErr
	}
	cb := &Callback{done: done}
	s.Frames = append(s.Frames, cb)
	return cb, nil
}

func (s *Surface) Commit() {
	s.Commits++
	if !s.pendingAttach {
		s.EmptyCommits++
	}
	s.pendingAttach = false
	if s.conn.AutoConfigure && !s.configureSent {
		s.SendConfigure()
	}
}

func (s *Surface) Destroy() {
	s.Destroyed = true
	s.conn.Log.add("surface.destroy")
}

// Current returns the last attached buffer.
func (s *Surface) Current() *Buffer {
	if len(s.Attached) == 0 {
		return nil
	}
	return s.Attached[len(s.Attached)-1]
}

// Outstanding counts frame callbacks that have neither fired nor been
// destroyed.
func (s *Surface) Outstanding() int {
	n := 0
	for _, cb := range s.Frames {
		if !cb.Destroyed {
			n++
		}
	}
	return n
}

func (s *Surface) SendConfigure() {
	s.configureSent = true
	s.conn.serial++
	serial := s.conn.serial
	s.conn.Queue(func() { s.Listener.Configure(serial) })
}

func (s *Surface) SendToplevelConfigure(width, height int) {
	s.conn.Queue(func() { s.Listener.ToplevelConfigure(width, height) })
}

func (s *Surface) SendClose() {
	s.conn.Queue(func() { s.Listener.Close() })
}

// SendFrameDone queues "done" for every callback outstanding when the event
// is delivered.
func (s *Surface) SendFrameDone(time uint32) {
	s.conn.Queue(func() {
		for _, cb := range s.Frames {
			cb.fire(time)
		}
	})
}

type Callback struct {
	done      func(uint32)
	Fired     bool
	Destroyed bool
}

func (cb *Callback) Destroy() { cb.Destroyed = true }

func (cb *Callback) fire(time uint32) {
	if cb.Destroyed {
		return
	}
	cb.Destroyed = true
	cb.Fired = true
	cb.done(time)
}

// Allocator hands out heap-backed regions and records them.
type Allocator struct {
	// Log, when set, records region closes next to the display's events.
	Log *Log

	Err error
	// Short hands out regions half the requested size.
	Short   bool
	Regions []*Region
	nextFd  int
}

var _ display.Allocator = (*Allocator)(nil)

func (a *Allocator) Allocate(size int) (display.Region, error) {
	if a.Err != nil {
		return nil, a.Err
	}
	if a.Short {
		size /= 2
	}
	a.nextFd++
	r := &Region{fd: 100 + a.nextFd, data: make([]byte, size), log: a.Log}
	a.Regions = append(a.Regions, r)
	return r, nil
}

// Live counts regions that haven't been closed.
func (a *Allocator) Live() int {
	n := 0
	for _, r := range a.Regions {
		if r.Closed == 0 {
			n++
		}
	}
	return n
}

type Region struct {
	fd     int
	data   []byte
	log    *Log
	Closed int
}

func (r *Region) Fd() int       { return r.fd }
func (r *Region) Bytes() []byte { return r.data }

func (r *Region) Close() error {
	r.Closed++
	r.data = nil
	r.log.add("region.close")
	return nil
}
