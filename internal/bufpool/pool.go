// Package bufpool manages a fixed set of shm buffers carved out of one
// shared-memory region.
//
// A slot is busy from the moment it is presented until the compositor
// releases it. Pixel memory is only reachable through Slot.Draw, which
// refuses busy slots, so a frame can't be torn by writing into a buffer the
// compositor is still reading.
//
// The pool is not safe for concurrent use. Release runs from the event
// dispatch path, which shares the single thread of control with the code
// calling FindFree and MarkBusy.
package bufpool

import (
	"math"
	"unsafe"

	"github.com/pkg/errors"
	"honnef.co/go/safeish"

	"honnef.co/go/wlwindow/internal/display"
	"honnef.co/go/wlwindow/internal/log"
)

// ErrSlotBusy is returned when writing to or presenting a slot that the
// compositor still owns.
var ErrSlotBusy = errors.New("buffer slot is busy")

// ErrPoolDestroyed is returned when drawing into a slot after Pool.Destroy.
var ErrPoolDestroyed = errors.New("buffer pool destroyed")

// MaxSize is the largest pool wl_shm can describe; sizes, offsets and
// strides are int32 on the wire.
const MaxSize = math.MaxInt32

// Registrar is the part of a display connection that registers shared
// memory with the compositor.
type Registrar interface {
	CreateShmPool(fd, size int) (display.ShmPool, error)
}

type Config struct {
	Capacity int
	Width    int
	Height   int
	// Stride is in bytes.
	Stride int
	Format display.Format
}

func (cfg Config) SlotSize() int { return cfg.Height * cfg.Stride }

// Validate also bounds the pool by MaxSize. The bounds are checked by
// division so that oversized values can't wrap around.
func (cfg Config) Validate() error {
	switch {
	case cfg.Capacity < 1:
		return errors.Errorf("capacity %d, need at least 1", cfg.Capacity)
	case cfg.Width < 1 || cfg.Height < 1:
		return errors.Errorf("size %dx%d, need at least 1x1", cfg.Width, cfg.Height)
	case cfg.Width > MaxSize/display.BytesPerPixel:
		return errors.Errorf("width %d exceeds %d pixels", cfg.Width, MaxSize/display.BytesPerPixel)
	case cfg.Stride < cfg.Width*display.BytesPerPixel:
		return errors.Errorf("stride %d shorter than a row of %d pixels", cfg.Stride, cfg.Width)
	case cfg.Stride%display.BytesPerPixel != 0:
		return errors.Errorf("stride %d not a multiple of %d", cfg.Stride, display.BytesPerPixel)
	case cfg.Stride > MaxSize:
		return errors.Errorf("stride %d exceeds %d bytes", cfg.Stride, MaxSize)
	case cfg.Height > MaxSize/cfg.Stride:
		return errors.Errorf("buffer of %dx%d bytes exceeds %d bytes", cfg.Stride, cfg.Height, MaxSize)
	case cfg.Capacity > MaxSize/cfg.SlotSize():
		return errors.Errorf("%d buffers of %d bytes exceed %d bytes", cfg.Capacity, cfg.SlotSize(), MaxSize)
	}
	return nil
}

type Slot struct {
	index  int
	offset int
	buffer display.Buffer
	pixels []uint32
	busy   bool
	cfg    *Config
}

func (s *Slot) Index() int             { return s.index }
func (s *Slot) Offset() int            { return s.offset }
func (s *Slot) Len() int               { return s.cfg.SlotSize() }
func (s *Slot) Busy() bool             { return s.busy }
func (s *Slot) Buffer() display.Buffer { return s.buffer }

// Draw lets fn write the slot's pixels, row-major 0xAARRGGBB, stride in
// pixels. fn must not keep pix after returning.
func (s *Slot) Draw(fn func(pix []uint32, width, height, stride int)) error {
	if s.pixels == nil {
		return ErrPoolDestroyed
	}
	if s.busy {
		return ErrSlotBusy
	}
	fn(s.pixels, s.cfg.Width, s.cfg.Height, s.cfg.Stride/display.BytesPerPixel)
	return nil
}

type Pool struct {
	cfg    Config
	region display.Region
	shm    display.ShmPool
	slots  []*Slot
}

// New maps cfg.Capacity*cfg.Height*cfg.Stride bytes and registers one buffer
// per slot at offset i*Height*Stride. Every slot starts free.
//
// Errors are tagged display.ErrConfig, display.ErrAllocation or
// display.ErrProtocol. Whatever was acquired before the failure is released
// before New returns.
func New(reg Registrar, alloc display.Allocator, cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, display.Wrap(display.ErrConfig, err, "buffer pool")
	}
	size := cfg.Capacity * cfg.SlotSize()

	p := &Pool{cfg: cfg}
	region, err := alloc.Allocate(size)
	if err != nil {
		return nil, display.Wrapf(display.ErrAllocation, err, "allocating %d bytes for %d buffers", size, cfg.Capacity)
	}
	p.region = region
	if len(region.Bytes()) < size {
		p.Destroy()
		return nil, display.Wrapf(display.ErrAllocation, nil, "region holds %d bytes, need %d", len(region.Bytes()), size)
	}

	shm, err := reg.CreateShmPool(region.Fd(), size)
	if err != nil {
		p.Destroy()
		return nil, display.Wrap(display.ErrProtocol, err, "registering shm pool")
	}
	p.shm = shm

	p.slots = make([]*Slot, cfg.Capacity)
	data := region.Bytes()
	for i := range p.slots {
		offset := i * cfg.SlotSize()
		buf, err := shm.CreateBuffer(offset, cfg.Width, cfg.Height, cfg.Stride, cfg.Format)
		if err != nil {
			p.Destroy()
			return nil, display.Wrapf(display.ErrProtocol, err, "registering buffer %d", i)
		}
		slot := &Slot{
			index:  i,
			offset: offset,
			buffer: buf,
			pixels: unsafe.Slice(safeish.Cast[*uint32](&data[offset]), cfg.SlotSize()/display.BytesPerPixel),
			cfg:    &p.cfg,
		}
		buf.SetReleaseHandler(func() { p.Release(slot) })
		p.slots[i] = slot
	}
	log.Debug("bufpool: created", "buffers", cfg.Capacity, "width", cfg.Width, "height", cfg.Height, "stride", cfg.Stride, "format", cfg.Format)
	return p, nil
}

func (p *Pool) Config() Config { return p.cfg }
func (p *Pool) Cap() int       { return len(p.slots) }

// Slot returns slot i, or nil if it doesn't exist.
func (p *Pool) Slot(i int) *Slot {
	if i < 0 || i >= len(p.slots) {
		return nil
	}
	return p.slots[i]
}

// FindFree returns the lowest-indexed free slot, or nil when the compositor
// holds every buffer.
func (p *Pool) FindFree() *Slot {
	for _, slot := range p.slots {
		if slot != nil && !slot.busy {
			return slot
		}
	}
	return nil
}

// MarkBusy hands slot to the compositor. Only the presenter calls this.
func (p *Pool) MarkBusy(slot *Slot) {
	slot.busy = true
}

// Release returns slot to the client. Releasing a free slot changes nothing.
func (p *Pool) Release(slot *Slot) {
	if !slot.busy {
		log.Debug("bufpool: release of free buffer", "slot", slot.index)
		return
	}
	slot.busy = false
	log.Debug("bufpool: released", "slot", slot.index)
}

// Busy reports how many slots the compositor currently holds.
func (p *Pool) Busy() int {
	n := 0
	for _, slot := range p.slots {
		if slot != nil && slot.busy {
			n++
		}
	}
	return n
}

// Destroy destroys the buffers, the shm pool and the region, in that order.
// It copes with pools that New abandoned half way and may be called again.
func (p *Pool) Destroy() {
	for i, slot := range p.slots {
		if slot == nil {
			continue
		}
		if slot.buffer != nil {
			slot.buffer.Destroy()
			slot.buffer = nil
		}
		slot.pixels = nil
		p.slots[i] = nil
	}
	p.slots = nil
	if p.shm != nil {
		p.shm.Destroy()
		p.shm = nil
	}
	if p.region != nil {
		if err := p.region.Close(); err != nil {
			log.Warn("bufpool: closing shared memory", "err", err)
		}
		p.region = nil
	}
}
