package window

import (
	"github.com/pkg/errors"

	"honnef.co/go/wlwindow/internal/display"
	"honnef.co/go/wlwindow/internal/log"
)

// ErrFrameArmed is returned when a frame callback is requested while
// another one is still outstanding.
var ErrFrameArmed = errors.New("frame callback already requested")

// Renderer fills one frame. stride is in pixels. time is the compositor's
// timestamp in milliseconds, 0 for the very first frame.
type Renderer func(pix []uint32, width, height, stride int, time uint32)

type Stats struct {
	Frames   uint64
	Skipped  uint64
	LastTime uint32
}

// A Pacer redraws a window each time the compositor signals that it wants a
// new frame. It never draws on its own schedule.
//
// When every buffer is still held by the compositor the frame is skipped:
// the pacer requests the next callback and commits without new content, so
// the signal keeps coming.
type Pacer struct {
	w      *Window
	render Renderer

	// token is the outstanding frame callback, if any.
	token   display.Callback
	stopped bool
	err     error
	stats   Stats
}

func NewPacer(w *Window, r Renderer) *Pacer {
	return &Pacer{w: w, render: r}
}

// Start draws and presents the first frame, which also requests the first
// frame callback.
func (p *Pacer) Start() error {
	if p.err != nil {
		return p.err
	}
	if p.token != nil {
		return ErrFrameArmed
	}
	p.stopped = false
	p.cycle(0)
	return p.err
}

// Stop cancels the outstanding frame callback. Callbacks that fire anyway
// are ignored.
func (p *Pacer) Stop() {
	p.stopped = true
	if p.token != nil {
		p.token.Destroy()
		p.token = nil
	}
}

// Err returns the first error hit while handling a frame callback. The
// pacer stops after one.
func (p *Pacer) Err() error { return p.err }

func (p *Pacer) Stats() Stats  { return p.stats }
func (p *Pacer) Armed() bool   { return p.token != nil }
func (p *Pacer) Stopped() bool { return p.stopped }

func (p *Pacer) done(time uint32) {
	// The callback is one-shot and already gone.
	p.token = nil
	if p.stopped {
		return
	}
	p.cycle(time)
}

func (p *Pacer) cycle(time uint32) {
	p.stats.LastTime = time
	if p.w.ShouldClose() || p.w.destroyed() {
		log.Debug("pacer: window closing, not rearming", "time", time)
		p.stopped = true
		return
	}

	slot := p.w.Pool().FindFree()
	if slot == nil {
		p.stats.Skipped++
		log.Debug("pacer: no free buffer, skipping frame", "time", time)
		if err := p.arm(); err != nil {
			p.fail(err)
			return
		}
		p.w.Commit()
		return
	}

	err := slot.Draw(func(pix []uint32, width, height, stride int) {
		p.render(pix, width, height, stride, time)
	})
	if err != nil {
		p.fail(err)
		return
	}
	if err := p.arm(); err != nil {
		p.fail(err)
		return
	}
	if err := p.w.Present(slot); err != nil {
		p.fail(err)
		return
	}
	p.stats.Frames++
}

func (p *Pacer) arm() error {
	if p.token != nil {
		return ErrFrameArmed
	}
	token, err := p.w.RequestFrame(p.done)
	if err != nil {
		return err
	}
	p.token = token
	return nil
}

func (p *Pacer) fail(err error) {
	log.Error("pacer: stopping", "err", err)
	p.err = err
	p.Stop()
}
