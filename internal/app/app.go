// Package app runs one window until the compositor closes it.
package app

import (
	"context"

	"honnef.co/go/wlwindow/internal/config"
	"honnef.co/go/wlwindow/internal/display"
	"honnef.co/go/wlwindow/internal/log"
	"honnef.co/go/wlwindow/internal/render"
	"honnef.co/go/wlwindow/internal/window"
)

// Dialer opens a display connection. name is the socket name, empty for
// the default one.
type Dialer func(name string) (display.Conn, error)

type App struct {
	cfg   *config.Config
	dial  Dialer
	alloc display.Allocator

	conn  display.Conn
	win   *window.Window
	pacer *window.Pacer
}

func New(cfg *config.Config, dial Dialer, alloc display.Allocator) *App {
	return &App{cfg: cfg, dial: dial, alloc: alloc}
}

// Init connects, creates the window and presents the first frame.
// Whatever it managed to set up before failing is released by Cleanup.
func (a *App) Init() error {
	if err := a.cfg.Validate(); err != nil {
		return display.Wrap(display.ErrConfig, err, "config")
	}
	format, err := a.cfg.PixelFormat()
	if err != nil {
		return display.Wrap(display.ErrConfig, err, "config")
	}
	r, err := render.ByName(a.cfg.Pattern)
	if err != nil {
		return display.Wrap(display.ErrConfig, err, "config")
	}

	conn, err := a.dial(a.cfg.Display)
	if err != nil {
		return err
	}
	a.conn = conn

	win, err := window.New(conn, a.alloc, window.Config{
		Title:   a.cfg.Title,
		Width:   a.cfg.Width,
		Height:  a.cfg.Height,
		Buffers: a.cfg.Buffers,
		Format:  format,
	})
	if err != nil {
		return err
	}
	a.win = win

	a.pacer = window.NewPacer(win, r)
	if err := a.pacer.Start(); err != nil {
		return err
	}
	log.Info("app: running", "pattern", a.cfg.Pattern, "format", format)
	return nil
}

// Run dispatches events until the window is closed, ctx is done, or the
// connection or the pacer fails. ctx is only looked at between dispatches.
func (a *App) Run(ctx context.Context) error {
	for {
		if a.win.ShouldClose() {
			log.Info("app: window closed")
			return nil
		}
		if err := a.pacer.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			log.Info("app: interrupted")
			return nil
		default:
		}
		if err := a.conn.Dispatch(); err != nil {
			return display.Wrap(display.ErrProtocol, err, "dispatching events")
		}
	}
}

// Cleanup tears down in reverse order of Init. It may be called more than
// once and after a failed Init.
func (a *App) Cleanup() {
	if a.pacer != nil {
		a.pacer.Stop()
		st := a.pacer.Stats()
		log.Info("app: frames", "presented", st.Frames, "skipped", st.Skipped)
		a.pacer = nil
	}
	if a.win != nil {
		a.win.Destroy()
		a.win = nil
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			log.Warn("app: closing display", "err", err)
		}
		a.conn = nil
	}
}

func (a *App) Main(ctx context.Context) error {
	defer a.Cleanup()
	if err := a.Init(); err != nil {
		return err
	}
	return a.Run(ctx)
}
