package wlclient

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"honnef.co/go/wlwindow/internal/display"
	"honnef.co/go/wlwindow/wayland"
)

type fakeObject struct {
	name string
	log  *[]string
}

func (o *fakeObject) Destroy() { *o.log = append(*o.log, o.name+".destroy") }

func TestOwned_DestroysNewestFirst(t *testing.T) {
	var log []string
	var objs owned
	for _, name := range []string{"wl_surface", "xdg_surface", "xdg_toplevel"} {
		objs.add(&fakeObject{name: name, log: &log})
	}

	objs.destroy()
	objs.destroy()
	assert.Equal(t, []string{
		"xdg_toplevel.destroy",
		"xdg_surface.destroy",
		"wl_surface.destroy",
	}, log)
}

func TestOwned_PartialSurface(t *testing.T) {
	// Toplevel creation failed; only what exists is destroyed.
	var log []string
	s := &surface{}
	s.objs.add(&fakeObject{name: "wl_surface", log: &log})
	s.objs.add(&fakeObject{name: "xdg_surface", log: &log})

	s.Destroy()
	s.Destroy()
	assert.Equal(t, []string{"xdg_surface.destroy", "wl_surface.destroy"}, log)
}

func TestSupportsFormat(t *testing.T) {
	c := &Conn{formats: map[wayland.ShmFormat]bool{wayland.ShmFormatXrgb8888: true}}
	assert.True(t, c.SupportsFormat(display.FormatXRGB8888))
	assert.False(t, c.SupportsFormat(display.FormatARGB8888))
	assert.False(t, c.SupportsFormat(display.Format(0x34324258)))

	for f, code := range shmFormats {
		assert.Equal(t, uint32(f), uint32(code), fmt.Sprint(f))
	}
}
