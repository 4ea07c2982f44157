package window

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honnef.co/go/wlwindow/internal/bufpool"
	"honnef.co/go/wlwindow/internal/display"
	"honnef.co/go/wlwindow/internal/display/displaytest"
)

func testConfig() Config {
	return Config{
		Title:   "wl-test",
		Width:   4,
		Height:  4,
		Buffers: 2,
		Format:  display.FormatXRGB8888,
	}
}

func newTestWindow(t *testing.T) (*Window, *displaytest.Conn, *displaytest.Allocator) {
	t.Helper()
	conn := displaytest.NewConn()
	alloc := &displaytest.Allocator{}
	w, err := New(conn, alloc, testConfig())
	require.NoError(t, err)
	t.Cleanup(w.Destroy)
	return w, conn, alloc
}

func TestNew_WaitsForFirstConfigure(t *testing.T) {
	w, conn, _ := newTestWindow(t)
	surf := conn.Surface()
	require.NotNil(t, surf)

	assert.Equal(t, "wl-test", surf.Title)
	assert.Equal(t, StateConfigured, w.State())
	assert.Equal(t, []uint32{1}, surf.Acked)
	assert.Equal(t, 1, surf.Commits)
	assert.Equal(t, 1, surf.EmptyCommits)
	assert.Empty(t, surf.Attached)
	assert.False(t, w.ShouldClose())

	width, height := w.Size()
	assert.Equal(t, 4, width)
	assert.Equal(t, 4, height)

	require.NotNil(t, w.Pool())
	assert.Equal(t, 2, w.Pool().Cap())
	assert.Equal(t, 16, w.Pool().Config().Stride)
}

func TestNew_SetupErrorWhenNoConfigureArrives(t *testing.T) {
	conn := displaytest.NewConn()
	conn.AutoConfigure = false
	alloc := &displaytest.Allocator{}

	w, err := New(conn, alloc, testConfig())
	assert.Nil(t, w)
	assert.ErrorIs(t, err, display.ErrSetup)
	assert.ErrorIs(t, err, displaytest.ErrIdle)
	assert.True(t, conn.Surface().Destroyed)
	assert.Empty(t, conn.Pools)
	assert.Empty(t, alloc.Regions)
}

func TestNew_SurfaceCreationFails(t *testing.T) {
	conn := displaytest.NewConn()
	conn.CreateSurfaceErr = errors.New("no xdg_wm_base")

	_, err := New(conn, &displaytest.Allocator{}, testConfig())
	assert.ErrorIs(t, err, display.ErrSetup)
	assert.Empty(t, conn.Surfaces)
}

func TestNew_UnsupportedFormat(t *testing.T) {
	conn := displaytest.NewConn()
	conn.Formats = []display.Format{display.FormatARGB8888}
	alloc := &displaytest.Allocator{}

	_, err := New(conn, alloc, testConfig())
	assert.ErrorIs(t, err, display.ErrSetup)
	assert.Contains(t, err.Error(), "xrgb8888")
	assert.True(t, conn.Surface().Destroyed)
	assert.Empty(t, alloc.Regions)
}

func TestNew_AllocationFailureReleasesSurface(t *testing.T) {
	conn := displaytest.NewConn()
	alloc := &displaytest.Allocator{Err: errors.New("memfd_create: EMFILE")}

	w, err := New(conn, alloc, testConfig())
	assert.Nil(t, w)
	assert.ErrorIs(t, err, display.ErrAllocation)
	assert.True(t, conn.Surface().Destroyed)
	assert.Empty(t, conn.Pools)
	assert.Zero(t, alloc.Live())
}

func TestNew_BufferRegistrationFailure(t *testing.T) {
	conn := displaytest.NewConn()
	conn.FailBufferAt = 1
	alloc := &displaytest.Allocator{}

	_, err := New(conn, alloc, testConfig())
	assert.ErrorIs(t, err, display.ErrProtocol)
	assert.True(t, conn.Surface().Destroyed)
	assert.True(t, conn.Pools[0].Destroyed)
	assert.Zero(t, alloc.Live())
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := map[string]func(*Config){
		"no buffers":    func(c *Config) { c.Buffers = 0 },
		"row overflows": func(c *Config) {
			// Width*4 wraps around.
			c.Width = math.MaxInt/2 + 1
			c.Height = 2
		},
		"too large":     func(c *Config) { c.Width, c.Height = 60000, 60000 },
	}
	for name, modify := range tests {
		t.Run(name, func(t *testing.T) {
			conn := displaytest.NewConn()
			alloc := &displaytest.Allocator{}
			cfg := testConfig()
			modify(&cfg)

			_, err := New(conn, alloc, cfg)
			assert.ErrorIs(t, err, display.ErrConfig)
			assert.Empty(t, conn.Surfaces)
			assert.Empty(t, alloc.Regions)
		})
	}
}

func TestPresent(t *testing.T) {
	w, conn, _ := newTestWindow(t)
	surf := conn.Surface()
	slot := w.Pool().Slot(0)

	require.NoError(t, w.Present(slot))
	assert.True(t, slot.Busy())
	assert.False(t, w.Pool().Slot(1).Busy())
	assert.Same(t, conn.Pools[0].Buffers[0], surf.Current())
	assert.Equal(t, []displaytest.Rect{{X: 0, Y: 0, Width: math.MaxInt32, Height: math.MaxInt32}}, surf.Damaged)
	assert.Equal(t, 2, surf.Commits)
	assert.Equal(t, 1, surf.EmptyCommits)
}

func TestPresent_BusySlot(t *testing.T) {
	w, conn, _ := newTestWindow(t)
	slot := w.Pool().Slot(0)
	require.NoError(t, w.Present(slot))

	err := w.Present(slot)
	assert.ErrorIs(t, err, bufpool.ErrSlotBusy)
	assert.Len(t, conn.Surface().Attached, 1)
	assert.Equal(t, 2, conn.Surface().Commits)
}

func TestPresent_ForeignSlot(t *testing.T) {
	w, conn, _ := newTestWindow(t)
	other, _, _ := newTestWindow(t)

	for _, slot := range []*bufpool.Slot{nil, {}, other.Pool().Slot(0)} {
		assert.ErrorIs(t, w.Present(slot), ErrForeignSlot)
	}
	assert.Empty(t, conn.Surface().Attached)
	assert.Equal(t, 1, conn.Surface().Commits)
	assert.Zero(t, w.Pool().Busy())
	assert.Zero(t, other.Pool().Busy())
}

func TestShouldClose_Latches(t *testing.T) {
	w, conn, _ := newTestWindow(t)
	surf := conn.Surface()
	assert.False(t, w.ShouldClose())

	surf.SendClose()
	require.NoError(t, conn.Dispatch())
	assert.True(t, w.ShouldClose())
	assert.Equal(t, StateClosing, w.State())

	surf.SendClose()
	surf.SendConfigure()
	surf.SendToplevelConfigure(10, 10)
	require.NoError(t, conn.Dispatch())
	assert.True(t, w.ShouldClose())
	assert.Equal(t, StateClosing, w.State())
}

func TestClose_BeforeFirstConfigure(t *testing.T) {
	conn := displaytest.NewConn()
	conn.AutoConfigure = false
	alloc := &displaytest.Allocator{}

	// Queue close and configure so they arrive during New.
	conn.Queue(func() {
		s := conn.Surface()
		s.Listener.Close()
		s.SendConfigure()
	})
	w, err := New(conn, alloc, testConfig())
	require.NoError(t, err)
	defer w.Destroy()

	assert.True(t, w.ShouldClose())
	assert.Equal(t, StateClosing, w.State())
}

func TestReconfigure_RecommitsPresentedContent(t *testing.T) {
	w, conn, _ := newTestWindow(t)
	surf := conn.Surface()

	// Nothing presented yet: ack only.
	surf.SendConfigure()
	require.NoError(t, conn.Dispatch())
	assert.Equal(t, []uint32{1, 2}, surf.Acked)
	assert.Equal(t, 1, surf.Commits)

	require.NoError(t, w.Present(w.Pool().Slot(0)))
	surf.SendToplevelConfigure(640, 480)
	surf.SendConfigure()
	require.NoError(t, conn.Dispatch())

	assert.Equal(t, []uint32{1, 2, 3}, surf.Acked)
	assert.Equal(t, 3, surf.Commits)
	assert.Len(t, surf.Attached, 1)
	assert.Equal(t, StateConfigured, w.State())

	width, height := w.RequestedSize()
	assert.Equal(t, 640, width)
	assert.Equal(t, 480, height)
}

func TestDestroy(t *testing.T) {
	conn := displaytest.NewConn()
	alloc := &displaytest.Allocator{Log: conn.Log}
	w, err := New(conn, alloc, testConfig())
	require.NoError(t, err)
	surf := conn.Surface()
	require.Empty(t, conn.Log.Events)

	w.Destroy()
	w.Destroy()

	// The surface goes before the buffers attached to it.
	assert.Equal(t, []string{
		"surface.destroy",
		"buffer[0].destroy",
		"buffer[1].destroy",
		"shm_pool.destroy",
		"region.close",
	}, conn.Log.Events)

	assert.Equal(t, StateDestroyed, w.State())
	assert.True(t, surf.Destroyed)
	assert.True(t, conn.Pools[0].Destroyed)
	for _, b := range conn.Pools[0].Buffers {
		assert.True(t, b.Destroyed)
	}
	assert.Zero(t, alloc.Live())
	assert.Nil(t, w.Pool())

	assert.ErrorIs(t, w.Present(&bufpool.Slot{}), ErrDestroyed)
	_, err = w.RequestFrame(func(uint32) {})
	assert.ErrorIs(t, err, ErrDestroyed)
	w.Commit()

	// Late events are dropped.
	surf.SendConfigure()
	surf.SendClose()
	require.NoError(t, conn.Dispatch())
	assert.Equal(t, StateDestroyed, w.State())
	assert.Len(t, surf.Acked, 1)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "awaiting-configure", StateAwaitingConfigure.String())
	assert.Equal(t, "configured", StateConfigured.String())
	assert.Equal(t, "closing", StateClosing.String())
	assert.Equal(t, "destroyed", StateDestroyed.String())
	assert.Equal(t, "unknown", State(42).String())
}
