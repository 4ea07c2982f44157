package wlclient

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"honnef.co/go/wlwindow/internal/display"
)

func TestChoose(t *testing.T) {
	gs := globalSet{
		7:  {Name: 7, Interface: "wl_shm", Version: 2},
		3:  {Name: 3, Interface: "wl_compositor", Version: 6},
		12: {Name: 12, Interface: "wl_output", Version: 4},
		5:  {Name: 5, Interface: "wl_shm", Version: 1},
	}

	found, missing := gs.choose("wl_compositor", "wl_shm", "xdg_wm_base")
	assert.Equal(t, []string{"xdg_wm_base"}, missing)
	assert.Equal(t, uint32(3), found["wl_compositor"].Name)
	assert.Equal(t, uint32(5), found["wl_shm"].Name)
	assert.NotContains(t, found, "xdg_wm_base")

	err := missingError(missing)
	assert.ErrorIs(t, err, display.ErrProtocol)
	assert.Contains(t, err.Error(), "xdg_wm_base")
}

func TestChoose_NothingAdvertised(t *testing.T) {
	found, missing := globalSet{}.choose("wl_compositor", "wl_shm", "xdg_wm_base")
	assert.Empty(t, found)
	assert.Equal(t, []string{"wl_compositor", "wl_shm", "xdg_wm_base"}, missing)
	assert.Contains(t, missingError(missing).Error(), "wl_compositor, wl_shm, xdg_wm_base")
}

func TestSorted(t *testing.T) {
	gs := globalSet{
		9: {Name: 9, Interface: "b"},
		1: {Name: 1, Interface: "a"},
		4: {Name: 4, Interface: "c"},
	}
	var names []uint32
	for _, g := range gs.sorted() {
		names = append(names, g.Name)
	}
	assert.Equal(t, []uint32{1, 4, 9}, names)
}

func TestClampVersion(t *testing.T) {
	assert.Equal(t, uint32(1), clampVersion(1, 4))
	assert.Equal(t, uint32(4), clampVersion(4, 4))
	assert.Equal(t, uint32(4), clampVersion(6, 4))
}
