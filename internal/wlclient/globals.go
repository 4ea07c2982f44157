package wlclient

import (
	"sort"
	"strings"

	"honnef.co/go/wlwindow/internal/display"
)

// Global is one entry of the registry.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// Highest versions this client knows how to speak.
const (
	compositorVersion = 4
	shmVersion        = 1
	xdgWmBaseVersion  = 5
)

type globalSet map[uint32]Global

func (gs globalSet) sorted() []Global {
	out := make([]Global, 0, len(gs))
	for _, g := range gs {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// choose picks, for every wanted interface, the global with the lowest
// name. It also returns the interfaces nobody advertised.
func (gs globalSet) choose(want ...string) (map[string]Global, []string) {
	found := make(map[string]Global, len(want))
	for _, g := range gs.sorted() {
		if _, ok := found[g.Interface]; ok {
			continue
		}
		for _, iface := range want {
			if g.Interface == iface {
				found[iface] = g
			}
		}
	}
	var missing []string
	for _, iface := range want {
		if _, ok := found[iface]; !ok {
			missing = append(missing, iface)
		}
	}
	return found, missing
}

func missingError(missing []string) error {
	return display.Wrapf(display.ErrProtocol, nil, "compositor lacks %s", strings.Join(missing, ", "))
}

func clampVersion(advertised, max uint32) uint32 {
	if advertised < max {
		return advertised
	}
	return max
}
