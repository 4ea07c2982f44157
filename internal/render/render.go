// Package render has the pixel patterns the test client can show.
package render

import (
	"sort"

	"github.com/pkg/errors"

	"honnef.co/go/wlwindow/internal/window"
)

const (
	Gray      = 0xFF666666
	LightGray = 0xFFEEEEEE
	Black     = 0xFF000000
	White     = 0xFFFFFFFF
)

// cell is the checkerboard square size in pixels.
const cell = 8

func dark(x, y int) bool {
	return (x+y/cell*cell)%(2*cell) < cell
}

// Checkerboard draws the same board every frame.
func Checkerboard(darkColor, lightColor uint32) window.Renderer {
	return func(pix []uint32, width, height, stride int, _ uint32) {
		for y := 0; y < height; y++ {
			row := pix[y*stride : y*stride+width]
			for x := range row {
				if dark(x, y) {
					row[x] = darkColor
				} else {
					row[x] = lightColor
				}
			}
		}
	}
}

// Animated draws a board whose dark squares cycle through shades of green
// with the frame time.
func Animated() window.Renderer {
	return func(pix []uint32, width, height, stride int, time uint32) {
		shade := Black | (time%256)<<8
		for y := 0; y < height; y++ {
			row := pix[y*stride : y*stride+width]
			for x := range row {
				if dark(x, y) {
					row[x] = shade
				} else {
					row[x] = White
				}
			}
		}
	}
}

var patterns = map[string]func() window.Renderer{
	"static":   func() window.Renderer { return Checkerboard(Gray, LightGray) },
	"animated": Animated,
}

// Names lists the patterns ByName knows.
func Names() []string {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ByName(name string) (window.Renderer, error) {
	fn, ok := patterns[name]
	if !ok {
		return nil, errors.Errorf("unknown pattern %q, have %v", name, Names())
	}
	return fn(), nil
}
