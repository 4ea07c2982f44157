// Package config loads the test client's settings from YAML.
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"honnef.co/go/wlwindow/internal/bufpool"
	"honnef.co/go/wlwindow/internal/display"
	"honnef.co/go/wlwindow/internal/render"
)

type Config struct {
	Title   string `yaml:"title"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	Buffers int    `yaml:"buffers"`
	// Format is xrgb8888 or argb8888.
	Format  string `yaml:"format"`
	Pattern string `yaml:"pattern"`
	// Display is the socket name; empty means $WAYLAND_DISPLAY.
	Display  string `yaml:"display"`
	LogLevel string `yaml:"log_level"`
}

func DefaultConfig() *Config {
	return &Config{
		Title:    "wl-test",
		Width:    800,
		Height:   600,
		Buffers:  2,
		Format:   "xrgb8888",
		Pattern:  "animated",
		LogLevel: "info",
	}
}

var formats = map[string]display.Format{
	"argb8888": display.FormatARGB8888,
	"xrgb8888": display.FormatXRGB8888,
}

// PixelFormat maps Format to its wl_shm code.
func (c *Config) PixelFormat() (display.Format, error) {
	f, ok := formats[strings.ToLower(c.Format)]
	if !ok {
		return 0, errors.Errorf("unknown pixel format %q", c.Format)
	}
	return f, nil
}

func (c *Config) Validate() error {
	if c.Width < 1 || c.Height < 1 {
		return errors.Errorf("size must be at least 1x1, got %dx%d", c.Width, c.Height)
	}
	if c.Buffers < 1 {
		return errors.Errorf("buffers must be at least 1, got %d", c.Buffers)
	}
	// The window's pool is Buffers slots of tightly packed rows.
	pool := bufpool.Config{
		Capacity: c.Buffers,
		Width:    c.Width,
		Height:   c.Height,
		Stride:   c.Width * display.BytesPerPixel,
	}
	if err := pool.Validate(); err != nil {
		return err
	}
	if _, err := c.PixelFormat(); err != nil {
		return err
	}
	if _, err := render.ByName(c.Pattern); err != nil {
		return err
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(homeDir, ".config", "wlwindow", "config.yaml"), nil
}

// LoadFromPath reads path over the defaults. A missing file yields the
// defaults; unknown keys are an error.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return cfg, nil
}
