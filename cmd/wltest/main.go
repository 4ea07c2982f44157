// Command wltest opens a Wayland window and animates a checkerboard in it,
// redrawing only when the compositor asks for a frame.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"honnef.co/go/wlwindow/internal/app"
	"honnef.co/go/wlwindow/internal/config"
	"honnef.co/go/wlwindow/internal/display"
	"honnef.co/go/wlwindow/internal/log"
	"honnef.co/go/wlwindow/internal/shm"
	"honnef.co/go/wlwindow/internal/wlclient"
)

var (
	configPath  string
	logLevel    string
	displayName string
)

var rootCmd = &cobra.Command{
	Use:           "wltest",
	Short:         "Show a frame-paced shm window",
	Long:          "Open an xdg toplevel backed by a fixed pool of shared-memory buffers and redraw it on every frame callback until the compositor closes it.",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runWindow,
}

var globalsCmd = &cobra.Command{
	Use:   "globals",
	Short: "List the globals the compositor advertises",
	Args:  cobra.NoArgs,
	RunE:  runGlobals,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default ~/.config/wlwindow/config.yaml)")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&displayName, "display", "", "Wayland socket name (default $WAYLAND_DISPLAY)")

	f := rootCmd.Flags()
	f.String("title", "", "window title")
	f.Int("width", 0, "window width in pixels")
	f.Int("height", 0, "window height in pixels")
	f.Int("buffers", 0, "number of shm buffers")
	f.String("pattern", "", "static or animated")

	rootCmd.AddCommand(globalsCmd)
}

// loadConfig reads the config file and applies the flags that were set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, display.Wrap(display.ErrConfig, err, "loading config")
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("display") {
		cfg.Display = displayName
	}
	if flags.Changed("title") {
		cfg.Title, _ = flags.GetString("title")
	}
	if flags.Changed("width") {
		cfg.Width, _ = flags.GetInt("width")
	}
	if flags.Changed("height") {
		cfg.Height, _ = flags.GetInt("height")
	}
	if flags.Changed("buffers") {
		cfg.Buffers, _ = flags.GetInt("buffers")
	}
	if flags.Changed("pattern") {
		cfg.Pattern, _ = flags.GetString("pattern")
	}

	if err := log.SetLevel(cfg.LogLevel); err != nil {
		return nil, display.Wrap(display.ErrConfig, err, "log level")
	}
	return cfg, nil
}

func dial(name string) (display.Conn, error) {
	c, err := wlclient.Dial(name)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func runWindow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.New(cfg, dial, shm.Allocator{}).Main(ctx)
}

func runGlobals(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	globals, err := wlclient.ListGlobals(cfg.Display)
	if err != nil {
		return err
	}
	for _, g := range globals {
		fmt.Printf("%4d  %-40s v%d\n", g.Name, g.Interface, g.Version)
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
