package commands

import (
	"context"
	"fmt"

	"github.com/bryanchriswhite/nicotine/internal/daemon"
	"github.com/bryanchriswhite/nicotine/internal/logger"
	"github.com/bryanchriswhite/nicotine/internal/window"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	Aliases: []string{"start"},
	Short:   "Start the nicotine daemon",
	Long: `Start the daemon: enumerate EVE client windows, listen for mouse and
keyboard bindings and accept commands on the control socket.

Only one daemon runs per control socket; a second one exits with an error.`,
	Example: `  # Start with the detected backend
  nicotine daemon

  # Force the X11 backend with debug logging
  nicotine daemon --backend x11 --log-level debug --pretty

  # Only accept socket commands
  nicotine daemon --no-mouse --no-keyboard`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

var (
	daemonNoMouse    bool
	daemonNoKeyboard bool
)

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().String("backend", "", "window backend (auto, x11, kwin, sway, hyprland)")
	daemonCmd.Flags().BoolVar(&daemonNoMouse, "no-mouse", false, "disable the mouse button listener")
	daemonCmd.Flags().BoolVar(&daemonNoKeyboard, "no-keyboard", false, "disable the keyboard listener")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := configMgr.BindFlag("backend", cmd.Flags().Lookup("backend")); err != nil {
		return err
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, pretty)

	log := logger.WithComponent("main")
	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	backend, err := window.NewBackend(cfg.Backend)
	if err != nil {
		return fmt.Errorf("failed to initialize window backend: %w", err)
	}

	d, err := daemon.New(cfg, backend, daemon.Options{
		NoMouse:    daemonNoMouse,
		NoKeyboard: daemonNoKeyboard,
	})
	if err != nil {
		backend.Close()
		return err
	}

	log.Info().Msg("nicotine is running, press Ctrl+C to stop")
	return d.Run(context.Background())
}
