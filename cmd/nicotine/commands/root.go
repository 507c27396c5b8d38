package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/bryanchriswhite/nicotine/internal/config"
	"github.com/bryanchriswhite/nicotine/internal/logger"
	"github.com/bryanchriswhite/nicotine/internal/window"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	cfgFile  string
	logLevel string
	pretty   bool

	rootCmd = &cobra.Command{
		Use:   "nicotine [N]",
		Short: "nicotine - cycle focus between EVE Online clients",
		Long: `nicotine keeps an ordered list of EVE Online client windows and moves
focus between them on mouse buttons, hotkeys or commands sent to the daemon.

Features:
  • X11, KWin, Sway and Hyprland backends
  • Forward/backward cycling and direct selection by number
  • Mouse side buttons and keyboard bindings read from evdev
  • Character order file (characters.txt), reloaded on change
  • Window stacking
  • Index file and read-only status socket for overlays`,
		Example: `  # Start the daemon
  nicotine daemon

  # Focus the third client
  nicotine 3`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := logLevel
			if level == "" {
				// Client commands stay quiet unless asked
				level = "warn"
			}
			if !cmd.Flags().Changed("pretty") {
				pretty = term.IsTerminal(int(os.Stderr.Fd()))
			}
			logger.Init(level, pretty)
		},
		RunE: runRoot,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/nicotine/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "human-readable log output (default when stderr is a terminal)")
}

// runRoot handles the bare "nicotine N" shorthand for "nicotine target N"
func runRoot(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	if _, err := strconv.Atoi(args[0]); err != nil {
		return fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())
	}
	return runTarget(cmd, args)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// detectDisplay sizes a newly generated config file from the running display
func detectDisplay() (int, int, bool) {
	return window.DetectDisplaySize(context.Background())
}

// loadConfig opens the config manager and lets the global flags override
// the file.
func loadConfig(cmd *cobra.Command) (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile(), config.WithDisplayDetector(detectDisplay))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := configMgr.BindFlag("log_level", cmd.Flags().Lookup("log-level")); err != nil {
		return nil, err
	}
	return configMgr, nil
}
