package commands

import (
	"fmt"
	"regexp"

	"github.com/bryanchriswhite/nicotine/internal/window"
	"github.com/spf13/cobra"
)

var patternCmd = &cobra.Command{
	Use:   "pattern",
	Short: "Manage window exclude patterns",
	Long: `Add or remove regex patterns that keep windows out of the cycle list.

Patterns are matched against the full window title, before the EVE prefix is
removed. The default pattern excludes the launcher.`,
}

var patternAddCmd = &cobra.Command{
	Use:   "add PATTERN",
	Short: "Add an exclude pattern",
	Long:  `Add a regex pattern; matching windows are never cycled to.`,
	Example: `  # Skip a market alt
  nicotine pattern add "Trader$"

  # Skip every window mentioning "Launcher"
  nicotine pattern add "Launcher"`,
	Args: cobra.ExactArgs(1),
	RunE: runPatternAdd,
}

var patternRemoveCmd = &cobra.Command{
	Use:   "remove PATTERN",
	Short: "Remove an exclude pattern",
	Long:  `Remove a regex pattern from the exclude list.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runPatternRemove,
}

var patternListCmd = &cobra.Command{
	Use:   "list",
	Short: "List exclude patterns",
	Long:  `Display all configured exclude patterns.`,
	RunE:  runPatternList,
}

var patternTestCmd = &cobra.Command{
	Use:   "test TITLE...",
	Short: "Show whether window titles would be cycled",
	Long: `Run titles through the same prefix and exclude rules the daemon uses
and print the cycle title each one would get.`,
	Example: `  nicotine pattern test "EVE - Alpha" "EVE Launcher"`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runPatternTest,
}

func init() {
	rootCmd.AddCommand(patternCmd)
	patternCmd.AddCommand(patternAddCmd)
	patternCmd.AddCommand(patternRemoveCmd)
	patternCmd.AddCommand(patternListCmd)
	patternCmd.AddCommand(patternTestCmd)
}

func runPatternAdd(cmd *cobra.Command, args []string) error {
	pattern := args[0]

	// Validate regex
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("invalid regex pattern: %w", err)
	}

	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := configMgr.AddExcludePattern(pattern); err != nil {
		return fmt.Errorf("failed to add pattern: %w", err)
	}

	fmt.Printf("Added exclude pattern %q\n", pattern)
	fmt.Println("Restart the daemon to apply it.")
	return nil
}

func runPatternRemove(cmd *cobra.Command, args []string) error {
	pattern := args[0]

	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := configMgr.RemoveExcludePattern(pattern); err != nil {
		return fmt.Errorf("failed to remove pattern: %w", err)
	}

	fmt.Printf("Removed exclude pattern %q\n", pattern)
	fmt.Println("Restart the daemon to apply it.")
	return nil
}

func runPatternList(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	w := configMgr.Get().Window
	fmt.Printf("prefix  %q\n", w.TitlePrefix)
	for _, pattern := range w.ExcludePatterns {
		fmt.Printf("exclude %s\n", pattern)
	}
	return nil
}

func runPatternTest(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	src, err := window.NewSource(nil, configMgr.Get().Window, nil)
	if err != nil {
		return err
	}

	for i, title := range args {
		selected := src.Select([]window.Window{{Handle: uint64(i + 1), Title: title}})
		if len(selected) == 0 {
			fmt.Printf("%-40q skipped\n", title)
			continue
		}
		fmt.Printf("%-40q cycled as %q\n", title, selected[0].Title)
	}
	return nil
}
