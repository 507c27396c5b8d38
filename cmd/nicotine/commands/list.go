package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bryanchriswhite/nicotine/internal/window"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List EVE client windows",
	Long: `List the client windows nicotine would cycle through, in cycle order.

This command talks to the display server directly and works without a
running daemon.`,
	Example: `  # List clients in table format (default)
  nicotine list

  # List clients in JSON format
  nicotine list --format json

  # List every window the backend reports, unfiltered
  nicotine list --all`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var (
	listFormat  string
	listAll     bool
	listBackend string
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table or json)")
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "show all windows, not only EVE clients")
	listCmd.Flags().StringVar(&listBackend, "backend", "", "window backend (default from config)")
}

func runList(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg := configMgr.Get()

	name := cfg.Backend
	if listBackend != "" {
		name = listBackend
	}
	backend, err := window.NewBackend(name)
	if err != nil {
		return fmt.Errorf("failed to connect to display server: %w", err)
	}
	defer backend.Close()

	order, err := window.LoadOrderFile(cfg.Window.OrderFile)
	if err != nil {
		return err
	}
	source, err := window.NewSource(backend, cfg.Window, order)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var windows []window.Window
	if listAll {
		windows, err = backend.Enumerate(ctx)
	} else {
		windows, err = source.Enumerate(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to enumerate windows: %w", err)
	}

	active, _ := backend.ActiveWindow(ctx)

	switch listFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(windows)
	case "table":
		return printWindowsTable(windows, active)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", listFormat)
	}
}

func printWindowsTable(windows []window.Window, active uint64) error {
	if len(windows) == 0 {
		fmt.Println("No client windows found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "#\tTITLE\tID\tMONITOR\tFOCUSED")
	fmt.Fprintln(w, "-\t-----\t--\t-------\t-------")

	for i, win := range windows {
		focused := "No"
		if win.Handle == active {
			focused = "Yes"
		}
		ordinal := win.Ordinal
		if ordinal == 0 {
			ordinal = i + 1
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", ordinal, win.Title, win.HexID(), win.Monitor, focused)
	}

	return nil
}
