package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bryanchriswhite/nicotine/internal/api"
	"github.com/bryanchriswhite/nicotine/internal/cycle"
	"github.com/bryanchriswhite/nicotine/internal/indexfile"
	"github.com/bryanchriswhite/nicotine/internal/ipc"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's current selection",
	Long: `Show whether the daemon is running, the published index and, when the
status socket is enabled, the full cycle list.`,
	Example: `  nicotine status
  nicotine status --format json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var statusFormat string

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "table", "output format (table or json)")
}

type statusReport struct {
	Running bool              `json:"running"`
	Socket  string            `json:"socket"`
	Index   *indexfile.Record `json:"index,omitempty"`
	State   *cycle.Snapshot   `json:"state,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg := configMgr.Get()

	report := statusReport{
		Running: ipc.Running(cfg.SocketPath),
		Socket:  cfg.SocketPath,
	}
	if rec, err := indexfile.Read(cfg.IndexPath); err == nil {
		report.Index = &rec
	}
	if cfg.Status.Enabled && report.Running {
		ctx, cancel := context.WithTimeout(context.Background(), ipc.DefaultTimeout)
		defer cancel()
		if snap, err := api.NewClient(cfg.Status.SocketPath).State(ctx); err == nil {
			report.State = &snap
		}
	}

	switch statusFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	case "table":
		return printStatus(report)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", statusFormat)
	}
}

func printStatus(r statusReport) error {
	if !r.Running {
		fmt.Printf("Daemon:   not running (%s)\n", r.Socket)
	} else {
		fmt.Printf("Daemon:   running (%s)\n", r.Socket)
	}
	if r.Index != nil {
		fmt.Printf("Index:    %d (generation %d)\n", r.Index.Index, r.Index.Generation)
	}
	if r.State == nil {
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "\t#\tTITLE\tID\tMONITOR")
	fmt.Fprintln(w, "\t-\t-----\t--\t-------")
	for i, win := range r.State.Windows {
		marker := ""
		if i == r.State.Index {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", marker, win.Ordinal, win.Title, win.HexID(), win.Monitor)
	}
	return nil
}
