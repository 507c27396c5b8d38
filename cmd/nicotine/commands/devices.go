package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/bryanchriswhite/nicotine/internal/input"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List input devices",
	Long: `List the input devices the kernel reports, with the evdev node to use
for mouse.device_path or keyboard.device_path.

Reading the devices themselves usually needs membership of the "input" group.`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

var devicesFormat string

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.Flags().StringVarP(&devicesFormat, "format", "f", "table", "output format (table or json)")
}

func runDevices(cmd *cobra.Command, args []string) error {
	devices, err := input.ListDevices()
	if err != nil {
		return err
	}

	switch devicesFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(devices)
	case "table":
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", devicesFormat)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "PATH\tKIND\tNAME")
	fmt.Fprintln(w, "----\t----\t----")
	for _, d := range devices {
		if d.Path == "" {
			continue
		}
		var kinds []string
		if d.IsMouse() {
			kinds = append(kinds, "mouse")
		}
		if d.IsKeyboard() {
			kinds = append(kinds, "keyboard")
		}
		kind := strings.Join(kinds, ",")
		if kind == "" {
			kind = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Path, kind, d.Name)
	}
	return nil
}
