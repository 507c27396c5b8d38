package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bryanchriswhite/nicotine/internal/ipc"
	"github.com/spf13/cobra"
)

var forwardCmd = &cobra.Command{
	Use:     "forward",
	Aliases: []string{"f", "next"},
	Short:   "Focus the next client",
	Args:    cobra.NoArgs,
	RunE:    sendVerb("forward"),
}

var backwardCmd = &cobra.Command{
	Use:     "backward",
	Aliases: []string{"b", "prev"},
	Short:   "Focus the previous client",
	Args:    cobra.NoArgs,
	RunE:    sendVerb("backward"),
}

var targetCmd = &cobra.Command{
	Use:   "target N",
	Short: "Focus the N-th client",
	Long: `Focus the N-th client, counting from 1 in cycle order.

A number past the end of the list is ignored. "nicotine N" is a shorthand.`,
	Example: `  nicotine target 2
  nicotine 2`,
	Args: cobra.ExactArgs(1),
	RunE: runTarget,
}

var stackCmd = &cobra.Command{
	Use:   "stack",
	Short: "Stack all clients at the configured geometry",
	Args:  cobra.NoArgs,
	RunE:  sendVerb(ipc.VerbStack),
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-enumerate client windows now",
	Args:  cobra.NoArgs,
	RunE:  sendVerb(ipc.VerbRefresh),
}

func init() {
	rootCmd.AddCommand(forwardCmd)
	rootCmd.AddCommand(backwardCmd)
	rootCmd.AddCommand(targetCmd)
	rootCmd.AddCommand(stackCmd)
	rootCmd.AddCommand(refreshCmd)
}

func sendVerb(verb string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return send(cmd, verb)
	}
}

func runTarget(cmd *cobra.Command, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return fmt.Errorf("invalid window number %q: must be a positive integer", args[0])
	}
	return send(cmd, strconv.Itoa(n))
}

func send(cmd *cobra.Command, request string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	socket := configMgr.Get().SocketPath

	ctx, cancel := context.WithTimeout(context.Background(), ipc.DefaultTimeout)
	defer cancel()
	if err := ipc.Send(ctx, socket, request); err != nil {
		if !ipc.Running(socket) {
			return fmt.Errorf("daemon is not running (start it with 'nicotine daemon'): %w", err)
		}
		return err
	}
	return nil
}
