// Package cli implements the concord client commands.
package cli

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/wzin/concord/internal/version"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "concord",
	Short:   "Small-group voice/video rooms over a full mesh of peer links",
	Long:    `Concord coordinates ephemeral voice/video rooms: the relay server tracks membership and forwards handshake messages, while each client connects directly to every other participant. Rooms are reachable only through unguessable identifiers.`,
	Version: version.Version,
}

// Execute runs the CLI. Called once from main.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
