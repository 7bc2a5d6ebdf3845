// Package cli wires the meet command line: joining a room and driving the
// call lifecycle from the terminal.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/BhargavShekhar/meet-p2p/internal/ui"
	"github.com/BhargavShekhar/meet-p2p/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "meet",
	Short:   "Peer-to-peer video calls over WebRTC",
	Long:    `Meet connects two peers in a named room and negotiates a direct WebRTC media session between them. The relay only carries signaling; media flows peer to peer.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
