// Package cli implements the wakeboost command-line interface using Cobra.
// serve runs the daemon; the other commands talk to a running daemon over
// its local HTTP API or read the journal directly.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wakeboost",
	Short: "wakeboost: raise CPU frequency floors when the display wakes",
	Long: `wakeboost forces every online CPU's minimum frequency to the hardware
maximum for a short window after the display turns on, then hands the
floor back to the governor. Blanking the display ends the window early.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var apiAddr string

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", "", "Daemon address host:port (default from config)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
