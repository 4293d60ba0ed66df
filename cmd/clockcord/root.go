package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	dataDir   string
	logStderr bool
)

// rootCmd runs the daemon when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "clockcord",
	Short: "clockcord - Discord voice-channel attendance tracker",
	Long: `clockcord clocks users in with a slash command, tracks pauses from the
buttons on their status message, clocks them out when they leave the
attendance voice channel, and records time worked per user and day.`,
	SilenceUsage: true,
	RunE:         runDaemon,
}

func init() {
	rootCmd.Version = resolveVersion()
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", defaultDataDir(), "Data directory for config, ledger and logs")
	rootCmd.Flags().BoolVar(&logStderr, "log-stderr", false, "Also write log lines to stderr")
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
