package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tools.zach/dev/clockcord/internal/config"
)

// errIncomplete is returned by check when the daemon could not start.
var errIncomplete = errors.New("configuration incomplete")

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration file",
	Long:  `Validate config.toml and report Discord settings the daemon cannot run without.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return checkConfig(cmd.OutOrStdout(), DataPaths{Root: dataDir})
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func checkConfig(w io.Writer, dp DataPaths) error {
	red := color.New(color.FgRed, color.Bold)
	green := color.New(color.FgGreen, color.Bold)

	cfg, err := config.Load(dp.Root)
	if err != nil {
		red.Fprintf(w, "✗ %s: %v\n", dp.Config(), err)
		return err
	}

	if missing := cfg.MissingDiscord(); len(missing) > 0 {
		red.Fprintf(w, "✗ %s is missing %d required setting(s):\n", dp.Config(), len(missing))
		for _, m := range missing {
			fmt.Fprintf(w, "   - %s\n", m)
		}
		return errIncomplete
	}

	green.Fprintf(w, "✓ configuration is valid: %s\n", dp.Config())
	fmt.Fprintf(w, "  ledger:  %s\n", cfg.LedgerPath(dp.Root))
	if cfg.Notify.Slack.Enabled() {
		fmt.Fprintln(w, "  slack:   enabled")
	}
	if cfg.Metrics.Listen != "" {
		fmt.Fprintf(w, "  metrics: http://%s/metrics\n", cfg.Metrics.Listen)
	}
	return nil
}
