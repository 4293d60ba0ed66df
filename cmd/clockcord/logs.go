package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tools.zach/dev/clockcord/internal/logger"
)

var logLines int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the end of the daemon log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dp := DataPaths{Root: dataDir}
		tail, err := logger.ReadTail(dp.Log(), logLines)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("no log file at %s (has the daemon run?)", dp.Log())
			}
			return err
		}
		if tail != "" {
			fmt.Fprintln(cmd.OutOrStdout(), tail)
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().IntVarP(&logLines, "lines", "n", 50, "Number of lines to print")
	rootCmd.AddCommand(logsCmd)
}
