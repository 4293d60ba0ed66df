package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tools.zach/dev/clockcord/internal/attendance"
	"tools.zach/dev/clockcord/internal/config"
	"tools.zach/dev/clockcord/internal/ledger"
)

var (
	historyUsers []string
	historyDays  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print time worked per user and day",
	Long: `Print the ledger without connecting to Discord. Users are listed by ID;
history.exclude and history.max_days from the config apply.`,
	Example: `  clockcord history
  clockcord history --user 123456789012345678 --days 7`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringSliceVarP(&historyUsers, "user", "u", nil, "Only show these user IDs")
	historyCmd.Flags().IntVar(&historyDays, "days", -1, "Most recent days per user (0 = all, default from config)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	dp := DataPaths{Root: dataDir}
	cfg, err := config.Load(dp.Root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	led, err := ledger.Load(cfg.LedgerPath(dp.Root), ledger.Options{LegacyLayouts: cfg.Ledger.LegacyDateLayouts})
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	maxDays := cfg.History.MaxDays
	if historyDays >= 0 {
		maxDays = historyDays
	}
	history := led.History(ledger.HistoryOptions{
		Exclude: cfg.HistoryExcluded,
		Only:    historyUsers,
		MaxDays: maxDays,
	})
	printHistory(cmd.OutOrStdout(), history)
	return nil
}

// printHistory writes one block per user with a per-day breakdown and a
// total.
func printHistory(w io.Writer, history []ledger.UserHistory) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow)

	if len(history) == 0 {
		yellow.Fprintln(w, "No time recorded.")
		return
	}

	for i, h := range history {
		if i > 0 {
			fmt.Fprintln(w)
		}
		cyan.Fprint(w, h.Name)
		if h.Name != h.UserID {
			fmt.Fprintf(w, " (ID: %s)", h.UserID)
		}
		fmt.Fprintln(w)
		for _, d := range h.Days {
			fmt.Fprintf(w, "  %s  %s\n", d.Day, attendance.FormatDuration(d.Total))
		}
		green.Fprintf(w, "  total       %s\n", attendance.FormatDuration(h.Sum()))
	}
}

