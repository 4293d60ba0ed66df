package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tools.zach/dev/clockcord/internal/config"
	"tools.zach/dev/clockcord/internal/update"
)

var versionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the clockcord version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ver := resolveVersion()
		fmt.Fprintf(cmd.OutOrStdout(), "clockcord %s\n", ver)
		if !versionCheck {
			return nil
		}

		cfg, err := config.Load(dataDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Update.ManifestURL == "" {
			return fmt.Errorf("update.manifest_url is not set")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		latest, err := update.NewChecker(cfg.Update.ManifestURL).Newer(ctx, ver)
		if err != nil {
			return fmt.Errorf("check for updates: %w", err)
		}
		if latest == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "up to date")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "new version available: %s\n", latest)
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "Also check the release manifest for a newer version")
	rootCmd.AddCommand(versionCmd)
}
