package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ULilBagel/ublue-rebase-tool/internal/config"
	"github.com/ULilBagel/ublue-rebase-tool/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage tool configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgPath
		if path == "" {
			path = config.DefaultPath()
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderSuccess(ui.IconOK), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			return outputJSON(cfg)
		}
		fmt.Println(ui.RenderHeading("Configuration"))
		fmt.Printf("  %s %s\n", ui.RenderMuted("History:"), cfg.HistoryPath)
		fmt.Printf("  %s %s\n", ui.RenderMuted("Lock:"), cfg.LockPath)
		fmt.Printf("  %s %s\n", ui.RenderMuted("Default branch:"), cfg.DefaultBranch)
		fmt.Println(ui.RenderHeading("Registries"))
		for _, r := range cfg.Allowlist().Registries {
			fmt.Printf("  %s\n", r.Prefix)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
