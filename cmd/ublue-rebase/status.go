package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ULilBagel/ublue-rebase-tool/internal/deployment"
	"github.com/ULilBagel/ublue-rebase-tool/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current deployments",
	Long: `Lists the host's deployments: the booted one, the pending one if an
operation is staged, and any rollback candidates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := deployment.NewClient(logger)
		deployments, err := client.List(rootCtx)
		if err != nil {
			if errors.Is(err, deployment.ErrStatusUnavailable) {
				// Degraded mode: the tool stays useful for history and
				// registry browsing even when rpm-ostree is unreachable.
				if jsonOutput {
					return outputJSON(map[string]any{"available": false, "error": err.Error()})
				}
				fmt.Println(ui.RenderWarn(ui.IconWarn + " Deployment status unavailable."))
				fmt.Println(ui.RenderMuted("  rpm-ostree could not be queried. History and tag browsing still work."))
				return nil
			}
			return err
		}

		if jsonOutput {
			infos := make([]deployment.Info, len(deployments))
			for i, d := range deployments {
				infos[i] = deployment.FormatInfo(d)
			}
			return outputJSON(map[string]any{"available": true, "deployments": infos})
		}

		for _, d := range deployments {
			info := deployment.FormatInfo(d)
			fmt.Println(ui.RenderHeading(info.Title))
			fmt.Printf("  %s %s\n", ui.RenderMuted("Image:"), info.ImageName)
			fmt.Printf("  %s %s\n", ui.RenderMuted("Version:"), info.Version)
			fmt.Printf("  %s %s\n", ui.RenderMuted("ID:"), info.ID)
			if info.Timestamp != "" {
				fmt.Printf("  %s %s\n", ui.RenderMuted("Deployed:"), info.Timestamp)
			}
			fmt.Printf("  %s %s\n", ui.RenderMuted("Status:"), ui.RenderBadges(info.Status))
			fmt.Println()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
