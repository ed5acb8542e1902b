package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ULilBagel/ublue-rebase-tool/internal/orchestrator"
	"github.com/ULilBagel/ublue-rebase-tool/internal/ui"
)

var rebaseCmd = &cobra.Command{
	Use:   "rebase <image-ref>",
	Short: "Rebase the system to a different image",
	Long: `Validates the image reference against the registry allow-list, asks
for confirmation, and runs rpm-ostree rebase with streamed progress.
The current deployment is preserved and remains available for
rollback.

Examples:
  ublue-rebase rebase ghcr.io/ublue-os/bluefin:stable
  ublue-rebase rebase ghcr.io/ublue-os/bazzite:latest --assume-yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, _, err := buildOrchestrator()
		if err != nil {
			return err
		}
		if !jsonOutput {
			fmt.Println(ui.RenderHeading("Rebase"))
		}
		inv := orch.Dispatch(rootCtx, orchestrator.RebaseOperation{ImageRef: args[0]})
		return reportOutcome(inv.Wait())
	},
}

func init() {
	rebaseCmd.Flags().BoolVarP(&assumeYes, "assume-yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(rebaseCmd)
}
