package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ULilBagel/ublue-rebase-tool/internal/deployment"
	"github.com/ULilBagel/ublue-rebase-tool/internal/orchestrator"
	"github.com/ULilBagel/ublue-rebase-tool/internal/ui"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback [deployment-id]",
	Short: "Roll back to a previous deployment",
	Long: `Switches the next boot to an existing deployment. With no argument
the first non-booted deployment is targeted, which matches
rpm-ostree's own rollback behavior. Deployment IDs may be
abbreviated to any unique prefix.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, _, err := buildOrchestrator()
		if err != nil {
			return err
		}

		var target string
		if len(args) == 1 {
			target = args[0]
		} else {
			client := deployment.NewClient(logger)
			deployments, err := client.List(rootCtx)
			if err != nil {
				return err
			}
			found := false
			for _, d := range deployments {
				if !d.Booted {
					target = d.ID
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("no rollback candidate: only one deployment exists")
			}
		}

		if !jsonOutput {
			fmt.Println(ui.RenderHeading("Rollback"))
		}
		inv := orch.Dispatch(rootCtx, orchestrator.RollbackOperation{DeploymentID: target})
		return reportOutcome(inv.Wait())
	},
}

func init() {
	rollbackCmd.Flags().BoolVarP(&assumeYes, "assume-yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(rollbackCmd)
}
