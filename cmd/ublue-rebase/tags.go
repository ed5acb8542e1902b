package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ULilBagel/ublue-rebase-tool/internal/registry"
	"github.com/ULilBagel/ublue-rebase-tool/internal/ui"
)

var (
	tagsBranch string
	tagsLimit  int
)

var tagsCmd = &cobra.Command{
	Use:   "tags [registry/image]",
	Short: "Browse available image tags",
	Long: `Lists published tags for an allow-listed image using skopeo. With no
argument the permitted registries are listed instead.

Examples:
  ublue-rebase tags
  ublue-rebase tags ghcr.io/ublue-os/bluefin
  ublue-rebase tags ghcr.io/ublue-os/aurora --branch testing`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := registry.NewManager(cfg.Allowlist(), logger)

		if len(args) == 0 {
			regs := mgr.Registries()
			if jsonOutput {
				return outputJSON(regs)
			}
			fmt.Println(ui.RenderHeading("Allowed registries"))
			for _, r := range regs {
				fmt.Printf("  %s  %s\n", r.Prefix, ui.RenderMuted(strings.Join(r.Images, ", ")))
			}
			return nil
		}

		// Registry prefixes contain an org segment, so the image name is
		// everything after the last slash.
		idx := strings.LastIndex(args[0], "/")
		if idx <= 0 || idx == len(args[0])-1 {
			return fmt.Errorf("expected registry/image, got %q", args[0])
		}
		reg, image := args[0][:idx], args[0][idx+1:]

		branch := tagsBranch
		if branch == "" {
			branch = cfg.DefaultBranch
		}
		images, err := mgr.ListImages(rootCtx, reg, image, branch)
		if err != nil {
			return err
		}
		if tagsLimit > 0 && len(images) > tagsLimit {
			images = images[:tagsLimit]
		}

		if jsonOutput {
			return outputJSON(images)
		}
		if len(images) == 0 {
			fmt.Println(ui.RenderMuted("No matching tags."))
			return nil
		}
		fmt.Println(ui.RenderHeading(fmt.Sprintf("%s/%s (%s)", reg, image, branch)))
		for _, img := range images {
			date := ""
			if !img.Date.IsZero() {
				date = img.Date.Format("2006-01-02")
			}
			fmt.Printf("  %-40s %s\n", img.Tag, ui.RenderMuted(date))
		}
		fmt.Println(ui.RenderMuted("Rebase with: ublue-rebase rebase " + images[0].FullRef()))
		return nil
	},
}

func init() {
	tagsCmd.Flags().StringVar(&tagsBranch, "branch", "", "Branch filter (stable|testing|prefix; default from config)")
	tagsCmd.Flags().IntVarP(&tagsLimit, "limit", "n", 20, "Maximum tags to show (0 for all)")
	rootCmd.AddCommand(tagsCmd)
}
