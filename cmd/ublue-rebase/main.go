// ublue-rebase is a guarded front end for rpm-ostree rebase and
// rollback on image-based Fedora systems. Every mutating command is
// validated against an allow-list, confirmed, executed with streamed
// progress, and recorded in the operation history.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ULilBagel/ublue-rebase-tool/internal/config"
	"github.com/ULilBagel/ublue-rebase-tool/internal/telemetry"
	"github.com/ULilBagel/ublue-rebase-tool/internal/ui"
)

var (
	cfgPath     string
	jsonOutput  bool
	verboseFlag bool
	noColor     bool
	assumeYes   bool

	cfg    *config.Config
	logger *slog.Logger

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "ublue-rebase",
	Short: "ublue-rebase - safe rebase and rollback for image-based systems",
	Long: `A guarded front end for rpm-ostree on Universal Blue and Fedora
atomic systems. Rebase to a new image, roll back to a previous
deployment, and browse registry tags, with every privileged command
validated, confirmed, and recorded.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		level := slog.LevelWarn
		if verboseFlag {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if noColor || cfg.NoColor {
			ui.DisableColor()
		}

		if err := telemetry.Init(rootCtx, "ublue-rebase", Version); err != nil {
			logger.Warn("telemetry init failed", "error", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
		if rootCancel != nil {
			rootCancel()
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default: ~/.config/ublue-rebase-tool/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable styled output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderError(err.Error()))
		os.Exit(1)
	}
}
