package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ULilBagel/ublue-rebase-tool/internal/confirm"
	"github.com/ULilBagel/ublue-rebase-tool/internal/deployment"
	"github.com/ULilBagel/ublue-rebase-tool/internal/executor"
	"github.com/ULilBagel/ublue-rebase-tool/internal/history"
	"github.com/ULilBagel/ublue-rebase-tool/internal/orchestrator"
	"github.com/ULilBagel/ublue-rebase-tool/internal/progress"
	"github.com/ULilBagel/ublue-rebase-tool/internal/ui"
)

// buildOrchestrator assembles the full verb pipeline from the loaded
// config. With --assume-yes the confirmation gate resolves immediately;
// otherwise a terminal prompt is shown.
func buildOrchestrator() (*orchestrator.Orchestrator, *history.Ledger, error) {
	allow := cfg.Allowlist()

	ledger, err := history.Open(cfg.HistoryPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening history: %w", err)
	}

	tracker := progress.NewTracker(&progress.WriterSink{
		W:      os.Stdout,
		Render: ui.RenderMuted,
	})

	var prompter confirm.Prompter
	if assumeYes {
		prompter = confirm.StaticPrompter(true)
	} else {
		prompter = confirm.NewTerminalPrompter()
	}

	client := deployment.NewClient(logger)
	orch := orchestrator.New(orchestrator.Options{
		Allowlist: allow,
		Engine:    executor.New(allow, logger),
		Status:    client.List,
		Ledger:    ledger,
		Tracker:   tracker,
		Prompter:  prompter,
		LockPath:  cfg.LockPath,
		Logger:    logger,
	})
	return orch, ledger, nil
}

// reportOutcome prints the terminal outcome of an invocation and maps it
// to a process exit code via error return.
func reportOutcome(out orchestrator.Outcome) error {
	if jsonOutput {
		if err := outputJSON(map[string]any{
			"state":   out.State.String(),
			"success": out.State == orchestrator.StateCompleted && out.Result.Success,
			"message": out.Message,
			"remedy":  out.Remedy,
		}); err != nil {
			return err
		}
		switch {
		case out.State == orchestrator.StateRejected:
			return out.Err
		case out.State == orchestrator.StateCompleted && !out.Result.Success:
			return fmt.Errorf("operation failed")
		}
		return nil
	}

	switch out.State {
	case orchestrator.StateCompleted:
		if out.Result.Success {
			fmt.Println(ui.RenderSuccess(ui.IconOK + " Operation completed. Reboot to use the new deployment."))
			return nil
		}
		fmt.Println(ui.RenderError("Operation failed: " + out.Message))
		if out.Remedy != "" {
			fmt.Println(ui.RenderMuted("  " + out.Remedy))
		}
		return fmt.Errorf("operation failed")
	case orchestrator.StateCancelled:
		fmt.Println(ui.RenderWarn(ui.IconWarn + " " + out.Message))
		return nil
	case orchestrator.StateRejected:
		if out.Remedy != "" {
			fmt.Println(ui.RenderMuted("  " + out.Remedy))
		}
		return out.Err
	}
	return out.Err
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
