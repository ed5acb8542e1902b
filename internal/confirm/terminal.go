package confirm

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/ULilBagel/ublue-rebase-tool/internal/ui"
)

// ErrNotInteractive is returned when a confirmation is required but no
// terminal is attached. The gate resolves as cancelled; a non-interactive
// caller must pass an explicit --assume-yes instead.
var ErrNotInteractive = errors.New("confirmation required but no interactive terminal is attached")

// TerminalPrompter renders the confirmation payload to a terminal and
// collects the decision with a huh confirm form.
type TerminalPrompter struct {
	Out io.Writer
	// IsTerminal overrides TTY detection. Test hook.
	IsTerminal func() bool
}

// NewTerminalPrompter builds a prompter writing to stdout.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{Out: os.Stdout}
}

func (p *TerminalPrompter) interactive() bool {
	if p.IsTerminal != nil {
		return p.IsTerminal()
	}
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Present renders title, description, warnings and the literal command,
// then asks for confirmation. Cancellation and form errors both resolve
// the gate as cancelled.
func (p *TerminalPrompter) Present(req Request, respond func(bool)) error {
	if !p.interactive() {
		respond(false)
		return ErrNotInteractive
	}

	fmt.Fprintln(p.Out, ui.RenderHeading(req.Title))
	if req.Description != "" {
		fmt.Fprintln(p.Out, req.Description)
	}
	for _, w := range req.Warnings {
		fmt.Fprintln(p.Out, ui.RenderWarn(ui.IconWarn+" "+w))
	}
	if len(req.Command) > 0 {
		fmt.Fprintln(p.Out, ui.RenderMuted("Command: "+req.CommandLine()))
	}
	if req.RequiresReboot {
		fmt.Fprintln(p.Out, ui.RenderWarn("A reboot is required to finish this operation."))
	}

	confirmed := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Proceed?").
			Affirmative("Proceed").
			Negative("Cancel").
			Value(&confirmed),
	))
	if err := form.Run(); err != nil {
		respond(false)
		return fmt.Errorf("confirmation prompt: %w", err)
	}
	respond(confirmed)
	return nil
}
