// Package confirm implements the accept/cancel checkpoint between a
// validated operation and its privileged execution. A gate resolves
// exactly once; until it resolves with an explicit yes, nothing may be
// spawned.
package confirm

import (
	"errors"
	"strings"
	"sync"
)

// State is the gate's lifecycle position.
type State int

const (
	StatePending State = iota
	StateConfirmed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// ErrAlreadyOpened is returned when Open is called twice on one gate.
// Gates are single-shot; build a new one per operation.
var ErrAlreadyOpened = errors.New("confirmation gate already opened")

// Request is the material shown to the user before execution. Command is
// for display only; the argument vector actually executed travels
// separately through the orchestrator.
type Request struct {
	Title          string
	Description    string
	Command        []string
	Warnings       []string
	RequiresReboot bool
}

// CommandLine renders the display command.
func (r Request) CommandLine() string {
	return strings.Join(r.Command, " ")
}

// Prompter presents a confirmation request to the user-facing
// collaborator and reports the decision through respond. respond may be
// called from any goroutine; calls after the first are ignored by the
// gate.
type Prompter interface {
	Present(req Request, respond func(confirmed bool)) error
}

// Gate is the single-shot decision point. It holds no long-lived
// resources; once resolved it is discarded.
type Gate struct {
	mu       sync.Mutex
	state    State
	opened   bool
	resolved bool
	onDone   func(bool)
}

// NewGate returns a pending gate.
func NewGate() *Gate {
	return &Gate{state: StatePending}
}

// State reports the current gate state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Open presents the request through the prompter and registers onResolved
// to fire exactly once: true on explicit confirmation, false on explicit
// cancellation or dismissal. A prompter error counts as dismissal.
func (g *Gate) Open(req Request, prompter Prompter, onResolved func(confirmed bool)) error {
	g.mu.Lock()
	if g.opened {
		g.mu.Unlock()
		return ErrAlreadyOpened
	}
	g.opened = true
	g.onDone = onResolved
	g.mu.Unlock()

	if err := prompter.Present(req, g.resolve); err != nil {
		g.resolve(false)
		return err
	}
	return nil
}

// Dismiss resolves a still-pending gate as cancelled. Safe to call after
// resolution; later calls are no-ops.
func (g *Gate) Dismiss() {
	g.resolve(false)
}

func (g *Gate) resolve(confirmed bool) {
	g.mu.Lock()
	if g.resolved {
		g.mu.Unlock()
		return
	}
	g.resolved = true
	if confirmed {
		g.state = StateConfirmed
	} else {
		g.state = StateCancelled
	}
	done := g.onDone
	g.onDone = nil
	g.mu.Unlock()

	if done != nil {
		done(confirmed)
	}
}

// StaticPrompter resolves every request with a fixed answer. It backs
// --assume-yes and test doubles.
type StaticPrompter bool

func (p StaticPrompter) Present(_ Request, respond func(bool)) error {
	respond(bool(p))
	return nil
}
