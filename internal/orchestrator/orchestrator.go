// Package orchestrator ties validation, confirmation, execution, progress
// and the history ledger into the two user-facing verbs: rebase to an
// image and roll back to a deployment.
//
// Per invocation the state machine is
//
//	Idle → Validating → AwaitingConfirmation → Executing → Completed
//	                                 │                        │
//	                                 └→ Cancelled      (or) Rejected
//
// At most one invocation may be Executing system-wide; the exclusivity is
// an owned lease backed by a file lock, so it also holds across
// processes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ULilBagel/ublue-rebase-tool/internal/confirm"
	"github.com/ULilBagel/ublue-rebase-tool/internal/deployment"
	"github.com/ULilBagel/ublue-rebase-tool/internal/executor"
	"github.com/ULilBagel/ublue-rebase-tool/internal/history"
	"github.com/ULilBagel/ublue-rebase-tool/internal/lockfile"
	"github.com/ULilBagel/ublue-rebase-tool/internal/progress"
	"github.com/ULilBagel/ublue-rebase-tool/internal/telemetry"
	"github.com/ULilBagel/ublue-rebase-tool/internal/validate"
)

// State is an invocation's position in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateValidating
	StateAwaitingConfirmation
	StateExecuting
	StateCompleted
	StateCancelled
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateAwaitingConfirmation:
		return "awaiting-confirmation"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

var (
	// ErrOperationInProgress rejects a second invocation while one is
	// executing. Invocations are never queued.
	ErrOperationInProgress = errors.New("another operation is already in progress")

	// ErrNoCurrentDeploymentTarget rejects rolling back to the deployment
	// that is already booted.
	ErrNoCurrentDeploymentTarget = errors.New("deployment is currently booted; there is nothing to roll back to")

	// ErrUnknownDeployment rejects a rollback target that matches no
	// deployment.
	ErrUnknownDeployment = deployment.ErrUnknownDeployment

	// ErrExecutionStarted reports that a cancel request arrived after
	// execution began. The underlying transaction is not safely
	// interruptible, so the request is a no-op.
	ErrExecutionStarted = errors.New("execution has already started and cannot be safely interrupted")
)

// Operation is the closed set of privileged verbs. Dispatch switches over
// it exhaustively; there is no dispatch by name anywhere.
type Operation interface{ isOperation() }

// RebaseOperation switches the next-boot deployment to an image.
type RebaseOperation struct{ ImageRef string }

// RollbackOperation switches the next-boot deployment to an existing one.
type RollbackOperation struct{ DeploymentID string }

func (RebaseOperation) isOperation()   {}
func (RollbackOperation) isOperation() {}

// Outcome is the terminal report of one invocation.
type Outcome struct {
	State  State
	Result executor.Result
	// Message is always set on Rejected, Cancelled, and failed Completed.
	Message string
	// Remedy carries a suggested follow-up for error kinds that have one.
	Remedy string
	Err    error
}

// Engine abstracts the execution engine so tests can inject doubles.
type Engine interface {
	ExecutePrivileged(ctx context.Context, command []string, onLine func(string)) executor.Result
}

// StatusFunc supplies the current deployment listing.
type StatusFunc func(ctx context.Context) ([]deployment.Deployment, error)

// Orchestrator owns the verb pipeline. Construct one per process.
type Orchestrator struct {
	allow    *validate.Allowlist
	engine   Engine
	status   StatusFunc
	ledger   *history.Ledger
	tracker  *progress.Tracker
	prompter confirm.Prompter
	sched    Scheduler
	lockPath string
	logger   *slog.Logger

	mu    sync.Mutex
	lease *lockfile.Lock // non-nil while an invocation is Executing
}

// Options carries the orchestrator's collaborators.
type Options struct {
	Allowlist *validate.Allowlist
	Engine    Engine
	Status    StatusFunc
	Ledger    *history.Ledger
	Tracker   *progress.Tracker
	Prompter  confirm.Prompter
	Scheduler Scheduler
	LockPath  string
	Logger    *slog.Logger
}

// New wires an orchestrator. Scheduler defaults to background dispatch;
// logger defaults to discard.
func New(opts Options) *Orchestrator {
	if opts.Scheduler == nil {
		opts.Scheduler = &BackgroundScheduler{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Tracker == nil {
		opts.Tracker = progress.NewTracker()
	}
	return &Orchestrator{
		allow:    opts.Allowlist,
		engine:   opts.Engine,
		status:   opts.Status,
		ledger:   opts.Ledger,
		tracker:  opts.Tracker,
		prompter: opts.Prompter,
		sched:    opts.Scheduler,
		lockPath: opts.LockPath,
		logger:   opts.Logger,
	}
}

// Dispatch runs one operation from the closed set.
func (o *Orchestrator) Dispatch(ctx context.Context, op Operation) *Invocation {
	switch op := op.(type) {
	case RebaseOperation:
		return o.RebaseTo(ctx, op.ImageRef)
	case RollbackOperation:
		return o.RollbackTo(ctx, op.DeploymentID)
	}
	inv := newInvocation(history.OperationType("unknown"))
	inv.finish(Outcome{State: StateRejected, Message: "unsupported operation", Err: fmt.Errorf("unsupported operation %T", op)})
	return inv
}

// RebaseTo validates the image reference, asks for confirmation, and
// executes the rebase in the background. The returned invocation exposes
// the state machine; Wait blocks until a terminal state.
func (o *Orchestrator) RebaseTo(ctx context.Context, imageRef string) *Invocation {
	inv := newInvocation(history.OpRebase)
	inv.setState(StateValidating)

	if o.executing() {
		o.reject(inv, ErrOperationInProgress, executor.ErrKindBusy.Remedy())
		return inv
	}
	if err := o.allow.ValidateImageReference(imageRef); err != nil {
		o.logger.Warn("rebase rejected", "ref", imageRef, "error", err)
		o.reject(inv, err, "")
		return inv
	}

	command := []string{o.allow.Program, "rebase", imageRef}
	req := confirm.Request{
		Title: fmt.Sprintf("Rebase to %s?", imageRef),
		Description: "This switches the image your system boots from. " +
			"The current deployment is preserved and remains available for rollback.",
		Command: command,
		Warnings: []string{
			"Back up important data before changing the base image.",
			"Layered packages are reapplied and may conflict with the new image.",
		},
		RequiresReboot: true,
	}
	o.awaitConfirmation(ctx, inv, req, command, imageRef)
	return inv
}

// RollbackTo resolves the target deployment, asks for confirmation, and
// executes the rollback in the background.
func (o *Orchestrator) RollbackTo(ctx context.Context, deploymentID string) *Invocation {
	inv := newInvocation(history.OpRollback)
	inv.setState(StateValidating)

	if o.executing() {
		o.reject(inv, ErrOperationInProgress, executor.ErrKindBusy.Remedy())
		return inv
	}

	deployments, err := o.status(ctx)
	if err != nil {
		o.reject(inv, err, "")
		return inv
	}
	command, err := deployment.GenerateRollbackCommand(deploymentID, deployments)
	if err != nil {
		if errors.Is(err, deployment.ErrTargetIsBooted) {
			err = ErrNoCurrentDeploymentTarget
		}
		o.logger.Warn("rollback rejected", "target", deploymentID, "error", err)
		o.reject(inv, err, "")
		return inv
	}
	if err := o.allow.ValidateCommand(command); err != nil {
		o.reject(inv, err, "")
		return inv
	}

	target, _ := deployment.Find(deployments, deploymentID)
	req := confirm.Request{
		Title: fmt.Sprintf("Roll back to deployment %s?", target.ID),
		Description: fmt.Sprintf("This deploys %s (version %s) on next boot. "+
			"Your current deployment becomes the alternate entry.", target.Origin, target.Version),
		Command:        command,
		RequiresReboot: true,
	}
	o.awaitConfirmation(ctx, inv, req, command, target.Origin)
	return inv
}

// awaitConfirmation opens the gate and, on explicit confirmation only,
// moves the invocation into execution. Cancellation terminates without
// side effects: no process, no ledger write.
func (o *Orchestrator) awaitConfirmation(ctx context.Context, inv *Invocation, req confirm.Request, command []string, imageName string) {
	inv.setState(StateAwaitingConfirmation)
	gate := confirm.NewGate()
	inv.attachGate(gate)

	err := gate.Open(req, o.prompter, func(confirmed bool) {
		if !confirmed {
			o.logger.Info("operation cancelled at confirmation", "operation", string(inv.op))
			inv.finish(Outcome{State: StateCancelled, Message: "operation cancelled"})
			return
		}
		o.execute(ctx, inv, command, imageName)
	})
	if err != nil && !errors.Is(err, confirm.ErrNotInteractive) {
		o.logger.Warn("confirmation prompt failed", "error", err)
	}
}

// execute acquires the operation lease, then runs the command off the
// caller's context. The ledger write happens after the terminal result
// and before the invocation reports completion.
func (o *Orchestrator) execute(ctx context.Context, inv *Invocation, command []string, imageName string) {
	o.mu.Lock()
	if o.lease != nil {
		o.mu.Unlock()
		o.reject(inv, ErrOperationInProgress, executor.ErrKindBusy.Remedy())
		return
	}
	lease, err := lockfile.Acquire(o.lockPath)
	if err != nil {
		o.mu.Unlock()
		if errors.Is(err, lockfile.ErrLockHeld) {
			o.reject(inv, ErrOperationInProgress, executor.ErrKindBusy.Remedy())
			return
		}
		o.reject(inv, err, "")
		return
	}
	o.lease = lease
	o.mu.Unlock()

	inv.setState(StateExecuting)
	o.tracker.Start(string(inv.op))

	// The spawned transaction must outlive caller cancellation: an
	// interrupted image swap can leave the system inconsistent.
	execCtx := context.WithoutCancel(ctx)

	o.sched.Go(func() {
		res := o.engine.ExecutePrivileged(execCtx, command, o.tracker.Callback())
		o.tracker.Complete(res)

		entry := history.Entry{
			Command:       strings.Join(command, " "),
			Success:       res.Success,
			ImageName:     imageName,
			OperationType: inv.op,
		}
		if !res.Success {
			entry.ErrorMessage = res.Message
		}
		if err := o.ledger.Add(entry); err != nil {
			o.logger.Error("recording history failed", "error", err)
		}
		telemetry.RecordOperation(execCtx, string(inv.op), res.Success)

		o.mu.Lock()
		if err := o.lease.Release(); err != nil {
			o.logger.Warn("releasing operation lock failed", "error", err)
		}
		o.lease = nil
		o.mu.Unlock()

		out := Outcome{State: StateCompleted, Result: res}
		if !res.Success {
			out.Message = res.Message
			out.Remedy = res.Kind.Remedy()
		}
		inv.finish(out)
	})
}

func (o *Orchestrator) executing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lease != nil
}

func (o *Orchestrator) reject(inv *Invocation, err error, remedy string) {
	inv.finish(Outcome{State: StateRejected, Message: err.Error(), Remedy: remedy, Err: err})
}
