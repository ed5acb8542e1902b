package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ULilBagel/ublue-rebase-tool/internal/confirm"
	"github.com/ULilBagel/ublue-rebase-tool/internal/deployment"
	"github.com/ULilBagel/ublue-rebase-tool/internal/executor"
	"github.com/ULilBagel/ublue-rebase-tool/internal/history"
	"github.com/ULilBagel/ublue-rebase-tool/internal/progress"
	"github.com/ULilBagel/ublue-rebase-tool/internal/validate"
)

const goodRef = "ghcr.io/ublue-os/bluefin:stable"

// fakeEngine records invocations and returns a canned result. It can
// optionally block until released, to hold an invocation in Executing.
type fakeEngine struct {
	mu       sync.Mutex
	commands [][]string
	result   executor.Result
	lines    []string

	started chan struct{}
	release chan struct{}
}

func (f *fakeEngine) ExecutePrivileged(ctx context.Context, command []string, onLine func(string)) executor.Result {
	f.mu.Lock()
	f.commands = append(f.commands, append([]string(nil), command...))
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		<-f.release
	}
	for _, line := range f.lines {
		if onLine != nil {
			onLine(line)
		}
	}
	return f.result
}

func (f *fakeEngine) calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.commands...)
}

func testDeployments() []deployment.Deployment {
	return []deployment.Deployment{
		{ID: "aaaa1111bbbb", Origin: "ghcr.io/ublue-os/bluefin:stable", Version: "40.1", Booted: true, Index: 0},
		{ID: "bbbb2222cccc", Origin: "ghcr.io/ublue-os/bluefin:stable", Version: "40.0", Index: 1},
		{ID: "cccc3333dddd", Origin: "ghcr.io/ublue-os/aurora:stable", Version: "39.9", Index: 2},
	}
}

type fixture struct {
	orch   *Orchestrator
	engine *fakeEngine
	ledger *history.Ledger
	sink   *progress.BufferSink
}

func newFixture(t *testing.T, engine *fakeEngine, prompter confirm.Prompter, sched Scheduler) *fixture {
	t.Helper()
	dir := t.TempDir()
	ledger, err := history.Open(filepath.Join(dir, "history.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	sink := &progress.BufferSink{}
	orch := New(Options{
		Allowlist: validate.Default(),
		Engine:    engine,
		Status: func(context.Context) ([]deployment.Deployment, error) {
			return testDeployments(), nil
		},
		Ledger:    ledger,
		Tracker:   progress.NewTracker(sink),
		Prompter:  prompter,
		Scheduler: sched,
		LockPath:  filepath.Join(dir, "op.lock"),
	})
	return &fixture{orch: orch, engine: engine, ledger: ledger, sink: sink}
}

func TestRebaseHappyPath(t *testing.T) {
	engine := &fakeEngine{
		result: executor.Result{Success: true, Output: []string{"done"}},
		lines:  []string{"Pulling manifest", "Writing deployment"},
	}
	fx := newFixture(t, engine, confirm.StaticPrompter(true), ImmediateScheduler{})

	inv := fx.orch.RebaseTo(context.Background(), goodRef)
	out := inv.Wait()

	if out.State != StateCompleted || !out.Result.Success {
		t.Fatalf("expected successful completion, got %+v", out)
	}
	if inv.State() != StateCompleted {
		t.Errorf("invocation state mismatch: %v", inv.State())
	}

	calls := engine.calls()
	if len(calls) != 1 {
		t.Fatalf("expected one execution, got %d", len(calls))
	}
	want := "rpm-ostree rebase " + goodRef
	if strings.Join(calls[0], " ") != want {
		t.Errorf("command mismatch: %q", strings.Join(calls[0], " "))
	}

	// Progress reached the sink, terminal result last.
	if lines := fx.sink.Lines(); len(lines) != 2 || lines[0] != "Pulling manifest" {
		t.Errorf("progress lines mismatch: %v", lines)
	}
	if res, ok := fx.sink.Result(); !ok || !res.Success {
		t.Error("terminal result not delivered to progress sink")
	}

	// The ledger write lands before Wait returns.
	entries, _ := fx.ledger.Recent(0)
	if len(entries) != 1 {
		t.Fatalf("expected one history entry, got %d", len(entries))
	}
	e := entries[0]
	if e.OperationType != history.OpRebase || !e.Success || e.ImageName != goodRef {
		t.Errorf("history entry mismatch: %+v", e)
	}
	if e.Command != want {
		t.Errorf("recorded command mismatch: %q", e.Command)
	}
}

func TestRebaseRejectsInvalidReference(t *testing.T) {
	engine := &fakeEngine{result: executor.Result{Success: true}}
	fx := newFixture(t, engine, confirm.StaticPrompter(true), ImmediateScheduler{})

	inv := fx.orch.RebaseTo(context.Background(), "docker.io/library/ubuntu:latest")
	out := inv.Wait()

	if out.State != StateRejected {
		t.Fatalf("expected rejection, got %+v", out)
	}
	var verr *validate.Error
	if !errors.As(out.Err, &verr) {
		t.Errorf("expected a validation error, got %v", out.Err)
	}
	if len(engine.calls()) != 0 {
		t.Error("rejected operation must not execute")
	}
	entries, _ := fx.ledger.Recent(0)
	if len(entries) != 0 {
		t.Error("rejected operation must not be recorded")
	}
}

func TestRebaseCancelledAtConfirmation(t *testing.T) {
	engine := &fakeEngine{result: executor.Result{Success: true}}
	fx := newFixture(t, engine, confirm.StaticPrompter(false), ImmediateScheduler{})

	inv := fx.orch.RebaseTo(context.Background(), goodRef)
	out := inv.Wait()

	if out.State != StateCancelled {
		t.Fatalf("expected cancellation, got %+v", out)
	}
	if out.Message == "" {
		t.Error("cancellation must carry a message")
	}
	if len(engine.calls()) != 0 {
		t.Error("cancelled operation must not execute")
	}
	entries, _ := fx.ledger.Recent(0)
	if len(entries) != 0 {
		t.Error("cancelled operation must not be recorded")
	}
}

func TestRebaseFailureIsCompletedWithRecord(t *testing.T) {
	engine := &fakeEngine{result: executor.Result{
		Success: false,
		Kind:    executor.ErrKindNetwork,
		Message: "error: could not resolve host",
	}}
	fx := newFixture(t, engine, confirm.StaticPrompter(true), ImmediateScheduler{})

	out := fx.orch.RebaseTo(context.Background(), goodRef).Wait()

	if out.State != StateCompleted || out.Result.Success {
		t.Fatalf("a failed execution still completes, got %+v", out)
	}
	if out.Message != "error: could not resolve host" {
		t.Errorf("message mismatch: %q", out.Message)
	}

	entries, _ := fx.ledger.Recent(0)
	if len(entries) != 1 || entries[0].Success {
		t.Fatalf("failure must be recorded as failed: %+v", entries)
	}
	if entries[0].ErrorMessage != "error: could not resolve host" {
		t.Errorf("error message not recorded: %+v", entries[0])
	}
}

func TestRollback(t *testing.T) {
	t.Run("previous deployment uses rollback verb", func(t *testing.T) {
		engine := &fakeEngine{result: executor.Result{Success: true}}
		fx := newFixture(t, engine, confirm.StaticPrompter(true), ImmediateScheduler{})

		out := fx.orch.RollbackTo(context.Background(), "bbbb2222cccc").Wait()
		if out.State != StateCompleted || !out.Result.Success {
			t.Fatalf("expected completion, got %+v", out)
		}
		calls := engine.calls()
		if strings.Join(calls[0], " ") != "rpm-ostree rollback" {
			t.Errorf("command mismatch: %v", calls[0])
		}
		entries, _ := fx.ledger.Recent(0)
		if entries[0].OperationType != history.OpRollback {
			t.Errorf("operation type mismatch: %+v", entries[0])
		}
	})

	t.Run("older deployment deploys by id", func(t *testing.T) {
		engine := &fakeEngine{result: executor.Result{Success: true}}
		fx := newFixture(t, engine, confirm.StaticPrompter(true), ImmediateScheduler{})

		out := fx.orch.RollbackTo(context.Background(), "cccc3333dddd").Wait()
		if out.State != StateCompleted {
			t.Fatalf("expected completion, got %+v", out)
		}
		if strings.Join(engine.calls()[0], " ") != "rpm-ostree deploy cccc3333dddd" {
			t.Errorf("command mismatch: %v", engine.calls()[0])
		}
	})

	t.Run("booted target is rejected", func(t *testing.T) {
		engine := &fakeEngine{}
		fx := newFixture(t, engine, confirm.StaticPrompter(true), ImmediateScheduler{})

		out := fx.orch.RollbackTo(context.Background(), "aaaa1111bbbb").Wait()
		if out.State != StateRejected || !errors.Is(out.Err, ErrNoCurrentDeploymentTarget) {
			t.Fatalf("expected ErrNoCurrentDeploymentTarget, got %+v", out)
		}
		if len(engine.calls()) != 0 {
			t.Error("nothing may execute")
		}
	})

	t.Run("unknown target is rejected", func(t *testing.T) {
		engine := &fakeEngine{}
		fx := newFixture(t, engine, confirm.StaticPrompter(true), ImmediateScheduler{})

		out := fx.orch.RollbackTo(context.Background(), "ffff0000").Wait()
		if out.State != StateRejected || !errors.Is(out.Err, ErrUnknownDeployment) {
			t.Fatalf("expected ErrUnknownDeployment, got %+v", out)
		}
	})

	t.Run("status failure is rejected", func(t *testing.T) {
		engine := &fakeEngine{}
		fx := newFixture(t, engine, confirm.StaticPrompter(true), ImmediateScheduler{})
		statusErr := errors.New("daemon unreachable")
		fx.orch.status = func(context.Context) ([]deployment.Deployment, error) {
			return nil, statusErr
		}

		out := fx.orch.RollbackTo(context.Background(), "bbbb2222cccc").Wait()
		if out.State != StateRejected || !errors.Is(out.Err, statusErr) {
			t.Fatalf("expected status error, got %+v", out)
		}
	})
}

func TestSecondInvocationRejectedWhileExecuting(t *testing.T) {
	engine := &fakeEngine{
		result:  executor.Result{Success: true},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	fx := newFixture(t, engine, confirm.StaticPrompter(true), &BackgroundScheduler{})

	first := fx.orch.RebaseTo(context.Background(), goodRef)
	select {
	case <-engine.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first invocation never started executing")
	}
	if first.State() != StateExecuting {
		t.Fatalf("expected executing, got %v", first.State())
	}

	second := fx.orch.RebaseTo(context.Background(), goodRef)
	out := second.Wait()
	if out.State != StateRejected || !errors.Is(out.Err, ErrOperationInProgress) {
		t.Fatalf("expected ErrOperationInProgress, got %+v", out)
	}

	close(engine.release)
	if out := first.Wait(); out.State != StateCompleted {
		t.Fatalf("first invocation should complete, got %+v", out)
	}

	// The lease is released; a new invocation may run.
	engine.release = nil
	third := fx.orch.RebaseTo(context.Background(), goodRef)
	if out := third.Wait(); out.State != StateCompleted {
		t.Fatalf("third invocation should run after release, got %+v", out)
	}
}

func TestCancelSemantics(t *testing.T) {
	t.Run("pending confirmation cancels", func(t *testing.T) {
		engine := &fakeEngine{}
		// A prompter that never responds keeps the gate pending.
		fx := newFixture(t, engine, heldPrompter{}, ImmediateScheduler{})

		inv := fx.orch.RebaseTo(context.Background(), goodRef)
		if inv.State() != StateAwaitingConfirmation {
			t.Fatalf("expected awaiting confirmation, got %v", inv.State())
		}
		if err := inv.Cancel(); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}
		out := inv.Wait()
		if out.State != StateCancelled {
			t.Errorf("expected cancelled, got %+v", out)
		}
		if len(engine.calls()) != 0 {
			t.Error("nothing may execute after cancellation")
		}
	})

	t.Run("executing reports no-op", func(t *testing.T) {
		engine := &fakeEngine{
			result:  executor.Result{Success: true},
			started: make(chan struct{}, 1),
			release: make(chan struct{}),
		}
		fx := newFixture(t, engine, confirm.StaticPrompter(true), &BackgroundScheduler{})

		inv := fx.orch.RebaseTo(context.Background(), goodRef)
		<-engine.started

		if err := inv.Cancel(); !errors.Is(err, ErrExecutionStarted) {
			t.Errorf("expected ErrExecutionStarted, got %v", err)
		}

		close(engine.release)
		if out := inv.Wait(); out.State != StateCompleted {
			t.Errorf("execution must run to completion, got %+v", out)
		}
	})
}

// heldPrompter accepts the request but never responds.
type heldPrompter struct{}

func (heldPrompter) Present(confirm.Request, func(bool)) error { return nil }

func TestDispatchClosedSet(t *testing.T) {
	engine := &fakeEngine{result: executor.Result{Success: true}}
	fx := newFixture(t, engine, confirm.StaticPrompter(true), ImmediateScheduler{})

	out := fx.orch.Dispatch(context.Background(), RebaseOperation{ImageRef: goodRef}).Wait()
	if out.State != StateCompleted {
		t.Fatalf("rebase dispatch failed: %+v", out)
	}
	out = fx.orch.Dispatch(context.Background(), RollbackOperation{DeploymentID: "bbbb2222cccc"}).Wait()
	if out.State != StateCompleted {
		t.Fatalf("rollback dispatch failed: %+v", out)
	}
}

func TestCallerCancellationDoesNotKillExecution(t *testing.T) {
	engine := &fakeEngine{
		result:  executor.Result{Success: true},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	fx := newFixture(t, engine, confirm.StaticPrompter(true), &BackgroundScheduler{})

	ctx, cancel := context.WithCancel(context.Background())
	inv := fx.orch.RebaseTo(ctx, goodRef)
	<-engine.started

	// Cancelling the caller's context must not abort the transaction.
	cancel()
	close(engine.release)
	if out := inv.Wait(); out.State != StateCompleted || !out.Result.Success {
		t.Fatalf("execution should survive caller cancellation, got %+v", out)
	}
}
