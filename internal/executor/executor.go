// Package executor spawns validated rpm-ostree commands and streams their
// output. Commands run as argument vectors, never through a shell. The
// engine has no timeout of its own: image pulls legitimately run for a
// long time and must not be preempted here.
package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/ULilBagel/ublue-rebase-tool/internal/validate"
)

// Result is the immutable outcome of one engine run.
type Result struct {
	Success bool
	// Output holds the captured combined stdout/stderr lines in arrival
	// order.
	Output []string
	Kind   ErrorKind
	// Message is a human-readable summary of the failure, empty on
	// success.
	Message string
}

// CombinedOutput joins the captured lines.
func (r Result) CombinedOutput() string {
	return strings.Join(r.Output, "\n")
}

// Elevator requests elevated privileges from an external escalation
// mechanism. The engine treats it as an opaque collaborator; any
// authentication dialog belongs to it, not to this package.
type Elevator interface {
	RequestElevatedPrivileges(ctx context.Context) (granted bool, reason string)
}

// PkexecElevator elevates through polkit's pkexec. The probe command does
// nothing itself; it exists to drive the agent's authentication prompt
// before the real operation starts.
type PkexecElevator struct{}

func (PkexecElevator) RequestElevatedPrivileges(ctx context.Context) (bool, string) {
	cmd := exec.CommandContext(ctx, "pkexec", "true")
	if err := cmd.Run(); err != nil {
		return false, fmt.Sprintf("privilege escalation denied: %v", err)
	}
	return true, ""
}

// Engine validates and spawns commands, streaming output line by line.
//
// ExecuteWithProgress blocks for the full duration of the external
// process. Callers needing non-blocking behavior run it from their own
// goroutine; the orchestrator's scheduler does exactly that.
type Engine struct {
	allow      *validate.Allowlist
	classifier *Classifier
	elevator   Elevator
	logger     *slog.Logger
	flatpak    bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClassifier replaces the default error classification table.
func WithClassifier(c *Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithElevator replaces the privilege escalation mechanism.
func WithElevator(el Elevator) Option {
	return func(e *Engine) { e.elevator = el }
}

// WithFlatpakSpawn forces or disables wrapping commands with
// flatpak-spawn --host.
func WithFlatpakSpawn(enabled bool) Option {
	return func(e *Engine) { e.flatpak = enabled }
}

// New builds an engine bound to an allow-list.
func New(allow *validate.Allowlist, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	_, flatpak := os.LookupEnv("FLATPAK_ID")
	e := &Engine{
		allow:      allow,
		classifier: DefaultClassifier(),
		elevator:   PkexecElevator{},
		logger:     logger,
		flatpak:    flatpak,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteWithProgress validates the command, spawns it, and invokes
// onLine once per output line in arrival order. Validation failures are
// rejected before anything is spawned. A second invocation is a fully
// independent attempt; nothing is retried here.
func (e *Engine) ExecuteWithProgress(ctx context.Context, command []string, onLine func(string)) Result {
	if err := e.allow.ValidateCommand(command); err != nil {
		e.logger.Warn("command rejected", "error", err)
		return Result{Kind: ErrKindInvalidCommand, Message: err.Error()}
	}
	return e.spawn(ctx, command, onLine)
}

// ExecutePrivileged requests elevation first and only then spawns. A
// denied or failed elevation returns an Auth result without spawning the
// underlying command.
func (e *Engine) ExecutePrivileged(ctx context.Context, command []string, onLine func(string)) Result {
	if err := e.allow.ValidateCommand(command); err != nil {
		e.logger.Warn("command rejected", "error", err)
		return Result{Kind: ErrKindInvalidCommand, Message: err.Error()}
	}
	if granted, reason := e.elevator.RequestElevatedPrivileges(ctx); !granted {
		e.logger.Warn("privilege escalation denied", "reason", reason)
		if reason == "" {
			reason = "privilege escalation denied"
		}
		return Result{Kind: ErrKindAuth, Message: reason}
	}
	return e.spawn(ctx, command, onLine)
}

// hostArgv is the argument vector actually spawned. Inside the sandbox
// the validated command runs on the host; the wrapper is applied only
// here, after validation, so the allow-list always sees the real program
// as token zero.
func (e *Engine) hostArgv(command []string) []string {
	if !e.flatpak {
		return command
	}
	return append([]string{"flatpak-spawn", "--host"}, command...)
}

func (e *Engine) spawn(ctx context.Context, command []string, onLine func(string)) Result {
	argv := e.hostArgv(command)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	e.logger.Info("executing", "command", strings.Join(command, " "))
	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		e.logger.Error("spawn failed", "error", err)
		return Result{Kind: ErrKindUnknown, Message: fmt.Sprintf("failed to start %s: %v", command[0], err)}
	}

	var (
		lines []string
		wg    sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			lines = append(lines, line)
			if onLine != nil {
				onLine(line)
			}
		}
	}()

	err := cmd.Wait()
	_ = pw.Close()
	wg.Wait()
	_ = pr.Close()

	if err == nil {
		e.logger.Info("command succeeded", "lines", len(lines))
		return Result{Success: true, Output: lines}
	}

	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		return Result{Output: lines, Kind: ErrKindTimeout, Message: "command timed out"}
	}

	kind := e.classifier.Classify(lines)
	msg := fmt.Sprintf("%s exited with an error", command[0])
	if len(lines) > 0 {
		msg = lines[len(lines)-1]
	}
	e.logger.Warn("command failed", "kind", string(kind), "error", err)
	return Result{Output: lines, Kind: kind, Message: msg}
}
