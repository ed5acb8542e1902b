package orchestrator

import (
	"sync"
	"sync/atomic"

	"github.com/ULilBagel/ublue-rebase-tool/internal/confirm"
	"github.com/ULilBagel/ublue-rebase-tool/internal/history"
)

// Invocation is one run of an operation through the state machine. It is
// safe for concurrent use; reaching a terminal state exactly once is the
// package invariant.
type Invocation struct {
	op    history.OperationType
	state atomic.Int32

	mu      sync.Mutex
	gate    *confirm.Gate
	outcome Outcome
	done    chan struct{}
	closed  bool
}

func newInvocation(op history.OperationType) *Invocation {
	return &Invocation{op: op, done: make(chan struct{})}
}

// State reports the current position in the lifecycle.
func (i *Invocation) State() State {
	return State(i.state.Load())
}

// Operation reports which verb this invocation runs.
func (i *Invocation) Operation() history.OperationType {
	return i.op
}

// Wait blocks until the invocation reaches a terminal state and returns
// its outcome.
func (i *Invocation) Wait() Outcome {
	<-i.done
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.outcome
}

// Done exposes the terminal signal for select loops.
func (i *Invocation) Done() <-chan struct{} {
	return i.done
}

// Cancel withdraws the invocation if it is still awaiting confirmation.
// Once execution has started the transaction runs to completion and
// Cancel reports ErrExecutionStarted without touching it.
func (i *Invocation) Cancel() error {
	switch i.State() {
	case StateAwaitingConfirmation:
		i.mu.Lock()
		gate := i.gate
		i.mu.Unlock()
		if gate != nil {
			gate.Dismiss()
		}
		return nil
	case StateExecuting:
		return ErrExecutionStarted
	default:
		return nil
	}
}

func (i *Invocation) setState(s State) {
	i.state.Store(int32(s))
}

func (i *Invocation) attachGate(g *confirm.Gate) {
	i.mu.Lock()
	i.gate = g
	i.mu.Unlock()
}

// finish records the outcome and releases waiters. Later calls are
// ignored, which keeps racing resolutions harmless.
func (i *Invocation) finish(out Outcome) {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	i.outcome = out
	i.mu.Unlock()
	i.state.Store(int32(out.State))
	close(i.done)
}
