// Package progress fans command output out to observers: the terminal, a
// log file, or a test harness. Lines are delivered in emission order and
// the terminal result strictly after the last line.
package progress

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ULilBagel/ublue-rebase-tool/internal/executor"
)

// maxBufferedLines bounds the replay buffer.
const maxBufferedLines = 1000

// Sink receives ordered output lines and a single terminal result.
type Sink interface {
	Line(line string)
	Done(res executor.Result)
}

// ansiPattern matches ANSI escape sequences, which rpm-ostree uses for
// its spinner and progress bars.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]|\x1b\][^\x07]*\x07`)

// StripANSI removes terminal escape sequences from a line.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// TimedLine is an output line with its arrival time.
type TimedLine struct {
	Text string
	At   time.Time
}

// Tracker adapts raw process output into clean lines for sinks: it
// reassembles partial chunks into complete lines, strips ANSI sequences,
// drops blanks, and keeps a bounded replay buffer.
type Tracker struct {
	mu        sync.Mutex
	sinks     []Sink
	operation string
	started   time.Time
	tracking  bool
	partial   string
	buffer    []TimedLine
}

// NewTracker builds a tracker forwarding to the given sinks.
func NewTracker(sinks ...Sink) *Tracker {
	return &Tracker{sinks: sinks}
}

// Start begins tracking a named operation and clears prior state.
func (t *Tracker) Start(operation string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.operation = operation
	t.started = time.Now()
	t.tracking = true
	t.partial = ""
	t.buffer = t.buffer[:0]
}

// Operation returns the current operation name and its start time.
func (t *Tracker) Operation() (string, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.operation, t.started
}

// Update ingests raw output which may contain partial lines. Complete
// lines are cleaned and forwarded; an unterminated tail is held until the
// next chunk.
func (t *Tracker) Update(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.tracking {
		return
	}
	t.partial += data
	for {
		i := strings.IndexByte(t.partial, '\n')
		if i < 0 {
			return
		}
		line := t.partial[:i]
		t.partial = t.partial[i+1:]
		t.emit(line)
	}
}

// Callback returns an adapter suitable for the execution engine's onLine
// hook, which delivers already-complete lines.
func (t *Tracker) Callback() func(string) {
	return func(line string) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if !t.tracking {
			return
		}
		t.emit(line)
	}
}

// emit forwards one complete line. Caller holds t.mu.
func (t *Tracker) emit(line string) {
	clean := strings.TrimRight(StripANSI(line), "\r")
	if strings.TrimSpace(clean) == "" {
		return
	}
	t.buffer = append(t.buffer, TimedLine{Text: clean, At: time.Now()})
	if len(t.buffer) > maxBufferedLines {
		t.buffer = t.buffer[len(t.buffer)-maxBufferedLines:]
	}
	for _, s := range t.sinks {
		s.Line(clean)
	}
}

// Complete flushes any held partial line, forwards the terminal result to
// every sink, and stops tracking.
func (t *Tracker) Complete(res executor.Result) {
	t.mu.Lock()
	if t.tracking && strings.TrimSpace(t.partial) != "" {
		t.emit(t.partial)
		t.partial = ""
	}
	t.tracking = false
	sinks := t.sinks
	t.mu.Unlock()
	for _, s := range sinks {
		s.Done(res)
	}
}

// FullOutput returns the buffered lines.
func (t *Tracker) FullOutput() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.buffer))
	for i, l := range t.buffer {
		out[i] = l.Text
	}
	return out
}

// Clear drops buffered output and stops tracking.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracking = false
	t.partial = ""
	t.buffer = nil
}

// WriterSink writes each line to w. It is the terminal and log-file sink.
type WriterSink struct {
	W io.Writer
	// Render optionally styles a line before writing; nil writes plain.
	Render func(string) string
}

func (s *WriterSink) Line(line string) {
	if s.Render != nil {
		line = s.Render(line)
	}
	fmt.Fprintln(s.W, line)
}

func (s *WriterSink) Done(executor.Result) {}

// BufferSink records everything it receives. Test harness sink.
type BufferSink struct {
	mu     sync.Mutex
	lines  []string
	result *executor.Result
}

func (s *BufferSink) Line(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *BufferSink) Done(res executor.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = &res
}

// Lines returns the recorded lines.
func (s *BufferSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// Result returns the terminal result, if delivered.
func (s *BufferSink) Result() (executor.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return executor.Result{}, false
	}
	return *s.result, true
}
