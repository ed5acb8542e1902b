package executor

import "testing"

func TestClassify(t *testing.T) {
	c := DefaultClassifier()

	cases := []struct {
		name  string
		lines []string
		want  ErrorKind
	}{
		{"network resolve failure", []string{"error: Could not resolve host ghcr.io"}, ErrKindNetwork},
		{"connection refused", []string{"dial tcp 140.82.112.3:443: connection refused"}, ErrKindNetwork},
		{"polkit denial", []string{"error: Not authorized by polkit"}, ErrKindAuth},
		{"permission denied", []string{"Permission denied"}, ErrKindAuth},
		{"busy transaction", []string{"error: Transaction already in use by another client"}, ErrKindBusy},
		{"missing deployment", []string{"error: No such deployment: abc123"}, ErrKindNotFound},
		{"unresolvable ref", []string{"error: failed to resolve ref ostree/1/1/0"}, ErrKindNotFound},
		{"timeout message", []string{"error: operation timed out"}, ErrKindTimeout},
		{"unknown output", []string{"something completely different"}, ErrKindUnknown},
		{"empty output", nil, ErrKindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Classify(tc.lines); got != tc.want {
				t.Errorf("Classify(%v) = %q, want %q", tc.lines, got, tc.want)
			}
		})
	}
}

func TestClassifyScansNewestLinesFirst(t *testing.T) {
	c := DefaultClassifier()
	lines := []string{
		"Pulling manifest...",
		"error: could not resolve host",
		"error: Not authorized by polkit",
	}
	// The auth line is newer, so it wins over the network line.
	if got := c.Classify(lines); got != ErrKindAuth {
		t.Errorf("expected auth from newest line, got %q", got)
	}
}

func TestClassifyWindowIgnoresOldLines(t *testing.T) {
	c := DefaultClassifier()
	lines := []string{"error: connection refused"}
	for i := 0; i < classifyWindow; i++ {
		lines = append(lines, "downloading layer")
	}
	// The network error scrolled out of the scan window.
	if got := c.Classify(lines); got != ErrKindUnknown {
		t.Errorf("expected unknown outside window, got %q", got)
	}
}

func TestRemedy(t *testing.T) {
	if ErrKindAuth.Remedy() == "" {
		t.Error("auth failures should carry a remedy")
	}
	if ErrKindBusy.Remedy() == "" {
		t.Error("busy failures should carry a remedy")
	}
	if ErrKindNetwork.Remedy() != "" {
		t.Error("network failures have no scripted remedy")
	}
}
