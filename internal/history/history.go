// Package history is the append-only audit ledger of executed operations.
// The backing file is a bounded JSON array, newest entry first, owned by
// the user alone: it records privileged system commands and must never be
// group or world readable.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MaxEntries caps the ledger; appends beyond it prune the oldest first.
const MaxEntries = 50

// fileMode keeps the ledger owner-only. Security invariant, not a
// default.
const fileMode fs.FileMode = 0o600

// OperationType tags which verb produced an entry.
type OperationType string

const (
	OpRebase   OperationType = "rebase"
	OpRollback OperationType = "rollback"
)

// Entry is one executed-command record. Entries are never mutated after
// append.
type Entry struct {
	Command       string        `json:"command"`
	Timestamp     time.Time     `json:"timestamp"`
	Success       bool          `json:"success"`
	ImageName     string        `json:"image_name"`
	OperationType OperationType `json:"operation_type"`
	UserID        int           `json:"user_id,omitempty"`
	SessionID     string        `json:"session_id,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// Ledger owns the stored entry sequence and its backing file. All access
// is serialized through one mutex: single-writer discipline prevents
// interleaved truncation during pruning.
type Ledger struct {
	mu     sync.Mutex
	path   string
	max    int
	logger *slog.Logger
}

// Open binds a ledger to its backing file, creating parent directories
// owner-only.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	return &Ledger{path: path, max: MaxEntries, logger: logger}, nil
}

// Path returns the backing file location.
func (l *Ledger) Path() string { return l.path }

// Add appends an entry, enriched with the caller's uid and session for
// the audit trail, pruning oldest-first past the cap. The write is
// mirrored to the structured log so it reaches the system journal.
func (l *Ledger) Add(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.UserID == 0 {
		e.UserID = os.Getuid()
	}
	if e.SessionID == "" {
		e.SessionID = os.Getenv("XDG_SESSION_ID")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.load()
	entries = append([]Entry{e}, entries...)
	if len(entries) > l.max {
		entries = entries[:l.max]
	}
	if err := l.save(entries); err != nil {
		return err
	}

	level := slog.LevelInfo
	if !e.Success {
		level = slog.LevelWarn
	}
	l.logger.Log(context.Background(), level, "operation recorded",
		"operation", string(e.OperationType),
		"command", e.Command,
		"success", e.Success,
		"image", e.ImageName,
		"user", e.UserID,
		"session", e.SessionID,
	)
	return nil
}

// Recent returns up to limit entries, newest first. limit <= 0 means the
// full cap.
func (l *Ledger) Recent(limit int) ([]Entry, error) {
	if limit <= 0 || limit > MaxEntries {
		limit = MaxEntries
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.load()
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// ByType returns entries for one operation type, newest first.
func (l *Ledger) ByType(op OperationType) ([]Entry, error) {
	return l.filter(func(e Entry) bool { return e.OperationType == op })
}

// Successful returns only successful entries, newest first.
func (l *Ledger) Successful() ([]Entry, error) {
	return l.filter(func(e Entry) bool { return e.Success })
}

// Failed returns only failed entries, newest first.
func (l *Ledger) Failed() ([]Entry, error) {
	return l.filter(func(e Entry) bool { return !e.Success })
}

func (l *Ledger) filter(keep func(Entry) bool) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.load() {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Clear empties the ledger. The file stays present and owner-only.
func (l *Ledger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.save([]Entry{})
}

// Export writes the full ledger to path as indented JSON. The export
// inherits the owner-only mode: it carries the same command history.
func (l *Ledger) Export(path string) error {
	l.mu.Lock()
	entries := l.load()
	l.mu.Unlock()
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history export: %w", err)
	}
	if err := os.WriteFile(path, data, fileMode); err != nil {
		return fmt.Errorf("writing history export: %w", err)
	}
	return nil
}

// load reads the backing file. Missing or corrupted files yield an empty
// ledger rather than an error; individual malformed entries are skipped.
// Caller holds l.mu.
func (l *Ledger) load() []Entry {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		l.logger.Warn("history unreadable", "path", l.path, "error", err)
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		l.logger.Warn("history corrupted, starting fresh", "path", l.path, "error", err)
		return nil
	}
	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal(r, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

// save atomically rewrites the backing file: temp file, rename, then an
// explicit chmod in case the file pre-existed with looser bits. Caller
// holds l.mu.
func (l *Ledger) save(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, fileMode); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing history: %w", err)
	}
	if err := os.Chmod(l.path, fileMode); err != nil {
		return fmt.Errorf("restricting history permissions: %w", err)
	}
	return nil
}
