package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ULilBagel/ublue-rebase-tool/internal/history"
)

func TestFollowHistoryStopsCleanlyOnInterrupt(t *testing.T) {
	ledger, err := history.Open(filepath.Join(t.TempDir(), "history.json"), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	if err := followHistory(ctx, ledger, func() {}); err != nil {
		t.Fatalf("interrupting a follow must exit cleanly, got %v", err)
	}
}
