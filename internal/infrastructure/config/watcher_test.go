package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestWatcherFiresOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	fired := make(chan string, 4)
	w, err := NewWatcher(func(p string) { fired <- p }, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Add(path); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	if err := os.WriteFile(path, []byte("a: 2\n"), 0o644); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}

	select {
	case p := <-fired:
		if p != filepath.Clean(path) {
			t.Fatalf("callback got %s, want %s", p, path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never fired")
	}
}

func TestWatcherIgnoresUntrackedFiles(t *testing.T) {
	dir := t.TempDir()
	tracked := filepath.Join(dir, "config.yaml")
	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(tracked, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	var fired atomic.Int64
	w, err := NewWatcher(func(string) { fired.Add(1) }, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Add(tracked); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	if err := os.WriteFile(other, []byte("scratch"), 0o644); err != nil {
		t.Fatalf("write untracked: %v", err)
	}

	time.Sleep(watchDebounce + 300*time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("untracked file fired %d callbacks", fired.Load())
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	var fired atomic.Int64
	w, err := NewWatcher(func(string) { fired.Add(1) }, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Add(path); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("a: 2\n"), 0o644); err != nil {
			t.Fatalf("rewrite file: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	time.Sleep(watchDebounce + 500*time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("burst fired %d callbacks, want 1", got)
	}
}
