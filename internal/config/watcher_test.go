package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, endpoint string) {
	t.Helper()
	data := "server:\n  endpoint: " + endpoint + "\nuser:\n  id: u1\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherDetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxprep.yaml")
	writeConfig(t, path, "ws://localhost:3000/ws")

	changed := make(chan *Config, 1)
	w, err := NewWatcher(path, func(_, new *Config) { changed <- new }, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() = %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.Endpoint; got != "ws://localhost:3000/ws" {
		t.Fatalf("initial endpoint = %q", got)
	}

	// Push the mtime forward explicitly so the change is seen even on
	// coarse-grained filesystems.
	writeConfig(t, path, "wss://moved.example.com/ws")
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changed:
		if cfg.Server.Endpoint != "wss://moved.example.com/ws" {
			t.Fatalf("reloaded endpoint = %q", cfg.Server.Endpoint)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not report the change")
	}

	if got := w.Current().Server.Endpoint; got != "wss://moved.example.com/ws" {
		t.Fatalf("Current() endpoint = %q", got)
	}
}

func TestWatcherKeepsLastValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxprep.yaml")
	writeConfig(t, path, "ws://localhost:3000/ws")

	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() = %v", err)
	}
	defer w.Stop()

	// An invalid intermediate save must not replace the current config.
	if err := os.WriteFile(path, []byte("server:\n  endpoint: \"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := w.Current().Server.Endpoint; got != "ws://localhost:3000/ws" {
		t.Fatalf("Current() endpoint = %q, want previous valid config", got)
	}
}

func TestWatcherInitialLoadFailure(t *testing.T) {
	t.Parallel()

	if _, err := NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("NewWatcher() = nil, want error for missing file")
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxprep.yaml")
	writeConfig(t, path, "ws://localhost:3000/ws")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher() = %v", err)
	}
	w.Stop()
	w.Stop()
}
