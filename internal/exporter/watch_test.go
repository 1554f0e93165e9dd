package exporter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/craftmd/internal/testutil"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatch_ConvertsOnChange(t *testing.T) {
	e := newEnv(t, Options{})
	src := testutil.WriteExport(t, testutil.NewExport().
		Page("d1", "Notes", created, testutil.Block{ID: "n1", Content: "hello"}).Export())
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	input := filepath.Join(t.TempDir(), "craft.json")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.exp.Watch(ctx, input, 20*time.Millisecond) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(input, data, 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		ok, _ := e.store.Exists("Inbox/Notes.md")
		return ok
	}, "Inbox/Notes.md never written")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Watch did not stop")
	}
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	e := newEnv(t, Options{})
	dir := t.TempDir()
	input := filepath.Join(dir, "craft.json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.exp.Watch(ctx, input, 20*time.Millisecond) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	if _, err := e.db.LatestRun(); err == nil {
		t.Error("no run expected for unrelated files")
	}
}
