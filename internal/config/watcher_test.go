package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/mockflow/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
interview:
  fallback:
    mode: inactivity
`

const watcherUpdatedYAML = `
server:
  log_level: debug
interview:
  fallback:
    mode: absolute
`

// Same settings as watcherValidYAML, different bytes.
const watcherCommentedYAML = `
# tuned for the spring hiring round
server:
  log_level: info
interview:
  fallback:
    mode: inactivity
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

// writeConfig replaces the file content and moves its mtime forward so that
// coarse filesystem timestamps cannot hide the change.
func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
	bump(t, path)
}

var (
	bumpMu sync.Mutex
	bumpAt = time.Now()
)

func bump(t *testing.T, path string) {
	t.Helper()
	bumpMu.Lock()
	bumpAt = bumpAt.Add(time.Second)
	at := bumpAt
	bumpMu.Unlock()
	if err := os.Chtimes(path, at, at); err != nil {
		t.Fatalf("failed to touch file: %v", err)
	}
}

// recorder collects reloads delivered to the watcher callback.
type recorder struct {
	mu      sync.Mutex
	reloads []config.Reload
}

func (r *recorder) onReload(rl config.Reload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloads = append(r.reloads, rl)
}

func (r *recorder) all() []config.Reload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]config.Reload(nil), r.reloads...)
}

func newWatcher(t *testing.T, content string) (*config.Watcher, *recorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, content)
	rec := &recorder{}
	w, err := config.NewWatcher(path, rec.onReload, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return w, rec, path
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	w, _, _ := newWatcher(t, watcherValidYAML)

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/path.yaml", nil); err == nil {
		t.Fatal("expected error for non-existent file, got nil")
	}
}

func TestWatcher_DeliversDiff(t *testing.T) {
	t.Parallel()
	w, rec, path := newWatcher(t, watcherValidYAML)

	writeConfig(t, path, watcherUpdatedYAML)
	changed, err := w.Check()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatal("expected the change to be delivered")
	}

	reloads := rec.all()
	if len(reloads) != 1 {
		t.Fatalf("reloads = %d, want 1", len(reloads))
	}
	rl := reloads[0]
	if rl.Old.Server.LogLevel != config.LogInfo || rl.New.Server.LogLevel != config.LogDebug {
		t.Errorf("old/new log level = %q/%q", rl.Old.Server.LogLevel, rl.New.Server.LogLevel)
	}
	if !rl.Diff.LogLevelChanged || rl.Diff.NewLogLevel != config.LogDebug {
		t.Errorf("diff log level = %+v", rl.Diff)
	}
	if !rl.Diff.FallbackChanged || !rl.Diff.InterviewChanged() {
		t.Errorf("diff = %+v, want fallback change", rl.Diff)
	}
	if got := w.Current().Server.LogLevel; got != config.LogDebug {
		t.Errorf("Current() log_level: got %q, want %q", got, config.LogDebug)
	}

	// Nothing new on disk.
	if changed, err := w.Check(); changed || err != nil {
		t.Errorf("second Check() = %v, %v; want false, nil", changed, err)
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	w, rec, path := newWatcher(t, watcherValidYAML)

	writeConfig(t, path, watcherInvalidYAML)
	changed, err := w.Check()
	if err == nil {
		t.Fatal("expected a validation error")
	}
	if changed {
		t.Error("invalid config must not be delivered")
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("Current() should still have old config, got log_level=%q", got)
	}

	// The same broken file is reported once.
	bump(t, path)
	if _, err := w.Check(); err != nil {
		t.Errorf("repeated Check() on the same broken file returned %v", err)
	}

	// Fixing the file delivers the diff against the last valid config.
	writeConfig(t, path, watcherUpdatedYAML)
	if changed, err := w.Check(); !changed || err != nil {
		t.Fatalf("Check() after fix = %v, %v", changed, err)
	}
	if rl := rec.all(); len(rl) != 1 || rl[0].Old.Server.LogLevel != config.LogInfo {
		t.Errorf("reloads = %+v", rl)
	}
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	w, rec, path := newWatcher(t, watcherValidYAML)

	bump(t, path)
	if changed, err := w.Check(); changed || err != nil {
		t.Errorf("Check() after touch = %v, %v; want false, nil", changed, err)
	}
	if n := len(rec.all()); n != 0 {
		t.Errorf("callback should not fire for touch-only, got %d calls", n)
	}
}

func TestWatcher_IneffectiveEdit(t *testing.T) {
	t.Parallel()
	w, rec, path := newWatcher(t, watcherValidYAML)

	writeConfig(t, path, watcherCommentedYAML)
	if changed, err := w.Check(); changed || err != nil {
		t.Errorf("Check() after comment edit = %v, %v; want false, nil", changed, err)
	}
	if n := len(rec.all()); n != 0 {
		t.Errorf("callback should not fire for a comment edit, got %d calls", n)
	}
}

func TestWatcher_Run(t *testing.T) {
	t.Parallel()
	w, rec, path := newWatcher(t, watcherValidYAML)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeConfig(t, path, watcherUpdatedYAML)
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.all()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("callback was not invoked within timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}

func TestWatcher_BaselineDiffsAgainstConfigInUse(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, watcherValidYAML)
	inUse, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Edited after the server loaded its config but before watching began.
	writeConfig(t, path, watcherUpdatedYAML)
	rec := &recorder{}
	w, err := config.NewWatcher(path, rec.onReload, config.WithBaseline(inUse))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := w.Current(); got != inUse {
		t.Errorf("Current() before first check = %p, want the baseline %p", got, inUse)
	}

	changed, err := w.Check()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatal("edit made before watching was not delivered")
	}
	reloads := rec.all()
	if len(reloads) != 1 || reloads[0].Old != inUse || !reloads[0].Diff.LogLevelChanged {
		t.Fatalf("reloads = %+v", reloads)
	}
}

func TestWatcher_BaselineMatchingFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, watcherValidYAML)
	inUse, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := &recorder{}
	w, err := config.NewWatcher(path, rec.onReload, config.WithBaseline(inUse))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed, err := w.Check(); changed || err != nil {
		t.Errorf("Check() = %v, %v; want false, nil", changed, err)
	}
	if n := len(rec.all()); n != 0 {
		t.Errorf("callback fired %d times for an unchanged file", n)
	}
}
