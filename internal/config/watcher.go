package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] polls by default.
const DefaultWatchInterval = 5 * time.Second

// Reload is passed to the [Watcher] callback after an effective change.
type Reload struct {
	Old, New *Config
	Diff     ConfigDiff
}

// Watcher polls a config file and reports effective changes. Invalid edits
// are logged and ignored; the last valid config stays current. Edits that
// change nothing the server reads (comments, key order) are not reported.
type Watcher struct {
	path     string
	interval time.Duration
	onReload func(Reload)

	mu       sync.Mutex
	current  *Config
	stamp    fileStamp
	baseline *Config
}

// fileStamp identifies one version of the watched file.
type fileStamp struct {
	mtime time.Time
	size  int64
	sum   [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values keep
// [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithBaseline makes cfg the config the first poll diffs against, instead
// of the file content at construction time. Use it when cfg was loaded
// earlier and is the config actually in use, so edits made since then are
// still delivered.
func WithBaseline(cfg *Config) WatcherOption {
	return func(w *Watcher) { w.baseline = cfg }
}

// NewWatcher loads the config at path and returns a watcher for it. Polling
// starts with [Watcher.Run]. onReload may be nil.
func NewWatcher(path string, onReload func(Reload), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onReload: onReload,
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.stamp = stamp
	if w.baseline != nil {
		// Force the first Check to read the file and diff it against the
		// baseline.
		w.current = w.baseline
		w.stamp = fileStamp{}
	}
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is cancelled. Rejected edits are logged and polling
// continues. It always returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Check(); err != nil {
				slog.Warn("config watcher: reload rejected, keeping current config",
					"path", w.path, "err", err)
			}
		}
	}
}

// Check reads the file once and reports whether an effective change was
// delivered to the callback. A read or validation error leaves the current
// config in place; the same broken file is reported only once.
func (w *Watcher) Check() (bool, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	prev := w.stamp
	w.mu.Unlock()
	if info.ModTime().Equal(prev.mtime) && info.Size() == prev.size {
		return false, nil
	}

	cfg, stamp, err := w.read()
	w.mu.Lock()
	if stamp.sum == w.stamp.sum {
		// Touched, or still the broken file we already reported.
		w.stamp = stamp
		w.mu.Unlock()
		return false, nil
	}
	w.stamp = stamp
	if err != nil {
		w.mu.Unlock()
		return false, err
	}
	old := w.current
	w.current = cfg
	w.mu.Unlock()

	d := Diff(old, cfg)
	if d.Empty() {
		slog.Debug("config watcher: file changed without effect", "path", w.path)
		return false, nil
	}
	slog.Info("config watcher: configuration reloaded", "path", w.path)

	// Outside the lock so the callback may call Current.
	if w.onReload != nil {
		w.onReload(Reload{Old: old, New: cfg, Diff: d})
	}
	return true, nil
}

// read loads and validates the file. The stamp is filled even when parsing
// fails so that a broken file is not re-read on every tick.
func (w *Watcher) read() (*Config, fileStamp, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	stamp := fileStamp{mtime: info.ModTime(), size: info.Size(), sum: sha256.Sum256(data)}

	cfg, err := parseBytes(data)
	if err != nil {
		return nil, stamp, err
	}
	return cfg, stamp, nil
}
