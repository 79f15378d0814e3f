package syncengine

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MikeBee/notis/internal/apperr"
	"github.com/MikeBee/notis/internal/storage"
)

// Monitoring strategies.
const (
	StrategyAuto     = "auto"
	StrategyFSNotify = "fsnotify"
	StrategyPoll     = "poll"
)

// Defaults applied when a notifier is built with zero values.
const (
	DefaultDebounce     = 500 * time.Millisecond
	DefaultPollInterval = 30 * time.Second
)

// Notifier is the change-detection strategy used while monitoring. Run blocks
// until ctx is cancelled and calls trigger after observed changes; bursts are
// coalesced by the implementation.
type Notifier interface {
	Run(ctx context.Context, trigger func()) error
}

// NewNotifier builds the notifier named by strategy. "auto" probes for
// fsnotify support and falls back to polling.
func NewNotifier(strategy, root string, debounce, interval time.Duration, logger *slog.Logger) (Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch strategy {
	case StrategyFSNotify:
		return NewFSNotifier(root, debounce, logger), nil
	case StrategyPoll:
		return NewPoller(interval), nil
	case StrategyAuto:
		w, err := fsnotify.NewWatcher()
		if err != nil {
			logger.Warn("monitor: fsnotify unavailable, polling instead", slog.String("error", err.Error()))
			return NewPoller(interval), nil
		}
		w.Close()
		return NewFSNotifier(root, debounce, logger), nil
	default:
		return nil, errors.New("syncengine: unknown monitor strategy " + strategy)
	}
}

// FSNotifier watches the notes root with fsnotify and debounces event bursts
// into single triggers. Directories created at runtime are watched as well.
type FSNotifier struct {
	root     string
	debounce time.Duration
	logger   *slog.Logger
}

// NewFSNotifier creates an FSNotifier rooted at root.
func NewFSNotifier(root string, debounce time.Duration, logger *slog.Logger) *FSNotifier {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FSNotifier{root: root, debounce: debounce, logger: logger}
}

// Run processes file change events until ctx is cancelled.
func (n *FSNotifier) Run(ctx context.Context, trigger func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, n.root); err != nil {
		return err
	}

	n.logger.Info("monitor: watching", slog.String("root", n.root))

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	schedule := func() {
		if debounceTimer == nil {
			debounceTimer = time.NewTimer(n.debounce)
			debounceCh = debounceTimer.C
		} else {
			debounceTimer.Reset(n.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case <-debounceCh:
			trigger()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			// New directories join the watch list; anything already inside
			// them is picked up by the triggered pass.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						n.logger.Warn("monitor: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					schedule()
					continue
				}
			}

			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			n.logger.Error("monitor: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher,
// skipping dot-directories and the assets tree.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root {
			rel, relErr := filepath.Rel(root, path)
			if relErr == nil && (strings.HasPrefix(d.Name(), ".") || filepath.ToSlash(rel) == storage.AssetsDir) {
				return filepath.SkipDir
			}
		}
		return w.Add(path)
	})
}

// Poller triggers at a fixed interval, for file systems where fsnotify is
// unreliable (network mounts) or unavailable.
type Poller struct {
	interval time.Duration
}

// NewPoller creates a Poller with the given interval.
func NewPoller(interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{interval: interval}
}

// Run triggers every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context, trigger func()) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			trigger()
		}
	}
}

// StartMonitoring launches the notifier and runs a quick sync after each
// observed change. Calling it while monitoring is already running is a no-op.
func (e *Engine) StartMonitoring(n Notifier) {
	e.monMu.Lock()
	defer e.monMu.Unlock()
	if e.monCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.monCancel = cancel
	e.monDone = done

	go func() {
		defer close(done)
		trigger := func() {
			// The pass outlives StopMonitoring; detach it from ctx.
			if _, err := e.Sync(context.WithoutCancel(ctx), ModeQuick); err != nil && !errors.Is(err, apperr.ErrSyncInProgress) {
				e.logger.Warn("monitor: quick sync failed", slog.String("error", err.Error()))
			}
		}
		if err := n.Run(ctx, trigger); err != nil {
			e.logger.Error("monitor: stopped with error", slog.String("error", err.Error()))
		}
	}()
	e.logger.Info("monitor: started")
}

// StopMonitoring cancels the notifier and waits for it, letting an in-flight
// triggered pass complete. Calling it while stopped is a no-op.
func (e *Engine) StopMonitoring() {
	e.monMu.Lock()
	cancel, done := e.monCancel, e.monDone
	e.monCancel, e.monDone = nil, nil
	e.monMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	e.logger.Info("monitor: stopped")
}

// IsMonitoring reports whether the notifier is running.
func (e *Engine) IsMonitoring() bool {
	e.monMu.Lock()
	defer e.monMu.Unlock()
	if e.monCancel == nil {
		return false
	}
	select {
	case <-e.monDone:
		return false
	default:
		return true
	}
}
