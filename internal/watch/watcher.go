// Package watch auto-saves working state while the tree changes. File
// events are debounced into bursts; each settled burst fires one
// minimal-save trigger, subject to a floor between saves so a long
// edit session does not rewrite state every second.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ariadne/internal/dispatch"
	"ariadne/internal/logging"
	"ariadne/internal/vcs"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Trigger receives the save events this watcher fires.
type Trigger interface {
	OnEvent(ctx context.Context, ev dispatch.Event) dispatch.Advice
}

// Stats tracks watcher activity for the status command and tests.
type Stats struct {
	EventsSeen     int
	SavesTriggered int
	Errors         int
	LastEventPath  string
	LastEventTime  time.Time
}

// Options wires a Watcher.
type Options struct {
	Workspace    string
	Trigger      Trigger
	SessionID    string
	Logger       *zap.Logger
	Debounce     time.Duration
	SaveInterval time.Duration
	GitSnapshot  func(ctx context.Context, dir string) (*vcs.Summary, error)
}

// Watcher monitors the workspace root and its first-level
// subdirectories. Deeper changes surface through git status at save
// time, so recursive watches are not worth their inotify cost.
type Watcher struct {
	mu sync.RWMutex

	watcher      *fsnotify.Watcher
	trigger      Trigger
	workspace    string
	sessionID    string
	logger       *zap.Logger
	debounce     time.Duration
	saveInterval time.Duration
	gitSnapshot  func(ctx context.Context, dir string) (*vcs.Summary, error)

	pending  map[string]time.Time
	lastSave time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool

	stats Stats
}

// ignoredDirs never get watches and never trigger saves. The state
// directory itself is here so a save cannot re-trigger the watcher.
var ignoredDirs = map[string]bool{
	".git":         true,
	".ariadne":     true,
	"node_modules": true,
	"vendor":       true,
}

// New creates a Watcher. Call Start to begin watching.
func New(opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	saveInterval := opts.SaveInterval
	if saveInterval <= 0 {
		saveInterval = 30 * time.Second
	}
	gitFn := opts.GitSnapshot
	if gitFn == nil {
		gitFn = vcs.Snapshot
	}

	return &Watcher{
		watcher:      fsw,
		trigger:      opts.Trigger,
		workspace:    opts.Workspace,
		sessionID:    opts.SessionID,
		logger:       logging.OrNop(opts.Logger),
		debounce:     debounce,
		saveInterval: saveInterval,
		gitSnapshot:  gitFn,
		pending:      make(map[string]time.Time),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// Start adds the watches and launches the event loop. Non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.workspace); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.workspace)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() || ignoredDirs[e.Name()] || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if err := w.watcher.Add(filepath.Join(w.workspace, e.Name())); err != nil {
				w.logger.Debug("subdirectory watch failed",
					zap.String("dir", e.Name()), zap.Error(err))
			}
		}
	}
	w.logger.Info("watching workspace", zap.String("dir", w.workspace))

	go w.run(ctx)
	return nil
}

// Stop ends the event loop and closes the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("watcher close failed", zap.Error(err))
	}
}

// Running reports whether the event loop is live.
func (w *Watcher) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Stats returns a copy of the activity counters.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	flushTicker := time.NewTicker(100 * time.Millisecond)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-flushTicker.C:
			w.flush(ctx)
		}
	}
}

// handleEvent records one filesystem event for debounced handling.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if shouldIgnore(event.Name) {
		return
	}

	w.mu.Lock()
	w.stats.EventsSeen++
	w.stats.LastEventPath = event.Name
	w.stats.LastEventTime = time.Now()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// flush fires one save when a burst of changes has settled and the
// save floor has passed.
func (w *Watcher) flush(ctx context.Context) {
	now := time.Now()

	w.mu.Lock()
	if len(w.pending) == 0 || now.Sub(w.lastSave) < w.saveInterval {
		w.mu.Unlock()
		return
	}
	var settled []string
	for path, seen := range w.pending {
		if now.Sub(seen) >= w.debounce {
			settled = append(settled, path)
		}
	}
	if len(settled) == 0 {
		w.mu.Unlock()
		return
	}
	for _, path := range settled {
		delete(w.pending, path)
	}
	w.lastSave = now
	w.mu.Unlock()

	w.fireSave(ctx, settled)
}

// fireSave builds the richest payload it can and hands it to the
// trigger. Git failure degrades to the raw event paths.
func (w *Watcher) fireSave(ctx context.Context, changed []string) {
	payload := &dispatch.SavePayload{Timestamp: time.Now()}

	gctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if sum, err := w.gitSnapshot(gctx, w.workspace); err == nil {
		payload.Branch = sum.Branch
		payload.SHA = sum.ShortSHA
		payload.ModifiedFiles = sum.ModifiedFiles
	} else {
		w.logger.Debug("saving without git context", zap.Error(err))
		for _, path := range changed {
			if rel, err := filepath.Rel(w.workspace, path); err == nil {
				payload.ModifiedFiles = append(payload.ModifiedFiles, rel)
			}
		}
	}

	advice := w.trigger.OnEvent(ctx, dispatch.Event{
		Type:      dispatch.EventMinimalSave,
		SessionID: w.sessionID,
		Save:      payload,
	})
	w.logger.Info("auto-save", zap.String("result", advice.Message),
		zap.Int("changed", len(changed)))

	w.mu.Lock()
	w.stats.SavesTriggered++
	w.mu.Unlock()
}

// shouldIgnore filters editor noise and the state directory itself.
func shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") || strings.HasSuffix(base, ".tmp") {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if ignoredDirs[part] {
			return true
		}
	}
	return false
}
