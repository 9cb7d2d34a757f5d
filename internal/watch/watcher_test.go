package watch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ariadne/internal/dispatch"
	"ariadne/internal/vcs"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestMain ensures the watcher's goroutines are gone after every Stop.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTrigger struct {
	mu    sync.Mutex
	calls int
	last  dispatch.Event
}

func (f *fakeTrigger) OnEvent(_ context.Context, ev dispatch.Event) dispatch.Advice {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = ev
	return dispatch.Advice{Message: "state saved"}
}

func noGit(context.Context, string) (*vcs.Summary, error) {
	return nil, errors.New("no repo")
}

func TestShouldIgnore(t *testing.T) {
	ignored := []string{
		"/ws/.git/HEAD",
		"/ws/.ariadne/context.md",
		"/ws/node_modules/x/index.js",
		"/ws/main.go~",
		"/ws/.main.go.swp",
		"/ws/build.tmp",
	}
	for _, path := range ignored {
		require.True(t, shouldIgnore(path), "expected %s to be ignored", path)
	}

	kept := []string{"/ws/main.go", "/ws/internal/auth/jwt.go", "/ws/README.md"}
	for _, path := range kept {
		require.False(t, shouldIgnore(path), "expected %s to be watched", path)
	}
}

func TestBurstFiresOneSave(t *testing.T) {
	trigger := &fakeTrigger{}
	ws := t.TempDir()
	w, err := New(Options{
		Workspace:    ws,
		Trigger:      trigger,
		SessionID:    "s1",
		Debounce:     time.Millisecond,
		SaveInterval: time.Millisecond,
		GitSnapshot:  noGit,
	})
	require.NoError(t, err)
	t.Cleanup(func() { w.watcher.Close() })

	w.handleEvent(fsnotify.Event{Name: filepath.Join(ws, "a.go"), Op: fsnotify.Write})
	w.handleEvent(fsnotify.Event{Name: filepath.Join(ws, "b.go"), Op: fsnotify.Create})
	time.Sleep(5 * time.Millisecond)

	w.flush(context.Background())

	require.Equal(t, 1, trigger.calls, "one settled burst, one save")
	require.Equal(t, dispatch.EventMinimalSave, trigger.last.Type)
	require.Equal(t, "s1", trigger.last.SessionID)
	require.ElementsMatch(t, []string{"a.go", "b.go"}, trigger.last.Save.ModifiedFiles)

	stats := w.Stats()
	require.Equal(t, 2, stats.EventsSeen)
	require.Equal(t, 1, stats.SavesTriggered)

	w.flush(context.Background())
	require.Equal(t, 1, trigger.calls, "nothing pending, nothing fired")
}

func TestGitContextPreferredOverEventPaths(t *testing.T) {
	trigger := &fakeTrigger{}
	ws := t.TempDir()
	w, err := New(Options{
		Workspace:    ws,
		Trigger:      trigger,
		Debounce:     time.Millisecond,
		SaveInterval: time.Millisecond,
		GitSnapshot: func(context.Context, string) (*vcs.Summary, error) {
			return &vcs.Summary{
				Branch:        "main",
				ShortSHA:      "a1b2c3d",
				Dirty:         true,
				ModifiedFiles: []string{"tracked.go"},
			}, nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { w.watcher.Close() })

	w.handleEvent(fsnotify.Event{Name: filepath.Join(ws, "tracked.go"), Op: fsnotify.Write})
	time.Sleep(5 * time.Millisecond)
	w.flush(context.Background())

	require.Equal(t, 1, trigger.calls)
	require.Equal(t, "main", trigger.last.Save.Branch)
	require.Equal(t, "a1b2c3d", trigger.last.Save.SHA)
	require.Equal(t, []string{"tracked.go"}, trigger.last.Save.ModifiedFiles)
}

func TestChmodAndNoiseIgnored(t *testing.T) {
	trigger := &fakeTrigger{}
	ws := t.TempDir()
	w, err := New(Options{
		Workspace:   ws,
		Trigger:     trigger,
		GitSnapshot: noGit,
	})
	require.NoError(t, err)
	t.Cleanup(func() { w.watcher.Close() })

	w.handleEvent(fsnotify.Event{Name: filepath.Join(ws, "a.go"), Op: fsnotify.Chmod})
	w.handleEvent(fsnotify.Event{Name: filepath.Join(ws, ".ariadne", "context.md"), Op: fsnotify.Write})

	require.Zero(t, w.Stats().EventsSeen)
}

func TestSaveFloorThrottles(t *testing.T) {
	trigger := &fakeTrigger{}
	ws := t.TempDir()
	w, err := New(Options{
		Workspace:    ws,
		Trigger:      trigger,
		Debounce:     time.Millisecond,
		SaveInterval: time.Hour,
		GitSnapshot:  noGit,
	})
	require.NoError(t, err)
	t.Cleanup(func() { w.watcher.Close() })

	w.handleEvent(fsnotify.Event{Name: filepath.Join(ws, "a.go"), Op: fsnotify.Write})
	time.Sleep(5 * time.Millisecond)
	w.flush(context.Background())
	require.Equal(t, 1, trigger.calls)

	w.handleEvent(fsnotify.Event{Name: filepath.Join(ws, "b.go"), Op: fsnotify.Write})
	time.Sleep(5 * time.Millisecond)
	w.flush(context.Background())
	require.Equal(t, 1, trigger.calls, "second burst inside the floor must not save")
}

func TestStartStop(t *testing.T) {
	trigger := &fakeTrigger{}
	w, err := New(Options{
		Workspace:   t.TempDir(),
		Trigger:     trigger,
		GitSnapshot: noGit,
	})
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	require.True(t, w.Running())

	w.Stop()
	require.False(t, w.Running())
}
