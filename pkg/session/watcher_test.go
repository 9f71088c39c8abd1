package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/harun/docmcp/pkg/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupWatchedManager(t *testing.T) (*Manager, *document.Storage, *Watcher) {
	t.Helper()
	store, err := document.NewOsStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save(document.New("one"), "a.txt"))

	mgr := NewManager(store, Options{})
	watcher, err := NewWatcher(mgr, WatcherConfig{StabilityThreshold: 20 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, watcher.Start())
	t.Cleanup(func() {
		_ = watcher.Stop()
		_ = mgr.Close(context.Background())
	})
	return mgr, store, watcher
}

func TestWatcher_ExternalWriteEvictsCleanHandle(t *testing.T) {
	mgr, store, _ := setupWatchedManager(t)

	h, err := mgr.GetOrOpen(context.Background(), "s1", "a.txt")
	require.NoError(t, err)

	// let the recent-write window from setup expire
	time.Sleep(document.DefaultWriteWindow + 200*time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), "a.txt"), []byte("changed\n"), 0644))

	assert.Eventually(t, h.Evicted, 3*time.Second, 20*time.Millisecond)

	reloaded, err := mgr.Acquire(context.Background(), "s1", "a.txt", ModeRead)
	require.NoError(t, err)
	defer reloaded.Release()
	assert.Equal(t, "changed", reloaded.Document().Text())
}

func TestWatcher_IgnoresOwnCommit(t *testing.T) {
	mgr, _, _ := setupWatchedManager(t)
	ctx := context.Background()

	lease, err := mgr.Acquire(ctx, "s1", "a.txt", ModeWrite)
	require.NoError(t, err)
	lease.Document().AppendParagraph(document.Paragraph{Text: "two"})
	require.NoError(t, lease.MarkDirty())
	require.NoError(t, lease.Commit(ctx, "a.txt"))
	h := lease.Handle()
	lease.Release()

	time.Sleep(300 * time.Millisecond)
	assert.False(t, h.Evicted())
	assert.False(t, h.Stale())
}

func TestWatcher_SettlesBursts(t *testing.T) {
	store, err := document.NewOsStorage(t.TempDir())
	require.NoError(t, err)
	w, err := NewWatcher(NewManager(store, Options{}), WatcherConfig{StabilityThreshold: time.Second})
	require.NoError(t, err)
	defer w.Stop()

	a := filepath.Join(store.Root(), "a.docx")
	b := filepath.Join(store.Root(), "b.docx")
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	w.note(fsnotify.Event{Name: a, Op: fsnotify.Write}, t0)
	w.note(fsnotify.Event{Name: b, Op: fsnotify.Create}, t0)
	w.note(fsnotify.Event{Name: a, Op: fsnotify.Write}, t0.Add(600*time.Millisecond))
	w.note(fsnotify.Event{Name: b, Op: fsnotify.Chmod}, t0.Add(900*time.Millisecond))
	w.note(fsnotify.Event{Name: filepath.Join(store.Root(), "~$a.docx"), Op: fsnotify.Write}, t0)

	assert.Empty(t, w.settled(t0.Add(900*time.Millisecond)))
	assert.Equal(t, []string{b}, w.settled(t0.Add(time.Second)), "chmod does not extend the quiet period")
	assert.Empty(t, w.settled(t0.Add(1500*time.Millisecond)))
	assert.Equal(t, []string{a}, w.settled(t0.Add(1600*time.Millisecond)))
	assert.Empty(t, w.settled(t0.Add(time.Hour)))
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	_, _, w := setupWatchedManager(t)
	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestShouldIgnore(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/docs/a.docx", false},
		{"/docs/.hidden.docx", true},
		{"/docs/~$a.docx", true},
		{"/docs/a.docx.tmp", true},
		{"/docs/a.docx.482910337.tmp", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldIgnore(tt.path))
		})
	}
}
