package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T) (string, *Watcher, chan struct{}) {
	t.Helper()

	dir := t.TempDir()
	target := filepath.Join(dir, "tokens.json")
	require.NoError(t, os.WriteFile(target, []byte(`{"tokens":{}}`), 0o600))

	changed := make(chan struct{}, 8)
	w, err := New(target, func() {
		changed <- struct{}{}
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })

	return target, w, changed
}

func waitForChange(t *testing.T, changed <-chan struct{}) {
	t.Helper()
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change callback")
	}
}

// TestWatcher_DetectsWrite tests that an in-place write fires the
// callback after the debounce window.
func TestWatcher_DetectsWrite(t *testing.T) {
	target, _, changed := newTestWatcher(t)

	require.NoError(t, os.WriteFile(target, []byte(`{"tokens":{"a":{}}}`), 0o600))
	waitForChange(t, changed)
}

// TestWatcher_DetectsRenameReplace tests that atomic rename-on-write,
// the way the registry persists, fires the callback.
func TestWatcher_DetectsRenameReplace(t *testing.T) {
	target, _, changed := newTestWatcher(t)

	tmp := filepath.Join(filepath.Dir(target), ".tokens-new")
	require.NoError(t, os.WriteFile(tmp, []byte(`{"tokens":{"b":{}}}`), 0o600))
	require.NoError(t, os.Rename(tmp, target))
	waitForChange(t, changed)
}

// TestWatcher_DetectsRemove tests that deleting the file fires the
// callback so stale cache entries are dropped.
func TestWatcher_DetectsRemove(t *testing.T) {
	target, _, changed := newTestWatcher(t)

	require.NoError(t, os.Remove(target))
	waitForChange(t, changed)
}

// TestWatcher_IgnoresSiblings tests that changes to other files in the
// watched directory do not fire the callback.
func TestWatcher_IgnoresSiblings(t *testing.T) {
	target, _, changed := newTestWatcher(t)

	sibling := filepath.Join(filepath.Dir(target), "other.json")
	require.NoError(t, os.WriteFile(sibling, []byte("{}"), 0o600))

	select {
	case <-changed:
		t.Fatal("callback fired for sibling file")
	case <-time.After(300 * time.Millisecond):
	}
}

// TestWatcher_StartStop tests that Start and Stop are idempotent.
func TestWatcher_StartStop(t *testing.T) {
	dir := t.TempDir()
	w, err := New(filepath.Join(dir, "tokens.json"), func() {})
	require.NoError(t, err)

	assert.NoError(t, w.Start())
	assert.NoError(t, w.Start())
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
