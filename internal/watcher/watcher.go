// Package watcher provides file system watching for the token registry
// file, so a running server picks up tokens issued or revoked by the
// admin CLI without a restart.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// changeOps are the operations that mean the registry content moved
// underneath us. Atomic rename-on-write surfaces as Create, direct
// writes as Write, deletion as Remove.
const changeOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// Watcher monitors a file for content changes and calls onChange after
// a short debounce. It watches the parent directory because fsnotify
// watches track inodes and rename-on-write replaces the inode on every
// update.
type Watcher struct {
	targetPath string // The file to watch for changes
	parentPath string // Parent directory (what we actually watch)
	onChange   func() // Callback when target changes
	watcher    *fsnotify.Watcher
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	running    bool
	debounce   time.Duration
}

// New creates a new Watcher for the given target path.
// The onChange callback is called when the target is written, replaced,
// or removed.
func New(targetPath string, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		targetPath: targetPath,
		parentPath: filepath.Dir(targetPath),
		onChange:   onChange,
		watcher:    fsw,
		ctx:        ctx,
		cancel:     cancel,
		debounce:   100 * time.Millisecond,
	}, nil
}

// Start begins watching for file change events.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Add watch on parent directory
	if err := w.addWatch(); err != nil {
		log.Warn().Err(err).Str("path", w.parentPath).Msg("Failed to add initial watch")
		// Continue anyway - we'll try to re-establish later
	}

	go w.watchLoop()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	w.cancel()
	return w.watcher.Close()
}

// addWatch adds the parent directory to the watch list.
func (w *Watcher) addWatch() error {
	// Ensure parent exists
	if _, err := os.Stat(w.parentPath); os.IsNotExist(err) {
		return err
	}
	return w.watcher.Add(w.parentPath)
}

// watchLoop is the main event loop. A single rename-on-write produces
// several events, so changes are coalesced behind a debounce timer.
func (w *Watcher) watchLoop() {
	var debounceTimer *time.Timer

	for {
		select {
		case <-w.ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			eventPath := filepath.Clean(event.Name)
			targetPath := filepath.Clean(w.targetPath)

			// Parent directory deleted: the watch dies with it. Treat
			// as a change and try to re-establish once it reappears.
			if eventPath == w.parentPath && event.Op&fsnotify.Remove != 0 {
				log.Info().Str("path", w.parentPath).Msg("Parent directory deleted")
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(w.debounce, func() {
					w.fireChange()
					w.rewatchLater()
				})
				continue
			}

			if eventPath != targetPath || event.Op&changeOps == 0 {
				continue
			}

			log.Debug().Str("path", w.targetPath).Str("op", event.Op.String()).Msg("Registry file changed")
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.fireChange)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

// fireChange calls the onChange callback.
func (w *Watcher) fireChange() {
	log.Debug().Str("path", w.targetPath).Msg("Triggering change callback")
	if w.onChange != nil {
		w.onChange()
	}
}

// rewatchLater attempts to re-establish the watch after a short delay,
// giving whoever removed the parent directory time to recreate it.
func (w *Watcher) rewatchLater() {
	go func() {
		time.Sleep(500 * time.Millisecond)
		if err := w.addWatch(); err != nil {
			log.Warn().Err(err).Str("path", w.parentPath).Msg("Failed to re-establish watch")
		} else {
			log.Info().Str("path", w.parentPath).Msg("Re-established watch after recreation")
		}
	}()
}
