package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sgtv/livestatus/internal/classify"
)

// SignalsWatcher monitors the detection-signals file and invokes the
// supplied callback whenever it changes. Stop must be called to release
// filesystem resources.
type SignalsWatcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for the underlying goroutine to exit.
func (w *SignalsWatcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// WatchSignals wires fsnotify around the signals file and reloads it on any
// relevant change. The initial load happens before the watcher is returned,
// so a broken file fails startup rather than silently running on defaults.
func WatchSignals(ctx context.Context, path string, onChange func(classify.Signals), onError func(error)) (*SignalsWatcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("config: watch signals requires a change callback")
	}
	if path == "" {
		return nil, fmt.Errorf("config: no signals file configured for watching")
	}

	resolved := path
	if abs, err := filepath.Abs(path); err == nil {
		resolved = abs
	}
	target := filepath.Clean(resolved)

	signals, err := LoadSignals(target)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("config: watch signals: %w", err)
	}
	// Watch the directory, not the file: editors replace files by rename and
	// a file-level watch dies with the old inode.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		cancel()
		if closeErr := watcher.Close(); closeErr != nil && onError != nil {
			onError(fmt.Errorf("config: watch signals close: %w", closeErr))
		}
		return nil, fmt.Errorf("config: watch signals add: %w", err)
	}

	onChange(signals)

	done := make(chan struct{})
	watch := &SignalsWatcher{cancel: cancel, done: done}

	go func() {
		defer close(done)
		defer func() {
			if err := watcher.Close(); err != nil && onError != nil {
				onError(fmt.Errorf("config: watch signals close: %w", err))
			}
		}()

		reload := func() {
			signals, err := LoadSignals(target)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				return
			}
			onChange(signals)
		}

		const debounce = 25 * time.Millisecond
		var reloadTimer *time.Timer
		var reloadSignal <-chan time.Time
		scheduleReload := func() {
			if reloadTimer == nil {
				reloadTimer = time.NewTimer(debounce)
			} else {
				if !reloadTimer.Stop() {
					select {
					case <-reloadTimer.C:
					default:
					}
				}
				reloadTimer.Reset(debounce)
			}
			reloadSignal = reloadTimer.C
		}
		flushTimer := func() {
			if reloadTimer == nil {
				return
			}
			if !reloadTimer.Stop() {
				select {
				case <-reloadTimer.C:
				default:
				}
			}
			reloadSignal = nil
		}
		defer flushTimer()

		for {
			select {
			case <-watchCtx.Done():
				return
			case <-reloadSignal:
				flushTimer()
				reload()
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && onError != nil {
					onError(fmt.Errorf("config: signals file %s removed", target))
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
					scheduleReload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(fmt.Errorf("config: watch error: %w", err))
				}
			}
		}
	}()

	return watch, nil
}
