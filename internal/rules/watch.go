package rules

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors a JSON config file and reloads the manager whenever the
// file changes. Stop must be called to release filesystem resources.
type Watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for the underlying goroutine to exit.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// Watch wires fsnotify around the config file. The parent directory is
// watched because editors and config mounts replace the file rather than
// writing it in place. Reload failures keep the current table and are
// reported through onError.
func (m *Manager) Watch(ctx context.Context, path string, onError func(error)) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("rules: no config file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("rules: watch config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		closeErr := watcher.Close()
		return nil, errors.Join(fmt.Errorf("rules: watch %s: %w", dir, err), closeErr)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	target := filepath.Clean(path)

	go func() {
		defer close(done)
		defer func() {
			if err := watcher.Close(); err != nil && onError != nil {
				onError(fmt.Errorf("rules: watch close: %w", err))
			}
		}()

		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if err := m.Reload(watchCtx); err != nil && onError != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					onError(err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if err != nil && onError != nil {
					onError(fmt.Errorf("rules: watch: %w", err))
				}
			}
		}
	}()

	return &Watcher{cancel: cancel, done: done}, nil
}
