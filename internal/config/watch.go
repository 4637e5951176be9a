package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TokensWatcher monitors the configured token source (file or folder) and
// invokes the supplied callback whenever the table changes. Stop must be called
// to release filesystem resources.
type TokensWatcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for the underlying goroutine to exit.
func (w *TokensWatcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// WatchTokens wires fsnotify around the configured token source and reloads the
// bundle on any relevant change, so rotated production tokens take effect
// without a restart.
func (l *Loader) WatchTokens(ctx context.Context, tokensCfg TokensConfig, onChange func(TokenBundle), onError func(error)) (*TokensWatcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("config: watch tokens requires a change callback")
	}
	if tokensCfg.File == "" && tokensCfg.Folder == "" {
		return nil, fmt.Errorf("config: no token source configured for watching")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("config: watch tokens: %w", err)
	}

	bundle, err := buildTokenBundle(watchCtx, tokensCfg)
	if err != nil {
		if closeErr := watcher.Close(); closeErr != nil && onError != nil {
			onError(fmt.Errorf("config: watch tokens close: %w", closeErr))
		}
		cancel()
		return nil, err
	}
	onChange(bundle)

	done := make(chan struct{})
	watch := &TokensWatcher{cancel: cancel, done: done}

	ready := make(chan struct{})
	var readyOnce sync.Once
	signalReady := func() { readyOnce.Do(func() { close(ready) }) }

	go func() {
		defer close(done)
		defer func() {
			if err := watcher.Close(); err != nil && onError != nil {
				onError(fmt.Errorf("config: watch tokens close: %w", err))
			}
		}()
		defer signalReady()

		var reloadMu sync.Mutex
		reload := func() {
			reloadMu.Lock()
			defer reloadMu.Unlock()
			bundle, err := buildTokenBundle(watchCtx, tokensCfg)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				if onError != nil {
					onError(err)
				}
				return
			}
			onChange(bundle)
		}

		dirs := map[string]struct{}{}
		addDir := func(dir string) {
			dir = filepath.Clean(dir)
			if _, ok := dirs[dir]; ok {
				return
			}
			if err := watcher.Add(dir); err != nil {
				if onError != nil {
					onError(fmt.Errorf("config: watch add %s: %w", dir, err))
				}
				return
			}
			dirs[dir] = struct{}{}
		}

		targetFile := ""
		if tokensCfg.File != "" {
			resolved := tokensCfg.File
			if path, err := filepath.Abs(tokensCfg.File); err == nil {
				resolved = path
			} else if onError != nil {
				onError(fmt.Errorf("config: resolve tokens file: %w", err))
			}
			targetFile = filepath.Clean(resolved)
			addDir(filepath.Dir(targetFile))
		} else {
			root, err := filepath.Abs(tokensCfg.Folder)
			if err != nil {
				if onError != nil {
					onError(fmt.Errorf("config: resolve tokens folder: %w", err))
				}
				root = tokensCfg.Folder
			}
			if err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
				if walkErr != nil {
					if onError != nil {
						onError(fmt.Errorf("config: walk watcher %s: %w", path, walkErr))
					}
					return nil
				}
				if d.IsDir() {
					addDir(path)
				}
				return nil
			}); err != nil {
				if onError != nil {
					onError(fmt.Errorf("config: traverse watcher %s: %w", root, err))
				}
			}
		}

		signalReady()

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
				name := filepath.Clean(event.Name)
				if targetFile != "" {
					if name != targetFile {
						continue
					}
					if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
						if onError != nil {
							onError(fmt.Errorf("config: tokens file %s removed", targetFile))
						}
					}
					if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
						scheduleReload()
					}
					continue
				}
				if event.Op&fsnotify.Create != 0 {
					info, err := os.Stat(name)
					if err == nil && info.IsDir() {
						addDir(name)
						continue
					}
				}
				if !isSupportedTokenFile(name) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) == 0 {
					continue
				}
				scheduleReload()
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

	<-ready

	return watch, nil
}
