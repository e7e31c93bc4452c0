package supervisor

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 1 * time.Second

// WatchBinary watches the directory containing binaryPath and calls
// onChange, debounced by reloadDebounce, whenever that file is written or
// renamed into place — the common pattern for "deploy a new worker binary,
// the supervisor picks it up" (spec.md's supplemented hot-reload feature).
// It blocks until ctx is done.
func WatchBinary(ctx context.Context, logger *slog.Logger, binaryPath string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(binaryPath)
	base := filepath.Base(binaryPath)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(reloadDebounce)
			}

		case <-timerC:
			logger.Info("worker binary changed, reloading", slog.String("path", binaryPath))
			onChange()
			timer = nil
			timerC = nil

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", slog.Any("err", err))

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
