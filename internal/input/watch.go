package input

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"

	"github.com/roughmark/roughmark/internal/fault"
	"github.com/roughmark/roughmark/pkg/types"
)

// Watch loads path once, calls onChange with the items, then calls it again
// every time the file is written. It runs until ctx is cancelled.
//
// A reload that fails (unreadable or unparsable file) is logged and skipped;
// onChange only ever sees complete loads.
func Watch(ctx context.Context, path string, rowWidth int, onChange func([]types.WorkItem)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("input: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("input: watch %s: %w: %w", path, fault.ErrFileUnavailable, err)
	}

	slog.Info("input: watching for changes", "path", path)

	if items, err := Load(path, rowWidth); err != nil {
		slog.Error("input: initial load failed", "path", path, "err", err)
	} else {
		onChange(items)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, so Create counts too.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			items, err := Load(path, rowWidth)
			if err != nil {
				slog.Error("input: reload failed, skipping", "path", path, "err", err)
				continue
			}

			slog.Info("input: reloaded", "path", path, "rows", len(items))
			onChange(items)

			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("input: watcher error", "err", err)
		}
	}
}
