package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/peerdrive/peerdrive-go/internal/drive"
)

// Watch mirrors sourcePath once, then keeps re-importing files as they
// are created or written until ctx is canceled. New subdirectories are
// added to the watch as they appear. Local deletions are propagated as
// drive unlinks.
func Watch(ctx context.Context, sourcePath string, opts Options) error {
	abs, err := filepath.Abs(sourcePath)
	if err != nil {
		return fmt.Errorf("mirror: resolving %s: %w", sourcePath, err)
	}

	if _, err := Mirror(ctx, abs, opts); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("mirror: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watchTree(watcher, abs); err != nil {
		return err
	}

	logger := opts.logger()
	logger.Debug("watching for changes", slog.String("path", abs))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if err := handleEvent(ctx, event, watcher, abs, opts); err != nil {
				return err
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("watch error", slog.String("error", watchErr.Error()))
		}
	}
}

// watchTree registers every directory under root with the watcher.
func watchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree: skip, don't kill the watch
		}

		if !d.IsDir() {
			return nil
		}

		if hiddenDir(d.Name()) {
			return filepath.SkipDir
		}

		if addErr := watcher.Add(path); addErr != nil {
			return fmt.Errorf("mirror: watching %s: %w", path, addErr)
		}

		return nil
	})
}

// handleEvent reacts to one filesystem event: re-import on create/write,
// unlink on remove/rename, extend the watch when a directory appears.
func handleEvent(ctx context.Context, event fsnotify.Event, watcher *fsnotify.Watcher, root string, opts Options) error {
	rel, err := filepath.Rel(root, event.Name)
	if err != nil {
		return nil
	}

	target := joinTarget(opts.targetRoot(), rel)
	logger := opts.logger()

	switch {
	case event.Op.Has(fsnotify.Create), event.Op.Has(fsnotify.Write):
		info, statErr := os.Stat(event.Name)
		if statErr != nil {
			return nil // transient file already gone
		}

		if info.IsDir() {
			if hiddenDir(filepath.Base(event.Name)) {
				return nil
			}

			if err := watchTree(watcher, event.Name); err != nil {
				return err
			}

			_, mirrorErr := Mirror(ctx, event.Name, Options{
				Name:    target,
				Drive:   opts.Drive,
				Workers: opts.Workers,
				Logger:  opts.Logger,
			})

			return mirrorErr
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		return importFile(event.Name, target, opts.Drive, logger)

	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		// A removed directory takes its whole imported subtree with it;
		// List resolves a plain file to a single entry.
		entries, listErr := opts.Drive.List(target)
		if listErr != nil {
			return nil // never imported
		}

		for _, e := range entries {
			if unlinkErr := opts.Drive.Unlink(e.Path); unlinkErr != nil && !errors.Is(unlinkErr, drive.ErrNotFound) {
				logger.Debug("unlink after local removal",
					slog.String("drive_path", e.Path),
					slog.String("error", unlinkErr.Error()),
				)
			}
		}

		return nil
	}

	return nil
}
