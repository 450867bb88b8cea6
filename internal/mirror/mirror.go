// Package mirror copies local directory trees into a drive, preserving
// relative structure. Files import through a bounded worker pool; an
// optional watch mode keeps re-importing paths as they change on disk.
package mirror

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/peerdrive/peerdrive-go/internal/drive"
)

// Default parallel import workers.
const defaultWorkers = 8

// Options configure a mirror run.
type Options struct {
	// Name is the drive directory receiving the tree. Defaults to the
	// drive root.
	Name string

	// Drive is the destination. Required.
	Drive *drive.Drive

	// Workers bounds parallel file imports. Zero means the default.
	Workers int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}

	return defaultWorkers
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}

	return slog.Default()
}

func (o Options) targetRoot() string {
	if o.Name == "" {
		return "/"
	}

	return drive.CleanPath(o.Name)
}

// Mirror recursively copies the tree rooted at sourcePath into the drive.
// Files land at targetRoot + their path relative to sourcePath. Symlinks
// are skipped; empty directories leave no trace because the drive's
// directories are implicit. Returns the number of files imported.
func Mirror(ctx context.Context, sourcePath string, opts Options) (int, error) {
	abs, err := filepath.Abs(sourcePath)
	if err != nil {
		return 0, fmt.Errorf("mirror: resolving %s: %w", sourcePath, err)
	}

	logger := opts.logger()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())

	var count int

	walkErr := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("mirror: walking %s: %w", path, err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Never import the drive's own store (mirroring the backend root
		// into itself would recurse) or VCS internals.
		if d.IsDir() {
			if hiddenDir(d.Name()) {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, relErr := filepath.Rel(abs, path)
		if relErr != nil {
			return fmt.Errorf("mirror: relativizing %s: %w", path, relErr)
		}

		target := joinTarget(opts.targetRoot(), rel)
		count++

		g.Go(func() error {
			return importFile(path, target, opts.Drive, logger)
		})

		return nil
	})

	if err := g.Wait(); err != nil {
		return 0, err
	}

	if walkErr != nil {
		return 0, walkErr
	}

	return count, nil
}

// joinTarget maps a local relative path into the drive namespace.
func joinTarget(root, rel string) string {
	rel = filepath.ToSlash(rel)

	if root == "/" {
		return drive.CleanPath("/" + rel)
	}

	return drive.CleanPath(root + "/" + rel)
}

func importFile(localPath, target string, d *drive.Drive, logger *slog.Logger) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("mirror: opening %s: %w", localPath, err)
	}
	defer f.Close()

	entry, err := d.Put(target, f)
	if err != nil {
		return fmt.Errorf("mirror: importing %s: %w", localPath, err)
	}

	logger.Debug("imported file",
		slog.String("local_path", localPath),
		slog.String("drive_path", target),
		slog.Int64("bytes", entry.Size),
	)

	return nil
}

// hiddenDir reports whether a path component marks an ignorable directory
// (the drive's own store layout, VCS internals).
func hiddenDir(name string) bool {
	return name == ".peerdrive" || name == ".git" || strings.HasPrefix(name, ".#")
}
