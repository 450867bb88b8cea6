package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/peerdrive/peerdrive-go/internal/drive"
	"github.com/peerdrive/peerdrive-go/internal/drivekey"
	"github.com/peerdrive/peerdrive-go/internal/mirror"
)

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat [pathspec]",
		Short: "Display metadata for a drive node",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStat,
	}
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read [pathspec]",
		Short: "Stream a drive file to stdout",
		Long: `Stream the content of a drive file to standard output.

The transfer range flags (--start, --end, --length) bound the stream;
when both --end and --length are given, --length wins.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRead,
	}
}

func newWriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write <local-path>",
		Short: "Copy a local file or directory tree into the drive",
		Long: `Copy local content into the drive.

A file streams into the drive under its base name, honoring --start as
the write offset. A directory mirrors recursively into the drive root,
preserving relative structure; range flags are ignored for directories.`,
		Args: cobra.ExactArgs(1),
		RunE: runWrite,
	}

	cmd.Flags().Bool("watch", false, "keep mirroring a directory as it changes")

	return cmd
}

func newUnlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <pathspec>",
		Short: "Remove a file from the drive",
		Args:  cobra.ExactArgs(1),
		RunE:  runUnlink,
	}
}

func newReaddirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "readdir [pathspec]",
		Short: "List the children of a drive directory",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runReaddir,
	}
}

// pathArg extracts the optional pathspec argument, defaulting to the
// drive root.
func pathArg(args []string) string {
	if len(args) == 0 {
		return "/"
	}

	return args[0]
}

// transferRange assembles the Range from global flags. Changed() guards
// distinguish an explicit zero from an unset flag.
func transferRange(cmd *cobra.Command) drive.Range {
	flags := cmd.Flags()

	return drive.Range{
		Start:     flagStart,
		End:       flagEnd,
		Length:    flagLength,
		HasStart:  flags.Changed("start"),
		HasEnd:    flags.Changed("end"),
		HasLength: flags.Changed("length"),
	}
}

// openDrive selects the backend from the flags, opens the drive handle,
// and blocks on readiness. Every command handler goes through here before
// touching the namespace.
func openDrive(ctx context.Context, explicitPath string, logger *slog.Logger) (*drive.Drive, error) {
	key, err := drivekey.ParsePublic(resolvedCfg.Key)
	if err != nil {
		return nil, err
	}

	backend := drive.Select(flagRAM, explicitPath)

	opts := drive.Options{
		Sparse:         resolvedCfg.Drive.Sparse,
		SparseMetadata: resolvedCfg.Drive.SparseMetadata,
	}

	d := drive.Open(backend, key, opts, logger)

	if err := d.Ready(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("opening drive: %w", err)
	}

	return d, nil
}

// statJSONOutput is the JSON output schema for the stat command.
type statJSONOutput struct {
	Path     string `json:"path"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	Version  uint64 `json:"version"`
	Modified string `json:"modified,omitempty"`
}

func runStat(cmd *cobra.Command, args []string) error {
	spec := pathArg(args)
	logger := buildLogger()

	d, err := openDrive(cmd.Context(), "", logger)
	if err != nil {
		return err
	}
	defer d.Close()

	logger.Debug("stat", "path", spec)

	entry, err := d.Stat(spec)
	if err != nil {
		return fmt.Errorf("stating %q: %w", spec, err)
	}

	if flagJSON {
		return printStatJSON(entry)
	}

	printStatText(entry)

	return nil
}

func printStatJSON(entry drive.Entry) error {
	out := statJSONOutput{
		Path:    entry.Path,
		Type:    "file",
		Size:    entry.Size,
		Version: entry.Version,
	}

	if entry.IsDir {
		out.Type = "directory"
	}

	if !entry.ModTime.IsZero() {
		out.Modified = entry.ModTime.Format(time.RFC3339)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func printStatText(entry drive.Entry) {
	nodeType := "file"
	if entry.IsDir {
		nodeType = "directory"
	}

	fmt.Printf("Path:     %s\n", entry.Path)
	fmt.Printf("Type:     %s\n", nodeType)

	if !entry.IsDir {
		fmt.Printf("Size:     %s (%d bytes)\n", formatSize(entry.Size), entry.Size)
	}

	fmt.Printf("Version:  %d\n", entry.Version)

	if !entry.ModTime.IsZero() {
		fmt.Printf("Modified: %s\n", entry.ModTime.Format("2006-01-02 15:04:05 UTC"))
	}
}

func runRead(cmd *cobra.Command, args []string) error {
	spec := pathArg(args)
	logger := buildLogger()

	d, err := openDrive(cmd.Context(), "", logger)
	if err != nil {
		return err
	}
	defer d.Close()

	logger.Debug("read", "path", spec)

	// Stat first: a directory read must fail before any byte reaches
	// stdout.
	entry, err := d.Stat(spec)
	if err != nil {
		return fmt.Errorf("stating %q: %w", spec, err)
	}

	if entry.IsDir {
		return fmt.Errorf("cannot read directory %q", spec)
	}

	rc, err := d.CreateReadStream(spec, transferRange(cmd))
	if err != nil {
		return fmt.Errorf("reading %q: %w", spec, err)
	}
	defer rc.Close()

	n, err := io.Copy(os.Stdout, rc)
	if err != nil {
		return fmt.Errorf("streaming %q after %d bytes: %w", spec, n, err)
	}

	logger.Debug("read complete", "path", spec, "bytes", n)

	return nil
}

func runWrite(cmd *cobra.Command, args []string) error {
	localPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving %q: %w", args[0], err)
	}

	fi, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stating local path: %w", err)
	}

	logger := buildLogger()

	d, err := openDrive(cmd.Context(), "", logger)
	if err != nil {
		return err
	}
	defer d.Close()

	if fi.IsDir() {
		return writeDirectory(cmd, d, localPath, logger)
	}

	return writeFile(cmd, d, localPath, logger)
}

// writeDirectory mirrors a local tree into the drive root. Range flags do
// not apply to the structural copy.
func writeDirectory(cmd *cobra.Command, d *drive.Drive, localPath string, logger *slog.Logger) error {
	watch, err := cmd.Flags().GetBool("watch")
	if err != nil {
		return err
	}

	opts := mirror.Options{Drive: d, Logger: logger}

	if watch {
		ctx := shutdownContext(cmd.Context(), logger)
		statusf("Mirroring %s and watching for changes (interrupt to stop)\n", localPath)

		if err := mirror.Watch(ctx, localPath, opts); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("watching %q: %w", localPath, err)
		}

		return nil
	}

	count, err := mirror.Mirror(cmd.Context(), localPath, opts)
	if err != nil {
		return fmt.Errorf("mirroring %q: %w", localPath, err)
	}

	statusf("Mirrored %d files from %s\n", count, localPath)

	return nil
}

// writeFile streams one local file into the drive under its base name,
// honoring the range's start offset on both ends.
func writeFile(cmd *cobra.Command, d *drive.Drive, localPath string, logger *slog.Logger) error {
	rng := transferRange(cmd)
	target := "/" + filepath.Base(localPath)

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening local file: %w", err)
	}
	defer f.Close()

	if offset := rng.Offset(); offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("seeking %q to %d: %w", localPath, offset, err)
		}
	}

	ws, err := d.CreateWriteStream(target, rng)
	if err != nil {
		return fmt.Errorf("writing %q: %w", target, err)
	}

	n, err := io.Copy(ws, f)
	if err != nil {
		return fmt.Errorf("streaming into %q after %d bytes: %w", target, n, err)
	}

	if err := ws.Close(); err != nil {
		return fmt.Errorf("committing %q: %w", target, err)
	}

	logger.Debug("write complete", "local_path", localPath, "drive_path", target, "bytes", n)
	statusf("Wrote %s (%s)\n", target, formatSize(n))

	return nil
}

func runUnlink(cmd *cobra.Command, args []string) error {
	spec := args[0]
	logger := buildLogger()

	d, err := openDrive(cmd.Context(), "", logger)
	if err != nil {
		return err
	}
	defer d.Close()

	logger.Debug("unlink", "path", spec)

	// A missing path is a real failure here, unlike download's
	// access-then-fetch trigger.
	if err := d.Unlink(spec); err != nil {
		return fmt.Errorf("unlinking %q: %w", spec, err)
	}

	statusf("Unlinked %s\n", spec)

	return nil
}

// readdirJSONItem is the JSON output schema for one readdir entry.
type readdirJSONItem struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	IsDir    bool   `json:"is_dir"`
	Version  uint64 `json:"version"`
	Modified string `json:"modified,omitempty"`
}

func runReaddir(cmd *cobra.Command, args []string) error {
	spec := pathArg(args)
	logger := buildLogger()

	d, err := openDrive(cmd.Context(), "", logger)
	if err != nil {
		return err
	}
	defer d.Close()

	logger.Debug("readdir", "path", spec)

	entries, err := d.Readdir(spec)
	if err != nil {
		return fmt.Errorf("listing %q: %w", spec, err)
	}

	if flagJSON {
		return printEntriesJSON(entries)
	}

	printEntriesTable(entries)

	return nil
}

func printEntriesJSON(entries []drive.Entry) error {
	out := make([]readdirJSONItem, 0, len(entries))

	for _, e := range entries {
		item := readdirJSONItem{
			Name:    e.Name(),
			Path:    e.Path,
			Size:    e.Size,
			IsDir:   e.IsDir,
			Version: e.Version,
		}

		if !e.ModTime.IsZero() {
			item.Modified = e.ModTime.Format(time.RFC3339)
		}

		out = append(out, item)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func printEntriesTable(entries []drive.Entry) {
	// Sort: directories first, then alphabetical.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}

		return entries[i].Name() < entries[j].Name()
	})

	headers := []string{"NAME", "SIZE", "VERSION", "MODIFIED"}
	rows := make([][]string, 0, len(entries))

	for _, e := range entries {
		name := e.Name()
		size := formatSize(e.Size)

		if e.IsDir {
			name += "/"
			size = "-"
		}

		rows = append(rows, []string{name, size, fmt.Sprintf("%d", e.Version), formatTime(e.ModTime)})
	}

	printTable(os.Stdout, headers, rows)
}
