package mirror

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerdrive/peerdrive-go/internal/drive"
	"github.com/peerdrive/peerdrive-go/internal/drivekey"
)

func testDrive(t *testing.T) *drive.Drive {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := drive.Open(drive.Backend{Kind: drive.KindVolatile}, drivekey.PublicKey{}, drive.Options{}, logger)
	t.Cleanup(func() { d.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Ready(ctx))

	return d
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func readDrive(t *testing.T, d *drive.Drive, spec string) string {
	t.Helper()

	rc, err := d.CreateReadStream(spec, drive.Range{})
	require.NoError(t, err)
	defer rc.Close()

	b, err := io.ReadAll(rc)
	require.NoError(t, err)

	return string(b)
}

func TestMirrorPreservesStructure(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"top.txt":         "top",
		"docs/a.txt":      "aaa",
		"docs/deep/b.txt": "bbb",
	})

	d := testDrive(t)

	count, err := Mirror(context.Background(), src, Options{Drive: d})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	assert.Equal(t, "top", readDrive(t, d, "/top.txt"))
	assert.Equal(t, "aaa", readDrive(t, d, "/docs/a.txt"))
	assert.Equal(t, "bbb", readDrive(t, d, "/docs/deep/b.txt"))

	// Top-level listing shows the mirrored entries.
	entries, err := d.Readdir("/")
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	assert.ElementsMatch(t, []string{"top.txt", "docs"}, names)
}

func TestMirrorIntoNamedRoot(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"f.txt": "x"})

	d := testDrive(t)

	_, err := Mirror(context.Background(), src, Options{Drive: d, Name: "/imported"})
	require.NoError(t, err)

	assert.Equal(t, "x", readDrive(t, d, "/imported/f.txt"))
}

func TestMirrorSkipsStoreAndVCSDirs(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"keep.txt":             "keep",
		".peerdrive/drive.db":  "nope",
		".git/objects/ab/cdef": "nope",
	})

	d := testDrive(t)

	count, err := Mirror(context.Background(), src, Options{Drive: d})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.ErrorIs(t, d.Access("/.peerdrive/drive.db"), drive.ErrNotFound)
	require.ErrorIs(t, d.Access("/.git/objects/ab/cdef"), drive.ErrNotFound)
}

func TestRemoveEventUnlinksSubtree(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"keep.txt":       "keep",
		"gone/a.txt":     "a",
		"gone/sub/b.txt": "b",
	})

	d := testDrive(t)
	opts := Options{Drive: d}

	_, err := Mirror(context.Background(), src, opts)
	require.NoError(t, err)

	// Deleting a local directory drops every file imported under it.
	require.NoError(t, os.RemoveAll(filepath.Join(src, "gone")))

	event := fsnotify.Event{Op: fsnotify.Remove, Name: filepath.Join(src, "gone")}
	require.NoError(t, handleEvent(context.Background(), event, nil, src, opts))

	require.ErrorIs(t, d.Access("/gone/a.txt"), drive.ErrNotFound)
	require.ErrorIs(t, d.Access("/gone/sub/b.txt"), drive.ErrNotFound)
	assert.Equal(t, "keep", readDrive(t, d, "/keep.txt"))
}

func TestRemoveEventUnlinksSingleFile(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"solo.txt": "solo"})

	d := testDrive(t)
	opts := Options{Drive: d}

	_, err := Mirror(context.Background(), src, opts)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(src, "solo.txt")))

	event := fsnotify.Event{Op: fsnotify.Remove, Name: filepath.Join(src, "solo.txt")}
	require.NoError(t, handleEvent(context.Background(), event, nil, src, opts))

	require.ErrorIs(t, d.Access("/solo.txt"), drive.ErrNotFound)
}

func TestMirrorMissingSource(t *testing.T) {
	d := testDrive(t)

	_, err := Mirror(context.Background(), filepath.Join(t.TempDir(), "absent"), Options{Drive: d})
	require.Error(t, err)
}

func TestJoinTarget(t *testing.T) {
	tests := []struct {
		name, root, rel, want string
	}{
		{"root", "/", "a/b.txt", "/a/b.txt"},
		{"named root", "/imported", "a.txt", "/imported/a.txt"},
		{"single file", "/", "f.txt", "/f.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, joinTarget(tt.root, tt.rel))
		})
	}
}
