package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests drive
// the CLI through runCLI so Cobra parses flags fresh each invocation.

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)

	os.Stdout = w

	t.Cleanup(func() { os.Stdout = old })

	fn()
	w.Close()

	out, err := io.ReadAll(r)
	require.NoError(t, err)

	return string(out)
}

// runCLI executes one full CLI invocation and captures stdout. Persistent
// state lives in the current working directory, so tests t.Chdir into a
// temp dir first.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd, err := newRootCmd()
	require.NoError(t, err)

	cmd.SetArgs(args)

	var execErr error

	out := captureStdout(t, func() {
		execErr = cmd.Execute()
	})

	return out, execErr
}

func TestPathArg(t *testing.T) {
	assert.Equal(t, "/", pathArg(nil))
	assert.Equal(t, "/docs/a.txt", pathArg([]string{"/docs/a.txt"}))
}

func TestWriteReadRoundTrip(t *testing.T) {
	t.Chdir(t.TempDir())

	localPath := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(localPath, []byte("hello drive"), 0o644))

	out, err := runCLI(t, "write", localPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote /hello.txt")

	out, err = runCLI(t, "read", "/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello drive", out)
}

func TestReadRangeFlags(t *testing.T) {
	t.Chdir(t.TempDir())

	localPath := filepath.Join(t.TempDir(), "digits.txt")
	require.NoError(t, os.WriteFile(localPath, []byte("0123456789"), 0o644))

	_, err := runCLI(t, "write", localPath)
	require.NoError(t, err)

	out, err := runCLI(t, "read", "/digits.txt", "--start", "2", "--length", "3")
	require.NoError(t, err)
	assert.Equal(t, "234", out)

	// Length wins when both bounds are given.
	out, err = runCLI(t, "read", "/digits.txt", "-S", "2", "-E", "9", "-L", "3")
	require.NoError(t, err)
	assert.Equal(t, "234", out)
}

func TestReadDirectoryFails(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := runCLI(t, "init")
	require.NoError(t, err)

	_, err = runCLI(t, "read", "/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read directory")
}

func TestStatJSON(t *testing.T) {
	t.Chdir(t.TempDir())

	localPath := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(localPath, make([]byte, 2048), 0o644))

	_, err := runCLI(t, "write", localPath)
	require.NoError(t, err)

	out, err := runCLI(t, "stat", "/data.bin", "--json")
	require.NoError(t, err)

	var got statJSONOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	assert.Equal(t, "/data.bin", got.Path)
	assert.Equal(t, "file", got.Type)
	assert.Equal(t, int64(2048), got.Size)
}

func TestStatMissingFails(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := runCLI(t, "init")
	require.NoError(t, err)

	_, err = runCLI(t, "stat", "/no/such/file")
	require.Error(t, err)
}

func TestUnlinkThenReaddir(t *testing.T) {
	t.Chdir(t.TempDir())

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("keep"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "drop.txt"), []byte("drop"), 0o644))

	_, err := runCLI(t, "write", dir)
	require.NoError(t, err)

	out, err := runCLI(t, "unlink", "/drop.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "Unlinked")

	out, err = runCLI(t, "readdir", "/", "--json")
	require.NoError(t, err)

	var entries []readdirJSONItem
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "keep.txt", entries[0].Name)
}

func TestUnlinkMissingFails(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := runCLI(t, "init")
	require.NoError(t, err)

	_, err = runCLI(t, "unlink", "/ghost.txt")
	require.Error(t, err)
}

func TestWriteMirrorsDirectory(t *testing.T) {
	t.Chdir(t.TempDir())

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "top.txt"), []byte("t"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "nested.txt"), []byte("n"), 0o644))

	out, err := runCLI(t, "write", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Mirrored 2 files")

	// Relative structure lands under the drive root.
	out, err = runCLI(t, "readdir", "/", "--json")
	require.NoError(t, err)

	var entries []readdirJSONItem
	require.NoError(t, json.Unmarshal([]byte(out), &entries))

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}

	assert.ElementsMatch(t, []string{"top.txt", "sub"}, names)
}

func TestReaddirTableOutput(t *testing.T) {
	t.Chdir(t.TempDir())

	localPath := filepath.Join(t.TempDir(), "listed.txt")
	require.NoError(t, os.WriteFile(localPath, []byte("x"), 0o644))

	_, err := runCLI(t, "write", localPath)
	require.NoError(t, err)

	out, err := runCLI(t, "readdir")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "listed.txt")
}

func TestAliasInvocation(t *testing.T) {
	t.Chdir(t.TempDir())

	localPath := filepath.Join(t.TempDir(), "aliased.txt")
	require.NoError(t, os.WriteFile(localPath, []byte("via alias"), 0o644))

	// "put" is a default alias for write, "cat" for read.
	_, err := runCLI(t, "put", localPath)
	require.NoError(t, err)

	out, err := runCLI(t, "cat", "/aliased.txt")
	require.NoError(t, err)
	assert.Equal(t, "via alias", out)
}
