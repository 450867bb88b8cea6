package drive

import (
	"context"
	"io"
	"os"
	"time"
)

// BackendKind discriminates storage backends.
type BackendKind int

const (
	// KindVolatile keeps everything in process memory.
	KindVolatile BackendKind = iota

	// KindPersistent roots the drive's metadata and objects at a path.
	KindPersistent
)

// Backend describes where a drive's data lives. It carries no open
// resources; DriveLifecycle (Open) turns it into a live store.
type Backend struct {
	Kind BackendKind
	Path string
}

// Select chooses a backend. Pure: no I/O happens here. A volatile backend
// ignores any path; a persistent one roots at explicitPath, falling back
// to the current working directory.
func Select(useVolatile bool, explicitPath string) Backend {
	if useVolatile {
		return Backend{Kind: KindVolatile}
	}

	if explicitPath != "" {
		return Backend{Kind: KindPersistent, Path: explicitPath}
	}

	cwd, err := os.Getwd()
	if err != nil {
		// Getwd only fails if the cwd was removed under us; fall back to
		// "." so the failure surfaces in Open with a real path error.
		cwd = "."
	}

	return Backend{Kind: KindPersistent, Path: cwd}
}

// String renders the backend for the info command.
func (b Backend) String() string {
	if b.Kind == KindVolatile {
		return "memory"
	}

	return b.Path
}

// Entry is the metadata for one node in the drive namespace.
type Entry struct {
	Path    string
	Size    int64
	IsDir   bool
	Version uint64
	ModTime time.Time
	Blob    string
}

// Name returns the last path segment.
func (e Entry) Name() string {
	p := e.Path
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}

	return p
}

// store is the backend contract the Drive drives. Implementations:
// memoryStore (volatile) and diskStore (persistent, CAS + sqlite index).
type store interface {
	// bootstrap reads or creates the store's root metadata and returns
	// the drive's credentials. Called once, before any other method.
	bootstrap(ctx context.Context) (storedIdentity, error)

	// lookup returns the entry for an exact file path, or ErrNotFound.
	lookup(path string) (Entry, error)

	// hasPrefix reports whether any file exists strictly under dir.
	hasPrefix(dir string) (bool, error)

	// list returns all file entries whose path lies under dir (at any
	// depth), sorted by path.
	list(dir string) ([]Entry, error)

	// openBlob opens the named content blob for reading.
	openBlob(ref string) (io.ReadSeekCloser, error)

	// put streams r into a new blob and binds path to it at the given
	// version. Returns the committed entry.
	put(path string, r io.Reader, version uint64) (Entry, error)

	// remove unbinds path. Returns ErrNotFound if absent.
	remove(path string, version uint64) error

	// version returns the last committed drive version.
	version() (uint64, error)

	// setVersion persists the drive version counter.
	setVersion(v uint64) error

	// close releases store resources.
	close() error
}

// storedIdentity is what a store's bootstrap yields: the keypair bytes it
// holds (persistent stores create and keep them; volatile stores return
// nothing and the Drive generates ephemeral keys).
type storedIdentity struct {
	publicKey []byte
	secretKey []byte
}
