// Package drive implements the versioned, content-addressable drive: a
// virtual filesystem identified by a keypair, backed by either a
// persistent path-rooted store or a volatile in-memory one. Every
// mutation bumps the drive version; content is stored as sha256-addressed
// blobs and the namespace is an index from cleaned paths to blob refs.
//
// A Drive is created per CLI invocation and gated behind Ready: the
// backend bootstraps asynchronously (creating its layout, running index
// migrations, loading or generating the keypair) and every operation
// issued before Ready completes returns ErrNotReady.
package drive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/peerdrive/peerdrive-go/internal/drivekey"
)

// Options are the drive open options carried by configuration.
type Options struct {
	// Sparse skips whole-blob integrity verification on open, keeping
	// reads cheap on drives populated incrementally from peers.
	Sparse bool

	// SparseMetadata is accepted for config compatibility; the sqlite
	// index is always materialized in full.
	SparseMetadata bool
}

// ChangeKind discriminates change feed events.
type ChangeKind int

const (
	// ChangePut is emitted when a path is written.
	ChangePut ChangeKind = iota

	// ChangeUnlink is emitted when a path is removed.
	ChangeUnlink
)

// Change is one event on a drive's change feed.
type Change struct {
	Kind    ChangeKind
	Path    string
	Version uint64
}

// Drive is the capability handle bound to one backend and one keypair
// context. Exactly one exists per invocation, owned by the active command
// handler. Replication and the HTTP bridge read through the same handle.
type Drive struct {
	backend Backend
	opts    Options
	logger  *slog.Logger

	// Readiness gate. readyCh closes when bootstrap settles; readyErr is
	// the terminal bootstrap failure, if any.
	readyCh  chan struct{}
	readyErr error
	ready    bool

	mu       sync.Mutex
	st       store
	key      drivekey.PublicKey
	secret   drivekey.SecretKey
	ver      uint64
	closed   bool
	watchers map[int]chan Change
	nextSub  int
}

// Open creates a drive handle against the selected backend and starts its
// bootstrap. If callerKey is non-zero the drive binds to that foreign
// identity and opens read-only; otherwise the backend's stored identity
// (generated on first use) makes the drive writable.
func Open(backend Backend, callerKey drivekey.PublicKey, opts Options, logger *slog.Logger) *Drive {
	d := &Drive{
		backend:  backend,
		opts:     opts,
		logger:   logger,
		readyCh:  make(chan struct{}),
		key:      callerKey,
		watchers: make(map[int]chan Change),
	}

	switch backend.Kind {
	case KindVolatile:
		d.st = newMemoryStore()
	case KindPersistent:
		d.st = newDiskStore(backend.Path, opts, logger)
	}

	go d.bootstrap()

	return d
}

// bootstrap runs the backend's readiness work off the caller's goroutine.
func (d *Drive) bootstrap() {
	defer close(d.readyCh)

	id, err := d.st.bootstrap(context.Background())
	if err != nil {
		d.readyErr = fmt.Errorf("drive: backend bootstrap: %w", err)
		return
	}

	if err := d.adoptIdentity(id); err != nil {
		d.readyErr = err
		return
	}

	ver, err := d.st.version()
	if err != nil {
		d.readyErr = fmt.Errorf("drive: reading version counter: %w", err)
		return
	}

	d.mu.Lock()
	d.ver = ver
	d.ready = true
	d.mu.Unlock()

	d.logger.Debug("drive ready",
		slog.String("storage", d.backend.String()),
		slog.String("key", d.key.String()),
		slog.Uint64("version", ver),
	)
}

// adoptIdentity reconciles the caller-supplied key with the backend's
// stored identity. A caller key naming a foreign drive forces read-only
// mode; naming the backend's own identity keeps the stored secret, so
// passing your own public key does not drop write capability.
func (d *Drive) adoptIdentity(id storedIdentity) error {
	if len(id.publicKey) > 0 {
		pub, err := drivekey.FromBytes(id.publicKey)
		if err != nil {
			return err
		}

		if !d.key.IsZero() && !d.key.Equal(pub) {
			return nil // foreign drive, read-only replica
		}

		sec, err := drivekey.SecretFromBytes(id.secretKey)
		if err != nil {
			return err
		}

		d.key = pub
		d.secret = sec

		return nil
	}

	if !d.key.IsZero() {
		return nil // foreign drive, read-only replica
	}

	// Volatile store with no caller key: ephemeral identity.
	kp, err := drivekey.Generate()
	if err != nil {
		return err
	}

	d.key = kp.Public
	d.secret = kp.Secret

	return nil
}

// Ready suspends the caller until the backend bootstrap settles, failing
// with the bootstrap error if it failed.
func (d *Drive) Ready(ctx context.Context) error {
	select {
	case <-d.readyCh:
		return d.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// checkReady guards every operation. Calling an op before Ready returns
// is a programming error surfaced as ErrNotReady, never a hang.
func (d *Drive) checkReady() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	if !d.ready {
		return ErrNotReady
	}

	return nil
}

// Key returns the drive's public key.
func (d *Drive) Key() drivekey.PublicKey {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.key
}

// Storage returns the backend descriptor for introspection (info/init).
func (d *Drive) Storage() Backend {
	return d.backend
}

// Writable reports whether the drive holds the secret key.
func (d *Drive) Writable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return !d.secret.IsZero()
}

// Version returns the drive version counter: the number of mutations
// committed over the drive's lifetime.
func (d *Drive) Version() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.ver
}

// Stat returns metadata for the node at spec. Directories are implicit:
// any path with entries beneath it stats as a directory, and the root
// always exists.
func (d *Drive) Stat(spec string) (Entry, error) {
	if err := d.checkReady(); err != nil {
		return Entry{}, err
	}

	p := CleanPath(spec)

	if p == "/" {
		return Entry{Path: "/", IsDir: true, Version: d.Version()}, nil
	}

	e, err := d.st.lookup(p)
	if err == nil {
		return e, nil
	}

	ok, prefixErr := d.st.hasPrefix(p)
	if prefixErr != nil {
		return Entry{}, prefixErr
	}

	if ok {
		return Entry{Path: p, IsDir: true, Version: d.Version()}, nil
	}

	return Entry{}, err
}

// Access reports whether spec names content that is actually present.
// The download command uses a failed Access as its fetch trigger, so a
// directory only passes when entries exist beneath it; the root of an
// empty drive fails rather than masking a whole-drive fetch.
func (d *Drive) Access(spec string) error {
	e, err := d.Stat(spec)
	if err != nil {
		return err
	}

	if !e.IsDir {
		return nil
	}

	entries, err := d.List(e.Path)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, e.Path)
	}

	return nil
}

// Readdir lists the immediate children of a directory: files directly
// beneath it plus one synthetic directory entry per distinct subtree.
func (d *Drive) Readdir(spec string) ([]Entry, error) {
	if err := d.checkReady(); err != nil {
		return nil, err
	}

	p := CleanPath(spec)

	st, err := d.Stat(p)
	if err != nil {
		return nil, err
	}

	if !st.IsDir {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, p)
	}

	all, err := d.st.list(p)
	if err != nil {
		return nil, err
	}

	var (
		out  []Entry
		seen = make(map[string]bool)
	)

	for _, e := range all {
		name, nested, ok := splitChild(p, e.Path)
		if !ok || seen[name] {
			continue
		}

		seen[name] = true

		if nested {
			childPath := p
			if childPath == "/" {
				childPath = ""
			}

			out = append(out, Entry{
				Path:    childPath + "/" + name,
				IsDir:   true,
				Version: e.Version,
			})

			continue
		}

		out = append(out, e)
	}

	return out, nil
}

// List returns every file entry under spec at any depth. The swarm uses
// this to answer manifest requests.
func (d *Drive) List(spec string) ([]Entry, error) {
	if err := d.checkReady(); err != nil {
		return nil, err
	}

	p := CleanPath(spec)

	if e, err := d.st.lookup(p); err == nil {
		return []Entry{e}, nil
	}

	return d.st.list(p)
}

// Unlink removes the entry at spec. Missing entries are a real failure
// here, unlike the download trigger.
func (d *Drive) Unlink(spec string) error {
	if err := d.checkReady(); err != nil {
		return err
	}

	if !d.Writable() {
		return ErrReadOnly
	}

	p := CleanPath(spec)

	d.mu.Lock()
	next := d.ver + 1
	d.mu.Unlock()

	if err := d.st.remove(p, next); err != nil {
		return err
	}

	return d.commit(next, Change{Kind: ChangeUnlink, Path: p, Version: next})
}

// commit persists the bumped version counter and fans the change out to
// subscribers.
func (d *Drive) commit(version uint64, ch Change) error {
	if err := d.st.setVersion(version); err != nil {
		return err
	}

	d.mu.Lock()
	d.ver = version

	watchers := make([]chan Change, 0, len(d.watchers))
	for _, w := range d.watchers {
		watchers = append(watchers, w)
	}
	d.mu.Unlock()

	for _, w := range watchers {
		select {
		case w <- ch:
		default:
			// Slow subscriber: drop rather than stall the writer.
		}
	}

	return nil
}

// Subscribe attaches to the drive's change feed. The returned cancel
// detaches and closes the channel.
func (d *Drive) Subscribe() (<-chan Change, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextSub
	d.nextSub++

	ch := make(chan Change, 16)
	d.watchers[id] = ch

	cancel := func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		if w, ok := d.watchers[id]; ok {
			delete(d.watchers, id)
			close(w)
		}
	}

	return ch, cancel
}

// Close releases backend resources. The handle is per-invocation; Close
// runs on every exit path via the command supervisor.
func (d *Drive) Close() error {
	d.mu.Lock()

	if d.closed {
		d.mu.Unlock()
		return nil
	}

	d.closed = true
	d.mu.Unlock()

	return d.st.close()
}

// OpenContent opens a file's full content as a seekable stream along with
// its entry. The HTTP bridge serves ranges straight off the seeker.
func (d *Drive) OpenContent(spec string) (io.ReadSeekCloser, Entry, error) {
	if err := d.checkReady(); err != nil {
		return nil, Entry{}, err
	}

	e, err := d.Stat(spec)
	if err != nil {
		return nil, Entry{}, err
	}

	if e.IsDir {
		return nil, Entry{}, fmt.Errorf("%w: %s", ErrIsDirectory, e.Path)
	}

	rc, err := d.st.openBlob(e.Blob)
	if err != nil {
		return nil, Entry{}, err
	}

	return rc, e, nil
}
