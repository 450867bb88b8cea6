package drive

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/peerdrive/peerdrive-go/internal/drivekey"
)

// On-disk layout under the backend root:
//
//	<root>/.peerdrive/drive.db      namespace index (sqlite)
//	<root>/.peerdrive/objects/ab/…  content-addressed blobs, 2-char fan-out
const (
	storeDirName = ".peerdrive"
	dbFileName   = "drive.db"
	objectsDir   = "objects"

	metaKeyVersion = "version"
	metaKeyPublic  = "public_key"
	metaKeySecret  = "secret_key"

	dirPerm  = 0o700
	blobPerm = 0o444
)

// diskStore is the persistent backend: a content-addressed object store
// plus a sqlite namespace index rooted at one filesystem path.
type diskStore struct {
	root    string // <path>/.peerdrive
	db      *sql.DB
	logger  *slog.Logger
	sparse  bool
	verify  bool // full blob verification on open (non-sparse drives)
	pub     drivekey.PublicKey
	haveKey bool
}

func newDiskStore(path string, opts Options, logger *slog.Logger) *diskStore {
	return &diskStore{
		root:   filepath.Join(path, storeDirName),
		logger: logger,
		sparse: opts.Sparse,
		verify: !opts.Sparse,
	}
}

// bootstrap creates the store layout and opens the index, generating and
// persisting a keypair on first use. This is the readiness work every
// command awaits before touching the namespace.
func (d *diskStore) bootstrap(ctx context.Context) (storedIdentity, error) {
	if err := os.MkdirAll(filepath.Join(d.root, objectsDir), dirPerm); err != nil {
		return storedIdentity{}, fmt.Errorf("drive: creating store layout: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(d.root, dbFileName))
	if err != nil {
		return storedIdentity{}, fmt.Errorf("drive: opening namespace index: %w", err)
	}

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return storedIdentity{}, err
	}

	if err := runMigrations(ctx, db, d.logger); err != nil {
		db.Close()
		return storedIdentity{}, err
	}

	d.db = db

	id, err := d.loadOrCreateIdentity(ctx)
	if err != nil {
		db.Close()
		d.db = nil

		return storedIdentity{}, err
	}

	return id, nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("drive: %s: %w", p, err)
		}
	}

	return nil
}

// loadOrCreateIdentity reads the persisted keypair, generating one on a
// fresh store.
func (d *diskStore) loadOrCreateIdentity(ctx context.Context) (storedIdentity, error) {
	pubHex, err := d.getMeta(ctx, metaKeyPublic)
	if err != nil {
		return storedIdentity{}, err
	}

	if pubHex != "" {
		secHex, secErr := d.getMeta(ctx, metaKeySecret)
		if secErr != nil {
			return storedIdentity{}, secErr
		}

		pub, decErr := hex.DecodeString(pubHex)
		if decErr != nil {
			return storedIdentity{}, fmt.Errorf("drive: corrupt stored public key: %w", decErr)
		}

		sec, decErr := hex.DecodeString(secHex)
		if decErr != nil {
			return storedIdentity{}, fmt.Errorf("drive: corrupt stored secret key: %w", decErr)
		}

		return storedIdentity{publicKey: pub, secretKey: sec}, nil
	}

	kp, err := drivekey.Generate()
	if err != nil {
		return storedIdentity{}, err
	}

	if err := d.setMeta(ctx, metaKeyPublic, kp.Public.String()); err != nil {
		return storedIdentity{}, err
	}

	if err := d.setMeta(ctx, metaKeySecret, hex.EncodeToString(kp.Secret.Bytes())); err != nil {
		return storedIdentity{}, err
	}

	d.logger.Debug("generated drive keypair", slog.String("public_key", kp.Public.String()))

	return storedIdentity{publicKey: kp.Public.Bytes(), secretKey: kp.Secret.Bytes()}, nil
}

func (d *diskStore) getMeta(ctx context.Context, key string) (string, error) {
	var value string

	err := d.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("drive: reading meta %q: %w", key, err)
	}

	return value, nil
}

func (d *diskStore) setMeta(ctx context.Context, key, value string) error {
	_, err := d.db.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("drive: writing meta %q: %w", key, err)
	}

	return nil
}

func (d *diskStore) lookup(path string) (Entry, error) {
	var (
		e     Entry
		mtime int64
	)

	err := d.db.QueryRow(
		"SELECT path, blob, size, version, mtime FROM entries WHERE path = ?",
		path).Scan(&e.Path, &e.Blob, &e.Size, &e.Version, &mtime)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	if err != nil {
		return Entry{}, fmt.Errorf("drive: looking up %s: %w", path, err)
	}

	e.ModTime = time.Unix(0, mtime).UTC()

	return e, nil
}

func (d *diskStore) hasPrefix(dir string) (bool, error) {
	prefix := dir
	if prefix != "/" {
		prefix += "/"
	}

	var one int

	err := d.db.QueryRow(
		"SELECT 1 FROM entries WHERE path GLOB ? LIMIT 1",
		globEscape(prefix)+"*").Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("drive: probing %s: %w", dir, err)
	}

	return true, nil
}

func (d *diskStore) list(dir string) ([]Entry, error) {
	prefix := dir
	if prefix != "/" {
		prefix += "/"
	}

	rows, err := d.db.Query(
		"SELECT path, blob, size, version, mtime FROM entries WHERE path GLOB ? ORDER BY path",
		globEscape(prefix)+"*")
	if err != nil {
		return nil, fmt.Errorf("drive: listing %s: %w", dir, err)
	}
	defer rows.Close()

	var out []Entry

	for rows.Next() {
		var (
			e     Entry
			mtime int64
		)

		if err := rows.Scan(&e.Path, &e.Blob, &e.Size, &e.Version, &mtime); err != nil {
			return nil, fmt.Errorf("drive: scanning entry: %w", err)
		}

		e.ModTime = time.Unix(0, mtime).UTC()
		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("drive: listing %s: %w", dir, err)
	}

	return out, nil
}

// globEscape neutralizes GLOB metacharacters in a path prefix so a literal
// "[" or "*" in a filename cannot widen the match.
func globEscape(s string) string {
	var out []byte

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[':
			out = append(out, '[', s[i], ']')
		default:
			out = append(out, s[i])
		}
	}

	return string(out)
}

func (d *diskStore) blobPath(ref string) string {
	return filepath.Join(d.root, objectsDir, ref[:2], ref[2:])
}

func (d *diskStore) openBlob(ref string) (io.ReadSeekCloser, error) {
	if len(ref) < 3 {
		return nil, fmt.Errorf("drive: malformed blob ref %q", ref)
	}

	f, err := os.Open(d.blobPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: blob %s", ErrNotFound, ref)
		}

		return nil, fmt.Errorf("drive: opening blob %s: %w", ref, err)
	}

	if d.verify {
		if err := verifyBlob(f, ref); err != nil {
			f.Close()
			return nil, err
		}
	}

	return f, nil
}

// verifyBlob hashes the whole blob and rewinds. Only runs on non-sparse
// drives; sparse drives trade the integrity pass for cheap opens.
func verifyBlob(f *os.File, ref string) error {
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("drive: verifying blob %s: %w", ref, err)
	}

	if got := hex.EncodeToString(h.Sum(nil)); got != ref {
		return fmt.Errorf("drive: blob %s failed integrity check (got %s)", ref, got)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("drive: rewinding blob %s: %w", ref, err)
	}

	return nil
}

// put streams r through sha256 into a temp file, then moves it into the
// fan-out layout and binds the path. Existing blobs are never rewritten:
// identical content deduplicates to the same object.
func (d *diskStore) put(path string, r io.Reader, version uint64) (Entry, error) {
	tmp, err := os.CreateTemp(d.root, "incoming-*")
	if err != nil {
		return Entry{}, fmt.Errorf("drive: creating temp blob: %w", err)
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	h := sha256.New()

	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		tmp.Close()
		return Entry{}, fmt.Errorf("drive: writing %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		return Entry{}, fmt.Errorf("drive: closing temp blob: %w", err)
	}

	ref := hex.EncodeToString(h.Sum(nil))
	dest := d.blobPath(ref)

	if _, statErr := os.Stat(dest); statErr != nil {
		if err := os.MkdirAll(filepath.Dir(dest), dirPerm); err != nil {
			return Entry{}, fmt.Errorf("drive: creating blob directory: %w", err)
		}

		if err := os.Rename(tmpName, dest); err != nil {
			return Entry{}, fmt.Errorf("drive: finalizing blob: %w", err)
		}

		if err := os.Chmod(dest, blobPerm); err != nil {
			d.logger.Warn("could not set blob permissions", slog.String("error", err.Error()))
		}
	}

	entry := Entry{
		Path:    path,
		Size:    size,
		Version: version,
		ModTime: time.Now().UTC(),
		Blob:    ref,
	}

	_, err = d.db.Exec(
		`INSERT INTO entries (path, blob, size, version, mtime) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET blob = excluded.blob, size = excluded.size,
		 version = excluded.version, mtime = excluded.mtime`,
		path, ref, size, version, entry.ModTime.UnixNano())
	if err != nil {
		return Entry{}, fmt.Errorf("drive: indexing %s: %w", path, err)
	}

	return entry, nil
}

func (d *diskStore) remove(path string, _ uint64) error {
	res, err := d.db.Exec("DELETE FROM entries WHERE path = ?", path)
	if err != nil {
		return fmt.Errorf("drive: unlinking %s: %w", path, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("drive: unlinking %s: %w", path, err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	// The blob stays in the object store: the drive is append-only and
	// other versions may still reference the content.
	return nil
}

func (d *diskStore) version() (uint64, error) {
	raw, err := d.getMeta(context.Background(), metaKeyVersion)
	if err != nil {
		return 0, err
	}

	if raw == "" {
		return 0, nil
	}

	var v uint64
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return 0, fmt.Errorf("drive: corrupt version counter %q: %w", raw, err)
	}

	return v, nil
}

func (d *diskStore) setVersion(v uint64) error {
	return d.setMeta(context.Background(), metaKeyVersion, fmt.Sprintf("%d", v))
}

func (d *diskStore) close() error {
	if d.db == nil {
		return nil
	}

	return d.db.Close()
}

// Destroy removes a persistent backend's on-disk metadata and content
// locations. Idempotent: absent state is success, not an error.
func Destroy(path string) error {
	target := filepath.Join(path, storeDirName)

	if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("drive: destroying store at %s: %w", target, err)
	}

	return nil
}

// Exists reports whether a persistent store is present at path.
func Exists(path string) bool {
	_, err := os.Stat(filepath.Join(path, storeDirName, dbFileName))
	return err == nil
}
