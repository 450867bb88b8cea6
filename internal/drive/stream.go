package drive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// CreateReadStream opens a range-constrained reader over a file. The
// range resolves against the entry's size (Length beats End; windows
// clamp, see Range.Resolve). Directories fail with ErrIsDirectory before
// any byte is produced.
func (d *Drive) CreateReadStream(spec string, rng Range) (io.ReadCloser, error) {
	rc, e, err := d.OpenContent(spec)
	if err != nil {
		return nil, err
	}

	offset, count := rng.Resolve(e.Size)

	if offset > 0 {
		if _, err := rc.Seek(offset, io.SeekStart); err != nil {
			rc.Close()
			return nil, fmt.Errorf("drive: seeking %s to %d: %w", e.Path, offset, err)
		}
	}

	return &readStream{r: io.LimitReader(rc, count), c: rc}, nil
}

type readStream struct {
	r io.Reader
	c io.Closer
}

func (s *readStream) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *readStream) Close() error               { return s.c.Close() }

// CreateWriteStream opens a writer that commits to spec on Close. Bytes
// written land at the range's start offset; content before the offset is
// taken from the existing entry, zero-filled where the entry is shorter
// or absent. The commit is atomic: nothing is visible in the namespace
// until Close returns nil.
func (d *Drive) CreateWriteStream(spec string, rng Range) (io.WriteCloser, error) {
	if err := d.checkReady(); err != nil {
		return nil, err
	}

	if !d.Writable() {
		return nil, ErrReadOnly
	}

	p := CleanPath(spec)
	if p == "/" {
		return nil, fmt.Errorf("%w: /", ErrIsDirectory)
	}

	if e, err := d.Stat(p); err == nil && e.IsDir {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, p)
	}

	ws := &writeStream{drive: d, path: p}

	if offset := rng.Offset(); offset > 0 {
		if err := ws.fillPrefix(offset); err != nil {
			return nil, err
		}
	}

	return ws, nil
}

type writeStream struct {
	drive  *Drive
	path   string
	buf    bytes.Buffer
	closed bool
}

// fillPrefix seeds the buffer with the first offset bytes of the current
// entry, zero-padding past its end so a sparse-offset write still commits
// a blob of the full length.
func (ws *writeStream) fillPrefix(offset int64) error {
	existing, err := ws.drive.CreateReadStream(ws.path, Range{Length: offset, HasLength: true})
	if err == nil {
		n, copyErr := io.Copy(&ws.buf, existing)
		existing.Close()

		if copyErr != nil {
			return fmt.Errorf("drive: reading existing prefix of %s: %w", ws.path, copyErr)
		}

		offset -= n
	} else if !isNotFound(err) {
		return err
	}

	if offset > 0 {
		if _, err := io.CopyN(&ws.buf, zeroReader{}, offset); err != nil {
			return fmt.Errorf("drive: zero-filling %s: %w", ws.path, err)
		}
	}

	return nil
}

func (ws *writeStream) Write(p []byte) (int, error) {
	if ws.closed {
		return 0, ErrClosed
	}

	return ws.buf.Write(p)
}

// Close commits the buffered content as a new blob and namespace entry,
// bumping the drive version.
func (ws *writeStream) Close() error {
	if ws.closed {
		return nil
	}

	ws.closed = true

	d := ws.drive

	d.mu.Lock()
	next := d.ver + 1
	d.mu.Unlock()

	if _, err := d.st.put(ws.path, &ws.buf, next); err != nil {
		return err
	}

	return d.commit(next, Change{Kind: ChangePut, Path: ws.path, Version: next})
}

// Put is the whole-file convenience over CreateWriteStream, used by the
// mirror and by swarm fetches.
func (d *Drive) Put(spec string, r io.Reader) (Entry, error) {
	ws, err := d.CreateWriteStream(spec, Range{})
	if err != nil {
		return Entry{}, err
	}

	if _, err := io.Copy(ws, r); err != nil {
		return Entry{}, fmt.Errorf("drive: copying into %s: %w", spec, err)
	}

	if err := ws.Close(); err != nil {
		return Entry{}, err
	}

	return d.Stat(spec)
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}

	return len(p), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
