package drive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// memoryStore is the volatile backend: entries and blobs live in process
// memory and carry no identity beyond the process. Safe for concurrent
// use; the CLI is single-owner but the swarm listener reads through it.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	blobs   map[string][]byte
	ver     uint64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		entries: make(map[string]Entry),
		blobs:   make(map[string][]byte),
	}
}

func (m *memoryStore) bootstrap(_ context.Context) (storedIdentity, error) {
	// Nothing to read or create; the Drive generates ephemeral keys.
	return storedIdentity{}, nil
}

func (m *memoryStore) lookup(path string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[path]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	return e, nil
}

func (m *memoryStore) hasPrefix(dir string) (bool, error) {
	prefix := dir
	if prefix != "/" {
		prefix += "/"
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for p := range m.entries {
		if strings.HasPrefix(p, prefix) {
			return true, nil
		}
	}

	return false, nil
}

func (m *memoryStore) list(dir string) ([]Entry, error) {
	prefix := dir
	if prefix != "/" {
		prefix += "/"
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entry

	for p, e := range m.entries {
		if strings.HasPrefix(p, prefix) {
			out = append(out, e)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })

	return out, nil
}

func (m *memoryStore) openBlob(ref string) (io.ReadSeekCloser, error) {
	m.mu.RLock()
	b, ok := m.blobs[ref]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: blob %s", ErrNotFound, ref)
	}

	return nopSeekCloser{bytes.NewReader(b)}, nil
}

func (m *memoryStore) put(path string, r io.Reader, version uint64) (Entry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Entry{}, fmt.Errorf("drive: buffering write for %s: %w", path, err)
	}

	sum := sha256.Sum256(data)
	ref := hex.EncodeToString(sum[:])

	entry := Entry{
		Path:    path,
		Size:    int64(len(data)),
		Version: version,
		ModTime: time.Now().UTC(),
		Blob:    ref,
	}

	m.mu.Lock()
	m.blobs[ref] = data
	m.entries[path] = entry
	m.mu.Unlock()

	return entry, nil
}

func (m *memoryStore) remove(path string, _ uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[path]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	delete(m.entries, path)

	return nil
}

func (m *memoryStore) version() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.ver, nil
}

func (m *memoryStore) setVersion(v uint64) error {
	m.mu.Lock()
	m.ver = v
	m.mu.Unlock()

	return nil
}

func (m *memoryStore) close() error {
	return nil
}

// nopSeekCloser adds a no-op Close to a bytes.Reader.
type nopSeekCloser struct {
	*bytes.Reader
}

func (nopSeekCloser) Close() error { return nil }
