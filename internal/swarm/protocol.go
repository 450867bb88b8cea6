// Package swarm implements peer replication sessions for drives: a TCP
// transport carrying length-prefixed JSON frames, with three independent
// facets per session (live, upload-enabled, download-enabled). An
// upload-enabled session answers manifest and content requests from its
// drive; a download-enabled session dials peers and pulls missing paths;
// a live session does both and additionally pushes change notifications.
package swarm

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Frame types.
const (
	// frameHello opens a connection: session identity and facets.
	frameHello = "hello"

	// frameGet requests the manifest for a path (a single file yields a
	// one-entry manifest).
	frameGet = "get"

	// frameManifest answers a get with the matching entries. Each entry
	// frame is followed by exactly Size raw content bytes on the wire.
	frameManifest = "manifest"

	// frameChange is a live-session change push.
	frameChange = "change"

	// frameError reports a request failure (e.g. path not found).
	frameError = "error"
)

// maxFrameSize bounds a JSON header frame. Content bytes stream outside
// frames, so this only limits metadata.
const maxFrameSize = 1 << 20

// frame is the wire header. Exactly one of the optional payloads is set,
// discriminated by Type.
type frame struct {
	Type string `json:"type"`

	// hello
	SessionID string `json:"session_id,omitempty"`
	Key       string `json:"key,omitempty"`
	Live      bool   `json:"live,omitempty"`
	Upload    bool   `json:"upload,omitempty"`
	Download  bool   `json:"download,omitempty"`

	// get / change / error
	Path    string `json:"path,omitempty"`
	Kind    int    `json:"kind,omitempty"`
	Version uint64 `json:"version,omitempty"`
	Message string `json:"message,omitempty"`

	// manifest
	Entries []wireEntry `json:"entries,omitempty"`
}

// wireEntry is the manifest form of a drive entry. Content for each entry
// streams immediately after the manifest frame, in order.
type wireEntry struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	Version uint64 `json:"version"`
	ModTime int64  `json:"mtime"`
}

// writeFrame emits one length-prefixed JSON frame.
func writeFrame(w io.Writer, f frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("swarm: encoding %s frame: %w", f.Type, err)
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("swarm: writing frame header: %w", err)
	}

	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("swarm: writing frame payload: %w", err)
	}

	return nil
}

// readFrame reads one length-prefixed JSON frame.
func readFrame(r io.Reader) (frame, error) {
	var header [4]byte

	if _, err := io.ReadFull(r, header[:]); err != nil {
		return frame{}, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return frame{}, fmt.Errorf("swarm: frame of %d bytes exceeds limit", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return frame{}, fmt.Errorf("swarm: reading frame payload: %w", err)
	}

	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return frame{}, fmt.Errorf("swarm: decoding frame: %w", err)
	}

	return f, nil
}
