// Package bridge serves drive content over HTTP. Content GETs answer
// straight from the drive with byte-range support; directory GETs return
// a JSON listing; a websocket endpoint streams the drive's change feed.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/peerdrive/peerdrive-go/internal/drive"
)

// EventsPath is the websocket change-feed endpoint. Everything else in
// the URL space maps directly onto the drive namespace.
const EventsPath = "/.well-known/peerdrive/events"

// Response header carrying the drive's public key.
const keyHeader = "X-Drive-Key"

// Handler answers HTTP requests from a ready drive.
type Handler struct {
	drive  *drive.Drive
	logger *slog.Logger
}

// NewHandler builds the bridge handler. The drive must already be ready;
// the caller gates construction behind the readiness wait.
func NewHandler(d *drive.Drive, logger *slog.Logger) *Handler {
	return &Handler{drive: d, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path == EventsPath {
		h.serveEvents(w, r)
		return
	}

	h.serveContent(w, r)
}

// listingEntry is the JSON shape of one directory child.
type listingEntry struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	IsDir    bool   `json:"is_dir"`
	Version  uint64 `json:"version"`
	Modified string `json:"modified,omitempty"`
}

func (h *Handler) serveContent(w http.ResponseWriter, r *http.Request) {
	spec := drive.CleanPath(r.URL.Path)

	w.Header().Set(keyHeader, h.drive.Key().String())

	entry, err := h.drive.Stat(spec)
	if err != nil {
		h.fail(w, spec, err)
		return
	}

	if entry.IsDir {
		h.serveListing(w, spec)
		return
	}

	rc, entry, err := h.drive.OpenContent(spec)
	if err != nil {
		h.fail(w, spec, err)
		return
	}
	defer rc.Close()

	// ServeContent handles Range requests, HEAD, and conditional gets
	// off the seeker and modtime.
	http.ServeContent(w, r, entry.Name(), entry.ModTime, rc)
}

func (h *Handler) serveListing(w http.ResponseWriter, spec string) {
	entries, err := h.drive.Readdir(spec)
	if err != nil {
		h.fail(w, spec, err)
		return
	}

	out := make([]listingEntry, 0, len(entries))
	for _, e := range entries {
		le := listingEntry{
			Name:    e.Name(),
			Path:    e.Path,
			Size:    e.Size,
			IsDir:   e.IsDir,
			Version: e.Version,
		}

		if !e.ModTime.IsZero() {
			le.Modified = e.ModTime.Format(time.RFC3339)
		}

		out = append(out, le)
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(out); err != nil {
		h.logger.Warn("encoding listing failed",
			slog.String("path", spec),
			slog.String("error", err.Error()),
		)
	}
}

func (h *Handler) fail(w http.ResponseWriter, spec string, err error) {
	switch {
	case errors.Is(err, drive.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		h.logger.Warn("bridge request failed",
			slog.String("path", spec),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// event is the JSON shape pushed over the events websocket.
type event struct {
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	Version uint64 `json:"version"`
}

// serveEvents upgrades to a websocket and forwards the drive's change
// feed until the client goes away.
func (h *Handler) serveEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	changes, unsubscribe := h.drive.Subscribe()
	defer unsubscribe()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return

		case change, ok := <-changes:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "feed closed")
				return
			}

			if err := h.writeEvent(ctx, conn, change); err != nil {
				return
			}
		}
	}
}

func (h *Handler) writeEvent(ctx context.Context, conn *websocket.Conn, change drive.Change) error {
	kind := "put"
	if change.Kind == drive.ChangeUnlink {
		kind = "unlink"
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return wsjson.Write(writeCtx, conn, event{
		Kind:    kind,
		Path:    change.Path,
		Version: change.Version,
	})
}
