package swarm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/peerdrive/peerdrive-go/internal/drive"
)

// Sentinel errors for fetch outcomes.
var (
	// ErrNoPeers indicates no configured peer was reachable.
	ErrNoPeers = errors.New("swarm: no reachable peers")

	// ErrPathUnavailable indicates every reachable peer lacked the path.
	ErrPathUnavailable = errors.New("swarm: path not available from any peer")
)

// Dial timeout per peer attempt.
const dialTimeout = 10 * time.Second

// Options pin a session's three facets. serve uses {Live: true} (both
// directions implicitly enabled); upload uses {Upload: true}; download
// uses {Download: true}.
type Options struct {
	Live     bool
	Upload   bool
	Download bool
}

// serving reports whether the session answers inbound requests.
func (o Options) serving() bool { return o.Live || o.Upload }

// fetching reports whether the session may dial out for content.
func (o Options) fetching() bool { return o.Live || o.Download }

// Config carries session wiring: where to listen when serving and which
// peers to dial when fetching.
type Config struct {
	ListenAddr string
	Peers      []string
	Logger     *slog.Logger
}

// Session is a replication session bound to one drive. Its lifetime is
// scoped: Close is safe on every exit path, and the context passed to
// Open bounds all session goroutines.
type Session struct {
	ID    uuid.UUID
	drive *drive.Drive
	opts  Options
	cfg   Config

	ln      net.Listener
	cancel  context.CancelFunc
	g       *errgroup.Group
	logger  *slog.Logger
	closeMu sync.Mutex
	closed  bool
}

// Open starts a session. With a serving facet it binds the listener
// before returning, so a failure to bind surfaces immediately; a live
// session also begins pushing drive changes to connected peers.
func Open(ctx context.Context, d *drive.Drive, opts Options, cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	s := &Session{
		ID:     uuid.New(),
		drive:  d,
		opts:   opts,
		cfg:    cfg,
		cancel: cancel,
		g:      g,
		logger: logger,
	}

	if opts.serving() {
		ln, err := net.Listen("tcp", cfg.ListenAddr)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("swarm: binding %s: %w", cfg.ListenAddr, err)
		}

		s.ln = ln

		g.Go(func() error { return s.acceptLoop(ctx) })
	}

	logger.Debug("session open",
		slog.String("session_id", s.ID.String()),
		slog.Bool("live", opts.Live),
		slog.Bool("upload", opts.Upload),
		slog.Bool("download", opts.Download),
	)

	return s, nil
}

// Addr returns the bound listener address, or "" for a fetch-only session.
func (s *Session) Addr() string {
	if s.ln == nil {
		return ""
	}

	return s.ln.Addr().String()
}

// Close tears the session down: cancels all goroutines, closes the
// listener, and waits for drainage. Idempotent.
func (s *Session) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}

	s.closed = true
	s.closeMu.Unlock()

	s.cancel()

	if s.ln != nil {
		s.ln.Close()
	}

	err := s.g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
		err = nil
	}

	s.logger.Debug("session closed", slog.String("session_id", s.ID.String()))

	return err
}

// acceptLoop serves inbound peers until the listener closes.
func (s *Session) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			return fmt.Errorf("swarm: accepting peer: %w", err)
		}

		s.g.Go(func() error {
			defer conn.Close()

			// Unblock any pending read when the session winds down, so
			// Close never waits on an idle peer.
			stop := context.AfterFunc(ctx, func() { conn.Close() })
			defer stop()

			s.servePeer(ctx, conn)

			return nil
		})
	}
}

// servePeer handles one inbound peer connection. Request errors are
// reported to the peer and logged; they never take the session down.
func (s *Session) servePeer(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()

	hello, err := readFrame(conn)
	if err != nil || hello.Type != frameHello {
		s.logger.Debug("peer handshake failed", slog.String("peer", remote))
		return
	}

	s.logger.Debug("peer connected",
		slog.String("peer", remote),
		slog.String("peer_session", hello.SessionID),
	)

	// All writes to this peer go through pc so live change pushes cannot
	// interleave with a content stream mid-transfer.
	pc := &peerConn{conn: conn}

	if err := pc.writeFrame(s.helloFrame()); err != nil {
		return
	}

	// Live sessions push change notifications interleaved with request
	// handling; a plain upload session only answers requests.
	var pushDone func()
	if s.opts.Live {
		pushDone = s.startChangePush(ctx, pc)
		defer pushDone()
	}

	for {
		req, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.logger.Debug("peer read failed",
					slog.String("peer", remote),
					slog.String("error", err.Error()),
				)
			}

			return
		}

		if req.Type != frameGet {
			continue
		}

		if err := s.answerGet(pc, req.Path); err != nil {
			s.logger.Debug("answering get failed",
				slog.String("peer", remote),
				slog.String("path", req.Path),
				slog.String("error", err.Error()),
			)

			return
		}
	}
}

func (s *Session) helloFrame() frame {
	return frame{
		Type:      frameHello,
		SessionID: s.ID.String(),
		Key:       s.drive.Key().String(),
		Live:      s.opts.Live,
		Upload:    s.opts.Upload,
		Download:  s.opts.Download,
	}
}

// peerConn serializes writes to one peer connection. Reads stay on the
// single servePeer goroutine and need no locking.
type peerConn struct {
	conn net.Conn
	mu   sync.Mutex
}

func (pc *peerConn) writeFrame(f frame) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	return writeFrame(pc.conn, f)
}

// writeLocked runs fn with exclusive access to the connection, for
// multi-write sequences (manifest plus content streams).
func (pc *peerConn) writeLocked(fn func(io.Writer) error) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	return fn(pc.conn)
}

// answerGet streams the manifest for path followed by each entry's
// content, in manifest order, as one atomic write sequence.
func (s *Session) answerGet(pc *peerConn, path string) error {
	entries, err := s.drive.List(path)
	if err != nil || len(entries) == 0 {
		return pc.writeFrame(frame{Type: frameError, Path: path, Message: "not found"})
	}

	manifest := frame{Type: frameManifest, Path: path}
	for _, e := range entries {
		manifest.Entries = append(manifest.Entries, wireEntry{
			Path:    e.Path,
			Size:    e.Size,
			Version: e.Version,
			ModTime: e.ModTime.UnixNano(),
		})
	}

	return pc.writeLocked(func(w io.Writer) error {
		if err := writeFrame(w, manifest); err != nil {
			return err
		}

		for _, e := range entries {
			rc, streamErr := s.drive.CreateReadStream(e.Path, drive.Range{})
			if streamErr != nil {
				return streamErr
			}

			_, copyErr := io.Copy(w, rc)
			rc.Close()

			if copyErr != nil {
				return copyErr
			}
		}

		return nil
	})
}

// startChangePush subscribes to the drive's change feed and forwards
// events to the peer until the connection or context ends. The returned
// function detaches the subscription.
func (s *Session) startChangePush(ctx context.Context, pc *peerConn) func() {
	changes, unsubscribe := s.drive.Subscribe()

	done := make(chan struct{})

	go func() {
		defer close(done)

		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-changes:
				if !ok {
					return
				}

				err := pc.writeFrame(frame{
					Type:    frameChange,
					Path:    change.Path,
					Kind:    int(change.Kind),
					Version: change.Version,
				})
				if err != nil {
					return
				}
			}
		}
	}()

	return func() {
		unsubscribe()
		<-done
	}
}
