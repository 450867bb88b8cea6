package swarm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
)

// Fetch pulls the path (a file, or a directory and everything under it)
// from the first configured peer that has it, writing the content into
// the session's drive. It blocks until the transfer settles. Peers are
// tried in configuration order; ErrNoPeers means none answered at all,
// ErrPathUnavailable means every reachable peer lacked the path.
func (s *Session) Fetch(ctx context.Context, path string) (int, error) {
	if !s.opts.fetching() {
		return 0, errors.New("swarm: session has no download facet")
	}

	if len(s.cfg.Peers) == 0 {
		return 0, ErrNoPeers
	}

	var (
		reachable bool
		lastErr   error
	)

	for _, peer := range s.cfg.Peers {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		count, err := s.fetchFromPeer(ctx, peer, path)
		if err == nil {
			return count, nil
		}

		var unavailable *unavailableError
		if errors.As(err, &unavailable) {
			reachable = true
		}

		lastErr = err

		s.logger.Debug("fetch attempt failed",
			slog.String("peer", peer),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}

	if reachable {
		return 0, fmt.Errorf("%w: %s", ErrPathUnavailable, path)
	}

	return 0, fmt.Errorf("%w (last: %v)", ErrNoPeers, lastErr)
}

// unavailableError marks a peer that answered but lacked the path,
// distinguishing "nobody reachable" from "nobody has it".
type unavailableError struct {
	peer string
	path string
}

func (e *unavailableError) Error() string {
	return fmt.Sprintf("swarm: peer %s does not have %s", e.peer, e.path)
}

// fetchFromPeer performs one blocking download conversation with a peer.
func (s *Session) fetchFromPeer(ctx context.Context, peer, path string) (int, error) {
	dialer := net.Dialer{Timeout: dialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", peer)
	if err != nil {
		return 0, fmt.Errorf("swarm: dialing %s: %w", peer, err)
	}
	defer conn.Close()

	// Cancel the blocking reads if the context ends mid-transfer.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := writeFrame(conn, s.helloFrame()); err != nil {
		return 0, err
	}

	ack, err := readFrame(conn)
	if err != nil || ack.Type != frameHello {
		return 0, fmt.Errorf("swarm: handshake with %s failed", peer)
	}

	if err := writeFrame(conn, frame{Type: frameGet, Path: path}); err != nil {
		return 0, err
	}

	manifest, err := s.awaitManifest(conn, peer, path)
	if err != nil {
		return 0, err
	}

	for _, we := range manifest.Entries {
		if _, err := s.drive.Put(we.Path, io.LimitReader(conn, we.Size)); err != nil {
			return 0, fmt.Errorf("swarm: storing %s: %w", we.Path, err)
		}

		s.logger.Debug("fetched entry",
			slog.String("peer", peer),
			slog.String("path", we.Path),
			slog.Int64("bytes", we.Size),
		)
	}

	return len(manifest.Entries), nil
}

// awaitManifest reads frames until the manifest (or error) for the
// request arrives, skipping any live change pushes from the peer.
func (s *Session) awaitManifest(conn net.Conn, peer, path string) (frame, error) {
	for {
		f, err := readFrame(conn)
		if err != nil {
			return frame{}, fmt.Errorf("swarm: reading from %s: %w", peer, err)
		}

		switch f.Type {
		case frameManifest:
			return f, nil
		case frameError:
			return frame{}, &unavailableError{peer: peer, path: path}
		case frameChange:
			continue
		default:
			return frame{}, fmt.Errorf("swarm: unexpected %s frame from %s", f.Type, peer)
		}
	}
}
