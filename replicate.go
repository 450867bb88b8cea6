package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/peerdrive/peerdrive-go/internal/bridge"
	"github.com/peerdrive/peerdrive-go/internal/swarm"
)

// shutdownTimeout bounds the HTTP server's graceful drain on exit.
const shutdownTimeout = 5 * time.Second

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload [path]",
		Short: "Seed the drive to downloading peers",
		Long: `Open an upload session and answer peer requests for this drive's
content until interrupted. The session listens one port above the HTTP
bridge port.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runUpload,
	}
}

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download [pathspec]",
		Short: "Fetch a drive path from configured peers",
		Long: `Ensure a drive path (default: the whole drive) is available locally.
Content already present is left alone; otherwise one download session
dials the configured peers in order until one of them supplies the path.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runDownload,
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve [path]",
		Short: "Serve the drive over HTTP and replicate live",
		Long: `Serve the drive's content over an HTTP bridge and keep a live
replication session open until interrupted. The bridge answers GET and
HEAD with Range support, lists directories as JSON, and streams change
events over a websocket at ` + bridge.EventsPath + `.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runServe,
	}
}

// swarmAddr derives the replication listen address from the bridge port.
// Sessions listen one port above the HTTP bridge so both can coexist on
// one host.
func swarmAddr(port int) string {
	return net.JoinHostPort("", strconv.Itoa(port+1))
}

func runUpload(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	d, err := openDrive(cmd.Context(), backendArg(args), logger)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := shutdownContext(cmd.Context(), logger)

	sess, err := swarm.Open(ctx, d, swarm.Options{Upload: true}, swarm.Config{
		ListenAddr: swarmAddr(resolvedCfg.Network.Port),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	statusf("Seeding drive %s on %s (interrupt to stop)\n", d.Key(), sess.Addr())

	<-ctx.Done()
	statusf("Stopping\n")

	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	spec := pathArg(args)
	logger := buildLogger()

	d, err := openDrive(cmd.Context(), "", logger)
	if err != nil {
		return err
	}
	defer d.Close()

	// Fetch only what is missing. Present content never triggers a
	// session.
	if err := d.Access(spec); err == nil {
		statusf("%s is already available\n", spec)
		return nil
	}

	sess, err := swarm.Open(cmd.Context(), d, swarm.Options{Download: true}, swarm.Config{
		Peers:  resolvedCfg.Network.Peers,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	count, err := sess.Fetch(cmd.Context(), spec)
	if err != nil {
		return fmt.Errorf("downloading %q: %w", spec, err)
	}

	statusf("Downloaded %d files for %s\n", count, spec)

	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	d, err := openDrive(cmd.Context(), backendArg(args), logger)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := shutdownContext(cmd.Context(), logger)

	sess, err := swarm.Open(ctx, d, swarm.Options{Live: true}, swarm.Config{
		ListenAddr: swarmAddr(resolvedCfg.Network.Port),
		Peers:      resolvedCfg.Network.Peers,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	srv := &http.Server{
		Addr:    net.JoinHostPort("", strconv.Itoa(resolvedCfg.Network.Port)),
		Handler: bridge.NewHandler(d, logger),
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Debug("bridge listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	statusf("Serving drive %s on http://localhost:%d (interrupt to stop)\n",
		d.Key(), resolvedCfg.Network.Port)

	select {
	case err := <-errCh:
		// ListenAndServe never returns nil.
		return fmt.Errorf("HTTP bridge: %w", err)
	case <-ctx.Done():
	}

	statusf("Stopping\n")

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("draining HTTP bridge: %w", err)
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP bridge: %w", err)
	}

	return nil
}
